package inspect

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Pentahill/inspectflow/internal/prompt"
	"github.com/Pentahill/inspectflow/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// syncBuffer 可并发读写的 bytes.Buffer
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeInspector 扮演调试端：记录收到的方法，并按 respond 返回的帧依次应答
type fakeInspector struct {
	peer *transport.Peer

	mu      sync.Mutex
	methods []string
}

func serveInspector(t *testing.T, peer *transport.Peer, respond func(method string, id int64) []string) *fakeInspector {
	t.Helper()
	fi := &fakeInspector{peer: peer}

	go func() {
		for {
			data, err := peer.Receive(context.Background())
			if err != nil {
				return
			}

			method := gjson.GetBytes(data, "method").String()
			id := gjson.GetBytes(data, "id").Int()
			fi.mu.Lock()
			fi.methods = append(fi.methods, method)
			fi.mu.Unlock()

			for _, frame := range respond(method, id) {
				if err := peer.Send(frame); err != nil {
					return
				}
			}
		}
	}()
	return fi
}

func (fi *fakeInspector) received() []string {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return append([]string(nil), fi.methods...)
}

func reply(id int64) string {
	return fmt.Sprintf(`{"id":%d,"result":{}}`, id)
}

func paused(location string) string {
	return fmt.Sprintf(`{"method":"Debugger.paused","params":{"callFrames":[{"location":%q}]}}`, location)
}

const resumed = `{"method":"Debugger.resumed","params":{}}`

// newPipeClient 通过内存连接运行的客户端
func newPipeClient(t *testing.T, input io.Reader, sessionID string) (*Client, *transport.Peer, *syncBuffer) {
	t.Helper()
	tr, peer := transport.Pipe(sessionID)
	out := &syncBuffer{}

	client := NewClient(&ClientOptional{
		Source: prompt.NewLineSource(input, out),
		Dial: func(endpoint, sid string) transport.Transport {
			assert.Equal(t, "ws://127.0.0.1:9229/"+sessionID, endpoint)
			assert.Equal(t, sessionID, sid)
			return tr
		},
	})
	return client, peer, out
}

func waitFor(t *testing.T, out *syncBuffer, text string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), text)
	}, 2*time.Second, 5*time.Millisecond, "output never contained %q: %s", text, out.String())
}
