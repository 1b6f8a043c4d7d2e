// Package integration_test 集成测试：通过 api 包对外 API，经真实 WebSocket 连接串联所有组件。
// 使用 go test ./test/integration/... 运行；加 -short 可跳过耗时集成测试。
package integration_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	inspectflow "github.com/Pentahill/inspectflow/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/net/websocket"
)

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

// inspector 假的调试端，respond 为每个请求返回要依次发送的帧；
// 返回的 close 为 true 时发送完毕后断开连接
type inspector struct {
	srv *httptest.Server

	mu       sync.Mutex
	path     string
	requests []string
}

func newInspector(t *testing.T, respond func(method string, id int64) (frames []string, close bool)) *inspector {
	t.Helper()
	ins := &inspector{}

	ins.srv = httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		defer conn.Close()

		ins.mu.Lock()
		ins.path = conn.Request().URL.Path
		ins.mu.Unlock()

		for {
			var data []byte
			if err := websocket.Message.Receive(conn, &data); err != nil {
				return
			}
			ins.mu.Lock()
			ins.requests = append(ins.requests, string(data))
			ins.mu.Unlock()

			frames, closeConn := respond(gjson.GetBytes(data, "method").String(), gjson.GetBytes(data, "id").Int())
			for _, frame := range frames {
				if err := websocket.Message.Send(conn, frame); err != nil {
					return
				}
			}
			if closeConn {
				return
			}
		}
	}))
	t.Cleanup(ins.srv.Close)
	return ins
}

func (ins *inspector) config(t *testing.T) inspectflow.Config {
	t.Helper()
	u, err := url.Parse(ins.srv.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	cfg := inspectflow.DefaultConfig()
	cfg.Host = host
	cfg.Port, err = strconv.Atoi(port)
	require.NoError(t, err)
	return cfg
}

// request 返回第一个 method 匹配的请求帧
func (ins *inspector) request(method string) string {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	for _, req := range ins.requests {
		if gjson.Get(req, "method").String() == method {
			return req
		}
	}
	return ""
}

func (ins *inspector) requestPath() string {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	return ins.path
}

func (ins *inspector) methods() []string {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	var methods []string
	for _, req := range ins.requests {
		methods = append(methods, gjson.Get(req, "method").String())
	}
	return methods
}

func reply(id int64, result string) string {
	return fmt.Sprintf(`{"id":%d,"result":%s}`, id, result)
}

const pausedAtStart = `{"method":"Debugger.paused","params":{"reason":"Break on start","callFrames":[{"url":"file:///app.js","location":{"scriptId":"42","lineNumber":0,"columnNumber":0}}]}}`

func runClient(t *testing.T, cfg inspectflow.Config, input io.Reader, out io.Writer) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := inspectflow.NewClient(&inspectflow.ClientOptional{
		Config: &cfg,
		Source: inspectflow.NewLineSource(input, out),
	})
	return client.Run(ctx)
}

// TestIntegration_BreakpointAndContinue 连接、启动、设置断点、继续执行、退出
func TestIntegration_BreakpointAndContinue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ins := newInspector(t, func(method string, id int64) ([]string, bool) {
		switch method {
		case "Runtime.runIfWaitingForDebugger":
			return []string{pausedAtStart, reply(id, `{}`)}, false
		case "Debugger.setBreakpointByUrl":
			return []string{reply(id, `{"breakpointId":"1:41:0:app.js","locations":[{"scriptId":"42","lineNumber":41,"columnNumber":2}]}`)}, false
		case "Debugger.resume":
			return []string{`{"method":"Debugger.resumed","params":{}}`, reply(id, `{}`)}, false
		default:
			return []string{reply(id, `{}`)}, false
		}
	})

	out := &syncBuffer{}
	err := runClient(t, ins.config(t), strings.NewReader("abc-123\nbreakpoint\napp.js\n42\ncontinue\nquit\n"), out)
	require.NoError(t, err)

	assert.Equal(t, "/abc-123", ins.requestPath())
	assert.Equal(t, []string{
		"Debugger.enable",
		"Runtime.runIfWaitingForDebugger",
		"Debugger.setBreakpointByUrl",
		"Debugger.resume",
	}, ins.methods())

	bp := ins.request("Debugger.setBreakpointByUrl")
	assert.Equal(t, `{"lineNumber":41,"urlRegex":"app.js"}`, gjson.Get(bp, "params").Raw)
	assert.JSONEq(t, `{}`, gjson.Get(ins.request("Debugger.enable"), "params").Raw)

	output := out.String()
	assert.Contains(t, output, "Enter session token: ")
	assert.Contains(t, output, "Paused at file:///app.js:1:1\n")
	assert.Contains(t, output, "Breakpoint set: 1:41:0:app.js\n")
	assert.Contains(t, output, "  resolved at 42:42:3\n")
	assert.Contains(t, output, "Resumed\n")
	assert.NotContains(t, output, "Error:")
}

// TestIntegration_InvalidStateHint 调试端拒绝单步时输出错误和提示，会话继续
func TestIntegration_InvalidStateHint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ins := newInspector(t, func(method string, id int64) ([]string, bool) {
		switch method {
		case "Runtime.runIfWaitingForDebugger":
			return []string{pausedAtStart, reply(id, `{}`)}, false
		case "Debugger.stepOver":
			return []string{fmt.Sprintf(`{"id":%d,"error":{"code":-32000,"message":"Can only perform operation while paused."}}`, id)}, false
		default:
			return []string{reply(id, `{}`)}, false
		}
	})

	out := &syncBuffer{}
	err := runClient(t, ins.config(t), strings.NewReader("abc-123\nstep\njump\nquit\n"), out)
	require.NoError(t, err)

	output := out.String()
	assert.Equal(t, 1, strings.Count(output, "Can only perform operation while paused."))
	assert.Contains(t, output, "(hint: ensure the debuggee is paused before stepping or resuming)\n")
	assert.Contains(t, output, `Error: unknown command: "jump"`)
	assert.Equal(t, 3, strings.Count(output, "Enter command (continue | step | breakpoint | quit): "))
}

// TestIntegration_PeerDisconnects 调试端断开后命令循环结束并返回连接关闭错误
func TestIntegration_PeerDisconnects(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ins := newInspector(t, func(method string, id int64) ([]string, bool) {
		return []string{reply(id, `{}`)}, method == "Runtime.runIfWaitingForDebugger"
	})

	input, inputWriter := io.Pipe()
	defer inputWriter.Close()
	go func() {
		_, _ = io.WriteString(inputWriter, "abc-123\n")
	}()

	out := &syncBuffer{}
	err := runClient(t, ins.config(t), input, out)
	require.ErrorIs(t, err, inspectflow.ErrConnectionClosed)
	assert.Contains(t, out.String(), "Connection closed: ")
}

// TestIntegration_ConnectFailure 调试端不存在时不进入命令循环
func TestIntegration_ConnectFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := inspectflow.DefaultConfig()
	cfg.Port = 1

	out := &syncBuffer{}
	err := runClient(t, cfg, strings.NewReader("abc-123\n"), out)

	var connectErr *inspectflow.ConnectError
	require.ErrorAs(t, err, &connectErr)
	assert.NotContains(t, out.String(), "Enter command")
}
