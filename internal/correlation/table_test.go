package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Pentahill/inspectflow/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSender 记录所有写出的请求
type recordingSender struct {
	mu       sync.Mutex
	requests []*protocol.Request
	err      error
}

func (s *recordingSender) Write(_ context.Context, msg any) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, msg.(*protocol.Request))
	return nil
}

func (s *recordingSender) sent() []*protocol.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*protocol.Request(nil), s.requests...)
}

func TestTable_Issue(t *testing.T) {
	t.Run("MonotonicIDs", func(t *testing.T) {
		sender := &recordingSender{}
		table := NewTable(sender, nil)
		ctx := context.Background()

		var last int64
		for range 20 {
			p, err := table.Issue(ctx, protocol.MethodDebuggerResume, nil)
			require.NoError(t, err)
			assert.Greater(t, p.ID, last)
			last = p.ID
		}
		assert.Equal(t, 20, table.Outstanding())
		assert.Equal(t, last, table.LastID())

		requests := sender.sent()
		require.Len(t, requests, 20)
		assert.Equal(t, int64(1), requests[0].ID)
	})

	t.Run("SendFailureUnregisters", func(t *testing.T) {
		sendErr := errors.New("broken pipe")
		table := NewTable(&recordingSender{err: sendErr}, nil)

		_, err := table.Issue(context.Background(), protocol.MethodDebuggerEnable, nil)
		require.ErrorIs(t, err, sendErr)
		assert.Equal(t, 0, table.Outstanding())

		// 失败的 id 也不会复用
		_, err = table.Issue(context.Background(), protocol.MethodDebuggerEnable, nil)
		require.Error(t, err)
		assert.Equal(t, int64(2), table.LastID())
	})

	t.Run("OnIssue", func(t *testing.T) {
		var issued []string
		table := NewTable(&recordingSender{}, &TableOptional{
			OnIssue: func(_ context.Context, req *protocol.Request) {
				issued = append(issued, req.Method)
			},
		})

		_, err := table.Issue(context.Background(), protocol.MethodDebuggerStepOver, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{protocol.MethodDebuggerStepOver}, issued)
	})
}

func TestTable_Resolve(t *testing.T) {
	t.Run("ExactlyOnce", func(t *testing.T) {
		table := NewTable(&recordingSender{}, nil)
		ctx := context.Background()

		p, err := table.Issue(ctx, protocol.MethodDebuggerResume, nil)
		require.NoError(t, err)

		assert.True(t, table.Resolve(p.ID, json.RawMessage(`{"ok":true}`)))
		assert.False(t, table.Resolve(p.ID, json.RawMessage(`{"ok":false}`)))
		assert.False(t, table.Reject(p.ID, errors.New("late")))

		result, err := table.Wait(ctx, p)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(result))
		assert.Equal(t, 0, table.Outstanding())
	})

	t.Run("UnknownID", func(t *testing.T) {
		table := NewTable(&recordingSender{}, nil)
		p, err := table.Issue(context.Background(), protocol.MethodDebuggerResume, nil)
		require.NoError(t, err)

		assert.False(t, table.Resolve(p.ID+100, nil))
		assert.Equal(t, 1, table.Outstanding())

		select {
		case <-p.Done():
			t.Fatal("unrelated reply completed the request")
		default:
		}
	})

	t.Run("OutOfOrder", func(t *testing.T) {
		table := NewTable(&recordingSender{}, nil)
		ctx := context.Background()

		first, err := table.Issue(ctx, protocol.MethodDebuggerEnable, nil)
		require.NoError(t, err)
		second, err := table.Issue(ctx, protocol.MethodRunIfWaitingForDebugger, nil)
		require.NoError(t, err)

		require.True(t, table.Resolve(second.ID, json.RawMessage(`2`)))
		require.True(t, table.Resolve(first.ID, json.RawMessage(`1`)))

		r1, err := table.Wait(ctx, first)
		require.NoError(t, err)
		r2, err := table.Wait(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, "1", string(r1))
		assert.Equal(t, "2", string(r2))
	})

	t.Run("Reject", func(t *testing.T) {
		table := NewTable(&recordingSender{}, nil)
		ctx := context.Background()

		p, err := table.Issue(ctx, protocol.MethodDebuggerStepOver, nil)
		require.NoError(t, err)

		perr := &protocol.Error{Code: protocol.CodeInvalidState, Message: "Can only perform operation while paused."}
		require.True(t, table.Reject(p.ID, perr))

		_, err = table.Wait(ctx, p)
		var got *protocol.Error
		require.ErrorAs(t, err, &got)
		assert.True(t, got.IsInvalidState())
	})
}

func TestTable_RejectAll(t *testing.T) {
	table := NewTable(&recordingSender{}, nil)
	ctx := context.Background()

	closed := errors.New("connection closed")
	var pendings []*Pending
	for range 3 {
		p, err := table.Issue(ctx, protocol.MethodDebuggerResume, nil)
		require.NoError(t, err)
		pendings = append(pendings, p)
	}

	assert.Equal(t, 3, table.RejectAll(closed))
	assert.Equal(t, 0, table.Outstanding())
	for _, p := range pendings {
		_, err := table.Wait(ctx, p)
		assert.ErrorIs(t, err, closed)
	}
	assert.Equal(t, 0, table.RejectAll(closed))
}

func TestTable_Call(t *testing.T) {
	t.Run("ResolvedConcurrently", func(t *testing.T) {
		sender := &recordingSender{}
		table := NewTable(sender, nil)

		go func() {
			for table.Outstanding() == 0 {
				time.Sleep(time.Millisecond)
			}
			table.Resolve(table.LastID(), json.RawMessage(`{}`))
		}()

		result, err := table.Call(context.Background(), protocol.MethodDebuggerEnable, nil)
		require.NoError(t, err)
		assert.Equal(t, "{}", string(result))
	})

	t.Run("Timeout", func(t *testing.T) {
		table := NewTable(&recordingSender{}, &TableOptional{Timeout: 20 * time.Millisecond})

		_, err := table.Call(context.Background(), protocol.MethodDebuggerResume, nil)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 0, table.Outstanding())

		// 超时后到达的回复按未知 id 处理
		assert.False(t, table.Resolve(table.LastID(), nil))
	})
}
