package channel

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Pentahill/inspectflow/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAction 用于测试的 Action 实现
type mockAction struct {
	Index     int
	sessionID string
}

func (m *mockAction) GetSessionID() string {
	return m.sessionID
}

func (m *mockAction) Marshal() ([]byte, error) {
	return json.Marshal(map[string]int{"index": m.Index})
}

// mockHandler 用于测试的 ActionHandler 实现
type mockHandler struct {
	mu      sync.Mutex
	actions []Action
}

func (m *mockHandler) Handle(_ context.Context, action Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
	return nil
}

func (m *mockHandler) received() []Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Action(nil), m.actions...)
}

// typedHandler 只处理 InboundAction
type typedHandler struct {
	mockHandler
}

func (h *typedHandler) Name() string {
	return "typedHandler"
}

func (h *typedHandler) SupportedAction() []reflect.Type {
	return []reflect.Type{GetActionType[*InboundAction]()}
}

func mustMessage(t *testing.T, frame string) *protocol.Message {
	t.Helper()
	msg, err := protocol.DecodeMessage([]byte(frame))
	require.NoError(t, err)
	return msg
}

func TestDispatcher(t *testing.T) {
	t.Run("DeliversInOrder", func(t *testing.T) {
		ch := NewDefaultChannel(10)
		dispatcher := NewDispatcher(ch)
		defer dispatcher.Close()

		handler := &mockHandler{}
		dispatcher.Register(handler)

		for i := range 10 {
			require.NoError(t, dispatcher.Send(context.Background(), &mockAction{Index: i, sessionID: "test-session-send"}))
		}

		require.Eventually(t, func() bool { return len(handler.received()) == 10 }, time.Second, 10*time.Millisecond)
		for i, action := range handler.received() {
			assert.Equal(t, i, action.(*mockAction).Index)
		}
	})

	t.Run("FiltersByType", func(t *testing.T) {
		ch := NewDefaultChannel(10)
		dispatcher := NewDispatcher(ch)
		defer dispatcher.Close()

		typed := &typedHandler{}
		all := &mockHandler{}
		dispatcher.Register(typed)
		dispatcher.Register(all)

		ctx := context.Background()
		require.NoError(t, dispatcher.Send(ctx, &mockAction{Index: 1}))
		require.NoError(t, dispatcher.Send(ctx, NewInboundAction("s", mustMessage(t, `{"id":1,"result":{}}`))))
		require.NoError(t, dispatcher.Send(ctx, NewSessionCloseAction("s", "peer", nil)))

		require.Eventually(t, func() bool { return len(all.received()) == 3 }, time.Second, 10*time.Millisecond)
		require.Len(t, typed.received(), 1)
		assert.IsType(t, &InboundAction{}, typed.received()[0])
	})

	t.Run("ExplicitSupportedTypes", func(t *testing.T) {
		ch := NewDefaultChannel(10)
		dispatcher := NewDispatcher(ch)
		defer dispatcher.Close()

		closes := &mockHandler{}
		dispatcher.Register(closes, GetActionType[*SessionCloseAction]())
		all := &mockHandler{}
		dispatcher.Register(all)

		ctx := context.Background()
		require.NoError(t, dispatcher.Send(ctx, &mockAction{Index: 1}))
		require.NoError(t, dispatcher.Send(ctx, NewSessionCloseAction("s", "quit", nil)))

		require.Eventually(t, func() bool { return len(all.received()) == 2 }, time.Second, 10*time.Millisecond)
		assert.Len(t, closes.received(), 1)
	})

	t.Run("RejectsAfterClose", func(t *testing.T) {
		ch := NewDefaultChannel(10)
		dispatcher := NewDispatcher(ch)

		require.NoError(t, dispatcher.Close())
		require.NoError(t, dispatcher.Close())
		assert.True(t, dispatcher.IsClosed())
		assert.ErrorIs(t, dispatcher.Send(context.Background(), &mockAction{}), ErrDispatcherClosed)
	})
}

func TestDefaultChannel(t *testing.T) {
	ch := NewDefaultChannel(0)
	ctx := context.Background()

	require.NoError(t, ch.Send(ctx, &mockAction{Index: 1}))
	require.NoError(t, ch.Close())
	assert.True(t, ch.IsClosed())
	assert.ErrorIs(t, ch.Send(ctx, &mockAction{Index: 2}), ErrChannelClosed)

	// 关闭前缓冲的 Action 仍可取出
	action, err := ch.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, action.(*mockAction).Index)

	_, err = ch.Receive(ctx)
	assert.ErrorIs(t, err, ErrChannelClosed)
}
