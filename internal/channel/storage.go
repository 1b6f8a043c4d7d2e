package channel

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"reflect"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"
)

// ErrStreamNotOpen 流未打开错误
var ErrStreamNotOpen = errors.New("stream not open")

// Entry 会话记录中的一条
type Entry struct {
	// Index 在会话记录中的位置，从 0 开始
	Index int
	Type  ActionType
	// Data 请求帧、入站原始帧或关闭原因
	Data json.RawMessage
}

// Transcript 会话消息记录
// 所有方法必须支持多 goroutine 并发调用
type Transcript interface {
	// Open 会话开始时调用，确保底层数据结构已初始化
	Open(ctx context.Context, sessionID string) error

	// Append 追加一个 Action，Action 会被序列化存储
	Append(ctx context.Context, sessionID string, action Action) error

	// After 返回从指定索引之后（不含）开始的迭代器，index 为 -1 表示从头开始
	// 会话未打开时迭代器立即返回 ErrStreamNotOpen
	After(ctx context.Context, sessionID string, index int) iter.Seq2[Entry, error]

	// SessionClosed 通知会话已结束，可以回收记录
	SessionClosed(ctx context.Context, sessionID string) error
}

// TranscriptHandler 可以注册到 Dispatcher 自动记录的 Transcript
type TranscriptHandler interface {
	Transcript
	ActionHandlerSupportType
}

// streamData 单个会话的记录
type streamData struct {
	actions [][]byte
	mu      sync.RWMutex
	opened  bool
}

// MemoryTranscript 内存会话记录
// 同时实现 ActionHandlerSupportType，注册到 Dispatcher 后自动记录所有 Action
type MemoryTranscript struct {
	storage map[string]*streamData
	mu      sync.RWMutex
}

// NewMemoryTranscript 创建内存会话记录
func NewMemoryTranscript() *MemoryTranscript {
	return &MemoryTranscript{
		storage: make(map[string]*streamData),
	}
}

// Handle 实现 ActionHandler 接口，持久化所有类型的 Action
func (m *MemoryTranscript) Handle(ctx context.Context, action Action) error {
	if action == nil {
		return nil
	}

	sessionID := action.GetSessionID()
	if sessionID == "" {
		sessionID = "<empty>"
	}

	if err := m.Append(ctx, sessionID, action); err != nil {
		logx.WithContext(ctx).Errorf("Failed to store action, session_id=%s, error=%v", sessionID, err)
		return err
	}
	return nil
}

// Name 实现 ActionHandlerSupportType 接口
func (m *MemoryTranscript) Name() string {
	return "MemoryTranscript"
}

// SupportedAction 返回 nil 表示支持所有类型的 Action
func (m *MemoryTranscript) SupportedAction() []reflect.Type {
	return nil
}

func (m *MemoryTranscript) getOrCreateStream(sessionID string) *streamData {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.storage[sessionID] == nil {
		m.storage[sessionID] = &streamData{actions: make([][]byte, 0)}
	}
	return m.storage[sessionID]
}

// Open 打开会话记录
func (m *MemoryTranscript) Open(ctx context.Context, sessionID string) error {
	stream := m.getOrCreateStream(sessionID)

	stream.mu.Lock()
	defer stream.mu.Unlock()
	stream.opened = true

	logx.WithContext(ctx).Debugf("Transcript opened, session_id=%s", sessionID)
	return nil
}

// Append 追加 Action；会话未打开时自动打开
func (m *MemoryTranscript) Append(ctx context.Context, sessionID string, action Action) error {
	if action == nil {
		return errors.New("action cannot be nil")
	}

	data, err := action.Marshal()
	if err != nil {
		return err
	}

	stream := m.getOrCreateStream(sessionID)

	stream.mu.Lock()
	defer stream.mu.Unlock()

	stream.opened = true
	stream.actions = append(stream.actions, data)

	logx.WithContext(ctx).Debugf("Transcript appended, session_id=%s, index=%d, type=%T", sessionID, len(stream.actions)-1, action)
	return nil
}

// After 返回从 index 之后开始的迭代器
// 迭代的是调用时刻的快照，不持有锁
func (m *MemoryTranscript) After(ctx context.Context, sessionID string, index int) iter.Seq2[Entry, error] {
	m.mu.RLock()
	stream, exists := m.storage[sessionID]
	m.mu.RUnlock()

	if !exists {
		return func(yield func(Entry, error) bool) {
			yield(Entry{}, ErrStreamNotOpen)
		}
	}

	stream.mu.RLock()
	actionsCopy := make([][]byte, len(stream.actions))
	copy(actionsCopy, stream.actions)
	opened := stream.opened
	stream.mu.RUnlock()

	if !opened {
		return func(yield func(Entry, error) bool) {
			yield(Entry{}, ErrStreamNotOpen)
		}
	}

	if index < -1 {
		index = -1
	}

	return func(yield func(Entry, error) bool) {
		for i := index + 1; i < len(actionsCopy); i++ {
			if err := ctx.Err(); err != nil {
				yield(Entry{}, err)
				return
			}

			var meta ActionMetadata
			if err := json.Unmarshal(actionsCopy[i], &meta); err != nil {
				if !yield(Entry{}, err) {
					return
				}
				continue
			}

			if !yield(Entry{Index: i, Type: meta.Type, Data: meta.Data}, nil) {
				return
			}
		}
	}
}

// SessionClosed 丢弃会话记录
func (m *MemoryTranscript) SessionClosed(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.storage, sessionID)
	logx.WithContext(ctx).Debugf("Transcript discarded, session_id=%s", sessionID)
	return nil
}
