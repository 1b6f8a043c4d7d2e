package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Pentahill/inspectflow/internal/protocol"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"
)

var (
	// ErrConnectionClosed 连接已关闭（主动关闭或对端断开）
	ErrConnectionClosed = errors.New("connection closed")
	// ErrDecode 收到的帧无法解码，连接本身仍可用
	ErrDecode = errors.New("decode frame")
)

// ConnectError 建立连接失败
type ConnectError struct {
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

type Binder[H Handler] interface {
	Bind(Connection) H
}

// Handler 消费连接上读到的每一条消息
type Handler interface {
	// Handle 处理一条已解码的入站消息
	Handle(ctx context.Context, msg any) error
	// HandleClose 连接读取终止时调用一次，err 为终止原因
	HandleClose(ctx context.Context, err error)
}

// Transport 传输层接口，用于创建双向连接
type Transport interface {
	// Connect 返回逻辑连接
	// 每个 Transport 实例应该只用于一次 Connect 调用
	Connect(ctx context.Context) (Connection, error)

	Done() <-chan struct{}
}

// Connection 逻辑双向连接接口
// 每个方向按发送顺序投递整条消息
type Connection interface {
	// Read 从连接读取下一条消息
	Read(ctx context.Context) (any, error)

	// Write 向连接写入新消息
	Write(ctx context.Context, msg any) error

	// Close 关闭连接。当 Read 或 Write 失败时会隐式调用
	Close() error

	// SessionID 返回会话 ID
	SessionID() string
}

// ConnectAndBind 建立连接、绑定 Handler，并启动监听 goroutine
// 监听 goroutine 独立于调用方运行，逐条把消息交给 Handler；
// 无法解码的帧记录后丢弃，其余读取错误结束监听并回调 HandleClose
func ConnectAndBind[H Handler](ctx context.Context, t Transport, b Binder[H]) (H, error) {
	var zero H
	conn, err := t.Connect(ctx)
	if err != nil {
		return zero, err
	}

	h := b.Bind(conn)

	threading.GoSafe(func() {
		for {
			msg, err := conn.Read(ctx)
			if errors.Is(err, ErrDecode) {
				logx.WithContext(ctx).Errorf("Dropping malformed frame, session_id=%s, error=%v", conn.SessionID(), err)
				continue
			}
			if err != nil {
				logx.WithContext(ctx).Debugf("Listener stopped, session_id=%s, error=%v", conn.SessionID(), err)
				h.HandleClose(ctx, err)
				return
			}

			if err := h.Handle(ctx, msg); err != nil {
				logx.WithContext(ctx).Errorf("Failed to handle message, session_id=%s, error=%v", conn.SessionID(), err)
			}
		}
	})

	return h, nil
}

// DefaultDecoder 默认解码器
// 将一帧 JSON 文本解码为 *protocol.Message
func DefaultDecoder() func([]byte) (any, error) {
	return func(data []byte) (any, error) {
		return protocol.DecodeMessage(data)
	}
}

// DefaultEncoder 默认编码器
// 实现了 protocol.Encodable 的消息使用自身编码，其余按 JSON 编码
func DefaultEncoder() func(any) ([]byte, error) {
	return func(msg any) ([]byte, error) {
		if enc, ok := msg.(protocol.Encodable); ok {
			return enc.Encode()
		}
		return json.Marshal(msg)
	}
}
