package transport

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/net/websocket"
)

// DefaultOrigin 握手时使用的 Origin
const DefaultOrigin = "http://127.0.0.1/"

// WebSocketOptional 创建 WebSocketTransport 时的可选配置
type WebSocketOptional struct {
	// Origin 握手 Origin，为空时使用 DefaultOrigin
	Origin string
	// SessionID 会话标识，用于日志，通常是操作员输入的 session token
	SessionID string
	// Decoder 解码器；nil 表示使用 DefaultDecoder
	Decoder func([]byte) (any, error)
	// Encoder 编码器；nil 表示使用 DefaultEncoder
	Encoder func(any) ([]byte, error)
}

// WebSocketTransport WebSocket 传输层实现
// 每条消息是一帧 UTF-8 JSON 文本
type WebSocketTransport struct {
	url    string
	origin string

	decoder func([]byte) (any, error)
	encoder func(any) ([]byte, error)

	// mu 保护 conn 和 closed，writeMu 串行化写入
	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	closed  bool

	// done 关闭时 close
	done chan struct{}

	sessionID string
}

func NewWebSocketTransport(url string, opt *WebSocketOptional) *WebSocketTransport {
	if opt == nil {
		opt = &WebSocketOptional{}
	}

	t := &WebSocketTransport{
		url:       url,
		origin:    opt.Origin,
		decoder:   opt.Decoder,
		encoder:   opt.Encoder,
		done:      make(chan struct{}),
		sessionID: opt.SessionID,
	}
	if t.origin == "" {
		t.origin = DefaultOrigin
	}
	if t.decoder == nil {
		t.decoder = DefaultDecoder()
	}
	if t.encoder == nil {
		t.encoder = DefaultEncoder()
	}
	return t
}

// Connect 完成 WebSocket 握手
func (t *WebSocketTransport) Connect(ctx context.Context) (Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrConnectionClosed
	}
	if t.conn != nil {
		return nil, fmt.Errorf("transport already connected")
	}

	cfg, err := websocket.NewConfig(t.url, t.origin)
	if err != nil {
		return nil, &ConnectError{URL: t.url, Err: err}
	}

	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, &ConnectError{URL: t.url, Err: err}
	}
	t.conn = conn

	return &wsConnection{transport: t}, nil
}

// Close 关闭传输，阻塞中的 Read 随之返回
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	t.closed = true
	close(t.done)
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

func (t *WebSocketTransport) Done() <-chan struct{} {
	return t.done
}

// URL 返回连接地址
func (t *WebSocketTransport) URL() string {
	return t.url
}

func (t *WebSocketTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type wsConnection struct {
	transport *WebSocketTransport
}

// Read 读取下一帧并解码
// 阻塞读取不响应 ctx，由 Close 打断
func (c *wsConnection) Read(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.transport.isClosed() {
		return nil, ErrConnectionClosed
	}

	var data []byte
	if err := websocket.Message.Receive(c.transport.conn, &data); err != nil {
		if c.transport.isClosed() {
			return nil, ErrConnectionClosed
		}
		_ = c.transport.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}

	msg, err := c.transport.decoder(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return msg, nil
}

// Write 编码后以文本帧发送
func (c *wsConnection) Write(ctx context.Context, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.transport.isClosed() {
		return ErrConnectionClosed
	}

	data, err := c.transport.encoder(msg)
	if err != nil {
		return err
	}

	c.transport.writeMu.Lock()
	defer c.transport.writeMu.Unlock()
	if err := websocket.Message.Send(c.transport.conn, string(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

func (c *wsConnection) Close() error {
	return c.transport.Close()
}

func (c *wsConnection) SessionID() string {
	return c.transport.sessionID
}
