package transport

import (
	"context"
	"fmt"
	"sync"
)

// MemoryTransport 内存传输层实现，与 Peer 成对使用
// 用于测试以及不经过网络的回环场景
type MemoryTransport struct {
	// incoming 对端发往客户端的帧，outgoing 客户端发往对端的帧
	incoming chan []byte
	outgoing chan []byte

	decoder func([]byte) (any, error)
	encoder func(any) ([]byte, error)

	// mu 保护 connected 和 closed
	mu        sync.Mutex
	connected bool
	closed    bool

	// done 关闭时 close
	done chan struct{}

	sessionID string
}

// Peer 内存连接的对端，扮演调试端
type Peer struct {
	transport *MemoryTransport
}

// Pipe 创建一对内存连接
func Pipe(sessionID string) (*MemoryTransport, *Peer) {
	t := &MemoryTransport{
		incoming:  make(chan []byte, 100),
		outgoing:  make(chan []byte, 100),
		decoder:   DefaultDecoder(),
		encoder:   DefaultEncoder(),
		done:      make(chan struct{}),
		sessionID: sessionID,
	}
	return t, &Peer{transport: t}
}

func (t *MemoryTransport) Connect(ctx context.Context) (Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrConnectionClosed
	}
	if t.connected {
		return nil, fmt.Errorf("transport already connected")
	}
	t.connected = true

	return &memoryConnection{transport: t}, nil
}

// Close 关闭传输，两端的读写都会返回 ErrConnectionClosed
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}

func (t *MemoryTransport) Done() <-chan struct{} {
	return t.done
}

type memoryConnection struct {
	transport *MemoryTransport
}

func (c *memoryConnection) Read(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.transport.done:
		return nil, ErrConnectionClosed
	case data := <-c.transport.incoming:
		msg, err := c.transport.decoder(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return msg, nil
	}
}

func (c *memoryConnection) Write(ctx context.Context, msg any) error {
	select {
	case <-c.transport.done:
		return ErrConnectionClosed
	default:
	}

	data, err := c.transport.encoder(msg)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.transport.done:
		return ErrConnectionClosed
	case c.transport.outgoing <- data:
		return nil
	}
}

func (c *memoryConnection) Close() error {
	return c.transport.Close()
}

func (c *memoryConnection) SessionID() string {
	return c.transport.sessionID
}

// Send 向客户端发送一帧
func (p *Peer) Send(frame string) error {
	select {
	case <-p.transport.done:
		return ErrConnectionClosed
	case p.transport.incoming <- []byte(frame):
		return nil
	}
}

// Receive 读取客户端发出的下一帧
func (p *Peer) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-p.transport.outgoing:
		return data, nil
	case <-p.transport.done:
		// 关闭前已写入的帧仍可读取
		select {
		case data := <-p.transport.outgoing:
			return data, nil
		default:
			return nil, ErrConnectionClosed
		}
	}
}

// Pending 客户端已发出、对端尚未读取的帧数
func (p *Peer) Pending() int {
	return len(p.transport.outgoing)
}

// Close 模拟对端断开
func (p *Peer) Close() error {
	return p.transport.Close()
}
