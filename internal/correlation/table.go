// Package correlation 维护请求 id 与等待回复者之间的对应关系。
package correlation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Pentahill/inspectflow/internal/protocol"

	"github.com/zeromicro/go-zero/core/logx"
)

// Sender 发送已编码请求的一端，通常是 transport.Connection
type Sender interface {
	Write(ctx context.Context, msg any) error
}

// TableOptional 关联表的可选配置
type TableOptional struct {
	// Timeout Call 等待回复的超时时间，<= 0 表示一直等待
	Timeout time.Duration
	// OnIssue 请求写出前回调，按发送顺序记录会话
	OnIssue func(ctx context.Context, req *protocol.Request)
}

// Pending 一个尚未完成的请求
// 由 Resolve/Reject 恰好完成一次
type Pending struct {
	ID     int64
	Method string

	done   chan struct{}
	once   sync.Once
	result json.RawMessage
	err    error
}

func (p *Pending) complete(result json.RawMessage, err error) bool {
	completed := false
	p.once.Do(func() {
		p.result = result
		p.err = err
		close(p.done)
		completed = true
	})
	return completed
}

// Done 完成时关闭
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Table 关联表
type Table struct {
	sender  Sender
	timeout time.Duration
	onIssue func(ctx context.Context, req *protocol.Request)

	seq int64

	mu      sync.Mutex
	pending map[int64]*Pending
}

// NewTable 创建关联表。opt 可为 nil，使用默认配置
func NewTable(sender Sender, opt *TableOptional) *Table {
	t := &Table{
		sender:  sender,
		pending: make(map[int64]*Pending),
	}
	if opt != nil {
		t.timeout = opt.Timeout
		t.onIssue = opt.OnIssue
	}
	return t
}

// Issue 分配新 id、登记并发送请求
// 先登记后发送，回复再快也不会丢失；发送失败时撤销登记
func (t *Table) Issue(ctx context.Context, method string, params any) (*Pending, error) {
	id := atomic.AddInt64(&t.seq, 1)
	req := protocol.NewRequest(id, method, params)

	p := &Pending{
		ID:     id,
		Method: method,
		done:   make(chan struct{}),
	}

	t.mu.Lock()
	t.pending[id] = p
	t.mu.Unlock()

	if t.onIssue != nil {
		t.onIssue(ctx, req)
	}
	if err := t.sender.Write(ctx, req); err != nil {
		t.remove(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	logx.WithContext(ctx).Debugf("Request issued, id=%d, method=%s", id, method)
	return p, nil
}

// Wait 等待请求完成；ctx 结束时撤销登记，之后到达的回复按未知 id 处理
func (t *Table) Wait(ctx context.Context, p *Pending) (json.RawMessage, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		t.remove(p.ID)
		return nil, fmt.Errorf("wait for %s (id=%d): %w", p.Method, p.ID, ctx.Err())
	}
}

// Call 发送请求并等待回复，配置了超时时应用超时
func (t *Table) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	p, err := t.Issue(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return t.Wait(ctx, p)
}

// Resolve 以 result 完成 id 对应的请求
// id 不在表中（重复或迟到的回复）时只记录诊断，返回 false
func (t *Table) Resolve(id int64, result json.RawMessage) bool {
	p := t.take(id)
	if p == nil {
		logx.Infof("Discarding reply for unknown request, id=%d", id)
		return false
	}
	return p.complete(result, nil)
}

// Reject 以 err 完成 id 对应的请求
func (t *Table) Reject(id int64, err error) bool {
	p := t.take(id)
	if p == nil {
		logx.Infof("Discarding error reply for unknown request, id=%d, error=%v", id, err)
		return false
	}
	return p.complete(nil, err)
}

// RejectAll 以 err 完成所有未完成的请求，返回完成的数量
func (t *Table) RejectAll(err error) int {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[int64]*Pending)
	t.mu.Unlock()

	for _, p := range pending {
		p.complete(nil, err)
	}
	if len(pending) > 0 {
		logx.Debugf("Rejected outstanding requests, count=%d, error=%v", len(pending), err)
	}
	return len(pending)
}

// Outstanding 未完成的请求数
func (t *Table) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// LastID 最近分配的 id
func (t *Table) LastID() int64 {
	return atomic.LoadInt64(&t.seq)
}

func (t *Table) take(id int64) *Pending {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[id]
	if !ok {
		return nil
	}
	delete(t.pending, id)
	return p
}

func (t *Table) remove(id int64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}
