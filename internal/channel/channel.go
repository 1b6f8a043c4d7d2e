package channel

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"
)

// ErrChannelClosed 通道已关闭错误
var ErrChannelClosed = errors.New("channel is closed")

// ErrDispatcherClosed 分发器已关闭错误
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Channel 通道接口
// 只负责 Action 的发送和接收，不包含分发和消费逻辑
type Channel interface {
	// Send 发送 Action 到通道
	Send(ctx context.Context, action Action) error
	// Receive 从通道接收 Action
	Receive(ctx context.Context) (Action, error)
	// Close 关闭通道
	Close() error
	// IsClosed 检查通道是否已关闭
	IsClosed() bool
}

// DefaultChannel 异步通道实现
// 使用 buffered channel，按发送顺序先进先出
type DefaultChannel struct {
	actions chan Action

	bufferSize int

	// 关闭标志；closed 的读写和 close(actions) 都在 mu 下进行
	mu     sync.RWMutex
	closed bool
}

// NewDefaultChannel 创建异步通道
func NewDefaultChannel(bufferSize int) *DefaultChannel {
	if bufferSize <= 0 {
		bufferSize = 100 // 默认缓冲区大小
	}

	return &DefaultChannel{
		actions:    make(chan Action, bufferSize),
		bufferSize: bufferSize,
	}
}

// Send 发送 Action 到通道
func (c *DefaultChannel) Send(ctx context.Context, action Action) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrChannelClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.actions <- action:
		return nil
	}
}

// Receive 从通道接收 Action
func (c *DefaultChannel) Receive(ctx context.Context) (Action, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case action, ok := <-c.actions:
		if !ok {
			return nil, ErrChannelClosed
		}
		return action, nil
	}
}

// Close 关闭通道
// 已缓冲的 Action 仍可被 Receive 取出
func (c *DefaultChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.actions)

	return nil
}

// IsClosed 检查通道是否已关闭
func (c *DefaultChannel) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// ActionHandler Action 处理接口
type ActionHandler interface {
	// Handle 处理 Action
	Handle(ctx context.Context, action Action) error
}

// ActionHandlerFunc 函数类型，实现 ActionHandler 接口
type ActionHandlerFunc func(ctx context.Context, action Action) error

// Handle 实现 ActionHandler 接口
func (f ActionHandlerFunc) Handle(ctx context.Context, action Action) error {
	return f(ctx, action)
}

// ActionHandlerSupportType 声明名称和所支持 Action 类型的 Handler
type ActionHandlerSupportType interface {
	ActionHandler
	// SupportedAction 返回 nil 表示支持所有类型
	SupportedAction() []reflect.Type
	Name() string
}

// namedHandler 带名称和支持类型的 Handler
type namedHandler struct {
	handler        ActionHandler
	name           string
	supportedTypes []reflect.Type // 为空表示支持所有类型
}

func (nh *namedHandler) supports(actionType reflect.Type) bool {
	if len(nh.supportedTypes) == 0 {
		return true
	}
	for _, supportedType := range nh.supportedTypes {
		if supportedType != nil && (actionType == supportedType || actionType.AssignableTo(supportedType)) {
			return true
		}
	}
	return false
}

// Dispatcher Action 分发器
// 单个消费 goroutine 按到达顺序把 Action 交给匹配的 Handler，
// 因此所有 Handler 都在同一个 goroutine 上串行执行
type Dispatcher struct {
	channel Channel

	handlers   []*namedHandler
	handlersMu sync.RWMutex

	mu     sync.RWMutex
	closed bool

	// 消费 goroutine 的停止信号
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher 创建 Action 分发器并启动消费 goroutine
func NewDispatcher(channel Channel) *Dispatcher {
	d := &Dispatcher{
		channel:  channel,
		handlers: make([]*namedHandler, 0),
		stopChan: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.consume()

	return d
}

// consume 消费 Action
func (d *Dispatcher) consume() {
	defer d.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 当 stopChan 关闭时，取消 context
	go func() {
		<-d.stopChan
		cancel()
	}()

	for {
		action, err := d.channel.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrChannelClosed) || errors.Is(err, context.Canceled) {
				logx.WithContext(ctx).Debugf("Dispatcher stopped consuming, reason=%v", err)
				return
			}

			logx.WithContext(ctx).Errorf("Failed to receive action from channel, error=%v", err)
			continue
		}

		d.dispatch(ctx, action)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, action Action) {
	actionType := reflect.TypeOf(action)

	d.handlersMu.RLock()
	handlers := make([]*namedHandler, 0, len(d.handlers))
	for _, nh := range d.handlers {
		if nh.supports(actionType) {
			handlers = append(handlers, nh)
		}
	}
	d.handlersMu.RUnlock()

	sessionID := action.GetSessionID()
	if sessionID == "" {
		sessionID = "<empty>"
	}

	if len(handlers) == 0 {
		logx.WithContext(ctx).Debugf("No handler registered for action type, action_type=%s, session_id=%s", actionType.String(), sessionID)
		return
	}

	for _, nh := range handlers {
		if err := nh.handler.Handle(ctx, action); err != nil {
			logx.WithContext(ctx).Errorf("Handler error, handler_name=%s, session_id=%s, error=%v", nh.name, sessionID, err)
		}
	}
}

// getHandlerName 自动生成 handler 名称
func getHandlerName(handler ActionHandler) string {
	t := reflect.TypeOf(handler)
	if t == nil {
		return "unknown"
	}
	if t.Kind() == reflect.Func {
		return "anonymous_func"
	}

	typeName := t.String()
	parts := strings.Split(typeName, ".")
	return parts[len(parts)-1]
}

// Register 注册 Action 处理接口
// handler 实现了 ActionHandlerSupportType 时使用其名称和支持类型；
// 否则使用 supportedTypes（为空表示支持所有类型）和自动生成的名称
func (d *Dispatcher) Register(handler ActionHandler, supportedTypes ...reflect.Type) {
	if handler == nil {
		logx.Errorf("Cannot register nil handler")
		return
	}

	if d.IsClosed() {
		logx.Errorf("Cannot register handler, dispatcher is closed")
		return
	}

	nh := &namedHandler{
		handler:        handler,
		name:           getHandlerName(handler),
		supportedTypes: supportedTypes,
	}
	if typed, ok := handler.(ActionHandlerSupportType); ok {
		nh.name = typed.Name()
		nh.supportedTypes = typed.SupportedAction()
	}

	d.handlersMu.Lock()
	d.handlers = append(d.handlers, nh)
	d.handlersMu.Unlock()

	if len(nh.supportedTypes) > 0 {
		var typeNames []string
		for _, t := range nh.supportedTypes {
			if t != nil {
				typeNames = append(typeNames, t.String())
			}
		}
		logx.Debugf("Handler registered, handler_name=%s, types=[%s]", nh.name, strings.Join(typeNames, ", "))
	} else {
		logx.Debugf("Handler registered, handler_name=%s, supports_all_actions=true", nh.name)
	}
}

// GetActionType 获取 Action 类型的 reflect.Type
func GetActionType[T Action]() reflect.Type {
	var zero T
	return reflect.TypeOf(zero)
}

// Close 关闭分发器并等待消费 goroutine 退出
// 不能在 Handler 内部调用，否则会等待自身
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stopChan)
	d.wg.Wait()

	return nil
}

// IsClosed 检查分发器是否已关闭
func (d *Dispatcher) IsClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// Send 发送 Action 到 Channel
// 如果 Dispatcher 已关闭，则拒绝发送新的 Action
func (d *Dispatcher) Send(ctx context.Context, action Action) error {
	if d.IsClosed() {
		logx.WithContext(ctx).Debugf("[DISPATCHER] Rejecting action: dispatcher is closed | session_id=%s", action.GetSessionID())
		return ErrDispatcherClosed
	}

	return d.channel.Send(ctx, action)
}
