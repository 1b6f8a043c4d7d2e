package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Pentahill/inspectflow/internal/channel"
	"github.com/Pentahill/inspectflow/internal/correlation"
	"github.com/Pentahill/inspectflow/internal/protocol"
	"github.com/Pentahill/inspectflow/internal/router"
	"github.com/Pentahill/inspectflow/internal/runstate"
	"github.com/Pentahill/inspectflow/internal/transport"

	"github.com/zeromicro/go-zero/core/errorx"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/syncx"
)

// Session 一次调试连接的完整会话对象
// 从连接成功开始，到连接关闭或操作员退出为止
type Session struct {
	SessionID  string
	Conn       transport.Connection
	Channel    channel.Channel
	Dispatcher *channel.Dispatcher
	Transcript channel.TranscriptHandler
	Table      *correlation.Table
	Machine    *runstate.Machine
	Router     *router.Router

	out    io.Writer
	cancel context.CancelCauseFunc

	// closing 之后的连接关闭属于预期，不再提示操作员
	closing syncx.AtomicBool
	closed  syncx.AtomicBool
}

// SessionOptional 会话的可选配置
type SessionOptional struct {
	// BufferSize 入站通道缓冲区大小，<= 0 使用默认值 100
	BufferSize int
	// RequestTimeout 等待回复的超时，<= 0 表示一直等待
	RequestTimeout time.Duration
	// Transcript 会话记录，为 nil 时使用内存记录
	Transcript channel.TranscriptHandler
	// Output 面向操作员的输出
	Output io.Writer
	// Cancel 连接意外关闭时以 transport.ErrConnectionClosed 取消命令循环
	Cancel context.CancelCauseFunc
}

// sessionBinder 在连接建立后创建会话
type sessionBinder struct {
	opt *SessionOptional
}

// Bind 实现 transport.Binder 接口
func (b *sessionBinder) Bind(conn transport.Connection) *Session {
	return newSession(conn, b.opt)
}

func newSession(conn transport.Connection, opt *SessionOptional) *Session {
	if opt == nil {
		opt = &SessionOptional{}
	}

	bufferSize := opt.BufferSize
	if bufferSize <= 0 {
		bufferSize = 100
	}
	transcript := opt.Transcript
	if transcript == nil {
		transcript = channel.NewMemoryTranscript()
	}
	out := opt.Output
	if out == nil {
		out = io.Discard
	}
	cancel := opt.Cancel
	if cancel == nil {
		cancel = func(error) {}
	}

	sessionID := conn.SessionID()
	chann := channel.NewDefaultChannel(bufferSize)
	dispatcher := channel.NewDispatcher(chann)

	s := &Session{
		SessionID:  sessionID,
		Conn:       conn,
		Channel:    chann,
		Dispatcher: dispatcher,
		Transcript: transcript,
		out:        out,
		cancel:     cancel,
	}

	s.Machine = runstate.NewMachine(func(old, new runstate.State) {
		logx.Debugf("Run state changed, session_id=%s, from=%s, to=%s", sessionID, old, new)
	})
	s.Table = correlation.NewTable(conn, &correlation.TableOptional{
		Timeout: opt.RequestTimeout,
		OnIssue: s.recordOutbound,
	})
	s.Router = router.NewRouter(s.Table, s.Machine, out)

	if err := transcript.Open(context.Background(), sessionID); err != nil {
		logx.Errorf("Failed to open transcript, session_id=%s, error=%v", sessionID, err)
	}

	// 记录先于路由注册，同一 Action 先入记录再被处理
	dispatcher.Register(transcript)
	dispatcher.Register(s.Router)
	dispatcher.Register(channel.ActionHandlerFunc(s.handleSessionClose), channel.GetActionType[*channel.SessionCloseAction]())

	logx.Debugf("Session created, session_id=%s", sessionID)
	return s
}

// Handle 实现 transport.Handler 接口，入站消息进入通道，由 Dispatcher 按序路由
func (s *Session) Handle(ctx context.Context, msg any) error {
	m, ok := msg.(*protocol.Message)
	if !ok {
		return fmt.Errorf("unexpected inbound message type %T", msg)
	}
	return s.Dispatcher.Send(ctx, channel.NewInboundAction(s.SessionID, m))
}

// HandleClose 实现 transport.Handler 接口
// 关闭通知排在已收到的消息之后，先到的回复仍能完成对应的请求
func (s *Session) HandleClose(ctx context.Context, err error) {
	if ctx.Err() != nil {
		// 调用方取消导致的监听结束
		s.closing.Set(true)
	}

	action := channel.NewSessionCloseAction(s.SessionID, closeReason(err), err)
	if sendErr := s.Dispatcher.Send(ctx, action); sendErr != nil {
		logx.WithContext(ctx).Debugf("Session close not dispatched, session_id=%s, error=%v", s.SessionID, sendErr)
		s.Table.RejectAll(transport.ErrConnectionClosed)
	}
}

// handleSessionClose 在 Dispatcher goroutine 上运行，不能关闭 Dispatcher 本身
func (s *Session) handleSessionClose(ctx context.Context, action channel.Action) error {
	closeAction, ok := action.(*channel.SessionCloseAction)
	if !ok {
		return nil
	}

	rejected := s.Table.RejectAll(transport.ErrConnectionClosed)
	if s.closing.True() {
		logx.WithContext(ctx).Debugf("Connection closed after quit, session_id=%s", s.SessionID)
		return nil
	}

	logx.WithContext(ctx).Infof("Connection closed by peer, session_id=%s, reason=%s, rejected=%d",
		s.SessionID, closeAction.Reason, rejected)
	fmt.Fprintf(s.out, "Connection closed: %s\n", closeAction.Reason)
	s.cancel(transport.ErrConnectionClosed)
	return nil
}

// recordOutbound 请求写出前记录到会话记录，保证记录中请求排在其回复之前
func (s *Session) recordOutbound(ctx context.Context, req *protocol.Request) {
	if err := s.Dispatcher.Send(ctx, channel.NewOutboundAction(s.SessionID, req)); err != nil {
		logx.WithContext(ctx).Debugf("Outbound request not recorded, session_id=%s, id=%d, error=%v", s.SessionID, req.ID, err)
	}
}

// Shutdown 操作员退出时关闭连接，之后的连接关闭不再提示
func (s *Session) Shutdown() error {
	s.closing.Set(true)
	return s.Conn.Close()
}

// Close 关闭会话
// 可重复调用；不能在 Dispatcher 的 Handler 内部调用
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.closing.Set(true)

	logx.Debugf("Closing session, session_id=%s", s.SessionID)

	var be errorx.BatchError
	be.Add(s.Conn.Close())
	// dispatcher 会等待正在处理的 Action 完成
	be.Add(s.Dispatcher.Close())
	be.Add(s.Channel.Close())
	s.Table.RejectAll(transport.ErrConnectionClosed)

	if err := be.Err(); err != nil {
		logx.Errorf("Failed to close session cleanly, session_id=%s, error=%v", s.SessionID, err)
		return err
	}

	logx.Debugf("Session closed, session_id=%s", s.SessionID)
	return nil
}

// IsClosed 检查会话是否已关闭
func (s *Session) IsClosed() bool {
	return s.closed.True()
}

// closeReason 面向操作员的关闭原因
func closeReason(err error) string {
	if err == nil || errors.Is(err, context.Canceled) {
		return "session ended"
	}
	if errors.Is(err, transport.ErrConnectionClosed) {
		reason := strings.TrimPrefix(err.Error(), transport.ErrConnectionClosed.Error())
		reason = strings.TrimPrefix(reason, ": ")
		if reason == "" {
			return "peer closed the connection"
		}
		return reason
	}
	return err.Error()
}
