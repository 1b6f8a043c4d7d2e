package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/Pentahill/inspectflow/internal/channel"
	"github.com/Pentahill/inspectflow/internal/protocol"

	"github.com/tidwall/gjson"
	"github.com/zeromicro/go-zero/core/logx"
)

// Correlator 完成等待中的请求，由关联表实现
type Correlator interface {
	Resolve(id int64, result json.RawMessage) bool
	Reject(id int64, err error) bool
}

// StateWriter 运行状态机的写入端
type StateWriter interface {
	Pause(location string)
	Resume()
}

// Router 入站消息的唯一分类点
// 作为 channel.Dispatcher 的 Handler 运行，所有消息在同一个 goroutine 上按到达顺序处理
type Router struct {
	correlator Correlator
	state      StateWriter
	out        io.Writer
}

// NewRouter 创建路由器，out 接收面向操作员的输出
func NewRouter(correlator Correlator, state StateWriter, out io.Writer) *Router {
	return &Router{
		correlator: correlator,
		state:      state,
		out:        out,
	}
}

// Handle 实现 channel.ActionHandler 接口
func (r *Router) Handle(ctx context.Context, action channel.Action) error {
	inbound, ok := action.(*channel.InboundAction)
	if !ok || inbound.Message == nil {
		return nil
	}

	r.Route(ctx, inbound.Message)
	return nil
}

// Name 实现 channel.ActionHandlerSupportType 接口
func (r *Router) Name() string {
	return "Router"
}

// SupportedAction 只处理入站消息
func (r *Router) SupportedAction() []reflect.Type {
	return []reflect.Type{
		channel.GetActionType[*channel.InboundAction](),
	}
}

// Route 分类并分发一条入站消息
//   - 带 id：完成关联表中对应的请求，未知 id 只记录诊断
//   - 带 method 不带 id：事件，暂停/恢复事件驱动状态机，其余只记录
//   - 带顶层 error：没有命令在等待它时，直接输出给操作员；
//     有命令在等待时由命令边界输出，保证一次失败只输出一行
func (r *Router) Route(ctx context.Context, msg *protocol.Message) {
	perr := msg.Err()
	awaited := false

	if id, ok := msg.ID(); ok {
		if perr != nil {
			awaited = r.correlator.Reject(id, perr)
		} else {
			r.correlator.Resolve(id, msg.Result())
		}
	} else if method := msg.Method(); method != "" {
		r.routeEvent(ctx, method, msg.Params())
	} else {
		logx.WithContext(ctx).Errorf("Dropping message without id or method, message=%s", msg)
		return
	}

	if perr != nil && !awaited {
		fmt.Fprintf(r.out, "Error: %s\n", perr.Describe())
	}
}

func (r *Router) routeEvent(ctx context.Context, method string, params gjson.Result) {
	switch method {
	case protocol.EventDebuggerPaused:
		location := pausedLocation(params)
		r.state.Pause(location)
		fmt.Fprintf(r.out, "Paused at %s\n", location)
	case protocol.EventDebuggerResumed:
		r.state.Resume()
		fmt.Fprintln(r.out, "Resumed")
	default:
		logx.WithContext(ctx).Debugf("Ignoring event, method=%s", method)
	}
}

// pausedLocation 顶层调用帧的位置
// location 为字符串时原样返回；为协议对象 {scriptId, lineNumber, columnNumber} 时
// 以 url（缺省用 scriptId）和 1 起始的行列号表示
func pausedLocation(params gjson.Result) string {
	frame := params.Get("callFrames.0")
	location := frame.Get("location")

	switch {
	case !location.Exists():
		return "<unknown location>"
	case location.Type == gjson.String:
		return location.String()
	case location.IsObject():
		source := frame.Get("url").String()
		if source == "" {
			source = location.Get("scriptId").String()
		}
		return fmt.Sprintf("%s:%d:%d", source, location.Get("lineNumber").Int()+1, location.Get("columnNumber").Int()+1)
	default:
		return location.Raw
	}
}
