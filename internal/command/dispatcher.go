// Package command 操作员命令循环：读取命令、按运行状态校验、发出协议请求并报告结果。
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Pentahill/inspectflow/internal/prompt"
	"github.com/Pentahill/inspectflow/internal/protocol"

	"github.com/tidwall/gjson"
	"github.com/zeromicro/go-zero/core/logx"
)

// 提示文本
const (
	CommandPrompt = "Enter command (continue | step | breakpoint | quit): "
	FilePrompt    = "File name: "
	LinePrompt    = "Line number: "
)

// 命令名
const (
	CommandContinue   = "continue"
	CommandStep       = "step"
	CommandBreakpoint = "breakpoint"
	CommandQuit       = "quit"
)

var (
	// ErrInvalidState 需要暂停状态的命令在运行状态下执行
	ErrInvalidState = errors.New("debuggee is not paused")
	// ErrUnknownCommand 无法识别的命令
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidLine 行号不是 >= 1 的整数
	ErrInvalidLine = errors.New("line number must be a positive integer")
	// ErrEmptyFileName 断点文件名为空
	ErrEmptyFileName = errors.New("file name must not be empty")
	// ErrQuit Execute 执行 quit 后返回，命令循环随之结束
	ErrQuit = errors.New("quit")
)

// Caller 发送请求并等待回复，由关联表实现
type Caller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// StateReader 运行状态机的只读端
type StateReader interface {
	IsPaused() bool
}

// DispatcherOptional 命令分发器的可选配置
type DispatcherOptional struct {
	// OnQuit quit 时关闭连接
	OnQuit func() error
}

// Dispatcher 命令分发器
type Dispatcher struct {
	caller Caller
	state  StateReader
	source prompt.Source
	onQuit func() error

	commands map[string]func(ctx context.Context) error
}

// NewDispatcher 创建命令分发器。opt 可为 nil
func NewDispatcher(caller Caller, state StateReader, source prompt.Source, opt *DispatcherOptional) *Dispatcher {
	d := &Dispatcher{
		caller: caller,
		state:  state,
		source: source,
	}
	if opt != nil {
		d.onQuit = opt.OnQuit
	}

	d.commands = map[string]func(ctx context.Context) error{
		CommandContinue:   d.resume,
		CommandStep:       d.stepOver,
		CommandBreakpoint: d.setBreakpoint,
		CommandQuit:       d.quit,
	}
	return d
}

// Bootstrap 连接建立后启用调试器，并让等待调试器的目标继续执行
// 两个请求依次发出，失败只报告不中断
func (d *Dispatcher) Bootstrap(ctx context.Context) {
	for _, method := range []string{protocol.MethodDebuggerEnable, protocol.MethodRunIfWaitingForDebugger} {
		if _, err := d.caller.Call(ctx, method, nil); err != nil {
			d.report(ctx, method, fmt.Errorf("%s: %w", method, err))
		}
	}
}

// Run 命令循环，每次读取一条命令并等待其完全结束后再读取下一条
// quit 后返回 nil；读取命令失败（EOF、输入源关闭、ctx 结束）时返回该错误
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		// 连接意外关闭会取消 ctx，之后不再执行已排队的输入
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("read command: %w", err)
		}
		line, err := d.source.Ask(ctx, CommandPrompt)
		if err != nil {
			return fmt.Errorf("read command: %w", err)
		}

		if err := d.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			d.report(ctx, line, err)
		}
	}
}

// Execute 执行一条命令
func (d *Dispatcher) Execute(ctx context.Context, line string) error {
	name := strings.TrimSpace(line)
	fn, ok := d.commands[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	logx.WithContext(ctx).Debugf("Executing command, command=%s", name)
	return fn(ctx)
}

// 运行状态只在命令开始时检查一次，等待回复期间状态变化不会使命令失效
func (d *Dispatcher) requirePaused(name string) error {
	if !d.state.IsPaused() {
		return fmt.Errorf("cannot %s: %w", name, ErrInvalidState)
	}
	return nil
}

func (d *Dispatcher) resume(ctx context.Context) error {
	if err := d.requirePaused(CommandContinue); err != nil {
		return err
	}
	if _, err := d.caller.Call(ctx, protocol.MethodDebuggerResume, nil); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	return nil
}

func (d *Dispatcher) stepOver(ctx context.Context) error {
	if err := d.requirePaused(CommandStep); err != nil {
		return err
	}
	if _, err := d.caller.Call(ctx, protocol.MethodDebuggerStepOver, nil); err != nil {
		return fmt.Errorf("step over: %w", err)
	}
	return nil
}

func (d *Dispatcher) setBreakpoint(ctx context.Context) error {
	file, err := d.source.Ask(ctx, FilePrompt)
	if err != nil {
		return fmt.Errorf("read file name: %w", err)
	}
	if file == "" {
		return ErrEmptyFileName
	}

	raw, err := d.source.Ask(ctx, LinePrompt)
	if err != nil {
		return fmt.Errorf("read line number: %w", err)
	}
	line, err := strconv.Atoi(raw)
	if err != nil || line < 1 {
		return fmt.Errorf("%w: %q", ErrInvalidLine, raw)
	}

	params := protocol.SetBreakpointByURLParams{
		LineNumber: line - 1,
		URLRegex:   file,
	}
	result, err := d.caller.Call(ctx, protocol.MethodDebuggerSetBreakpointURL, params)
	if err != nil {
		return fmt.Errorf("set breakpoint: %w", err)
	}

	d.printBreakpoint(result)
	return nil
}

// printBreakpoint 输出断点 id 和已解析的位置，行列号按 1 起始显示
func (d *Dispatcher) printBreakpoint(result json.RawMessage) {
	fmt.Fprintf(d.source, "Breakpoint set: %s\n", gjson.GetBytes(result, "breakpointId").String())

	locations := gjson.GetBytes(result, "locations").Array()
	if len(locations) == 0 {
		fmt.Fprintln(d.source, "  no loaded script matches yet")
		return
	}
	for _, loc := range locations {
		fmt.Fprintf(d.source, "  resolved at %s:%d:%d\n",
			loc.Get("scriptId").String(),
			loc.Get("lineNumber").Int()+1,
			loc.Get("columnNumber").Int()+1,
		)
	}
}

func (d *Dispatcher) quit(ctx context.Context) error {
	logx.WithContext(ctx).Infof("Quit requested")

	if d.onQuit != nil {
		if err := d.onQuit(); err != nil {
			logx.WithContext(ctx).Errorf("Failed to close connection on quit, error=%v", err)
		}
	}
	if err := d.source.Close(); err != nil {
		logx.WithContext(ctx).Errorf("Failed to close prompt source, error=%v", err)
	}
	return ErrQuit
}

// report 在命令边界输出一行错误
func (d *Dispatcher) report(ctx context.Context, command string, err error) {
	logx.WithContext(ctx).Infof("Command failed, command=%s, error=%v", command, err)

	var perr *protocol.Error
	if errors.As(err, &perr) {
		fmt.Fprintf(d.source, "Error: %s\n", perr.Describe())
		return
	}
	fmt.Fprintf(d.source, "Error: %v\n", err)
}
