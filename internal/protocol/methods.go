package protocol

// 客户端使用到的协议方法
const (
	MethodDebuggerEnable           = "Debugger.enable"
	MethodRunIfWaitingForDebugger  = "Runtime.runIfWaitingForDebugger"
	MethodDebuggerResume           = "Debugger.resume"
	MethodDebuggerStepOver         = "Debugger.stepOver"
	MethodDebuggerSetBreakpointURL = "Debugger.setBreakpointByUrl"
)

// 驱动运行状态机的事件
const (
	EventDebuggerPaused  = "Debugger.paused"
	EventDebuggerResumed = "Debugger.resumed"
)

// SetBreakpointByURLParams Debugger.setBreakpointByUrl 的参数
// LineNumber 为 0 起始行号
type SetBreakpointByURLParams struct {
	LineNumber int    `json:"lineNumber"`
	URLRegex   string `json:"urlRegex"`
}
