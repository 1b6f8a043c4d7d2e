package protocol

import (
	"errors"
	"fmt"
)

// CodeInvalidState V8 在非暂停状态下执行 resume/stepOver 等操作时返回的错误码
// （"Can only perform operation while paused."）
const CodeInvalidState = -32000

// ErrMalformedMessage 入站帧不是 JSON 对象，或者既没有 id 也没有 method
var ErrMalformedMessage = errors.New("malformed protocol message")

// Error 协议错误：回复中携带的 {"code": <int>, "message": <string>}
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

// IsInvalidState 是否属于“当前未暂停”一类错误
func (e *Error) IsInvalidState() bool {
	return e != nil && e.Code == CodeInvalidState
}

// InvalidStateHint 对“当前未暂停”一类错误附加的操作提示
const InvalidStateHint = "ensure the debuggee is paused before stepping or resuming"

// Describe 面向操作员的一行描述，invalid-state 类错误附带提示
func (e *Error) Describe() string {
	if e.IsInvalidState() {
		return fmt.Sprintf("%s (hint: %s)", e.Message, InvalidStateHint)
	}
	return e.Message
}
