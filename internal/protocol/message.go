package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Message 入站消息
// 保留原始帧，字段按需通过 gjson 读取：协议面远大于客户端使用的部分，
// 不为每种回复和事件定义结构体
type Message struct {
	raw []byte
}

// DecodeMessage 解码一帧入站消息
func DecodeMessage(data []byte) (*Message, error) {
	msg := &Message{}
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// Decode 实现 Decodable 接口
// 只接受 JSON 对象，且至少带有 id 或 method 之一
func (m *Message) Decode(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%w: invalid json", ErrMalformedMessage)
	}
	if !gjson.ParseBytes(data).IsObject() {
		return fmt.Errorf("%w: not an object", ErrMalformedMessage)
	}

	m.raw = append(m.raw[:0], data...)
	if _, ok := m.ID(); !ok && m.Method() == "" {
		return fmt.Errorf("%w: neither id nor method", ErrMalformedMessage)
	}
	return nil
}

// Raw 返回原始帧
func (m *Message) Raw() []byte {
	return m.raw
}

// ID 返回关联 id；没有 id（事件）时 ok 为 false
func (m *Message) ID() (id int64, ok bool) {
	r := gjson.GetBytes(m.raw, "id")
	if r.Type != gjson.Number {
		return 0, false
	}
	return r.Int(), true
}

// Method 返回事件方法名，回复没有 method
func (m *Message) Method() string {
	return gjson.GetBytes(m.raw, "method").String()
}

// IsEvent 带 method 且不带 id
func (m *Message) IsEvent() bool {
	_, hasID := m.ID()
	return !hasID && m.Method() != ""
}

// Params 事件参数
func (m *Message) Params() gjson.Result {
	return gjson.GetBytes(m.raw, "params")
}

// Result 回复中的 result，缺省时返回 nil
func (m *Message) Result() json.RawMessage {
	r := gjson.GetBytes(m.raw, "result")
	if !r.Exists() {
		return nil
	}
	return json.RawMessage(r.Raw)
}

// Err 返回顶层 error 对象，没有时返回 nil
func (m *Message) Err() *Error {
	r := gjson.GetBytes(m.raw, "error")
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return &Error{
		Code:    int(r.Get("code").Int()),
		Message: r.Get("message").String(),
	}
}

func (m *Message) String() string {
	return string(m.raw)
}
