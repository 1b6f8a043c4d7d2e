package channel

import (
	"encoding/json"

	"github.com/Pentahill/inspectflow/internal/protocol"
)

// Action 通道动作接口
type Action interface {
	// GetSessionID 获取会话 ID
	GetSessionID() string
	// Marshal 序列化 Action 为字节数组
	Marshal() ([]byte, error)
}

// ActionType 表示 Action 的类型
type ActionType string

const (
	ActionTypeInbound      ActionType = "inbound"
	ActionTypeOutbound     ActionType = "outbound"
	ActionTypeSessionClose ActionType = "session_close"
)

// ActionMetadata Action 元数据，用于序列化
type ActionMetadata struct {
	Type      ActionType      `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

// sessionAction 基础 Action 结构体
type sessionAction struct {
	sessionID string
}

// GetSessionID 获取会话 ID
func (a *sessionAction) GetSessionID() string {
	return a.sessionID
}

// InboundAction 从调试端收到的一条消息
type InboundAction struct {
	sessionAction
	Message *protocol.Message
}

func NewInboundAction(sessionID string, msg *protocol.Message) *InboundAction {
	return &InboundAction{
		sessionAction: sessionAction{sessionID: sessionID},
		Message:       msg,
	}
}

// Marshal 序列化 InboundAction，Data 为原始帧
func (a *InboundAction) Marshal() ([]byte, error) {
	return json.Marshal(ActionMetadata{
		Type:      ActionTypeInbound,
		SessionID: a.GetSessionID(),
		Data:      a.Message.Raw(),
	})
}

// OutboundAction 已发往调试端的一条请求
type OutboundAction struct {
	sessionAction
	Request *protocol.Request
}

func NewOutboundAction(sessionID string, req *protocol.Request) *OutboundAction {
	return &OutboundAction{
		sessionAction: sessionAction{sessionID: sessionID},
		Request:       req,
	}
}

// Marshal 序列化 OutboundAction，Data 为请求帧
func (a *OutboundAction) Marshal() ([]byte, error) {
	data, err := a.Request.Encode()
	if err != nil {
		return nil, err
	}
	return json.Marshal(ActionMetadata{
		Type:      ActionTypeOutbound,
		SessionID: a.GetSessionID(),
		Data:      data,
	})
}

// SessionCloseActionData SessionCloseAction 的序列化数据结构
type SessionCloseActionData struct {
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

// SessionCloseAction 连接终止
// Err 为 nil 表示由操作员主动退出
type SessionCloseAction struct {
	sessionAction
	Reason string
	Err    error
}

func NewSessionCloseAction(sessionID, reason string, err error) *SessionCloseAction {
	return &SessionCloseAction{
		sessionAction: sessionAction{sessionID: sessionID},
		Reason:        reason,
		Err:           err,
	}
}

// Marshal 序列化 SessionCloseAction
func (a *SessionCloseAction) Marshal() ([]byte, error) {
	data := SessionCloseActionData{Reason: a.Reason}
	if a.Err != nil {
		data.Error = a.Err.Error()
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ActionMetadata{
		Type:      ActionTypeSessionClose,
		SessionID: a.GetSessionID(),
		Data:      payload,
	})
}
