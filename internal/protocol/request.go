package protocol

import (
	"encoding/json"
	"fmt"
)

// Request 发往调试端的请求帧：{"id": <int>, "method": <string>, "params": <object>}
// 由关联表在发送前创建，创建后不再修改
type Request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// NewRequest 创建请求，params 为 nil 时编码为空对象 {}
func NewRequest(id int64, method string, params any) *Request {
	if params == nil {
		params = struct{}{}
	}
	return &Request{
		ID:     id,
		Method: method,
		Params: params,
	}
}

// Encode 实现 Encodable 接口
func (r *Request) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode request %s: %w", r.Method, err)
	}
	return data, nil
}
