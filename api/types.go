package inspectflow

import (
	inspect "github.com/Pentahill/inspectflow/internal"
	"github.com/Pentahill/inspectflow/internal/channel"
	"github.com/Pentahill/inspectflow/internal/config"
	"github.com/Pentahill/inspectflow/internal/prompt"
	"github.com/Pentahill/inspectflow/internal/transport"
)

// 以下类型从 internal 重导出，供应用层使用。

// Client 交互式调试客户端。
type Client = inspect.Client

// ClientOptional 创建 Client 时的可选配置。
type ClientOptional = inspect.ClientOptional

// DialFunc 为调试地址创建传输层，用于替换默认的 WebSocket 连接。
type DialFunc = inspect.DialFunc

// Config 客户端配置。
type Config = config.Config

// Source 操作员行输入源。
type Source = prompt.Source

// Transport 传输层接口。
type Transport = transport.Transport

// ConnectError 连接调试端失败。
type ConnectError = transport.ConnectError

// TranscriptHandler 会话记录，可在 ClientOptional 中传入以便会话结束后查看。
type TranscriptHandler = channel.TranscriptHandler

var (
	// ErrConnectionClosed 会话中连接意外关闭。
	ErrConnectionClosed = transport.ErrConnectionClosed
	// ErrInvalidConfig 配置无法加载或取值非法。
	ErrInvalidConfig = config.ErrInvalidConfig
)
