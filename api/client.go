package inspectflow

import (
	"io"

	inspect "github.com/Pentahill/inspectflow/internal"
	"github.com/Pentahill/inspectflow/internal/channel"
	"github.com/Pentahill/inspectflow/internal/config"
	"github.com/Pentahill/inspectflow/internal/prompt"
)

// NewClient 创建客户端。opt.Source 必须设置。
func NewClient(opt *ClientOptional) *Client {
	return inspect.NewClient(opt)
}

// LoadConfig 加载配置：默认值、INSPECTFLOW_CONFIG 指定的文件、INSPECTFLOW_* 环境变量。
func LoadConfig() (Config, error) {
	return config.Load()
}

// DefaultConfig 只包含默认值的配置。
func DefaultConfig() Config {
	return config.Default()
}

// NewStdio 标准输入输出上的输入源，终端上使用行编辑器。
func NewStdio() (Source, error) {
	return prompt.NewStdio()
}

// NewLineSource 从 r 按行读取、向 w 输出的输入源。
func NewLineSource(r io.Reader, w io.Writer) Source {
	return prompt.NewLineSource(r, w)
}

// NewMemoryTranscript 内存会话记录。
func NewMemoryTranscript() TranscriptHandler {
	return channel.NewMemoryTranscript()
}
