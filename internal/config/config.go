// Package config 客户端配置：默认值、可选配置文件和环境变量覆盖。
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
)

// EnvConfigFile 配置文件路径的环境变量名
const EnvConfigFile = "INSPECTFLOW_CONFIG"

// ErrInvalidConfig 配置无法加载或取值非法
var ErrInvalidConfig = errors.New("invalid configuration")

// Config 客户端配置
// 优先级：环境变量 > 配置文件 > 默认值
type Config struct {
	// Host 调试目标监听的地址
	Host string `json:",default=127.0.0.1" env:"INSPECTFLOW_HOST"`
	// Port 调试目标监听的端口
	Port int `json:",default=9229" env:"INSPECTFLOW_PORT"`
	// Origin WebSocket 握手使用的 Origin
	Origin string `json:",default=http://127.0.0.1/" env:"INSPECTFLOW_ORIGIN"`
	// RequestTimeout 等待单个回复的超时，0 表示一直等待
	RequestTimeout time.Duration `json:",default=0s" env:"INSPECTFLOW_REQUEST_TIMEOUT"`
	// ChannelBuffer 入站消息通道的缓冲大小
	ChannelBuffer int `json:",default=100" env:"INSPECTFLOW_CHANNEL_BUFFER"`

	LogLevel    string `json:",default=info,options=[debug,info,error,severe]" env:"INSPECTFLOW_LOG_LEVEL"`
	LogEncoding string `json:",default=plain,options=[json,plain]" env:"INSPECTFLOW_LOG_ENCODING"`
}

type fileEnv struct {
	Path string `env:"INSPECTFLOW_CONFIG"`
}

// Default 只包含默认值的配置
func Default() Config {
	var c Config
	// 空对象只会触发默认值填充，不会失败
	_ = conf.LoadFromJsonBytes([]byte("{}"), &c)
	return c
}

// Load 加载配置
// INSPECTFLOW_CONFIG 指定的文件（json/yaml/toml）先于环境变量应用
func Load() (Config, error) {
	var file fileEnv
	if err := ParseEnv(&file); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	c := Default()
	if file.Path != "" {
		if err := conf.Load(file.Path, &c); err != nil {
			return Config{}, fmt.Errorf("%w: load %s: %w", ErrInvalidConfig, file.Path, err)
		}
	}

	if err := ParseEnv(&c); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ParseEnv 用环境变量覆盖 target 中对应的字段，未设置的变量不改变原值
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate 检查取值范围
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidConfig)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: negative request timeout %s", ErrInvalidConfig, c.RequestTimeout)
	}
	if c.ChannelBuffer < 1 {
		return fmt.Errorf("%w: channel buffer must be positive", ErrInvalidConfig)
	}
	return nil
}

// Endpoint 会话 token 对应的调试地址 ws://host:port/token
func (c Config) Endpoint(token string) string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + token,
	}
	return u.String()
}

// SetupLogging 按配置初始化 logx，日志写到 w
// 标准输出留给操作员交互，日志通常写到标准错误
func (c Config) SetupLogging(w io.Writer) {
	logx.MustSetup(logx.LogConf{
		ServiceName: "inspectflow",
		Mode:        "console",
		Encoding:    c.LogEncoding,
		Level:       c.LogLevel,
	})
	logx.DisableStat()
	logx.SetWriter(logx.NewWriter(w))
}
