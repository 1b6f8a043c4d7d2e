package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Pentahill/inspectflow/internal/channel"
	"github.com/Pentahill/inspectflow/internal/command"
	"github.com/Pentahill/inspectflow/internal/config"
	"github.com/Pentahill/inspectflow/internal/prompt"
	"github.com/Pentahill/inspectflow/internal/transport"

	"github.com/zeromicro/go-zero/core/logx"
)

// TokenPrompt 会话 token 的提示文本
const TokenPrompt = "Enter session token: "

// DialFunc 为调试地址创建传输层
type DialFunc func(endpoint, sessionID string) transport.Transport

// ClientOptional 客户端的可选配置
type ClientOptional struct {
	// Config 为 nil 时使用默认配置
	Config *config.Config
	// Source 操作员输入源，必须设置
	Source prompt.Source
	// Output 面向操作员的输出，为 nil 时写到 Source
	Output io.Writer
	// Dial 为 nil 时使用 WebSocket 传输
	Dial DialFunc
	// Transcript 由调用方持有的会话记录；为 nil 时使用内存记录，会话结束后回收
	Transcript channel.TranscriptHandler
}

// Client 交互式调试客户端
type Client struct {
	config     config.Config
	source     prompt.Source
	out        io.Writer
	dial       DialFunc
	transcript channel.TranscriptHandler
}

// NewClient 创建客户端
func NewClient(opt *ClientOptional) *Client {
	c := &Client{config: config.Default()}

	if opt != nil {
		if opt.Config != nil {
			c.config = *opt.Config
		}
		c.source = opt.Source
		c.out = opt.Output
		c.dial = opt.Dial
		c.transcript = opt.Transcript
	}

	if c.out == nil {
		c.out = c.source
	}
	if c.dial == nil {
		c.dial = c.defaultDial
	}
	return c
}

func (c *Client) defaultDial(endpoint, sessionID string) transport.Transport {
	return transport.NewWebSocketTransport(endpoint, &transport.WebSocketOptional{
		Origin:    c.config.Origin,
		SessionID: sessionID,
	})
}

// Run 读取会话 token、连接调试端并运行命令循环，直到退出或连接关闭
//   - quit、输入结束或 ctx 取消：返回 nil
//   - 连接失败：返回 *transport.ConnectError
//   - 会话中连接意外关闭：返回 transport.ErrConnectionClosed
func (c *Client) Run(ctx context.Context) error {
	if c.source == nil {
		return errors.New("prompt source is required")
	}
	defer c.source.Close()

	token, err := c.askToken(ctx)
	if err != nil {
		if isEndOfInput(ctx, err) {
			logx.WithContext(ctx).Infof("No session token entered, error=%v", err)
			return nil
		}
		return fmt.Errorf("read session token: %w", err)
	}

	endpoint := c.config.Endpoint(token)
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	transcript := c.transcript
	if transcript == nil {
		transcript = channel.NewMemoryTranscript()
	}

	session, err := transport.ConnectAndBind(ctx, c.dial(endpoint, token), &sessionBinder{
		opt: &SessionOptional{
			BufferSize:     c.config.ChannelBuffer,
			RequestTimeout: c.config.RequestTimeout,
			Transcript:     transcript,
			Output:         c.out,
			Cancel:         cancel,
		},
	})
	if err != nil {
		logx.WithContext(ctx).Errorf("Failed to connect, endpoint=%s, error=%v", endpoint, err)
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return err
	}
	if c.transcript == nil {
		defer dropTranscript(ctx, transcript, session.SessionID)
	}
	defer session.Close()

	logx.WithContext(ctx).Infof("Connected, endpoint=%s, session_id=%s", endpoint, session.SessionID)
	fmt.Fprintf(c.out, "Connected to %s\n", endpoint)

	dispatcher := command.NewDispatcher(session.Table, session.Machine, c.source, &command.DispatcherOptional{
		OnQuit: session.Shutdown,
	})
	dispatcher.Bootstrap(runCtx)
	err = dispatcher.Run(runCtx)

	if cause := context.Cause(runCtx); errors.Is(cause, transport.ErrConnectionClosed) {
		return cause
	}
	if err == nil {
		return nil
	}
	if isEndOfInput(ctx, err) {
		logx.WithContext(ctx).Infof("Command loop ended, session_id=%s, reason=%v", session.SessionID, err)
		return nil
	}
	return err
}

// askToken 空输入时重新询问
func (c *Client) askToken(ctx context.Context) (string, error) {
	for {
		token, err := c.source.Ask(ctx, TokenPrompt)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
	}
}

// isEndOfInput 输入结束或调用方取消，属于正常结束
func isEndOfInput(ctx context.Context, err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, prompt.ErrClosed) || ctx.Err() != nil
}
