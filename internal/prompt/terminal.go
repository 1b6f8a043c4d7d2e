package prompt

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"
	"golang.org/x/term"
)

// TerminalSource 原始模式终端上的行编辑器
// 提示打开期间写出的异步消息显示在提示上方，提示和已输入内容会被重绘
type TerminalSource struct {
	terminal *term.Terminal
	restore  func() error

	asks  chan string
	lines chan lineResult

	// exited 在 readLoop 返回时关闭
	exited    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewTerminalSource 将 in 切换到原始模式；Close 时恢复
func NewTerminalSource(in *os.File, out io.Writer) (*TerminalSource, error) {
	fd := int(in.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("make terminal raw: %w", err)
	}

	rw := struct {
		io.Reader
		io.Writer
	}{in, out}

	return newTerminalSource(rw, func() error {
		return term.Restore(fd, oldState)
	}), nil
}

func newTerminalSource(rw io.ReadWriter, restore func() error) *TerminalSource {
	s := &TerminalSource{
		terminal: term.NewTerminal(rw, ""),
		restore:  restore,
		asks:     make(chan string),
		lines:    make(chan lineResult),
		exited:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	threading.GoSafe(s.readLoop)
	return s
}

// readLoop 每个 Ask 读取一行
// ReadLine 在开始时输出提示，所以提示必须在调用前设置
func (s *TerminalSource) readLoop() {
	defer close(s.exited)
	defer close(s.lines)

	for {
		select {
		case prompt := <-s.asks:
			s.terminal.SetPrompt(prompt)
			line, err := s.terminal.ReadLine()

			select {
			case s.lines <- lineResult{line: line, err: err}:
			case <-s.done:
				return
			}
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Ask 实现 Source 接口
// Ctrl-C 和空行上的 Ctrl-D 都表现为 io.EOF
// 读取出错后 readLoop 退出，之后的 Ask 直接返回 io.EOF
func (s *TerminalSource) Ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	select {
	case s.asks <- prompt:
	case <-s.exited:
		return "", io.EOF
	case <-s.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return strings.TrimSpace(res.line), nil
	case <-s.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Write 经由行编辑器输出，换行转换为 CRLF
func (s *TerminalSource) Write(p []byte) (int, error) {
	return s.terminal.Write(p)
}

// Close 恢复终端状态
func (s *TerminalSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if err = s.restore(); err != nil {
			logx.Errorf("Failed to restore terminal, error=%v", err)
		}
	})
	return err
}
