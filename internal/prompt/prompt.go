// Package prompt 面向操作员的行输入源。
//
// Source 每次 Ask 输出一个提示并读取一行；Write 用于在提示之外输出异步消息（事件、错误）。
package prompt

import (
	"context"
	"errors"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrClosed 输入源已关闭
var ErrClosed = errors.New("prompt source closed")

// Source 行输入源
type Source interface {
	// Ask 输出 prompt 并等待一行输入，返回去除首尾空白后的内容
	Ask(ctx context.Context, prompt string) (string, error)
	io.Writer
	Close() error
}

type lineResult struct {
	line string
	err  error
}

// NewStdio 标准输入输出上的输入源
// stdin 和 stdout 都是终端时使用原始模式的行编辑器，否则按普通行读取
func NewStdio() (Source, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		return NewTerminalSource(os.Stdin, os.Stdout)
	}
	return NewLineSource(os.Stdin, os.Stdout), nil
}
