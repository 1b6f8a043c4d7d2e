package prompt

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/zeromicro/go-zero/core/threading"
)

// LineSource 基于 bufio 的行输入源，用于管道输入和测试
type LineSource struct {
	writeMu sync.Mutex
	out     io.Writer

	lines     chan lineResult
	done      chan struct{}
	closeOnce sync.Once
}

// NewLineSource 从 r 读取行，提示和输出写到 w
func NewLineSource(r io.Reader, w io.Writer) *LineSource {
	s := &LineSource{
		out:   w,
		lines: make(chan lineResult),
		done:  make(chan struct{}),
	}

	scanner := bufio.NewScanner(r)
	threading.GoSafe(func() {
		s.readLoop(scanner)
	})
	return s
}

func (s *LineSource) readLoop(scanner *bufio.Scanner) {
	defer close(s.lines)

	for scanner.Scan() {
		select {
		case s.lines <- lineResult{line: scanner.Text()}:
		case <-s.done:
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case s.lines <- lineResult{err: err}:
	case <-s.done:
	}
}

// Ask 实现 Source 接口
// ctx 已结束时不再读取，即使已有一行在等待
func (s *LineSource) Ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	select {
	case <-s.done:
		return "", ErrClosed
	default:
	}

	if _, err := s.Write([]byte(prompt)); err != nil {
		return "", err
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

// Write 串行写出，可被多个 goroutine 同时调用
func (s *LineSource) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.out.Write(p)
}

// Close 关闭输入源，之后的 Ask 返回 ErrClosed
// 不关闭底层 reader
func (s *LineSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}
