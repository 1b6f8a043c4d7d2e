package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	inspectflow "github.com/Pentahill/inspectflow/api"

	"github.com/zeromicro/go-zero/core/logx"
)

// 退出码
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := inspectflow.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	// 标准输出留给交互，日志写到标准错误
	cfg.SetupLogging(os.Stderr)
	defer logx.Close()

	source, err := inspectflow.NewStdio()
	if err != nil {
		logx.Errorf("Failed to open terminal, error=%v", err)
		return exitFailed
	}

	// 等待中断信号，取消后命令循环结束并关闭连接
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := inspectflow.NewClient(&inspectflow.ClientOptional{
		Config: &cfg,
		Source: source,
	})

	err = client.Run(ctx)
	if ctx.Err() != nil {
		logx.Infof("Interrupted, exiting")
	}
	if err != nil {
		logx.Errorf("Client stopped, error=%v", err)
	}
	return exitCode(err)
}

// exitCode 0 表示正常退出或被中断，1 表示连接失败或意外断开，2 表示配置错误
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, inspectflow.ErrInvalidConfig):
		return exitConfig
	default:
		return exitFailed
	}
}
