package inspect

import (
	"context"

	"github.com/Pentahill/inspectflow/internal/channel"
	"github.com/Pentahill/inspectflow/internal/config"
	"github.com/Pentahill/inspectflow/internal/prompt"
	"github.com/Pentahill/inspectflow/internal/transport"

	"github.com/zeromicro/go-zero/core/logx"
)

// Config 客户端配置类型别名
type Config = config.Config

// Source 操作员输入源类型别名
type Source = prompt.Source

// Transport 传输层类型别名
type Transport = transport.Transport

// dropTranscript 会话结束后在 debug 级别输出会话记录，然后回收
func dropTranscript(ctx context.Context, transcript channel.Transcript, sessionID string) {
	for entry, err := range transcript.After(ctx, sessionID, -1) {
		if err != nil {
			logx.WithContext(ctx).Debugf("Transcript unavailable, session_id=%s, error=%v", sessionID, err)
			break
		}
		logx.WithContext(ctx).Debugf("Transcript entry, session_id=%s, index=%d, type=%s, data=%s",
			sessionID, entry.Index, entry.Type, entry.Data)
	}

	if err := transcript.SessionClosed(ctx, sessionID); err != nil {
		logx.WithContext(ctx).Errorf("Failed to release transcript, session_id=%s, error=%v", sessionID, err)
	}
}
