package redis

import (
	"context"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kochabx/kais/log"
)

// DebugHook 调试钩子（日志记录 + 慢命令检测）。
// 命令参数不写入日志，凭据值会作为 SET 参数出现。
type DebugHook struct {
	logger          *log.Logger
	slowQueryThresh time.Duration // 0 表示不检测慢命令
}

// NewDebugHook 创建调试 Hook
func NewDebugHook(logger *log.Logger, slowQueryThresh time.Duration) *DebugHook {
	return &DebugHook{logger: logger, slowQueryThresh: slowQueryThresh}
}

func (h *DebugHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := next(ctx, network, addr)
		duration := time.Since(start)

		if err != nil {
			h.logger.Error().Str("network", network).Str("addr", addr).Dur("duration", duration).Err(err).Msg("redis dial failed")
		} else {
			h.logger.Debug().Str("network", network).Str("addr", addr).Dur("duration", duration).Msg("redis dial success")
		}
		return conn, err
	}
}

func (h *DebugHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(cmd.FullName(), 1, time.Since(start), err)
		return err
	}
}

func (h *DebugHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.observe("pipeline", len(cmds), time.Since(start), err)
		return err
	}
}

func (h *DebugHook) observe(name string, count int, duration time.Duration, err error) {
	switch {
	case h.slowQueryThresh > 0 && duration > h.slowQueryThresh:
		h.logger.Warn().Str("cmd", name).Int("count", count).Dur("duration", duration).Dur("threshold", h.slowQueryThresh).Msg("slow redis command")
	case err != nil && err != redis.Nil:
		h.logger.Warn().Str("cmd", name).Int("count", count).Dur("duration", duration).Err(err).Msg("redis command failed")
	default:
		h.logger.Debug().Str("cmd", name).Int("count", count).Dur("duration", duration).Msg("redis command")
	}
}
