package credential

import (
	"context"
	"io"

	"github.com/kochabx/kais/config"
	"github.com/kochabx/kais/errors"
	"github.com/kochabx/kais/log"
	"github.com/kochabx/kais/store/redis"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open 按配置选择存储后端，返回的 Closer 释放后端连接
func Open(ctx context.Context, cfg config.StoreConfig, logger *log.Logger) (*Store, io.Closer, error) {
	opts := []Option{WithPrefix(cfg.KeyPrefix), WithLogger(logger)}

	switch cfg.Backend {
	case "memory":
		return New(NewMemoryKV(), opts...), nopCloser{}, nil
	case "", "file":
		return New(NewFileKV(cfg.Path), opts...), nopCloser{}, nil
	case "redis":
		client, err := redis.New(ctx, &cfg.Redis, redis.WithLogger(logger))
		if err != nil {
			return nil, nil, errors.Wrap(err, 503, "connect credential redis")
		}
		return New(NewRedisKV(client, cfg.TTL), opts...), client, nil
	default:
		return nil, nil, errors.BadRequest("unknown credential store backend %q", cfg.Backend)
	}
}
