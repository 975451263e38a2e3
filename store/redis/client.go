package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/kochabx/kais/log"
)

// Client Redis 统一客户端（支持单机/集群/哨兵模式）
type Client struct {
	client redis.UniversalClient
	config *Config
	logger *log.Logger
}

// Option 客户端配置选项
type Option func(*Client)

// WithLogger 设置日志记录器
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHooks 添加自定义 Hooks
func WithHooks(hooks ...redis.Hook) Option {
	return func(c *Client) {
		for _, hook := range hooks {
			c.client.AddHook(hook)
		}
	}
}

// New 创建新的 Redis 客户端并检查连通性
func New(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := &Client{
		config: cfg,
		logger: log.G,
		client: redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:        cfg.Addrs,
			MasterName:   cfg.MasterName,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MaxRetries:   cfg.MaxRetries,
		}),
	}

	for _, opt := range opts {
		opt(client)
	}
	if cfg.Debug {
		client.client.AddHook(NewDebugHook(client.logger, cfg.SlowQuery))
	}

	if err := client.Ping(ctx); err != nil {
		client.client.Close()
		return nil, err
	}

	client.logger.Debug().Str("mode", cfg.mode()).Strs("addrs", cfg.Addrs).Msg("redis client created")
	return client, nil
}

// NewFromUniversal 包装已有的 go-redis 客户端（测试或自行构建连接时使用）
func NewFromUniversal(rdb redis.UniversalClient) *Client {
	return &Client{client: rdb, config: &Config{}, logger: log.G}
}

// UniversalClient 获取底层 redis.UniversalClient
func (c *Client) UniversalClient() redis.UniversalClient {
	return c.client
}

// Ping 测试连接
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭客户端
func (c *Client) Close() error {
	err := c.client.Close()
	c.logger.Debug().Msg("redis client closed")
	return err
}
