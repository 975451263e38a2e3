package redis

import (
	"time"
)

// Config Redis 配置（单机/集群/哨兵由 Addrs 与 MasterName 决定）
type Config struct {
	// Addrs 地址列表，单机: ["localhost:6379"]，集群: 多个节点，哨兵: 哨兵地址
	Addrs []string `mapstructure:"addrs" default:"localhost:6379"`

	// MasterName 哨兵模式的主节点名称
	MasterName string `mapstructure:"master_name"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// DB 数据库索引，集群模式忽略
	DB int `mapstructure:"db"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" default:"3s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" default:"3s"`

	// PoolSize 连接池最大连接数，0 使用 go-redis 默认值
	PoolSize int `mapstructure:"pool_size"`

	// MaxRetries 命令失败后的最大重试次数，-1 禁用
	MaxRetries int `mapstructure:"max_retries"`

	// SlowQuery 慢命令阈值，配合 Debug 使用，0 表示不检测
	Debug     bool          `mapstructure:"debug"`
	SlowQuery time.Duration `mapstructure:"slow_query"`
}

// Single 创建单机模式配置
func Single(addr string) *Config {
	return &Config{Addrs: []string{addr}}
}

// Validate 验证配置是否有效
func (c *Config) Validate() error {
	if len(c.Addrs) == 0 {
		return ErrEmptyAddrs
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// IsSentinel 判断是否为哨兵模式
func (c *Config) IsSentinel() bool {
	return c.MasterName != ""
}

// IsCluster 判断是否为集群模式
func (c *Config) IsCluster() bool {
	return len(c.Addrs) > 1 && c.MasterName == ""
}

// mode 返回客户端模式名称
func (c *Config) mode() string {
	switch {
	case c.IsSentinel():
		return "sentinel"
	case c.IsCluster():
		return "cluster"
	default:
		return "single"
	}
}
