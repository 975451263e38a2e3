package session

import (
	"time"

	"github.com/kochabx/kais/auth/clock"
	"github.com/kochabx/kais/auth/credential"
	"github.com/kochabx/kais/log"
	"github.com/kochabx/kais/metrics"
)

const (
	DefaultRenewTimeout  = 10 * time.Second
	DefaultLogoutTimeout = 5 * time.Second
)

// Option Manager 选项函数
type Option func(*Manager)

// WithStore 设置凭据存储，未设置时会话只保存在内存中
func WithStore(store *credential.Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithClock 设置续期调度器
func WithClock(c *clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithRenewTimeout 设置单次刷新调用的超时
func WithRenewTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.renewTimeout = d
		}
	}
}

// WithLogoutTimeout 设置后台注销调用的超时
func WithLogoutTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.logoutTimeout = d
		}
	}
}
