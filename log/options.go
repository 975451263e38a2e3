package log

import (
	"github.com/rs/zerolog"

	"github.com/kochabx/kais/log/desensitize"
)

// Option Logger 选项函数
type Option func(*Logger)

// WithLevel 设置初始日志级别，之后可通过 SetLevel 调整
func WithLevel(level zerolog.Level) Option {
	return func(l *Logger) {
		l.SetLevel(level)
	}
}

// WithCaller 在每条日志中记录调用位置
func WithCaller() Option {
	return func(l *Logger) {
		l.Logger = l.Logger.With().Caller().Logger()
	}
}

// WithDesensitize 设置脱敏钩子
func WithDesensitize(hook *desensitize.Hook) Option {
	return func(l *Logger) {
		l.desensitizeHook = hook
	}
}
