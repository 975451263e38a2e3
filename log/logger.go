package log

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"

	"github.com/kochabx/kais/log/desensitize"
	"github.com/kochabx/kais/log/writer"
)

// Logger 日志记录器
type Logger struct {
	zerolog.Logger
	desensitizeHook *desensitize.Hook
	level           *levelHook // 与 Component 子 Logger 共享
	writer          io.Writer
	closer          io.Closer // 用于资源清理
}

// levelHook 按可变级别丢弃事件，运行时调整级别对已创建的子 Logger 同样生效
type levelHook struct {
	level atomic.Int32
}

func newLevelHook(level zerolog.Level) *levelHook {
	h := &levelHook{}
	h.level.Store(int32(level))
	return h
}

func (h *levelHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	if level != zerolog.NoLevel && level < zerolog.Level(h.level.Load()) {
		e.Discard()
	}
}

// SetLevel 运行时调整日志级别，可升可降
func (l *Logger) SetLevel(level zerolog.Level) {
	l.level.level.Store(int32(level))
}

// GetLevel 返回当前生效的日志级别
func (l *Logger) GetLevel() zerolog.Level {
	return zerolog.Level(l.level.level.Load())
}

// GetDesensitizeHook 获取脱敏钩子
func (l *Logger) GetDesensitizeHook() *desensitize.Hook {
	return l.desensitizeHook
}

// Close 关闭日志记录器，释放资源
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Component 返回带 component 字段的子 Logger，共享底层 writer
func (l *Logger) Component(name string) *Logger {
	return &Logger{
		Logger:          l.Logger.With().Str("component", name).Logger(),
		desensitizeHook: l.desensitizeHook,
		level:           l.level,
		writer:          l.writer,
	}
}

func init() {
	zerolog.TimeFieldFormat = time.DateTime
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// newLogger 统一的 Logger 构建方法
func newLogger(w io.Writer, opts ...Option) *Logger {
	logger := &Logger{
		writer: w,
		level:  newLevelHook(zerolog.TraceLevel),
	}
	logger.Logger = base(w, logger.level)

	for _, opt := range opts {
		opt(logger)
	}

	// 设置了脱敏钩子时包装 writer，并重新应用选项（Logger 被重建）
	if logger.desensitizeHook != nil {
		dw := desensitize.NewWriter(w, logger.desensitizeHook)
		logger.Logger = base(dw, logger.level)

		for _, opt := range opts {
			opt(logger)
		}
	}

	return logger
}

func base(w io.Writer, level *levelHook) zerolog.Logger {
	return zerolog.New(w).Hook(level).With().Timestamp().Logger()
}

// New 创建新的 Logger 实例，输出到控制台
func New(opts ...Option) *Logger {
	return newLogger(writer.Console(), opts...)
}

// NewWriter 创建输出到任意 writer 的 Logger（测试中常用 bytes.Buffer）
func NewWriter(w io.Writer, opts ...Option) *Logger {
	return newLogger(w, opts...)
}

// NewFile 创建文件输出的 Logger
func NewFile(c FileConfig, opts ...Option) (*Logger, error) {
	c.applyDefaults()

	w, err := writer.File(c.toWriterConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create file writer: %w", err)
	}

	logger := newLogger(w, opts...)
	if closer, ok := w.(io.Closer); ok {
		logger.closer = closer
	}

	return logger, nil
}

// NewMulti 创建同时输出到文件和控制台的 Logger
func NewMulti(c FileConfig, opts ...Option) (*Logger, error) {
	c.applyDefaults()

	fw, err := writer.File(c.toWriterConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create file writer: %w", err)
	}

	multi := zerolog.MultiLevelWriter(fw, writer.Console())
	logger := newLogger(multi, opts...)

	if closer, ok := fw.(io.Closer); ok {
		logger.closer = closer
	}

	return logger, nil
}

// NewFromConfig 按配置创建 Logger：
// 未启用文件输出时只输出到控制台；启用后根据 Console 决定是否同时输出到控制台。
// 令牌、密码等敏感字段总是脱敏。
func NewFromConfig(c Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	hook := desensitize.NewHook()
	hook.AddBuiltin(desensitize.BuiltinRules()...)
	opts := []Option{WithLevel(level), WithDesensitize(hook)}
	if c.Caller {
		opts = append(opts, WithCaller())
	}

	switch {
	case !c.File.Enabled:
		return New(opts...), nil
	case c.Console:
		return NewMulti(c.File, opts...)
	default:
		return NewFile(c.File, opts...)
	}
}
