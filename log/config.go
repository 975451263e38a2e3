package log

import (
	"github.com/kochabx/kais/log/writer"
)

// Config 日志配置
type Config struct {
	Level   string     `mapstructure:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Console bool       `mapstructure:"console" default:"true"`
	Caller  bool       `mapstructure:"caller"`
	File    FileConfig `mapstructure:"file"`
}

// FileConfig 日志文件配置
type FileConfig struct {
	Enabled          bool              `mapstructure:"enabled"`
	Filepath         string            `mapstructure:"filepath" default:"log"`
	Filename         string            `mapstructure:"filename" default:"kais"`
	FileExt          string            `mapstructure:"file_ext" default:"log"`
	RotateMode       writer.RotateMode `mapstructure:"rotate_mode"`
	RotatelogsConfig RotatelogsConfig  `mapstructure:"rotatelogs"`
	LumberjackConfig LumberjackConfig  `mapstructure:"lumberjack"`
}

// RotatelogsConfig 按时间轮转配置
type RotatelogsConfig struct {
	MaxAge       int `mapstructure:"max_age" default:"24"`
	RotationTime int `mapstructure:"rotation_time" default:"1"`
}

// LumberjackConfig 按大小轮转配置
type LumberjackConfig struct {
	MaxSize    int  `mapstructure:"max_size" default:"100"`
	MaxBackups int  `mapstructure:"max_backups" default:"5"`
	MaxAge     int  `mapstructure:"max_age" default:"30"`
	Compress   bool `mapstructure:"compress"`
}

// applyDefaults 填充未设置的字段，直接构造 FileConfig 时使用
func (c *FileConfig) applyDefaults() {
	if c.Filepath == "" {
		c.Filepath = "log"
	}
	if c.Filename == "" {
		c.Filename = "kais"
	}
	if c.FileExt == "" {
		c.FileExt = "log"
	}
	if c.RotatelogsConfig.MaxAge == 0 {
		c.RotatelogsConfig.MaxAge = 24
	}
	if c.RotatelogsConfig.RotationTime == 0 {
		c.RotatelogsConfig.RotationTime = 1
	}
	if c.LumberjackConfig.MaxSize == 0 {
		c.LumberjackConfig.MaxSize = 100
	}
	if c.LumberjackConfig.MaxBackups == 0 {
		c.LumberjackConfig.MaxBackups = 5
	}
	if c.LumberjackConfig.MaxAge == 0 {
		c.LumberjackConfig.MaxAge = 30
	}
}

// toWriterConfig 转换为 writer.RotateConfig
func (c *FileConfig) toWriterConfig() writer.RotateConfig {
	return writer.RotateConfig{
		Filepath: c.Filepath,
		Filename: c.Filename,
		FileExt:  c.FileExt,
		Mode:     c.RotateMode,
		TimeRotateConfig: writer.TimeRotateConfig{
			MaxAge:       c.RotatelogsConfig.MaxAge,
			RotationTime: c.RotatelogsConfig.RotationTime,
		},
		SizeRotateConfig: writer.SizeRotateConfig{
			MaxSize:    c.LumberjackConfig.MaxSize,
			MaxBackups: c.LumberjackConfig.MaxBackups,
			MaxAge:     c.LumberjackConfig.MaxAge,
			Compress:   c.LumberjackConfig.Compress,
		},
	}
}
