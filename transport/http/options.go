package http

import (
	"github.com/kochabx/kais/config"
	"github.com/kochabx/kais/log"
	"github.com/kochabx/kais/metrics"
)

type Options struct {
	Metrics MetricsOption
	Health  HealthOption
	Session SessionOption
}

type MetricsOption struct {
	Enabled                   bool   `json:"enabled"`
	Path                      string `json:"path" default:"/metrics"`
	EnabledGoCollector        bool   `json:"enabled_go_collector"`
	EnabledBuildInfoCollector bool   `json:"enabled_build_info_collector"`
}

type HealthOption struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" default:"/health"`
}

type SessionOption struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" default:"/session"`
}

// Meta is the metadata of the server.
type Meta struct {
	Name string
}

type Option func(*Server)

func WithMeta(meta Meta) Option {
	return func(s *Server) {
		s.meta = meta
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsOptions exposes m on opt.Path
func WithMetricsOptions(m *metrics.Metrics, opt MetricsOption) Option {
	return func(s *Server) {
		if err := config.ApplyDefaults(&opt); err != nil {
			s.logger.Error().Err(err).Send()
			return
		}
		s.metrics = m
		s.options.Metrics = opt
	}
}

func WithHealthOptions(opt HealthOption) Option {
	return func(s *Server) {
		if err := config.ApplyDefaults(&opt); err != nil {
			s.logger.Error().Err(err).Send()
			return
		}
		s.options.Health = opt
	}
}

// WithSessionOptions exposes a token-free view of the session on opt.Path
func WithSessionOptions(session SessionReader, opt SessionOption) Option {
	return func(s *Server) {
		if err := config.ApplyDefaults(&opt); err != nil {
			s.logger.Error().Err(err).Send()
			return
		}
		s.session = session
		s.options.Session = opt
	}
}
