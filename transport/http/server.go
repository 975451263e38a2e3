// Package http serves the local status endpoints of a running kais client:
// health, Prometheus metrics and a token-free view of the session.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kochabx/kais/auth"
	"github.com/kochabx/kais/auth/session"
	"github.com/kochabx/kais/log"
	"github.com/kochabx/kais/metrics"
	"github.com/kochabx/kais/transport"
)

var _ transport.Server = (*Server)(nil)

const (
	defaultName = "status"
	defaultAddr = "127.0.0.1:9464"
)

// SessionReader is the read side of the session manager
type SessionReader interface {
	Snapshot() session.Snapshot
}

// SessionView never carries tokens
type SessionView struct {
	State     string            `json:"state"`
	User      *auth.UserProfile `json:"user,omitempty"`
	Home      string            `json:"home"`
	Expiry    *time.Time        `json:"expiry,omitempty"`
	Renewable bool              `json:"renewable"`
	Scheduled bool              `json:"scheduled"`
}

func NewSessionView(s session.Snapshot) SessionView {
	v := SessionView{
		State:     s.State.String(),
		User:      s.Profile,
		Home:      s.Profile.HomePath(),
		Renewable: s.Renewable,
		Scheduled: s.Scheduled,
	}
	if !s.State.Authenticated() {
		v.Home = "/login"
	}
	if !s.Expiry.IsZero() {
		expiry := s.Expiry
		v.Expiry = &expiry
	}
	return v
}

type Server struct {
	meta    Meta
	options Options
	logger  *log.Logger
	metrics *metrics.Metrics
	session SessionReader
	engine  *gin.Engine
	server  *http.Server
}

func NewServer(addr string, opts ...Option) *Server {
	s := &Server{logger: log.G}
	for _, opt := range opts {
		opt(s)
	}
	if s.meta.Name == "" {
		s.meta.Name = defaultName
	}
	s.logger = s.logger.Component(s.meta.Name)

	s.engine = gin.New()
	s.engine.Use(Recovery(s.logger), Logger(s.logger, s.options.Health.Path, s.options.Metrics.Path))
	s.routes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Run() error {
	if ok := transport.ValidateAddress(s.server.Addr); !ok {
		s.logger.Warn().Msgf("invalid address %q, using default address: %s", s.server.Addr, defaultAddr)
		s.server.Addr = defaultAddr
	}
	s.logger.Info().Msgf("%s server listening on %s", s.meta.Name, s.server.Addr)

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	if s.options.Metrics.Enabled && s.metrics != nil {
		if s.options.Metrics.EnabledGoCollector {
			s.metrics.WithGoCollectorRuntimeMetrics()
		}
		if s.options.Metrics.EnabledBuildInfoCollector {
			s.metrics.WithBuildInfoCollector()
		}
		s.engine.GET(s.options.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	if s.options.Health.Enabled {
		s.engine.GET(s.options.Health.Path, func(c *gin.Context) {
			GinJSON(c, gin.H{"status": "ok"})
		})
	}

	if s.options.Session.Enabled && s.session != nil {
		s.engine.GET(s.options.Session.Path, func(c *gin.Context) {
			GinJSON(c, NewSessionView(s.session.Snapshot()))
		})
	}

	s.engine.NoRoute(func(c *gin.Context) {
		GinJSONE(c, http.StatusNotFound, "not found")
	})
}
