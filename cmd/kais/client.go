package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kochabx/kais/app"
	"github.com/kochabx/kais/auth"
	"github.com/kochabx/kais/auth/clock"
	"github.com/kochabx/kais/auth/credential"
	"github.com/kochabx/kais/auth/gateway"
	"github.com/kochabx/kais/auth/session"
	"github.com/kochabx/kais/config"
	"github.com/kochabx/kais/core/httpclient"
	"github.com/kochabx/kais/errors"
	"github.com/kochabx/kais/log"
	"github.com/kochabx/kais/metrics"
	"github.com/kochabx/kais/transport"
	khttp "github.com/kochabx/kais/transport/http"
)

type client struct {
	settings *config.Settings
	config   *config.Config
	logger   *log.Logger
	metrics  *metrics.Metrics
	store    io.Closer
	session  *session.Manager
	gateway  *gateway.Gateway
}

func newClient(ctx context.Context, f flags) (*client, error) {
	settings, cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	if f.verbose {
		settings.Log.Level = zerolog.DebugLevel.String()
	}

	logger, err := log.NewFromConfig(settings.Log)
	if err != nil {
		return nil, errors.Wrap(err, 400, "configure logging")
	}
	log.SetGlobalLogger(logger)

	store, closer, err := credential.Open(ctx, settings.Store, logger)
	if err != nil {
		logger.Close()
		return nil, err
	}

	m := metrics.New()
	doer := httpclient.New(
		httpclient.WithBaseURL(settings.API.BaseURL),
		httpclient.WithTimeout(settings.API.Timeout),
	)
	backend := auth.NewClient(doer, auth.WithPrefix(settings.API.Prefix), auth.WithLogger(logger))
	sess := session.New(backend,
		session.WithStore(store),
		session.WithClock(clock.New(
			clock.WithLeadTime(settings.Session.RenewalLeadTime),
			clock.WithMinimumDelay(settings.Session.MinimumDelay),
		)),
		session.WithLogger(logger),
		session.WithMetrics(m),
		session.WithRenewTimeout(settings.Session.RenewTimeout),
		session.WithLogoutTimeout(settings.Session.LogoutTimeout),
	)

	c := &client{
		settings: settings,
		config:   cfg,
		logger:   logger,
		metrics:  m,
		store:    closer,
		session:  sess,
		gateway: gateway.New(doer, sess,
			gateway.WithPrefix(settings.API.Prefix),
			gateway.WithLogger(logger),
			gateway.WithMetrics(m),
		),
	}

	if err := sess.Restore(ctx); err != nil {
		logger.Debug().Err(err).Msg("no session restored")
	}
	return c, nil
}

// Close waits for background logout calls before releasing the store
func (c *client) Close() {
	c.session.Close()
	if err := c.store.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("close credential store")
	}
	c.logger.Close()
}

func (c *client) login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return errors.BadRequest("login needs --email and --password")
	}
	if c.session.Authenticated() {
		if current := c.session.Identity(); current != nil && current.Email == email {
			fmt.Printf("already logged in as %s\n", describe(current))
			return nil
		}
		c.session.Logout(ctx)
	}

	profile, err := c.session.Login(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s, home %s\n", describe(profile), profile.HomePath())
	return nil
}

func (c *client) whoami() error {
	snap := c.session.Snapshot()
	if !snap.State.Authenticated() {
		return errors.SessionExpired("not logged in")
	}
	fmt.Printf("%s\nstate %s, home %s\n", describe(snap.Profile), snap.State, snap.Profile.HomePath())
	if !snap.Expiry.IsZero() {
		fmt.Printf("access token expires %s (in %s)\n",
			snap.Expiry.Local().Format(time.RFC3339), time.Until(snap.Expiry).Round(time.Second))
	}
	if !snap.Renewable {
		fmt.Println("session cannot be renewed, log in again when it expires")
	}
	return nil
}

func (c *client) logout(ctx context.Context) error {
	if !c.session.Authenticated() {
		fmt.Println("not logged in")
		return nil
	}
	c.session.Logout(ctx)
	fmt.Println("logged out")
	return nil
}

func (c *client) request(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.BadRequest("usage: kais request METHOD PATH [BODY]")
	}

	var body any
	if len(args) == 3 {
		switch raw := args[2]; {
		case raw == "-":
			body = os.Stdin
		case json.Valid([]byte(raw)):
			body = json.RawMessage(raw)
		default:
			return errors.BadRequest("request body is not valid JSON")
		}
	}

	req := gateway.NewRequest(args[0], args[1], body)
	resp, err := c.gateway.Send(ctx, req)
	if err != nil {
		return err
	}
	c.logger.Debug().Str("request_id", req.ID()).Int("status", resp.StatusCode).Int("attempt", req.Attempt).Msg("request done")

	os.Stdout.Write(resp.Body)
	if len(resp.Body) > 0 && resp.Body[len(resp.Body)-1] != '\n' {
		fmt.Println()
	}
	return resp.Err()
}

// watch keeps the process alive so the token clock renews the session
// before expiry, and serves the status endpoints when enabled
func (c *client) watch(ctx context.Context) error {
	if !c.session.Authenticated() {
		return errors.SessionExpired("not logged in")
	}

	done := make(chan struct{})
	cancel := c.session.Subscribe(func(e session.Event) {
		ev := c.logger.Info().Str("from", e.From.String()).Str("to", e.To.String())
		if e.Err != nil {
			ev = ev.Err(e.Err)
		}
		ev.Msg("session state changed")
		if e.Expired() {
			c.logger.Warn().Msg("session expired, log in again")
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	defer cancel()

	c.config.OnChange(func() {
		c.config.RLock()
		level := c.settings.Log.Level
		c.config.RUnlock()
		if l, err := zerolog.ParseLevel(level); err == nil {
			c.logger.SetLevel(l)
		}
	})
	if err := c.config.Watch(); err != nil {
		c.logger.Debug().Err(err).Msg("configuration is not watched")
	}

	opts := []app.Option{
		app.WithContext(ctx),
		app.WithLogger(c.logger),
		app.WithTask("session", func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return nil
			case <-done:
				return errors.SessionExpired("session ended")
			}
		}),
	}
	if server := c.statusServer(); server != nil {
		opts = append(opts, app.WithServers(server))
	}

	snap := c.session.Snapshot()
	c.logger.Info().Str("user", snap.Profile.ID).Time("expiry", snap.Expiry).Bool("scheduled", snap.Scheduled).Msg("watching session")
	return app.New(opts...).Start()
}

func (c *client) statusServer() transport.Server {
	s := c.settings.Status
	if !s.Enabled {
		return nil
	}
	gin.SetMode(gin.ReleaseMode)
	return khttp.NewServer(s.Addr,
		khttp.WithLogger(c.logger),
		khttp.WithMetricsOptions(c.metrics, khttp.MetricsOption{
			Enabled:                   true,
			Path:                      s.MetricsPath,
			EnabledGoCollector:        s.GoCollector,
			EnabledBuildInfoCollector: s.BuildInfoCollector,
		}),
		khttp.WithHealthOptions(khttp.HealthOption{Enabled: true, Path: s.HealthPath}),
		khttp.WithSessionOptions(c.session, khttp.SessionOption{Enabled: true, Path: s.SessionPath}),
	)
}

func describe(p *auth.UserProfile) string {
	if p == nil {
		return "unknown user"
	}
	name := p.Name
	if name == "" {
		name = p.ID
	}
	if p.Email != "" {
		name += " <" + p.Email + ">"
	}
	return fmt.Sprintf("%s (%s)", name, p.Role)
}
