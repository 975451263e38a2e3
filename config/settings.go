package config

import (
	"time"

	"github.com/kochabx/kais/log"
	"github.com/kochabx/kais/store/redis"
)

// Settings is the configuration of the kais session client.
//
//	api:
//	  base_url: http://localhost:5000
//	  prefix: /api/v1
//	session:
//	  renewal_lead_time: 5m
//	  minimum_delay: 1m
//	store:
//	  backend: file
//	  path: .kais/credentials.json
//	status:
//	  enabled: true
//	  addr: 127.0.0.1:9464
type Settings struct {
	API     APIConfig     `mapstructure:"api"`
	Session SessionConfig `mapstructure:"session"`
	Store   StoreConfig   `mapstructure:"store"`
	Status  StatusConfig  `mapstructure:"status"`
	Log     log.Config    `mapstructure:"log"`
}

// APIConfig locates the REST backend.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" default:"http://localhost:5000" validate:"required,url"`
	Prefix  string        `mapstructure:"prefix" default:"/api/v1"`
	Timeout time.Duration `mapstructure:"timeout" default:"10s" validate:"gt=0"`
}

// SessionConfig tunes renewal scheduling and the timeouts of session calls.
type SessionConfig struct {
	RenewalLeadTime time.Duration `mapstructure:"renewal_lead_time" default:"5m" validate:"gte=0"`
	MinimumDelay    time.Duration `mapstructure:"minimum_delay" default:"1m" validate:"gt=0"`
	RenewTimeout    time.Duration `mapstructure:"renew_timeout" default:"10s" validate:"gt=0"`
	LogoutTimeout   time.Duration `mapstructure:"logout_timeout" default:"5s" validate:"gt=0"`
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Backend   string        `mapstructure:"backend" default:"file" validate:"oneof=memory file redis"`
	Path      string        `mapstructure:"path" default:".kais/credentials.json"`
	KeyPrefix string        `mapstructure:"key_prefix" default:"kais_"`
	TTL       time.Duration `mapstructure:"ttl" validate:"gte=0"`
	Redis     redis.Config  `mapstructure:"redis"`
}

// StatusConfig controls the local status server started by `kais watch`.
type StatusConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Addr               string `mapstructure:"addr" default:"127.0.0.1:9464"`
	MetricsPath        string `mapstructure:"metrics_path" default:"/metrics"`
	HealthPath         string `mapstructure:"health_path" default:"/health"`
	SessionPath        string `mapstructure:"session_path" default:"/session"`
	GoCollector        bool   `mapstructure:"go_collector"`
	BuildInfoCollector bool   `mapstructure:"build_info_collector"`
}

// Load reads Settings from file (optional unless file is set) and KAIS_* environment variables.
func Load(file string) (*Settings, *Config, error) {
	s := new(Settings)
	opts := []Option{WithEnvPrefix("KAIS")}
	if file != "" {
		opts = append(opts, WithFile(file))
	} else {
		opts = append(opts, WithOptional())
	}

	c := New(s, opts...)
	if err := c.Load(); err != nil {
		return nil, nil, err
	}
	return s, c, nil
}
