package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Option is a function that configures a Config
type Option func(*Config)

// WithViper sets a custom viper instance
func WithViper(v *viper.Viper) Option {
	return func(c *Config) {
		c.viper = v
	}
}

// WithValidator sets a custom validator
func WithValidator(v *validator.Validate) Option {
	return func(c *Config) {
		c.validate = v
	}
}

// WithLoader sets the configuration loader
func WithLoader(loader Loader) Option {
	return func(c *Config) {
		c.loader = loader
	}
}

// WithFile reads configuration from an explicit file; the file must exist
func WithFile(file string) Option {
	return func(c *Config) {
		c.file = file
	}
}

// WithOptional tolerates a missing config file, leaving defaults and env overrides
func WithOptional() Option {
	return func(c *Config) {
		c.optional = true
	}
}

// WithEnvPrefix sets the prefix of environment overrides (KAIS -> KAIS_API_BASE_URL)
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.envPrefix = prefix
	}
}
