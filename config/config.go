package config

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/kochabx/kais/log"
)

// Config manages application configuration
type Config struct {
	mu        sync.RWMutex        // protects concurrent access to target
	viper     *viper.Viper        // viper instance for configuration management
	validate  *validator.Validate // validator for configuration validation
	target    any                 // destination the configuration is unmarshalled into
	loader    Loader              // loader is responsible for loading configuration
	file      string              // explicit config file, overrides name lookup
	optional  bool                // a missing (searched) config file is not an error
	envPrefix string              // prefix for environment overrides
	onChange  []func()            // invoked after a successful reload
}

// New creates a new Config instance with the given options.
// If no loader is provided, a FileLoader is created looking for "config.yaml" in ".".
func New(target any, opts ...Option) *Config {
	c := &Config{
		viper:    viper.New(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		target:   target,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.envPrefix != "" {
		c.viper.SetEnvPrefix(c.envPrefix)
	}

	if c.loader == nil {
		fl := NewFileLoader("config.yaml", []string{"."}, c.viper, c.validate)
		fl.file = c.file
		fl.optional = c.optional
		c.loader = fl
	}

	return c
}

// Load reads the configuration using the configured loader
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loader.Load(c.target)
}

// Reload reloads the configuration and notifies change listeners on success
func (c *Config) Reload() error {
	c.mu.Lock()
	err := c.loader.Load(c.target)
	listeners := append([]func(){}, c.onChange...)
	c.mu.Unlock()

	if err != nil {
		return err
	}
	for _, fn := range listeners {
		fn()
	}
	return nil
}

// OnChange registers fn to run after every successful reload
func (c *Config) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Watch sets up automatic configuration reloading on file change
func (c *Config) Watch() error {
	return c.loader.Watch(func() {
		log.Info().Msg("config change detected")
		if err := c.Reload(); err != nil {
			log.Error().Err(err).Msg("failed to reload config after change")
			return
		}
		log.Info().Msg("config reloaded successfully")
	})
}

// RLock locks the target for reading while a reload may be in progress
func (c *Config) RLock() { c.mu.RLock() }

// RUnlock releases a read lock taken with RLock
func (c *Config) RUnlock() { c.mu.RUnlock() }

// GetViper returns the underlying viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.viper
}
