package config

import (
	"path"
	"reflect"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/kochabx/kais/errors"
)

// FileLoader loads configuration from a file, environment variables and struct defaults.
type FileLoader struct {
	viper    *viper.Viper
	validate *validator.Validate
	name     string
	paths    []string
	file     string
	optional bool
}

// NewFileLoader creates a new file loader.
// name is looked up in paths unless file names an explicit config file.
func NewFileLoader(name string, paths []string, v *viper.Viper, validate *validator.Validate) *FileLoader {
	configType := strings.TrimPrefix(path.Ext(name), ".")

	for _, configPath := range paths {
		v.AddConfigPath(configPath)
	}
	v.SetConfigName(strings.TrimSuffix(name, path.Ext(name)))
	v.SetConfigType(configType)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &FileLoader{
		viper:    v,
		validate: validate,
		name:     name,
		paths:    paths,
	}
}

// Load implements Loader interface
func (l *FileLoader) Load(target any) error {
	// Defaults go first so that fields absent from the file keep them
	if err := ApplyDefaults(target); err != nil {
		return errors.New(500, "failed to apply defaults: %v", err)
	}

	for _, key := range keys(reflect.TypeOf(target), "") {
		if err := l.viper.BindEnv(key); err != nil {
			return errors.New(500, "failed to bind env for %s: %v", key, err)
		}
	}

	if l.file != "" {
		l.viper.SetConfigFile(l.file)
	}
	if err := l.viper.ReadInConfig(); err != nil {
		// An explicitly named file must exist; a searched one may be absent when optional
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound) && l.optional && l.file == "":
		case errors.As(err, &notFound):
			return errors.New(404, "config file not found: %v", err)
		default:
			return errors.New(500, "config read error: %v", err)
		}
	}

	if err := l.viper.Unmarshal(target, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return errors.New(500, "config parse error: %v", err)
	}

	if l.validate != nil {
		if err := l.validate.Struct(target); err != nil {
			return errors.New(400, "config validation failed: %v", err)
		}
	}

	return nil
}

// Watch implements Loader interface
func (l *FileLoader) Watch(callback func()) error {
	l.viper.OnConfigChange(func(e fsnotify.Event) {
		if callback != nil {
			callback()
		}
	})
	l.viper.WatchConfig()
	return nil
}
