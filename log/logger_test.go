package log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kochabx/kais/errors"
	"github.com/kochabx/kais/log/desensitize"
	"github.com/kochabx/kais/log/writer"
)

func newMaskedLogger(buf *bytes.Buffer) *Logger {
	hook := desensitize.NewHook()
	hook.AddBuiltin(desensitize.BuiltinRules()...)
	return NewWriter(buf, WithDesensitize(hook))
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf)

	logger.Info().Str("state", "active").Msg("session restored")
	logger.Error().Err(errors.SessionExpired("refresh rejected")).Msg("renewal failed")

	out := buf.String()
	assert.Contains(t, out, `"state":"active"`)
	assert.Contains(t, out, "SESSION_EXPIRED")
}

func TestLogMasksTokens(t *testing.T) {
	var buf bytes.Buffer
	logger := newMaskedLogger(&buf)

	logger.Info().
		Str("accessToken", "eyJhbGciOiJIUzI1NiJ9.payload.sig").
		Str("refreshToken", "R1").
		Str("password", "hunter2").
		Msg("login response")
	logger.Debug().Str("authorization", "Bearer A1.B2.C3").Msg("outbound request")

	out := buf.String()
	assert.NotContains(t, out, "eyJhbGciOiJIUzI1NiJ9")
	assert.NotContains(t, out, `"R1"`)
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "A1.B2.C3")
	assert.Contains(t, out, `"accessToken":"******"`)
	assert.Contains(t, out, "Bearer ******")
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newMaskedLogger(&buf).Component("gateway")

	logger.Info().Str("refreshToken", "secret").Msg("hello")

	assert.Contains(t, buf.String(), `"component":"gateway"`)
	assert.NotContains(t, buf.String(), "secret")
}

func TestGlobalLog(t *testing.T) {
	prev := G
	defer SetGlobalLogger(prev)

	var buf bytes.Buffer
	SetGlobalLogger(NewWriter(&buf))
	SetGlobalLevel(zerolog.WarnLevel)

	Info().Msg("dropped")
	Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestFileLog(t *testing.T) {
	dir := t.TempDir()
	config := FileConfig{
		RotateMode: writer.RotateModeSize,
		Filepath:   dir,
		Filename:   "test",
		LumberjackConfig: LumberjackConfig{
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}

	logger, err := NewFile(config)
	require.NoError(t, err)

	logger.Info().Msg("test file log")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "test file log")
}

func TestNewFromConfig(t *testing.T) {
	logger, err := NewFromConfig(Config{Level: "debug", Console: true})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	assert.NotNil(t, logger.GetDesensitizeHook())

	_, err = NewFromConfig(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestSetLevelRaisesVerbosity(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, WithLevel(zerolog.InfoLevel))
	child := logger.Component("session")

	logger.Debug().Msg("before")
	assert.Empty(t, buf.String())

	logger.SetLevel(zerolog.DebugLevel)
	logger.Debug().Msg("root debug")
	child.Debug().Msg("child debug")
	assert.Contains(t, buf.String(), "root debug")
	assert.Contains(t, buf.String(), "child debug")
	assert.Equal(t, zerolog.DebugLevel, child.GetLevel())

	buf.Reset()
	logger.SetLevel(zerolog.WarnLevel)
	child.Info().Msg("quiet")
	assert.Empty(t, buf.String())
}

func TestWithCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, WithCaller())

	logger.Info().Msg("where")
	assert.Contains(t, buf.String(), `"caller":`)
	assert.Contains(t, buf.String(), "logger_test.go")
}
