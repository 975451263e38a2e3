package redis

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kochabx/kais/log"
)

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	var buf bytes.Buffer
	cfg := Single(mr.Addr())
	cfg.Debug = true

	client, err := New(context.Background(), cfg, WithLogger(log.NewWriter(&buf)))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.UniversalClient().Set(ctx, "k", "v", time.Minute).Err())
	got, err := client.UniversalClient().Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	_, err = client.UniversalClient().Get(ctx, "missing").Result()
	assert.ErrorIs(t, err, ErrNil)

	assert.Contains(t, buf.String(), "redis client created")
	assert.Contains(t, buf.String(), `"cmd":"set"`)
	assert.NotContains(t, buf.String(), `"v"`, "command arguments must not be logged")
}

func TestNewUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := Single(addr)
	cfg.DialTimeout = 200 * time.Millisecond
	cfg.MaxRetries = -1

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(context.Background(), &Config{})
	assert.ErrorIs(t, err, ErrEmptyAddrs)

	_, err = New(context.Background(), &Config{Addrs: []string{"x:1"}, ReadTimeout: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidTimeout)

	assert.Equal(t, "single", Single("a:1").mode())
	assert.Equal(t, "cluster", (&Config{Addrs: []string{"a:1", "b:1"}}).mode())
	assert.Equal(t, "sentinel", (&Config{Addrs: []string{"a:1"}, MasterName: "m"}).mode())
}
