package credential

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kochabx/kais/auth"
	"github.com/kochabx/kais/config"
	"github.com/kochabx/kais/errors"
	"github.com/kochabx/kais/log"
	"github.com/kochabx/kais/store/redis"
)

// plainKV hides the Batcher implementation of the wrapped KV
type plainKV struct{ KV }

func token(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func backends(t *testing.T) map[string]KV {
	mr := miniredis.RunT(t)
	client, err := redis.New(context.Background(), redis.Single(mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return map[string]KV{
		"memory":     NewMemoryKV(),
		"file":       NewFileKV(filepath.Join(t.TempDir(), "nested", "credentials.json")),
		"redis":      NewRedisKV(client, time.Hour),
		"sequential": plainKV{NewMemoryKV()},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(kv)

			got, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, got, "empty store loads as absent")

			in := &auth.Credentials{
				AccessToken:  token(t, exp),
				RefreshToken: "rt-1",
				Profile:      &auth.UserProfile{ID: "u1", Name: "Ana", Email: "ana@kais.io", Role: auth.RoleClient},
			}
			require.NoError(t, s.Save(ctx, in))

			got, err = s.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, in.AccessToken, got.AccessToken)
			assert.Equal(t, "rt-1", got.RefreshToken)
			assert.Equal(t, *in.Profile, *got.Profile)
			assert.True(t, exp.Equal(got.Expiry), "expiry is recovered from the token")

			in.RefreshToken = ""
			require.NoError(t, s.Save(ctx, in))
			got, err = s.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got.RefreshToken, "an empty refresh token removes the stored one")

			require.NoError(t, s.Clear(ctx))
			require.NoError(t, s.Clear(ctx), "clearing twice is harmless")
			got, err = s.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStoreSaveRejectsIncomplete(t *testing.T) {
	s := New(NewMemoryKV())
	ctx := context.Background()

	err := s.Save(ctx, &auth.Credentials{Profile: &auth.UserProfile{ID: "1", Role: auth.RoleAdmin}})
	assert.Equal(t, 400, errors.Code(err))

	err = s.Save(ctx, &auth.Credentials{AccessToken: "a"})
	assert.Equal(t, 400, errors.Code(err))

	assert.Error(t, s.Save(ctx, nil))
}

func TestStoreCorruptRecords(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		data map[string]string
	}{
		{"token without profile", map[string]string{"kais_access_token": "a"}},
		{"unparsable profile", map[string]string{"kais_access_token": "a", "kais_auth_profile": "{"}},
		{"unknown role", map[string]string{"kais_access_token": "a", "kais_auth_profile": `{"id":"1","role":"root"}`}},
		{"profile without token", map[string]string{"kais_auth_profile": `{"id":"1","role":"admin"}`}},
		{"corrupt legacy blob", map[string]string{"kais_auth": "not json"}},
		{"legacy blob without token", map[string]string{"kais_auth": `{"id":"1","role":"admin"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := NewMemoryKV()
			for k, v := range tt.data {
				require.NoError(t, kv.Set(ctx, k, v))
			}

			got, err := New(kv, WithLogger(log.NewWriter(os.Stderr))).Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStoreLegacy(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, "kais_auth", `{"_id":"u9","name":"Bo","email":"bo@kais.io","role":"delivery","token":"legacy-token"}`))

	s := New(kv)
	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "legacy-token", got.AccessToken)
	assert.False(t, got.Renewable(), "legacy sessions carry no refresh token")
	assert.Equal(t, "u9", got.Profile.ID)
	assert.Equal(t, "/delivery", got.Profile.HomePath())

	got.RefreshToken = "rt"
	require.NoError(t, s.Save(ctx, got))
	_, ok, _ := kv.Get(ctx, "kais_auth")
	assert.False(t, ok, "saving migrates away from the legacy record")
}

func TestStorePrefix(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := New(kv, WithPrefix("{kais}_"))

	require.NoError(t, s.Save(ctx, &auth.Credentials{
		AccessToken: "a",
		Profile:     &auth.UserProfile{ID: "1", Role: auth.RoleAdmin},
	}))

	v, ok, err := kv.Get(ctx, "{kais}_access_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestFileKV(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")
	kv := NewFileKV(path)

	require.NoError(t, kv.Set(ctx, "k", "v"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	_, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err, "a corrupt file reads as empty")
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", "v2"))
	v, ok, err := NewFileKV(path).Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestRedisKVTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := redis.New(ctx, redis.Single(mr.Addr()))
	require.NoError(t, err)
	defer client.Close()

	kv := NewRedisKV(client, time.Minute)
	require.NoError(t, kv.Set(ctx, "k", "v"))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, closer, err := Open(ctx, config.StoreConfig{Backend: "memory", KeyPrefix: "kais_"}, log.G)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.NoError(t, closer.Close())

	s, _, err = Open(ctx, config.StoreConfig{Backend: "file", Path: filepath.Join(t.TempDir(), "c.json")}, log.G)
	require.NoError(t, err)
	_, ok := s.kv.(*FileKV)
	assert.True(t, ok)

	mr := miniredis.RunT(t)
	s, closer, err = Open(ctx, config.StoreConfig{Backend: "redis", Redis: redis.Config{Addrs: []string{mr.Addr()}}}, log.G)
	require.NoError(t, err)
	_, ok = s.kv.(*RedisKV)
	assert.True(t, ok)
	assert.NoError(t, closer.Close())

	_, _, err = Open(ctx, config.StoreConfig{Backend: "floppy"}, log.G)
	assert.Equal(t, 400, errors.Code(err))
}
