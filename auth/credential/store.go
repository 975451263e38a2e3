// Package credential 持久化会话凭据
package credential

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kochabx/kais/auth"
	"github.com/kochabx/kais/errors"
	"github.com/kochabx/kais/log"
)

// 逻辑键名，实际键为 前缀 + 逻辑键名
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyProfile      = "auth_profile"

	// KeyLegacy 旧版本保存的合并记录：{...user, "token": "..."}
	KeyLegacy = "auth"

	DefaultPrefix = "kais_"
)

// Store 凭据存储
type Store struct {
	kv     KV
	prefix string
	logger *log.Logger
	mu     sync.Mutex // 串行化写入，保证令牌对不被交错覆盖
}

// Option 存储选项
type Option func(*Store)

// WithPrefix 设置键前缀
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New 创建凭据存储
func New(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		prefix: DefaultPrefix,
		logger: log.G,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

// Load 读取凭据。
// 没有记录、记录不完整或无法解析时返回 (nil, nil)，不会返回半有效的会话；
// 只有存储后端本身出错才返回 error。
func (s *Store) Load(ctx context.Context) (*auth.Credentials, error) {
	access, ok, err := s.kv.Get(ctx, s.key(KeyAccessToken))
	if err != nil {
		return nil, err
	}
	if !ok || access == "" {
		return s.loadLegacy(ctx)
	}

	raw, ok, err := s.kv.Get(ctx, s.key(KeyProfile))
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn().Msg("stored access token has no profile, ignoring")
		return nil, nil
	}

	profile := new(auth.UserProfile)
	if err := json.Unmarshal([]byte(raw), profile); err != nil {
		s.logger.Warn().Err(err).Msg("stored profile is corrupt, ignoring")
		return nil, nil
	}
	if !profile.Valid() {
		s.logger.Warn().Str("role", string(profile.Role)).Msg("stored profile is incomplete, ignoring")
		return nil, nil
	}

	refresh, _, err := s.kv.Get(ctx, s.key(KeyRefreshToken))
	if err != nil {
		return nil, err
	}

	return &auth.Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       auth.ExpiryFromToken(access),
		Profile:      profile,
	}, nil
}

// loadLegacy 读取旧版合并记录。没有刷新令牌，只能被动失效。
func (s *Store) loadLegacy(ctx context.Context) (*auth.Credentials, error) {
	raw, ok, err := s.kv.Get(ctx, s.key(KeyLegacy))
	if err != nil || !ok {
		return nil, err
	}

	profile := new(auth.UserProfile)
	var token struct {
		Token string `json:"token"`
	}
	if json.Unmarshal([]byte(raw), profile) != nil || json.Unmarshal([]byte(raw), &token) != nil {
		s.logger.Warn().Msg("legacy credentials are corrupt, ignoring")
		return nil, nil
	}
	if token.Token == "" || !profile.Valid() {
		s.logger.Warn().Msg("legacy credentials are incomplete, ignoring")
		return nil, nil
	}

	s.logger.Info().Str("user", profile.ID).Msg("loaded legacy credentials without refresh token")
	return &auth.Credentials{
		AccessToken: token.Token,
		Expiry:      auth.ExpiryFromToken(token.Token),
		Profile:     profile,
	}, nil
}

// Save 保存凭据，同时移除旧版记录
func (s *Store) Save(ctx context.Context, c *auth.Credentials) error {
	if c == nil || c.AccessToken == "" {
		return errors.BadRequest("credentials without access token")
	}
	if !c.Profile.Valid() {
		return errors.BadRequest("credentials without a valid profile")
	}

	profile, err := json.Marshal(c.Profile)
	if err != nil {
		return errors.Wrap(err, 500, "encode profile")
	}

	set := map[string]string{
		s.key(KeyProfile):     string(profile),
		s.key(KeyAccessToken): c.AccessToken,
	}
	del := []string{s.key(KeyLegacy)}
	if c.RefreshToken != "" {
		set[s.key(KeyRefreshToken)] = c.RefreshToken
	} else {
		del = append(del, s.key(KeyRefreshToken))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.kv.(Batcher); ok {
		return b.Batch(ctx, set, del)
	}

	if err := s.kv.Delete(ctx, del...); err != nil {
		return err
	}
	// 访问令牌最后写入，Load 以它判断记录是否存在
	for _, k := range []string{s.key(KeyRefreshToken), s.key(KeyProfile), s.key(KeyAccessToken)} {
		v, ok := set[k]
		if !ok {
			continue
		}
		if err := s.kv.Set(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Clear 删除全部凭据，包括旧版记录
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.kv.Delete(ctx,
		s.key(KeyAccessToken),
		s.key(KeyRefreshToken),
		s.key(KeyProfile),
		s.key(KeyLegacy),
	)
}
