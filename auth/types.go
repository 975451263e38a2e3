package auth

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Role 用户角色，决定登录后的首页
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleClient   Role = "client"
	RoleDelivery Role = "delivery"
)

// Valid 判断是否为已知角色
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient, RoleDelivery:
		return true
	}
	return false
}

// UserProfile 当前登录用户
type UserProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// UnmarshalJSON 兼容后端返回的 "_id" 字段
func (p *UserProfile) UnmarshalJSON(data []byte) error {
	type alias UserProfile
	aux := struct {
		*alias
		ObjectID string `json:"_id"`
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = aux.ObjectID
	}
	return nil
}

// Valid 判断资料是否完整：必须有可识别的用户和已知角色
func (p *UserProfile) Valid() bool {
	return p != nil && (p.ID != "" || p.Email != "") && p.Role.Valid()
}

// HomePath 按角色返回首页路径
func (p *UserProfile) HomePath() string {
	if p == nil || !p.Role.Valid() {
		return "/login"
	}
	return "/" + string(p.Role)
}

// Lifetime 令牌有效期，兼容数字秒数（3600）和时长字符串（"1h"、"3600"）
type Lifetime time.Duration

// UnmarshalJSON 解析有效期
func (l *Lifetime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*l = 0
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		*l = Lifetime(time.Duration(n * float64(time.Second)))
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*l = Lifetime(d)
	return nil
}

// Grant 登录或刷新接口的响应
type Grant struct {
	AccessToken      string       `json:"accessToken"`
	RefreshToken     string       `json:"refreshToken"`
	ExpiresInSeconds int64        `json:"expiresInSeconds"`
	ExpiresIn        Lifetime     `json:"expiresIn"`
	User             *UserProfile `json:"user,omitempty"`
}

// Lifetime 返回访问令牌有效期，未知时返回 0
func (g *Grant) Lifetime() time.Duration {
	if g.ExpiresInSeconds > 0 {
		return time.Duration(g.ExpiresInSeconds) * time.Second
	}
	if g.ExpiresIn > 0 {
		return time.Duration(g.ExpiresIn)
	}
	return 0
}

// Credentials 会话凭据，访问令牌与过期时间总是成对更新
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time // 零值表示过期时间未知
	Profile      *UserProfile
}

// NewCredentials 由 Grant 构建凭据。
// 过期时间优先使用 Grant 给出的有效期，其次是访问令牌的 exp 声明。
func NewCredentials(g *Grant, profile *UserProfile, now time.Time) *Credentials {
	c := &Credentials{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		Profile:      profile,
	}
	if lifetime := g.Lifetime(); lifetime > 0 {
		c.Expiry = now.Add(lifetime)
	} else {
		c.Expiry = ExpiryFromToken(g.AccessToken)
	}
	return c
}

// Expired 判断访问令牌是否已过期，过期时间未知时视为未过期
func (c *Credentials) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

// Renewable 判断是否可以续期
func (c *Credentials) Renewable() bool {
	return c.RefreshToken != ""
}

// Clone 返回副本，Profile 一并复制
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return nil
	}
	out := *c
	if c.Profile != nil {
		p := *c.Profile
		out.Profile = &p
	}
	return &out
}
