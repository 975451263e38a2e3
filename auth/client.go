package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kochabx/kais/core/httpclient"
	"github.com/kochabx/kais/errors"
	"github.com/kochabx/kais/log"
)

// DefaultPrefix 后端接口前缀
const DefaultPrefix = "/api/v1"

// Backend 会话核心依赖的认证接口
type Backend interface {
	Login(ctx context.Context, email, password string) (*Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*Grant, error)
	Me(ctx context.Context, accessToken string) (*UserProfile, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

// Client 认证接口客户端
type Client struct {
	http   httpclient.Doer
	prefix string
	logger *log.Logger
}

var _ Backend = (*Client)(nil)

// ClientOption 客户端选项
type ClientOption func(*Client)

// WithPrefix 设置接口前缀
func WithPrefix(prefix string) ClientOption {
	return func(c *Client) {
		c.prefix = "/" + strings.Trim(prefix, "/")
		if c.prefix == "/" {
			c.prefix = ""
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient 创建认证接口客户端
func NewClient(doer httpclient.Doer, opts ...ClientOption) *Client {
	c := &Client{
		http:   doer,
		prefix: DefaultPrefix,
		logger: log.G,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path 拼接接口前缀
func (c *Client) Path(p string) string {
	return c.prefix + "/" + strings.TrimLeft(p, "/")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Login 用邮箱和密码换取令牌
func (c *Client) Login(ctx context.Context, email, password string) (*Grant, error) {
	resp, err := c.http.Request(httpclient.MethodPost, c.Path("auth/login"),
		loginRequest{Email: email, Password: password},
		httpclient.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.OK():
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized:
		return nil, errors.InvalidCredentials("%s", resp.Message()).WithCause(resp.Err())
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, errors.TransientNetworkFailure("login: %s", resp.Message()).WithCause(resp.Err())
	default:
		return nil, resp.Err()
	}

	grant, err := decodeGrant(resp)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Bool("user", grant.User != nil).Dur("lifetime", grant.Lifetime()).Msg("login granted")
	return grant, nil
}

// Refresh 用刷新令牌换取新令牌。400/401/403 表示刷新令牌已失效。
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	resp, err := c.http.Request(httpclient.MethodPost, c.Path("auth/refresh-token"),
		refreshRequest{RefreshToken: refreshToken},
		httpclient.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.OK():
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return nil, errors.SessionExpired("refresh rejected: %s", resp.Message()).WithCause(resp.Err())
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, errors.TransientNetworkFailure("refresh: %s", resp.Message()).WithCause(resp.Err())
	default:
		return nil, resp.Err()
	}

	return decodeGrant(resp)
}

// Me 获取当前用户，兼容裸对象和 {"user": {...}} 两种响应
func (c *Client) Me(ctx context.Context, accessToken string) (*UserProfile, error) {
	resp, err := c.http.Request(httpclient.MethodGet, c.Path("auth/me"), nil,
		httpclient.WithContext(ctx), httpclient.WithBearer(accessToken))
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var wrapped struct {
		User *UserProfile `json:"user"`
	}
	if err := resp.Decode(&wrapped); err != nil {
		return nil, err
	}
	profile := wrapped.User
	if profile == nil {
		profile = new(UserProfile)
		if err := json.Unmarshal(resp.Body, profile); err != nil {
			return nil, errors.Wrap(err, 502, "decode profile")
		}
	}
	if !profile.Valid() {
		return nil, errors.New(502, "backend returned an incomplete profile")
	}
	return profile, nil
}

// Logout 通知后端注销，失败不影响本地状态
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	resp, err := c.http.Request(httpclient.MethodPost, c.Path("auth/logout"),
		refreshRequest{RefreshToken: refreshToken},
		httpclient.WithContext(ctx), httpclient.WithBearer(accessToken))
	if err != nil {
		return err
	}
	return resp.Err()
}

func decodeGrant(resp *httpclient.Response) (*Grant, error) {
	grant := new(Grant)
	if err := resp.Decode(grant); err != nil {
		return nil, err
	}
	if grant.AccessToken == "" {
		return nil, errors.New(502, "%s %s: grant without access token", resp.Method, resp.URL)
	}
	if grant.User != nil && !grant.User.Valid() {
		grant.User = nil
	}
	return grant, nil
}
