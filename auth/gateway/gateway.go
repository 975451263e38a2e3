// Package gateway 代表会话发送后端请求：附加访问令牌，首次认证失败时续期会话并重放一次。
package gateway

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/kochabx/kais/core/httpclient"
	"github.com/kochabx/kais/errors"
	"github.com/kochabx/kais/log"
	"github.com/kochabx/kais/metrics"
)

// MaxReplays 续期后请求最多重放的次数
const MaxReplays = 1

// Session 网关依赖的会话接口
type Session interface {
	AccessToken() string
	Renew(ctx context.Context) error
}

// Request 一次逻辑请求，Attempt 为已重放次数
type Request struct {
	Method  string
	Path    string
	Body    any
	Header  map[string]string
	Attempt int

	id string
}

// NewRequest 创建请求，Body 可以是 nil、[]byte、io.Reader 或可 JSON 编码的值
func NewRequest(method, path string, body any) *Request {
	return &Request{Method: strings.ToUpper(method), Path: path, Body: body}
}

// ID 返回请求与其重放共用的 X-Request-ID
func (r *Request) ID() string {
	return r.id
}

// Gateway 请求网关
type Gateway struct {
	http    httpclient.Doer
	session Session
	prefix  string
	logger  *log.Logger
	metrics *metrics.Metrics
}

// Option 网关选项函数
type Option func(*Gateway)

// WithPrefix 设置路径前缀，已带前缀的路径不重复添加
func WithPrefix(prefix string) Option {
	return func(g *Gateway) {
		g.prefix = strings.TrimRight(prefix, "/")
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// New 创建网关
func New(doer httpclient.Doer, session Session, opts ...Option) *Gateway {
	g := &Gateway{
		http:    doer,
		session: session,
		logger:  log.G,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.Component("gateway")
	return g
}

// Send 发送请求。401 以外的状态码原样作为响应返回，参见 httpclient.Response.Err。
// 401 触发一次续期和一次重放：续期失败时返回原始的 Unauthorized 错误，续期错误作为 cause；
// 重放仍为 401 时返回 AuthorizationDenied。
func (g *Gateway) Send(ctx context.Context, req *Request) (*httpclient.Response, error) {
	if req.Attempt < 0 || req.Attempt > MaxReplays {
		return nil, errors.BadRequest("invalid attempt count %d", req.Attempt)
	}
	if err := req.buffer(); err != nil {
		return nil, err
	}
	if req.id == "" {
		req.id = uuid.NewString()
	}

	for {
		token := g.session.AccessToken()
		resp, err := g.do(ctx, req, token)
		if err != nil {
			g.metrics.Request(req.Method, metrics.OutcomeError)
			return nil, err
		}
		if !resp.Unauthorized() {
			g.metrics.Request(req.Method, outcome(req))
			return resp, nil
		}

		unauthorized := errors.FromError(resp.Err())
		if req.Attempt >= MaxReplays {
			g.metrics.Request(req.Method, metrics.OutcomeDenied)
			g.logger.Warn().Str("request_id", req.id).Str("method", req.Method).Str("path", req.Path).Msg("rejected after renewal")
			return nil, errors.AuthorizationDenied("%s %s rejected after renewal", req.Method, req.Path).WithCause(unauthorized)
		}

		// 令牌已被其他请求续期时直接重放；令牌为空时没有可重放的凭据，交给 Renew 判定
		if current := g.session.AccessToken(); current == "" || current == token {
			if err := g.session.Renew(ctx); err != nil {
				g.metrics.Request(req.Method, metrics.OutcomeFailure)
				g.logger.Debug().Err(err).Str("request_id", req.id).Msg("renewal failed, giving up")
				return nil, unauthorized.WithCause(err)
			}
		}

		req.Attempt++
		g.metrics.Replay()
		g.logger.Debug().Str("request_id", req.id).Str("method", req.Method).Str("path", req.Path).Msg("replaying with renewed token")
	}
}

func (g *Gateway) do(ctx context.Context, req *Request, token string) (*httpclient.Response, error) {
	opts := []func(*httpclient.RequestOption){
		httpclient.WithContext(ctx),
		httpclient.WithHeader(req.Header),
		httpclient.WithBearer(token),
		httpclient.WithHeader(map[string]string{httpclient.HeaderRequestID: req.id}),
	}
	return g.http.Request(req.Method, g.path(req.Path), req.Body, opts...)
}

func (g *Gateway) path(p string) string {
	if g.prefix == "" || strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if p == g.prefix || strings.HasPrefix(p, g.prefix+"/") {
		return p
	}
	return g.prefix + p
}

// buffer 读出一次性 body，重放时发送相同内容
func (r *Request) buffer() error {
	rd, ok := r.Body.(io.Reader)
	if !ok {
		return nil
	}
	if _, isBytes := rd.(*bytes.Reader); isBytes && r.Attempt > 0 {
		return nil
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		return errors.Wrap(err, 400, "read request body")
	}
	r.Body = data
	return nil
}

func outcome(req *Request) string {
	if req.Attempt > 0 {
		return metrics.OutcomeReplayed
	}
	return metrics.OutcomeSuccess
}

// Get 发送 GET 请求
func (g *Gateway) Get(ctx context.Context, path string) (*httpclient.Response, error) {
	return g.Send(ctx, NewRequest(httpclient.MethodGet, path, nil))
}

// Post 发送 POST 请求
func (g *Gateway) Post(ctx context.Context, path string, body any) (*httpclient.Response, error) {
	return g.Send(ctx, NewRequest(httpclient.MethodPost, path, body))
}

// Put 发送 PUT 请求
func (g *Gateway) Put(ctx context.Context, path string, body any) (*httpclient.Response, error) {
	return g.Send(ctx, NewRequest(httpclient.MethodPut, path, body))
}

// Patch 发送 PATCH 请求
func (g *Gateway) Patch(ctx context.Context, path string, body any) (*httpclient.Response, error) {
	return g.Send(ctx, NewRequest(httpclient.MethodPatch, path, body))
}

// Delete 发送 DELETE 请求
func (g *Gateway) Delete(ctx context.Context, path string) (*httpclient.Response, error) {
	return g.Send(ctx, NewRequest(httpclient.MethodDelete, path, nil))
}

// Do 发送请求并将 2xx 的 JSON 响应解码到 T，400 及以上的状态码转换为携带后端消息的错误
func Do[T any](ctx context.Context, g *Gateway, req *Request) (*T, error) {
	resp, err := g.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	out := new(T)
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return out, nil
	}
	if err := resp.Decode(out); err != nil {
		return nil, err
	}
	return out, nil
}
