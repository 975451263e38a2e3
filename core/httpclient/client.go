package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kochabx/kais/errors"
)

const (
	defaultBufferSize = 4096
	maxBufferSize     = 1024 * 1024 // 1MB

	// DefaultTimeout bounds every backend call
	DefaultTimeout = 10 * time.Second

	// DefaultMaxBodySize caps the response body read into memory
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// Client is a JSON HTTP client with pooled request options and encode buffers.
// Every response body is read fully and closed before Request returns.
type Client struct {
	client         *http.Client
	baseURL        string
	maxBodySize    int64
	requestOptPool sync.Pool
	bufferPool     sync.Pool
}

// Option configures the HTTP client
type Option func(*Client)

// WithClient sets a custom HTTP client
func WithClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithBaseURL resolves relative request paths against base
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithTimeout sets the overall timeout of a single call
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithMaxBodySize caps how many response bytes are read
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// New creates a new HTTP client
func New(opts ...Option) *Client {
	c := &Client{
		client:      &http.Client{Timeout: DefaultTimeout},
		maxBodySize: DefaultMaxBodySize,
		requestOptPool: sync.Pool{
			New: func() any {
				return &RequestOption{header: make(map[string]string, 8)}
			},
		},
		bufferPool: sync.Pool{
			New: func() any {
				return bytes.NewBuffer(make([]byte, 0, defaultBufferSize))
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RequestOption holds options for individual HTTP requests
type RequestOption struct {
	ctx      context.Context
	header   map[string]string
	response any
}

// WithContext sets a custom context for the request
func WithContext(ctx context.Context) func(*RequestOption) {
	return func(opt *RequestOption) {
		opt.ctx = ctx
	}
}

// WithHeader sets multiple headers for the request
func WithHeader(header map[string]string) func(*RequestOption) {
	return func(opt *RequestOption) {
		maps.Copy(opt.header, header)
	}
}

// WithBearer attaches an access token; an empty token attaches nothing
func WithBearer(token string) func(*RequestOption) {
	return func(opt *RequestOption) {
		if token != "" {
			opt.header[HeaderAuthorization] = "Bearer " + token
		}
	}
}

// WithResponse decodes a 2xx JSON body into response
func WithResponse(response any) func(*RequestOption) {
	return func(opt *RequestOption) {
		opt.response = response
	}
}

func (opt *RequestOption) reset() {
	opt.ctx = nil
	for k := range opt.header {
		delete(opt.header, k)
	}
	opt.header[HeaderContentType] = ContentTypeJSON
	opt.header[HeaderAccept] = ContentTypeJSON
	opt.response = nil
}

// Request sends an HTTP request with the specified method, URL and body.
//
// Non-2xx statuses are not errors here: they come back as a *Response so callers
// can inspect the status (see Response.Err). Errors are returned for requests that
// did not complete (TransientNetworkFailure) and for undecodable 2xx bodies.
func (c *Client) Request(method, url string, body any, opts ...func(*RequestOption)) (*Response, error) {
	opt := c.getRequestOption()
	defer c.putRequestOption(opt)

	for _, o := range opts {
		o(opt)
	}

	ctx := opt.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := c.createRequest(ctx, method, c.resolve(url), body)
	if err != nil {
		return nil, errors.Wrap(err, 400, "build request %s %s", method, url)
	}
	for k, v := range opt.header {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.TransientNetworkFailure("%s %s did not complete", method, url).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, errors.TransientNetworkFailure("%s %s: reading body", method, url).WithCause(err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Method:     method,
		URL:        url,
	}

	if opt.response != nil && out.OK() && len(data) > 0 {
		if err := json.Unmarshal(data, opt.response); err != nil {
			return out, errors.Wrap(err, 502, "decode %s %s response", method, url)
		}
	}

	return out, nil
}

func (c *Client) resolve(url string) string {
	if c.baseURL == "" || strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return c.baseURL + url
}

func (c *Client) getRequestOption() *RequestOption {
	opt := c.requestOptPool.Get().(*RequestOption)
	opt.reset()
	return opt
}

func (c *Client) putRequestOption(opt *RequestOption) {
	c.requestOptPool.Put(opt)
}

// createRequest creates an HTTP request with the appropriate body.
// []byte and io.Reader bodies are sent as is, anything else is JSON encoded.
func (c *Client) createRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	switch v := body.(type) {
	case nil:
		return http.NewRequestWithContext(ctx, method, url, nil)
	case []byte:
		return http.NewRequestWithContext(ctx, method, url, bytes.NewReader(v))
	case json.RawMessage:
		return http.NewRequestWithContext(ctx, method, url, bytes.NewReader(v))
	case io.Reader:
		return http.NewRequestWithContext(ctx, method, url, v)
	default:
		buf := c.getBuffer()
		defer c.putBuffer(buf)

		if err := json.NewEncoder(buf).Encode(v); err != nil {
			return nil, err
		}
		// The pooled buffer is reused once we return, so the request gets its own copy
		return http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bytes.Clone(buf.Bytes())))
	}
}

func (c *Client) getBuffer() *bytes.Buffer {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func (c *Client) putBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= maxBufferSize {
		c.bufferPool.Put(buf)
	}
}

// Get performs a GET request
func (c *Client) Get(url string, opts ...func(*RequestOption)) (*Response, error) {
	return c.Request(MethodGet, url, nil, opts...)
}

// Post performs a POST request with JSON body
func (c *Client) Post(url string, body any, opts ...func(*RequestOption)) (*Response, error) {
	return c.Request(MethodPost, url, body, opts...)
}

// Put performs a PUT request with JSON body
func (c *Client) Put(url string, body any, opts ...func(*RequestOption)) (*Response, error) {
	return c.Request(MethodPut, url, body, opts...)
}

// Delete performs a DELETE request
func (c *Client) Delete(url string, opts ...func(*RequestOption)) (*Response, error) {
	return c.Request(MethodDelete, url, nil, opts...)
}

// Patch performs a PATCH request with JSON body
func (c *Client) Patch(url string, body any, opts ...func(*RequestOption)) (*Response, error) {
	return c.Request(MethodPatch, url, body, opts...)
}
