package httpclient

import "net/http"

// Common Content-Types
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

// Headers set by the client
const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderAccept        = "Accept"
	HeaderRequestID     = "X-Request-ID"
)

// Methods
const (
	MethodGet    = http.MethodGet
	MethodPost   = http.MethodPost
	MethodPut    = http.MethodPut
	MethodPatch  = http.MethodPatch
	MethodDelete = http.MethodDelete
)

// Doer is what the session core needs from a transport
type Doer interface {
	Request(method, url string, body any, opts ...func(*RequestOption)) (*Response, error)
}

var _ Doer = (*Client)(nil)
