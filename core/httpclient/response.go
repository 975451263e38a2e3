package httpclient

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kochabx/kais/errors"
)

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Method     string
	URL        string
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Unauthorized reports the authorization-failure status the session core reacts to
func (r *Response) Unauthorized() bool {
	return r.StatusCode == http.StatusUnauthorized
}

// Decode unmarshals the JSON body into v
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return errors.New(502, "empty response body from %s %s", r.Method, r.URL)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrap(err, 502, "decode %s %s response", r.Method, r.URL)
	}
	return nil
}

// Message extracts the backend's error message from a {"message": "..."} or
// {"error": "..."} envelope, falling back to the raw body or status text
func (r *Response) Message() string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(r.Body, &envelope) == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	if body := strings.TrimSpace(string(r.Body)); body != "" && len(body) <= 256 {
		return body
	}
	return http.StatusText(r.StatusCode)
}

// Err returns nil for 2xx and a structured error carrying status and message otherwise
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	err := errors.New(r.StatusCode, "%s", r.Message()).WithMetadata(map[string]string{
		"method": r.Method,
		"url":    r.URL,
	})
	if r.Unauthorized() {
		err = err.WithReason(errors.ReasonUnauthorized)
	}
	return err
}
