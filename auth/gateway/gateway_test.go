package gateway

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kochabx/kais/auth"
	"github.com/kochabx/kais/auth/authtest"
	"github.com/kochabx/kais/auth/session"
	"github.com/kochabx/kais/core/httpclient"
	kerrors "github.com/kochabx/kais/errors"
	"github.com/kochabx/kais/log"
	"github.com/kochabx/kais/metrics"
)

const (
	email    = "ana@kais.io"
	password = "secret"
)

type harness struct {
	srv     *authtest.Server
	session *session.Manager
	gateway *Gateway
	metrics *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := authtest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser(email, password, auth.UserProfile{ID: "u1", Name: "Ana", Role: auth.RoleClient})

	logger := log.NewWriter(io.Discard)
	m := metrics.New()
	doer := httpclient.New(httpclient.WithBaseURL(srv.URL))
	sess := session.New(auth.NewClient(doer), session.WithLogger(logger), session.WithMetrics(m))
	t.Cleanup(sess.Close)

	_, err := sess.Login(context.Background(), email, password)
	require.NoError(t, err)

	return &harness{
		srv:     srv,
		session: sess,
		gateway: New(doer, sess, WithPrefix("/api/v1"), WithLogger(logger), WithMetrics(m)),
		metrics: m,
	}
}

// counter reads a single unlabelled series, or the sum of a labelled family
func counter(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestSendAttachesToken(t *testing.T) {
	h := newHarness(t)

	resp, err := h.gateway.Get(context.Background(), "/resource/items")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	seen := h.srv.Seen()
	require.Len(t, seen, 1)
	assert.Equal(t, "/api/v1/resource/items", seen[0].Path)
	assert.Equal(t, h.session.AccessToken(), seen[0].Token)
	assert.NotEmpty(t, seen[0].RequestID)
	assert.Equal(t, 0, h.srv.RefreshCalls())
}

func TestSendRenewsAndReplaysOnce(t *testing.T) {
	h := newHarness(t)
	before := h.session.AccessToken()
	h.srv.RevokeAccess()

	req := NewRequest("get", "/resource/items", nil)
	resp, err := h.gateway.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, req.Attempt)
	assert.Equal(t, 1, h.srv.RefreshCalls())

	seen := h.srv.Seen()
	require.Len(t, seen, 2)
	assert.Equal(t, before, seen[0].Token)
	assert.NotEqual(t, before, seen[1].Token)
	assert.Equal(t, h.session.AccessToken(), seen[1].Token)
	assert.Equal(t, req.ID(), seen[0].RequestID)
	assert.Equal(t, seen[0].RequestID, seen[1].RequestID, "replay keeps the request id")

	assert.Equal(t, float64(1), counter(t, h.metrics, "kais_gateway_replays_total"))
	assert.Equal(t, session.Active, h.session.State())
}

func TestSendRenewalFailure(t *testing.T) {
	h := newHarness(t)
	h.srv.RevokeAccess()
	h.srv.RevokeRefresh()

	resp, err := h.gateway.Get(context.Background(), "/resource/items")
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, kerrors.IsUnauthorized(err))
	assert.True(t, kerrors.IsSessionExpired(err), "renewal failure is the cause")
	assert.Equal(t, 401, kerrors.Code(err))

	assert.Equal(t, session.Anonymous, h.session.State())
	assert.Len(t, h.srv.Seen(), 1, "no replay after a failed renewal")
}

func TestSendAnonymous(t *testing.T) {
	h := newHarness(t)
	h.session.Logout(context.Background())

	_, err := h.gateway.Get(context.Background(), "/resource/items")
	require.Error(t, err)
	assert.True(t, kerrors.IsUnauthorized(err))
	assert.Equal(t, 0, h.srv.RefreshCalls())

	seen := h.srv.Seen()
	require.Len(t, seen, 1)
	assert.Empty(t, seen[0].Token)
}

type stubSession struct {
	token string
	renew atomic.Int32
	err   error
}

func (s *stubSession) AccessToken() string { return s.token }

func (s *stubSession) Renew(context.Context) error {
	s.renew.Add(1)
	return s.err
}

func TestSendDeniedAfterReplay(t *testing.T) {
	srv := authtest.NewServer()
	defer srv.Close()

	stub := &stubSession{token: "never-valid"}
	g := New(httpclient.New(httpclient.WithBaseURL(srv.URL)), stub,
		WithPrefix("/api/v1"), WithLogger(log.NewWriter(io.Discard)))

	_, err := g.Get(context.Background(), "/resource/items")
	require.Error(t, err)
	assert.True(t, kerrors.IsAuthorizationDenied(err))
	assert.Equal(t, int32(1), stub.renew.Load(), "renews at most once per request")
	assert.Len(t, srv.Seen(), 2, "one original and one replay")
}

func TestSendRejectsExhaustedAttempt(t *testing.T) {
	stub := &stubSession{token: "t"}
	g := New(httpclient.New(), stub, WithLogger(log.NewWriter(io.Discard)))

	req := NewRequest("GET", "/resource/items", nil)
	req.Attempt = 2
	_, err := g.Send(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 400, kerrors.Code(err))
}

func TestSendTransportError(t *testing.T) {
	srv := authtest.NewServer()
	url := srv.URL
	srv.Close()

	stub := &stubSession{token: "t"}
	g := New(httpclient.New(httpclient.WithBaseURL(url)), stub, WithLogger(log.NewWriter(io.Discard)))

	_, err := g.Get(context.Background(), "/api/v1/resource/items")
	require.Error(t, err)
	assert.True(t, kerrors.IsTransientNetworkFailure(err))
	assert.Equal(t, int32(0), stub.renew.Load())
}

func TestConcurrentUnauthorizedRenewOnce(t *testing.T) {
	h := newHarness(t)
	h.srv.RevokeAccess()
	release := h.srv.HoldRefresh()
	defer release()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := h.gateway.Get(context.Background(), "/resource/items")
			if err == nil && resp.StatusCode != 200 {
				err = resp.Err()
			}
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return h.srv.RefreshCalls() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, h.srv.RefreshCalls())
	assert.Equal(t, session.Active, h.session.State())
}

func TestSendReplaysReaderBody(t *testing.T) {
	h := newHarness(t)
	h.srv.RevokeAccess()

	resp, err := h.gateway.Post(context.Background(), "/resource/orders", strings.NewReader(`{"qty":2}`))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	seen := h.srv.Seen()
	require.Len(t, seen, 2)
	assert.Equal(t, `{"qty":2}`, seen[0].Body)
	assert.Equal(t, seen[0].Body, seen[1].Body)
}

func TestSendCustomHeaders(t *testing.T) {
	h := newHarness(t)

	req := NewRequest("DELETE", "resource/orders/7", nil)
	req.Header = map[string]string{"Authorization": "Bearer spoofed"}
	resp, err := h.gateway.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	seen := h.srv.Seen()
	require.Len(t, seen, 1)
	assert.Equal(t, "DELETE", seen[0].Method)
	assert.Equal(t, "/api/v1/resource/orders/7", seen[0].Path)
	assert.Equal(t, h.session.AccessToken(), seen[0].Token, "session token wins over caller headers")
}

type echo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	User   string `json:"user"`
	Body   string `json:"body"`
}

func TestDo(t *testing.T) {
	h := newHarness(t)

	out, err := Do[echo](context.Background(), h.gateway, NewRequest("put", "/resource/profile", map[string]string{"name": "Ana"}))
	require.NoError(t, err)
	assert.Equal(t, "PUT", out.Method)
	assert.Equal(t, "u1", out.User)
	assert.JSONEq(t, `{"name":"Ana"}`, out.Body)
}

func TestForbiddenIsNotRenewed(t *testing.T) {
	h := newHarness(t)

	resp, err := h.gateway.Get(context.Background(), "/resource/forbidden")
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, 0, h.srv.RefreshCalls())

	_, err = Do[echo](context.Background(), h.gateway, NewRequest("GET", "/resource/forbidden", nil))
	require.Error(t, err)
	assert.Equal(t, 403, kerrors.Code(err))
	assert.Equal(t, "Forbidden", kerrors.FromError(err).Message)

	var ke *kerrors.Error
	assert.True(t, errors.As(err, &ke))
}

func TestPathPrefix(t *testing.T) {
	g := New(nil, &stubSession{}, WithPrefix("/api/v1/"))
	tests := map[string]string{
		"/resource/x":        "/api/v1/resource/x",
		"resource/x":         "/api/v1/resource/x",
		"/api/v1/resource/x": "/api/v1/resource/x",
		"/api/v1":            "/api/v1",
		"/api/v10/x":         "/api/v1/api/v10/x",
		"https://other/x":    "https://other/x",
	}
	for in, want := range tests {
		assert.Equal(t, want, g.path(in), in)
	}
}

// afterFirst runs fn once, after the first response is received and before the
// gateway looks at it
type afterFirst struct {
	httpclient.Doer
	once sync.Once
	fn   func()
}

func (d *afterFirst) Request(method, url string, body any, opts ...func(*httpclient.RequestOption)) (*httpclient.Response, error) {
	resp, err := d.Doer.Request(method, url, body, opts...)
	d.once.Do(d.fn)
	return resp, err
}

func TestSendSessionEndedWhileInFlight(t *testing.T) {
	h := newHarness(t)
	h.srv.RevokeAccess()
	h.srv.RevokeRefresh()

	doer := &afterFirst{
		Doer: httpclient.New(httpclient.WithBaseURL(h.srv.URL)),
		fn: func() {
			// a concurrent request renews first and is rejected
			assert.Error(t, h.session.Renew(context.Background()))
		},
	}
	g := New(doer, h.session, WithPrefix("/api/v1"), WithLogger(log.NewWriter(io.Discard)))

	_, err := g.Get(context.Background(), "/resource/items")
	require.Error(t, err)
	assert.True(t, kerrors.IsUnauthorized(err))
	assert.False(t, kerrors.IsAuthorizationDenied(err))
	assert.True(t, kerrors.IsSessionExpired(err))

	assert.Equal(t, session.Anonymous, h.session.State())
	assert.Len(t, h.srv.Seen(), 1, "no replay without a credential")
	assert.Equal(t, 1, h.srv.RefreshCalls())
}

func TestConcurrentUnauthorizedRenewalFails(t *testing.T) {
	h := newHarness(t)
	h.srv.RevokeAccess()
	h.srv.RevokeRefresh()
	release := h.srv.HoldRefresh()
	defer release()

	const callers = 6
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.gateway.Get(context.Background(), "/resource/items")
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return len(h.srv.Seen()) == callers }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.srv.RefreshCalls() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()
	close(errs)

	for err := range errs {
		require.Error(t, err)
		assert.True(t, kerrors.IsUnauthorized(err))
		assert.False(t, kerrors.IsAuthorizationDenied(err))
	}
	assert.Equal(t, 1, h.srv.RefreshCalls())
	assert.Len(t, h.srv.Seen(), callers, "nobody replays")
	assert.Equal(t, session.Anonymous, h.session.State())
}
