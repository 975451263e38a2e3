// Package authtest provides a fake Kais backend for tests.
package authtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kochabx/kais/auth"
)

var signingKey = []byte("authtest")

// Seen is a resource request observed by the server.
type Seen struct {
	Method    string
	Path      string
	Token     string
	RequestID string
	Body      string
}

type account struct {
	password string
	profile  auth.UserProfile
}

// Server is an in-memory backend implementing the auth endpoints and an
// authenticated echo resource under /api/v1/resource/.
type Server struct {
	*httptest.Server

	// Lifetime of issued access tokens, reported as expiresIn seconds.
	Lifetime time.Duration
	// OmitLifetime leaves expiresIn out of grants so clients fall back to the exp claim.
	OmitLifetime bool
	// RotateRefresh issues a new refresh token on every refresh.
	RotateRefresh bool
	// OmitUser leaves the user out of grants so clients have to ask /auth/me.
	OmitUser bool
	// FailMe answers /auth/me with 503.
	FailMe bool

	mu       sync.Mutex
	accounts map[string]account
	access   map[string]auth.UserProfile
	refresh  map[string]auth.UserProfile
	seen     []Seen

	refreshGate  chan struct{}
	refreshFail  int
	refreshCalls atomic.Int32
	loginCalls   atomic.Int32
	logoutCalls  atomic.Int32
	meCalls      atomic.Int32
}

// NewServer starts a backend; callers Close it.
func NewServer() *Server {
	s := &Server{
		Lifetime:      time.Hour,
		RotateRefresh: true,
		accounts:      make(map[string]account),
		access:        make(map[string]auth.UserProfile),
		refresh:       make(map[string]auth.UserProfile),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", s.login)
	mux.HandleFunc("POST /api/v1/auth/refresh-token", s.refreshToken)
	mux.HandleFunc("GET /api/v1/auth/me", s.me)
	mux.HandleFunc("POST /api/v1/auth/logout", s.logout)
	mux.HandleFunc("/api/v1/resource/", s.resource)
	s.Server = httptest.NewServer(mux)
	return s
}

// AddUser registers an account.
func (s *Server) AddUser(email, password string, profile auth.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile.Email = email
	s.accounts[email] = account{password: password, profile: profile}
}

// Token issues an access token for profile with the given lifetime.
func (s *Server) Token(profile auth.UserProfile, lifetime time.Duration) string {
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   profile.ID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(lifetime)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	s.access[token] = profile
	s.mu.Unlock()
	return token
}

// RefreshToken issues a refresh token for profile.
func (s *Server) RefreshToken(profile auth.UserProfile) string {
	token := "rt-" + uuid.NewString()
	s.mu.Lock()
	s.refresh[token] = profile
	s.mu.Unlock()
	return token
}

// RevokeAccess makes every issued access token answer 401.
func (s *Server) RevokeAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.access)
}

// RevokeRefresh makes every issued refresh token be rejected.
func (s *Server) RevokeRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refresh)
}

// FailRefresh answers the next n refresh calls with 503.
func (s *Server) FailRefresh(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFail = n
}

// HoldRefresh blocks refresh calls until the returned release func is called.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.refreshGate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

func (s *Server) RefreshCalls() int { return int(s.refreshCalls.Load()) }
func (s *Server) LoginCalls() int   { return int(s.loginCalls.Load()) }
func (s *Server) LogoutCalls() int  { return int(s.logoutCalls.Load()) }
func (s *Server) MeCalls() int      { return int(s.meCalls.Load()) }

// Seen returns the resource requests observed so far.
func (s *Server) Seen() []Seen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Seen(nil), s.seen...)
}

func (s *Server) grant(profile auth.UserProfile, refreshToken string) map[string]any {
	out := map[string]any{
		"accessToken":  s.Token(profile, s.Lifetime),
		"refreshToken": refreshToken,
	}
	if !s.OmitUser {
		out["user"] = profile
	}
	if !s.OmitLifetime {
		out["expiresIn"] = int64(s.Lifetime / time.Second)
	}
	return out
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[req.Email]
	s.mu.Unlock()
	if !ok || acc.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
		return
	}

	writeJSON(w, http.StatusOK, s.grant(acc.profile, s.RefreshToken(acc.profile)))
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	gate := s.refreshGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}

	s.mu.Lock()
	if s.refreshFail > 0 {
		s.refreshFail--
		s.mu.Unlock()
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "try again"})
		return
	}
	profile, ok := s.refresh[req.RefreshToken]
	if ok && s.RotateRefresh {
		delete(s.refresh, req.RefreshToken)
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid refresh token"})
		return
	}

	next := req.RefreshToken
	if s.RotateRefresh {
		next = s.RefreshToken(profile)
	}
	writeJSON(w, http.StatusOK, s.grant(profile, next))
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	s.meCalls.Add(1)
	if s.FailMe {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "try again"})
		return
	}

	profile, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": profile})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.logoutCalls.Add(1)

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	delete(s.refresh, req.RefreshToken)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resource(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	s.seen = append(s.seen, Seen{
		Method:    r.Method,
		Path:      r.URL.Path,
		Token:     token,
		RequestID: r.Header.Get("X-Request-ID"),
		Body:      string(body),
	})
	s.mu.Unlock()

	profile, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return
	}
	if strings.HasSuffix(r.URL.Path, "/forbidden") {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "Forbidden"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"user":   profile.ID,
		"body":   string(body),
	})
}

func (s *Server) authenticate(r *http.Request) (auth.UserProfile, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.access[token]
	return profile, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
