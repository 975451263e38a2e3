// Package session 管理登录会话：登录、注销、启动恢复，以及访问令牌的单飞续期。
package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kochabx/kais/auth"
	"github.com/kochabx/kais/auth/clock"
	"github.com/kochabx/kais/auth/credential"
	"github.com/kochabx/kais/errors"
	"github.com/kochabx/kais/log"
	"github.com/kochabx/kais/metrics"
)

type subscriber struct {
	id uint64
	fn func(Event)
}

// Manager 会话管理器，会话状态只由它写入，读取通过访问方法
type Manager struct {
	backend       auth.Backend
	store         *credential.Store
	clock         *clock.Clock
	logger        *log.Logger
	metrics       *metrics.Metrics
	renewTimeout  time.Duration
	logoutTimeout time.Duration

	mu          sync.RWMutex
	state       State
	creds       *auth.Credentials
	gen         uint64 // 会话被替换或销毁时递增
	renewKey    string // 进行中续期的 singleflight key
	renewSeq    uint64
	subs        []subscriber
	nextSub     uint64
	pending     []Event
	dispatching bool

	flight    singleflight.Group
	persistMu sync.Mutex
	bg        sync.WaitGroup
}

// New 创建匿名会话
func New(backend auth.Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:       backend,
		logger:        log.G,
		renewTimeout:  DefaultRenewTimeout,
		logoutTimeout: DefaultLogoutTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	m.logger = m.logger.Component("session")
	return m
}

// State 返回当前状态
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Authenticated 是否持有访问令牌
func (m *Manager) Authenticated() bool {
	return m.State().Authenticated()
}

// AccessToken 返回请求应携带的令牌，未认证时为空
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.state.Authenticated() {
		return ""
	}
	return m.creds.AccessToken
}

// Identity 返回当前用户的副本，未认证时为 nil
func (m *Manager) Identity() *auth.UserProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.state.Authenticated() || m.creds.Profile == nil {
		return nil
	}
	p := *m.creds.Profile
	return &p
}

// Snapshot 返回会话的一致性视图
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{State: m.state, Scheduled: m.clock.Pending()}
	if m.state.Authenticated() {
		c := m.creds.Clone()
		s.Profile = c.Profile
		s.Expiry = c.Expiry
		s.Renewable = c.Renewable()
	}
	return s
}

// Subscribe 订阅状态变化。事件按顺序在锁外分发，回调中可以再调用 Manager。
// 返回的函数用于取消订阅。
func (m *Manager) Subscribe(fn func(Event)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscriber{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Login 使用邮箱和密码登录，仅在匿名状态下可用
func (m *Manager) Login(ctx context.Context, email, password string) (*auth.UserProfile, error) {
	m.mu.Lock()
	if m.state != Anonymous {
		state := m.state
		m.mu.Unlock()
		return nil, errors.Conflict("cannot log in while %s", state)
	}
	m.gen++
	gen := m.gen
	m.transitionLocked(Authenticating, nil)
	m.mu.Unlock()
	m.flush()

	grant, err := m.backend.Login(ctx, email, password)
	var profile *auth.UserProfile
	if err == nil {
		profile = grant.User
		if profile == nil {
			profile, err = m.backend.Me(ctx, grant.AccessToken)
		}
	}
	// 不会保留的令牌交给后端吊销
	discard := func() {
		if grant != nil {
			m.revoke(ctx, grant.AccessToken, grant.RefreshToken)
		}
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		discard()
		return nil, errors.SessionClosed("session ended while logging in")
	}
	if err != nil {
		discard()
		m.transitionLocked(Anonymous, err)
		m.mu.Unlock()
		m.flush()
		m.logger.Info().Err(err).Msg("login failed")
		return nil, err
	}

	creds := auth.NewCredentials(grant, profile, m.clock.Now())
	m.creds = creds
	m.transitionLocked(Active, nil)
	m.armLocked()
	m.mu.Unlock()
	m.flush()

	m.persist(ctx)
	m.logger.Info().Str("user", profile.ID).Str("role", string(profile.Role)).Time("expiry", creds.Expiry).Msg("logged in")

	p := *profile
	return &p, nil
}

// Renew 续期访问令牌。并发调用共享同一次后端请求及其结果。
// 请求与 ctx 解耦：ctx 先结束时调用方不再等待，续期仍会为其他调用方完成。
func (m *Manager) Renew(ctx context.Context) error {
	return m.renew(ctx, metrics.TriggerReactive)
}

func (m *Manager) renew(ctx context.Context, trigger string) error {
	m.mu.Lock()
	switch m.state {
	case Anonymous, Authenticating:
		m.mu.Unlock()
		return errors.SessionExpired("no session to renew")
	case Active:
		if !m.creds.Renewable() {
			err := errors.SessionExpired("session has no refresh token")
			m.teardownLocked(err)
			m.mu.Unlock()
			m.flush()
			m.persist(ctx)
			m.metrics.Renewal(trigger, metrics.OutcomeFailure, 0)
			m.logger.Info().Str("trigger", trigger).Msg("session cannot be renewed, signed out")
			return err
		}
		m.renewSeq++
		m.renewKey = "renew-" + strconv.FormatUint(m.renewSeq, 10)
		m.transitionLocked(Renewing, nil)
	}

	gen, key := m.gen, m.renewKey
	refresh, profile := m.creds.RefreshToken, m.creds.Profile
	ch := m.flight.DoChan(key, func() (any, error) {
		return nil, m.doRenew(ctx, gen, refresh, profile, trigger)
	})
	m.mu.Unlock()
	m.flush()

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) doRenew(parent context.Context, gen uint64, refresh string, profile *auth.UserProfile, trigger string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), m.renewTimeout)
	defer cancel()

	start := time.Now()
	grant, err := m.backend.Refresh(ctx, refresh)
	elapsed := time.Since(start)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.metrics.Renewal(trigger, metrics.OutcomeDiscarded, elapsed)
		m.logger.Debug().Str("trigger", trigger).Msg("renewal result discarded, session changed")
		return errors.SessionClosed("session ended during renewal")
	}
	if err != nil {
		m.teardownLocked(err)
		m.mu.Unlock()
		m.flush()
		m.persist(ctx)
		m.metrics.Renewal(trigger, metrics.OutcomeFailure, elapsed)
		m.logger.Warn().Err(err).Str("trigger", trigger).Msg("renewal failed, signed out")
		return err
	}

	if grant.User != nil {
		profile = grant.User
	}
	creds := auth.NewCredentials(grant, profile, m.clock.Now())
	if creds.RefreshToken == "" {
		creds.RefreshToken = refresh
	}
	m.creds = creds
	m.transitionLocked(Active, nil)
	m.armLocked()
	m.mu.Unlock()
	m.flush()

	m.persist(ctx)
	m.metrics.Renewal(trigger, metrics.OutcomeSuccess, elapsed)
	m.logger.Debug().Str("trigger", trigger).Time("expiry", creds.Expiry).Dur("took", elapsed).Msg("session renewed")
	return nil
}

// Logout 立即结束本地会话，并在后台请求后端吊销刷新令牌。重复调用无副作用。
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	creds := m.creds
	m.teardownLocked(nil)
	m.mu.Unlock()
	m.flush()

	m.persist(ctx)

	if creds == nil {
		return
	}
	m.logger.Info().Str("user", creds.Profile.ID).Msg("logged out")
	m.revoke(ctx, creds.AccessToken, creds.RefreshToken)
}

// revoke 后台吊销令牌，不等待结果
func (m *Manager) revoke(ctx context.Context, access, refresh string) {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.logoutTimeout)
		defer cancel()
		if err := m.backend.Logout(ctx, access, refresh); err != nil {
			m.logger.Debug().Err(err).Msg("backend logout failed")
		}
	}()
}

// Restore 启动时恢复已存储的会话。会话先乐观地进入 Active，再向后端校验；
// 校验失败则尝试续期，续期失败则回到匿名状态。
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	creds, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	if creds == nil {
		return nil
	}

	m.mu.Lock()
	if m.state != Anonymous {
		state := m.state
		m.mu.Unlock()
		return errors.Conflict("cannot restore while %s", state)
	}
	m.gen++
	gen := m.gen
	m.creds = creds
	m.transitionLocked(Active, nil)
	expired := creds.Expired(m.clock.Now())
	if !expired {
		m.armLocked()
	}
	m.mu.Unlock()
	m.flush()

	m.logger.Info().Str("user", creds.Profile.ID).Bool("expired", expired).Msg("restored session")
	if expired {
		return m.renew(ctx, metrics.TriggerRestore)
	}

	profile, err := m.backend.Me(ctx, creds.AccessToken)
	if err != nil {
		m.logger.Info().Err(err).Msg("stored session not accepted, renewing")
		return m.renew(ctx, metrics.TriggerRestore)
	}

	m.mu.Lock()
	if m.gen == gen && m.state.Authenticated() {
		c := m.creds.Clone()
		c.Profile = profile
		m.creds = c
	}
	m.mu.Unlock()
	m.persist(ctx)
	return nil
}

// Close 停止续期定时器并等待后台请求结束
func (m *Manager) Close() {
	m.clock.Cancel()
	m.bg.Wait()
}

func (m *Manager) onDue() {
	if err := m.renew(context.Background(), metrics.TriggerProactive); err != nil {
		m.logger.Debug().Err(err).Msg("proactive renewal did not succeed")
	}
}

// armLocked 为当前凭据安排主动续期。
// 没有刷新令牌或过期时间未知的会话只做被动续期。
func (m *Manager) armLocked() {
	if !m.creds.Renewable() || m.creds.Expiry.IsZero() {
		m.clock.Cancel()
		return
	}
	d := m.clock.Schedule(m.creds.Expiry, m.onDue)
	m.logger.Debug().Dur("in", d).Msg("renewal scheduled")
}

func (m *Manager) teardownLocked(err error) {
	m.gen++
	m.creds = nil
	m.clock.Cancel()
	m.transitionLocked(Anonymous, err)
}

func (m *Manager) transitionLocked(to State, err error) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.pending = append(m.pending, Event{From: from, To: to, Err: err})
	m.metrics.Transition(from.String(), to.String())
}

// flush 分发排队的事件。同一时刻只有一个 goroutine 分发，期间入队的事件由它继续处理，保证顺序。
func (m *Manager) flush() {
	m.mu.Lock()
	if m.dispatching {
		m.mu.Unlock()
		return
	}
	m.dispatching = true
	for len(m.pending) > 0 {
		events := m.pending
		m.pending = nil
		subs := append([]subscriber(nil), m.subs...)
		m.mu.Unlock()

		for _, ev := range events {
			for _, s := range subs {
				s.fn(ev)
			}
		}

		m.mu.Lock()
	}
	m.dispatching = false
	m.mu.Unlock()
}

// persist 将当前会话写入存储。写入串行执行且总是写最新状态，较早的慢写入不会覆盖较新的状态。
func (m *Manager) persist(ctx context.Context) {
	if m.store == nil {
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.RLock()
	creds := m.creds
	m.mu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	var err error
	if creds == nil {
		err = m.store.Clear(ctx)
	} else {
		err = m.store.Save(ctx, creds)
	}
	if err != nil {
		m.logger.Error().Err(err).Bool("clear", creds == nil).Msg("credential store write failed")
	}
}
