// Package session owns the lifecycle of the signed-in session: login,
// refresh, restore and logout, and the single in-flight refresh shared by
// concurrent callers.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-superset-kernel/credentials"
	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/jrsteele09/go-superset-kernel/internal/metrics"
	"github.com/jrsteele09/go-superset-kernel/token"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	refreshFlightKey      = "refresh"
	defaultRefreshTimeout = 10 * time.Second
	defaultRefreshLeeway  = 30 * time.Second
	logoutTimeout         = 5 * time.Second
)

// TokenClient is the subset of the platform's security API the manager needs.
type TokenClient interface {
	Login(ctx context.Context, username, password string) (*token.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	FetchCSRF(ctx context.Context, accessToken string) (string, error)
	Me(ctx context.Context, accessToken string) (*credentials.Identity, error)
	Logout(ctx context.Context, accessToken string) error
}

var _ TokenClient = (*token.Client)(nil)

type Manager struct {
	tokens         TokenClient
	store          *credentials.Store
	logger         zerolog.Logger
	metrics        *metrics.Recorder
	nowFunc        func() time.Time
	refreshLeeway  time.Duration
	refreshTimeout time.Duration
	requireCSRF    bool

	lock       sync.RWMutex
	state      State
	cred       credentials.Credential
	identity   *credentials.Identity
	generation uint64
	hooks      []func()

	flight singleflight.Group
}

type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithRefreshLeeway refreshes proactively when the access token expires
// within d.
func WithRefreshLeeway(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshLeeway = d
	}
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

// WithRequireCSRF makes a failed csrf fetch fail the login.
func WithRequireCSRF(required bool) Option {
	return func(m *Manager) {
		m.requireCSRF = required
	}
}

func NewManager(tokens TokenClient, store *credentials.Store, opts ...Option) *Manager {
	m := &Manager{
		tokens:         tokens,
		store:          store,
		logger:         log.Logger,
		nowFunc:        time.Now,
		refreshLeeway:  defaultRefreshLeeway,
		refreshTimeout: defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "session").Logger()
	return m
}

// Snapshot returns a consistent copy of the session state.
func (m *Manager) Snapshot() Snapshot {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return Snapshot{State: m.state, Identity: m.identity, Credential: m.cred, Generation: m.generation}
}

func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

func (m *Manager) Identity() *credentials.Identity {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.identity
}

// CSRFToken returns the anti-forgery token, or "" when none was obtained.
func (m *Manager) CSRFToken() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.cred.CSRFToken
}

// Generation changes on every login, logout and forced expiry. Callers
// capture it before a suspension point and check IsCurrent afterwards.
func (m *Manager) Generation() uint64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.generation
}

func (m *Manager) IsCurrent(gen uint64) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.generation == gen && m.state != Anonymous
}

// OnLogout registers fn to run whenever the session ends.
func (m *Manager) OnLogout(fn func()) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Login authenticates, fetches the csrf token and identity, and persists the
// result once every step has succeeded. A failed login leaves the store and
// any previous session untouched.
func (m *Manager) Login(ctx context.Context, username, password string) (*credentials.Identity, error) {
	m.lock.Lock()
	previous := m.state
	startGen := m.generation
	m.state = Authenticating
	m.lock.Unlock()

	fail := func(err error) (*credentials.Identity, error) {
		m.lock.Lock()
		if m.generation == startGen && m.state == Authenticating {
			m.state = previous
			if previous == Refreshing {
				m.state = Authenticated
			}
		}
		m.lock.Unlock()
		m.logger.Warn().Err(err).Str("username", username).Msg("login failed")
		return nil, err
	}

	res, err := m.tokens.Login(ctx, username, password)
	if err != nil {
		return fail(pkgerrors.Wrap(err, "[Manager.Login]"))
	}

	csrf, err := m.tokens.FetchCSRF(ctx, res.AccessToken)
	if err != nil {
		if m.requireCSRF {
			return fail(pkgerrors.Wrap(err, "[Manager.Login] csrf token required"))
		}
		m.logger.Warn().Err(err).Msg("csrf token unavailable, continuing without it")
		csrf = ""
	}

	identity, err := m.tokens.Me(ctx, res.AccessToken)
	if err != nil {
		return fail(pkgerrors.Wrap(err, "[Manager.Login] fetch identity"))
	}

	cred := credentials.NewCredential(res.AccessToken, res.RefreshToken, csrf)

	m.lock.Lock()
	if m.generation != startGen {
		m.lock.Unlock()
		return nil, pkgerrors.Wrap(errors.ErrUnauthenticated, "[Manager.Login] session changed during login")
	}
	if err := m.store.Save(cred, identity); err != nil {
		m.lock.Unlock()
		return fail(pkgerrors.Wrap(err, "[Manager.Login] persist credentials"))
	}
	m.cred = cred
	m.identity = identity
	m.state = Authenticated
	m.generation++
	m.lock.Unlock()

	m.logger.Info().
		Str("username", identity.Username).
		Interface("roles", identity.Roles).
		Bool("csrf", csrf != "").
		Msg("logged in")
	return identity, nil
}

// Restore rehydrates a session persisted by a previous process. A token that
// is about to expire is refreshed before Restore returns.
func (m *Manager) Restore(ctx context.Context) (*credentials.Identity, error) {
	cred, identity, err := m.store.Load()
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, pkgerrors.Wrap(errors.ErrUnauthenticated, "[Manager.Restore] no stored session")
		}
		return nil, pkgerrors.Wrap(err, "[Manager.Restore]")
	}

	m.lock.Lock()
	m.cred = cred
	m.identity = identity
	m.state = Authenticated
	m.generation++
	m.lock.Unlock()

	if cred.ExpiresWithin(m.nowFunc(), m.refreshLeeway) {
		if _, err := m.RefreshFrom(ctx, cred.AccessToken); err != nil {
			return nil, pkgerrors.Wrap(err, "[Manager.Restore]")
		}
	}
	m.logger.Info().Str("username", identity.Username).Msg("session restored")
	return identity, nil
}

// Logout ends the session. The store is cleared and hooks have run before it
// returns; the upstream logout call is best-effort. Calling it repeatedly is safe.
func (m *Manager) Logout(ctx context.Context) error {
	bearer := m.reset()
	storeErr := m.store.Clear()

	if bearer != "" {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
		defer cancel()
		if err := m.tokens.Logout(lctx, bearer); err != nil {
			m.logger.Debug().Err(err).Msg("upstream logout failed")
		}
		m.logger.Info().Msg("logged out")
	}

	if storeErr != nil {
		return pkgerrors.Wrap(storeErr, "[Manager.Logout] clear store")
	}
	return nil
}

// Expire forces the session to Anonymous without contacting the platform.
func (m *Manager) Expire(cause error) {
	m.reset()
	if err := m.store.Clear(); err != nil {
		m.logger.Error().Err(err).Msg("failed to clear credential store")
	}
	m.logger.Warn().Err(cause).Msg("session expired")
}

// reset moves to Anonymous, bumps the generation and runs logout hooks. It
// returns the access token that was current.
func (m *Manager) reset() string {
	m.lock.Lock()
	bearer := m.cred.AccessToken
	m.cred = credentials.Credential{}
	m.identity = nil
	m.state = Anonymous
	m.generation++
	hooks := append([]func(){}, m.hooks...)
	m.lock.Unlock()

	for _, hook := range hooks {
		hook()
	}
	return bearer
}
