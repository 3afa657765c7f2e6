package session

import (
	"context"

	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// AccessToken returns the current bearer without refreshing.
func (m *Manager) AccessToken() (string, uint64, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.state == Anonymous || m.cred.AccessToken == "" {
		return "", m.generation, errors.ErrUnauthenticated
	}
	return m.cred.AccessToken, m.generation, nil
}

// EnsureValidToken returns a bearer that is not about to expire, refreshing
// first when needed.
func (m *Manager) EnsureValidToken(ctx context.Context) (string, error) {
	m.lock.RLock()
	state, cred := m.state, m.cred
	m.lock.RUnlock()

	if state == Anonymous || cred.AccessToken == "" {
		return "", errors.ErrUnauthenticated
	}
	if !cred.ExpiresWithin(m.nowFunc(), m.refreshLeeway) {
		return cred.AccessToken, nil
	}
	return m.RefreshFrom(ctx, cred.AccessToken)
}

// Refresh renews the current access token.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.lock.RLock()
	current := m.cred.AccessToken
	m.lock.RUnlock()
	return m.RefreshFrom(ctx, current)
}

// RefreshFrom renews the access token that a caller saw rejected. Concurrent
// callers share one upstream refresh. A caller whose stale token has already
// been replaced receives the current token without another refresh.
func (m *Manager) RefreshFrom(ctx context.Context, stale string) (string, error) {
	m.lock.RLock()
	state, current, gen := m.state, m.cred.AccessToken, m.generation
	m.lock.RUnlock()

	if state == Anonymous || current == "" {
		return "", errors.ErrUnauthenticated
	}
	if stale != current {
		return current, nil
	}

	ch := m.flight.DoChan(refreshFlightKey, func() (any, error) {
		return m.doRefresh(ctx, gen)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// doRefresh runs detached from the first caller's cancellation so one
// caller giving up does not fail the others sharing the flight.
func (m *Manager) doRefresh(ctx context.Context, gen uint64) (string, error) {
	m.lock.Lock()
	if m.generation != gen || m.state == Anonymous {
		current := m.cred.AccessToken
		ok := m.state != Anonymous && current != ""
		m.lock.Unlock()
		if ok {
			return current, nil
		}
		return "", errors.ErrUnauthenticated
	}
	refreshToken := m.cred.RefreshToken
	m.state = Refreshing
	m.lock.Unlock()

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
	defer cancel()
	access, err := m.tokens.Refresh(rctx, refreshToken)

	m.lock.Lock()
	if m.generation != gen {
		m.lock.Unlock()
		return "", pkgerrors.Wrap(errors.ErrUnauthenticated, "[Manager.Refresh] session ended during refresh")
	}
	if err != nil {
		m.lock.Unlock()
		m.metrics.Refresh("failure")
		m.Expire(err)
		return "", pkgerrors.Wrap(errors.Join(errors.ErrUnreachable, err), "[Manager.Refresh]")
	}
	m.cred = m.cred.WithAccessToken(access)
	m.state = Authenticated
	m.lock.Unlock()

	if err := m.store.UpdateAccessToken(access); err != nil {
		m.logger.Error().Err(err).Msg("failed to persist refreshed token")
	}
	m.metrics.Refresh("success")
	m.logger.Debug().Msg("access token refreshed")
	return access, nil
}

type tokenSource struct {
	ctx context.Context
	m   *Manager
}

// TokenSource adapts the manager to oauth2.TokenSource for HTTP clients that
// attach the bearer themselves.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	if _, err := ts.m.EnsureValidToken(ts.ctx); err != nil {
		return nil, err
	}
	ts.m.lock.RLock()
	defer ts.m.lock.RUnlock()
	return ts.m.cred.Token(), nil
}
