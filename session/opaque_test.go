package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jrsteele09/go-superset-kernel/credentials"
	"github.com/jrsteele09/go-superset-kernel/credentials/repofake"
	"github.com/jrsteele09/go-superset-kernel/permissions"
	"github.com/jrsteele09/go-superset-kernel/session"
	"github.com/jrsteele09/go-superset-kernel/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// opaqueTokens answers with non-JWT tokens, the way some deployments do.
type opaqueTokens struct {
	lock      sync.Mutex
	refreshes int

	// when set, Login signals started and waits for release
	started chan struct{}
	release chan struct{}
}

var _ session.TokenClient = (*opaqueTokens)(nil)

func (o *opaqueTokens) Login(context.Context, string, string) (*token.LoginResult, error) {
	if o.release != nil {
		close(o.started)
		<-o.release
	}
	return &token.LoginResult{AccessToken: "abc", RefreshToken: "def"}, nil
}

func (o *opaqueTokens) Refresh(context.Context, string) (string, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.refreshes++
	return "abc2", nil
}

func (o *opaqueTokens) FetchCSRF(context.Context, string) (string, error) {
	return "", nil
}

func (o *opaqueTokens) Me(context.Context, string) (*credentials.Identity, error) {
	return &credentials.Identity{ID: "1", Username: "admin", Roles: []permissions.RoleName{permissions.RoleAdmin}}, nil
}

func (o *opaqueTokens) Logout(context.Context, string) error {
	return nil
}

func TestLoginWithOpaqueToken(t *testing.T) {
	tokens := &opaqueTokens{}
	m := session.NewManager(tokens, credentials.NewStore(repofake.NewFakeCredentialRepo()))

	identity, err := m.Login(context.Background(), "admin", "admin")
	require.NoError(t, err)
	assert.Equal(t, session.Authenticated, m.State())
	assert.True(t, identity.Capabilities().Has(permissions.CapManageUsers))

	// no exp claim, so no proactive refresh
	bearer, err := m.EnsureValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", bearer)
	assert.Zero(t, tokens.refreshes)

	bearer, err = m.RefreshFrom(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc2", bearer)
	assert.Equal(t, 1, tokens.refreshes)
}

func TestReloginKeepsPreviousSessionVisible(t *testing.T) {
	tokens := &opaqueTokens{}
	m := session.NewManager(tokens, credentials.NewStore(repofake.NewFakeCredentialRepo()))
	_, err := m.Login(context.Background(), "admin", "admin")
	require.NoError(t, err)

	tokens.started = make(chan struct{})
	tokens.release = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), "admin", "admin")
		done <- err
	}()
	<-tokens.started

	snap := m.Snapshot()
	assert.Equal(t, session.Authenticating, snap.State)
	assert.True(t, snap.Authenticated())
	assert.Equal(t, "abc", snap.Credential.AccessToken)

	close(tokens.release)
	require.NoError(t, <-done)
	assert.True(t, m.Snapshot().Authenticated())
}

func TestFirstLoginIsNotAuthenticatedUntilCommitted(t *testing.T) {
	tokens := &opaqueTokens{started: make(chan struct{}), release: make(chan struct{})}
	m := session.NewManager(tokens, credentials.NewStore(repofake.NewFakeCredentialRepo()))

	done := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), "admin", "admin")
		done <- err
	}()
	<-tokens.started

	snap := m.Snapshot()
	assert.Equal(t, session.Authenticating, snap.State)
	assert.False(t, snap.Authenticated())

	close(tokens.release)
	require.NoError(t, <-done)
	assert.True(t, m.Snapshot().Authenticated())
}
