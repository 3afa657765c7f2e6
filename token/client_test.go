package token_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/jrsteele09/go-superset-kernel/permissions"
	"github.com/jrsteele09/go-superset-kernel/token"
	"github.com/jrsteele09/go-superset-kernel/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, opts ...upstream.Option) (*upstream.Server, *token.Client) {
	t.Helper()
	platform, err := upstream.New(opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(platform)
	t.Cleanup(srv.Close)
	return platform, token.New(srv.URL + "/")
}

func TestLoginRefreshCSRFAndMe(t *testing.T) {
	platform, client := setup(t)
	ctx := context.Background()

	res, err := client.Login(ctx, "admin", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)

	csrf, err := client.FetchCSRF(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.NotEmpty(t, csrf)

	identity, err := client.Me(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", identity.Username)
	assert.Equal(t, "1", identity.ID)
	assert.Equal(t, "Admin User", identity.DisplayName)
	assert.Equal(t, []permissions.RoleName{permissions.RoleAdmin}, identity.Roles)
	assert.Equal(t, 1, platform.Hits(http.MethodGet, upstream.RouteMeRoles))

	access, err := client.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access)

	require.NoError(t, client.Logout(ctx, access))
}

func TestMeUsesEmbeddedRoles(t *testing.T) {
	platform, client := setup(t, upstream.WithRolesInMe(true))
	ctx := context.Background()

	res, err := client.Login(ctx, "alpha", "alpha")
	require.NoError(t, err)
	identity, err := client.Me(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []permissions.RoleName{permissions.RoleAlpha}, identity.Roles)
	assert.Equal(t, 0, platform.Hits(http.MethodGet, upstream.RouteMeRoles))
}

func TestLoginErrors(t *testing.T) {
	platform, client := setup(t)
	ctx := context.Background()

	_, err := client.Login(ctx, "admin", "wrong")
	require.ErrorIs(t, err, errors.ErrInvalidCredentials)
	assert.True(t, errors.Terminal(err))

	platform.FailNext(http.MethodPost, upstream.RouteLogin, http.StatusServiceUnavailable)
	_, err = client.Login(ctx, "admin", "admin")
	require.ErrorIs(t, err, errors.ErrUnreachable)
	assert.False(t, errors.Is(err, errors.ErrInvalidCredentials))
}

func TestLoginUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := token.New(url).Login(context.Background(), "admin", "admin")
	require.ErrorIs(t, err, errors.ErrUnreachable)
	require.ErrorIs(t, err, errors.ErrNetwork)
}

func TestRefreshRejected(t *testing.T) {
	platform, client := setup(t)
	ctx := context.Background()

	res, err := client.Login(ctx, "gamma", "gamma")
	require.NoError(t, err)
	platform.RevokeRefreshTokens()

	_, err = client.Refresh(ctx, res.RefreshToken)
	require.ErrorIs(t, err, errors.ErrTokenExpired)

	_, err = client.Refresh(ctx, "")
	require.ErrorIs(t, err, errors.ErrTokenExpired)
}

func TestFetchCSRFFailure(t *testing.T) {
	platform, client := setup(t)
	ctx := context.Background()

	res, err := client.Login(ctx, "gamma", "gamma")
	require.NoError(t, err)
	platform.Disable(http.MethodGet, upstream.RouteCSRF)

	_, err = client.FetchCSRF(ctx, res.AccessToken)
	require.ErrorIs(t, err, errors.ErrEndpointNotFound)
}
