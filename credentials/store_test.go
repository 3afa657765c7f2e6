package credentials_test

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-superset-kernel/credentials"
	"github.com/jrsteele09/go-superset-kernel/credentials/repofake"
	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/jrsteele09/go-superset-kernel/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func testIdentity() *credentials.Identity {
	return &credentials.Identity{
		ID:       "1",
		Username: "admin",
		Roles:    []permissions.RoleName{permissions.RoleAdmin},
	}
}

func TestNewCredentialReadsExpiry(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	cred := credentials.NewCredential(signedToken(t, exp), "refresh", "")

	assert.True(t, cred.ExpiresAt.Equal(exp))
	assert.False(t, cred.ExpiresWithin(time.Now(), time.Minute))
	assert.True(t, cred.ExpiresWithin(time.Now(), 11*time.Minute))

	opaque := credentials.NewCredential("not-a-jwt", "refresh", "")
	assert.True(t, opaque.ExpiresAt.IsZero())
	assert.False(t, opaque.ExpiresWithin(time.Now(), time.Hour))

	tok := cred.Token()
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, cred.AccessToken, tok.AccessToken)
}

func TestStoreRoundTripAndClear(t *testing.T) {
	repo := repofake.NewFakeCredentialRepo()
	store := credentials.NewStore(repo)

	_, _, err := store.Load()
	require.ErrorIs(t, err, errors.ErrNotFound)

	cred := credentials.NewCredential("access-1", "refresh-1", "csrf-1")
	require.NoError(t, store.Save(cred, testIdentity()))

	snapshot := repo.Snapshot()
	assert.Equal(t, "access-1", snapshot[credentials.KeyAccessToken])
	assert.Equal(t, "refresh-1", snapshot[credentials.KeyRefreshToken])
	assert.Equal(t, "csrf-1", snapshot[credentials.KeyCSRFToken])
	assert.Contains(t, snapshot[credentials.KeyUser], `"username":"admin"`)

	loaded, identity, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "access-1", loaded.AccessToken)
	assert.Equal(t, "csrf-1", loaded.CSRFToken)
	assert.Equal(t, []permissions.RoleName{permissions.RoleAdmin}, identity.Roles)

	require.NoError(t, store.UpdateAccessToken("access-2"))
	loaded, _, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "access-2", loaded.AccessToken)
	assert.Equal(t, "refresh-1", loaded.RefreshToken)

	require.NoError(t, store.Clear())
	assert.Empty(t, repo.Snapshot())
	require.NoError(t, store.Clear())
}

func TestStoreSaveWithoutCSRFDropsStaleValue(t *testing.T) {
	repo := repofake.NewFakeCredentialRepo()
	store := credentials.NewStore(repo)

	require.NoError(t, store.Save(credentials.NewCredential("a", "r", "old-csrf"), testIdentity()))
	require.NoError(t, store.Save(credentials.NewCredential("b", "r", ""), testIdentity()))

	assert.Empty(t, repo.Snapshot()[credentials.KeyCSRFToken])
	loaded, _, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded.CSRFToken)
}

func TestStoreFailedSaveKeepsPreviousCSRF(t *testing.T) {
	repo := repofake.NewFakeCredentialRepo()
	store := credentials.NewStore(repo)
	require.NoError(t, store.Save(credentials.NewCredential("a", "r", "old-csrf"), testIdentity()))

	repo.PutErr = stderrors.New("disk full")
	err := store.Save(credentials.NewCredential("b", "r", ""), testIdentity())
	require.ErrorIs(t, err, repo.PutErr)

	repo.PutErr = nil
	loaded, _, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", loaded.AccessToken)
	assert.Equal(t, "old-csrf", loaded.CSRFToken)
}

func TestStoreRejectsEmptyAccessToken(t *testing.T) {
	store := credentials.NewStore(repofake.NewFakeCredentialRepo())
	err := store.Save(credentials.Credential{}, testIdentity())
	require.ErrorIs(t, err, errors.ErrInvalidCredentials)
}

func TestStorePropagatesRepoFailure(t *testing.T) {
	repo := repofake.NewFakeCredentialRepo()
	repo.PutErr = stderrors.New("disk full")
	store := credentials.NewStore(repo)

	err := store.Save(credentials.NewCredential("a", "r", "c"), testIdentity())
	require.ErrorIs(t, err, repo.PutErr)
	assert.Empty(t, repo.Snapshot())
}

func TestIdentityCapabilities(t *testing.T) {
	var nilIdentity *credentials.Identity
	assert.Equal(t, 0, nilIdentity.Capabilities().Len())
	assert.True(t, testIdentity().Capabilities().Has(permissions.CapManageUsers))
}
