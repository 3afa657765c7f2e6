package filestore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-superset-kernel/credentials"
	"github.com/jrsteele09/go-superset-kernel/credentials/filestore"
	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/jrsteele09/go-superset-kernel/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity() *credentials.Identity {
	return &credentials.Identity{ID: "2", Username: "alpha", Roles: []permissions.RoleName{permissions.RoleAlpha}}
}

func TestFileStorePlain(t *testing.T) {
	fs, err := filestore.NewInDir(filepath.Join(t.TempDir(), "nested"))
	require.NoError(t, err)
	store := credentials.NewStore(fs)

	require.NoError(t, store.Save(credentials.NewCredential("access", "refresh", "csrf"), identity()))

	info, err := os.Stat(fs.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(fs.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), credentials.KeyAccessToken)

	cred, id, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "refresh", cred.RefreshToken)
	assert.Equal(t, "alpha", id.Username)

	require.NoError(t, store.Clear())
	_, err = os.Stat(fs.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreSealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	fs, err := filestore.New(path, filestore.WithPassphrase("correct horse"))
	require.NoError(t, err)
	store := credentials.NewStore(fs)

	require.NoError(t, store.Save(credentials.NewCredential("secret-access", "secret-refresh", ""), identity()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-access")
	assert.Contains(t, string(raw), "ciphertext")

	cred, _, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "secret-access", cred.AccessToken)

	wrong, err := filestore.New(path, filestore.WithPassphrase("battery staple"))
	require.NoError(t, err)
	_, _, err = credentials.NewStore(wrong).Load()
	require.ErrorIs(t, err, errors.ErrInvalidCredentials)

	none, err := filestore.New(path)
	require.NoError(t, err)
	_, _, err = credentials.NewStore(none).Load()
	require.ErrorIs(t, err, errors.ErrInvalidCredentials)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	fs, err := filestore.New(path)
	require.NoError(t, err)
	_, _, err = fs.Get(credentials.KeyAccessToken)
	require.ErrorIs(t, err, errors.ErrInvalidResponse)
}
