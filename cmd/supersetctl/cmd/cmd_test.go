package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-superset-kernel/credentials/filestore"
	"github.com/jrsteele09/go-superset-kernel/discovery"
	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/jrsteele09/go-superset-kernel/session"
	"github.com/jrsteele09/go-superset-kernel/upstream"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestFixture(t *testing.T) (*upstream.Server, string) {
	t.Helper()
	pterm.DisableOutput()
	t.Cleanup(pterm.EnableOutput)

	platform, err := upstream.New()
	require.NoError(t, err)
	srv := httptest.NewServer(platform)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("SUPERSET_URL", srv.URL)
	t.Setenv("FOLDER", dir)
	t.Setenv("CREDENTIALS_PASSPHRASE", "correct horse")
	t.Setenv("LOG_LEVEL", "error")
	t.Cleanup(func() { username, password, serverURL, dataDir = "", "", "", "" })
	return platform, dir
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestLoginStatusExploreLogout(t *testing.T) {
	platform, dir := setupTestFixture(t)

	require.NoError(t, execute(t, "login", "-u", "admin", "-p", "admin"))
	_, err := os.Stat(filepath.Join(dir, filestore.DefaultFileName))
	require.NoError(t, err)

	require.NoError(t, execute(t, "status"))
	assert.Equal(t, session.Authenticated, app.Session.State())

	require.NoError(t, execute(t, "databases"))
	require.NoError(t, execute(t, "schemas", "1"))
	require.NoError(t, execute(t, "tables", "1", "public"))
	assert.Equal(t, 1, platform.Hits(http.MethodPost, upstream.RouteLogin))

	require.NoError(t, execute(t, "logout"))
	assert.Equal(t, 1, platform.Hits(http.MethodPost, upstream.RouteLogout))
	_, err = os.Stat(filepath.Join(dir, filestore.DefaultFileName))
	assert.True(t, os.IsNotExist(err))

	err = execute(t, "databases")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestLoginRejected(t *testing.T) {
	setupTestFixture(t)
	err := execute(t, "login", "-u", "admin", "-p", "wrong")
	require.Error(t, err)
	assert.Equal(t, "invalid username or password", err.Error())
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	setupTestFixture(t)
	serverURL = "http://example.test/"
	dataDir = "/tmp/other"
	cfg := cliConfig{Config: nil}
	assert.Equal(t, "http://example.test", cfg.GetBaseURL())
	assert.Equal(t, "/tmp/other", cfg.GetDataFolder())
}

func TestTableRow(t *testing.T) {
	rows, comment := int64(12), "daily"
	assert.Equal(t, []string{"events", "table", "12", "daily"}, tableRow(discovery.Table{Name: "events", Type: "table", RowCount: &rows, Comment: &comment}))
	assert.Equal(t, []string{"v", "view", "-", ""}, tableRow(discovery.Table{Name: "v", Type: "view"}))
}

func TestDiscoveryErrorMessages(t *testing.T) {
	assert.Equal(t, "this account may not browse that database", discoveryError(errors.ErrForbidden).Error())
	assert.ErrorIs(t, discoveryError(errors.ErrDiscoveryExhausted), errors.ErrDiscoveryExhausted)
}
