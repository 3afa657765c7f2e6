package upstream_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-superset-kernel/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	platform *upstream.Server
	srv      *httptest.Server
}

func setupFixture(t *testing.T, opts ...upstream.Option) *fixture {
	t.Helper()
	platform, err := upstream.New(opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(platform)
	t.Cleanup(srv.Close)
	return &fixture{platform: platform, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (f *fixture) login(t *testing.T, username, password string) (string, string) {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, upstream.RouteLogin, "", map[string]any{
		"username": username, "password": password, "provider": "db", "refresh": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body["access_token"].(string), body["refresh_token"].(string)
}

func TestLoginAndMe(t *testing.T) {
	f := setupFixture(t)

	access, refresh := f.login(t, "admin", "admin")
	assert.NotEmpty(t, refresh)

	resp, body := f.do(t, http.MethodGet, upstream.RouteMe, access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	assert.Equal(t, "admin", result["username"])
	assert.NotContains(t, result, "roles")

	resp, body = f.do(t, http.MethodGet, upstream.RouteMeRoles, access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	roles := body["result"].(map[string]any)["roles"].(map[string]any)
	assert.Contains(t, roles, "Admin")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := setupFixture(t)
	resp, _ := f.do(t, http.MethodPost, upstream.RouteLogin, "", map[string]any{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestExpiredAccessTokenAndRefresh(t *testing.T) {
	f := setupFixture(t)
	access, refresh := f.login(t, "gamma", "gamma")

	f.platform.ExpireAccessTokens()
	resp, _ := f.do(t, http.MethodGet, upstream.RouteMe, access, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, upstream.RouteRefresh, access, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "access token is not a refresh token")

	resp, body := f.do(t, http.MethodPost, upstream.RouteRefresh, refresh, map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fresh := body["access_token"].(string)

	resp, _ = f.do(t, http.MethodGet, upstream.RouteMe, fresh, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, f.platform.Hits(http.MethodPost, upstream.RouteRefresh))
}

func TestRoleGuard(t *testing.T) {
	f := setupFixture(t)
	access, _ := f.login(t, "alpha", "alpha")
	resp, _ := f.do(t, http.MethodGet, upstream.RouteRoles, access, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDisableFailAndOverride(t *testing.T) {
	f := setupFixture(t)
	access, _ := f.login(t, "admin", "admin")

	f.platform.Disable(http.MethodGet, upstream.RouteSchemas)
	resp, _ := f.do(t, http.MethodGet, "/api/v1/database/1/schemas/", access, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	f.platform.Enable(http.MethodGet, upstream.RouteSchemas)

	f.platform.FailNext(http.MethodGet, upstream.RouteSchemas, http.StatusBadGateway)
	resp, _ = f.do(t, http.MethodGet, "/api/v1/database/1/schemas/", access, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/v1/database/1/schemas/", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"analytics", "public"}, body["result"])

	f.platform.Override(http.MethodGet, upstream.RouteSchemas, http.StatusOK, `{"result": "garbage"}`)
	_, body = f.do(t, http.MethodGet, "/api/v1/database/1/schemas/", access, nil)
	assert.Equal(t, "garbage", body["result"])

	assert.Equal(t, 4, f.platform.Hits(http.MethodGet, upstream.RouteSchemas))
}

func TestExecuteIntrospection(t *testing.T) {
	f := setupFixture(t)
	access, _ := f.login(t, "admin", "admin")

	resp, body := f.do(t, http.MethodPost, upstream.RouteSQLLabExecute, access, map[string]any{
		"sql": "SHOW TABLES FROM `sales`", "database_id": 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := body["data"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"Tables_in_sales": "orders"}, rows[0])

	resp, _ = f.do(t, http.MethodPost, upstream.RouteSQLLabExecute, access, map[string]any{
		"sql": "DROP TABLE orders", "database_id": 2,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChartMutationsRequireCSRFWhenConfigured(t *testing.T) {
	f := setupFixture(t, upstream.WithRequireCSRF(true))
	access, _ := f.login(t, "alpha", "alpha")

	resp, _ := f.do(t, http.MethodPost, upstream.RouteCharts, access, map[string]string{"slice_name": "c"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, f.platform.ChartCount())
}
