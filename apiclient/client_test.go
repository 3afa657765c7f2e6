package apiclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-superset-kernel/apiclient"
	"github.com/jrsteele09/go-superset-kernel/credentials"
	"github.com/jrsteele09/go-superset-kernel/credentials/repofake"
	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/jrsteele09/go-superset-kernel/internal/metrics"
	"github.com/jrsteele09/go-superset-kernel/session"
	"github.com/jrsteele09/go-superset-kernel/token"
	"github.com/jrsteele09/go-superset-kernel/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listResponse struct {
	Count  int              `json:"count"`
	Result []map[string]any `json:"result"`
}

// gate blocks requests for one path until released. The fixture gates
// the dataset listing, which only the in-flight logout test calls.
type gate struct {
	next     http.Handler
	path     string
	arrived  chan struct{}
	release  chan struct{}
	once     sync.Once
	released sync.Once
}

func (g *gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == g.path {
		g.once.Do(func() { close(g.arrived) })
		<-g.release
	}
	g.next.ServeHTTP(w, r)
}

func (g *gate) open() {
	g.released.Do(func() { close(g.release) })
}

type testFixture struct {
	platform *upstream.Server
	gate     *gate
	manager  *session.Manager
	client   *apiclient.Client
	metrics  *metrics.Recorder
}

func setupTestFixture(t *testing.T, platformOpts []upstream.Option, opts ...apiclient.Option) *testFixture {
	t.Helper()

	platform, err := upstream.New(platformOpts...)
	require.NoError(t, err)
	g := &gate{next: platform, path: "/api/v1/dataset/", arrived: make(chan struct{}), release: make(chan struct{})}
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	t.Cleanup(g.open)

	recorder, err := metrics.New(prometheus.NewRegistry(), "test")
	require.NoError(t, err)

	manager := session.NewManager(token.New(srv.URL), credentials.NewStore(repofake.NewFakeCredentialRepo()), session.WithMetrics(recorder))
	opts = append([]apiclient.Option{apiclient.WithReadRetry(3, time.Millisecond), apiclient.WithMetrics(recorder)}, opts...)

	return &testFixture{
		platform: platform,
		gate:     g,
		manager:  manager,
		client:   apiclient.New(srv.URL, manager, opts...),
		metrics:  recorder,
	}
}

func (f *testFixture) login(t *testing.T, username string) {
	t.Helper()
	_, err := f.manager.Login(context.Background(), username, username)
	require.NoError(t, err)
}

func TestGetJSON(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "admin")

	var out listResponse
	require.NoError(t, f.client.GetJSON(context.Background(), "/api/v1/database/", &out))
	assert.Equal(t, 3, out.Count)
}

func TestAnonymousCallFails(t *testing.T) {
	f := setupTestFixture(t, nil)
	err := f.client.GetJSON(context.Background(), "/api/v1/database/", nil)
	require.ErrorIs(t, err, errors.ErrUnauthenticated)
	assert.Equal(t, 0, f.platform.Hits(http.MethodGet, upstream.RouteDatabases))
}

func TestCSRFHeaderIsAttached(t *testing.T) {
	f := setupTestFixture(t, []upstream.Option{upstream.WithRequireCSRF(true)})
	f.login(t, "alpha")

	require.NoError(t, f.client.PostJSON(context.Background(), "/api/v1/chart/", map[string]string{"slice_name": "sales"}, nil))
	assert.Equal(t, 1, f.platform.ChartCount())
}

func TestUnauthorizedRefreshesAndRetriesOnce(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "admin")
	f.platform.ExpireAccessTokens()

	var out listResponse
	require.NoError(t, f.client.GetJSON(context.Background(), "/api/v1/database/", &out))

	assert.Equal(t, 2, f.platform.Hits(http.MethodGet, upstream.RouteDatabases))
	assert.Equal(t, 1, f.platform.Hits(http.MethodPost, upstream.RouteRefresh))
	assert.Equal(t, session.Authenticated, f.manager.State())
	assert.Equal(t, float64(1), f.metrics.RefreshCount("success"))
}

func TestUnauthorizedMutationIsRetriedAfterRefresh(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "alpha")
	f.platform.ExpireAccessTokens()

	require.NoError(t, f.client.PostJSON(context.Background(), "/api/v1/chart/", map[string]string{"slice_name": "c"}, nil))
	assert.Equal(t, 1, f.platform.ChartCount())
	assert.Equal(t, 2, f.platform.Hits(http.MethodPost, upstream.RouteCharts))
}

func TestSecondUnauthorizedEndsSession(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "admin")
	f.platform.Override(http.MethodGet, upstream.RouteDatabases, http.StatusUnauthorized, `{"msg": "Token has expired"}`)

	err := f.client.GetJSON(context.Background(), "/api/v1/database/", nil)

	require.ErrorIs(t, err, errors.ErrUnreachable)
	require.ErrorIs(t, err, errors.ErrTokenExpired)
	assert.Equal(t, session.Anonymous, f.manager.State())
	assert.Equal(t, 2, f.platform.Hits(http.MethodGet, upstream.RouteDatabases))
	assert.Equal(t, 1, f.platform.Hits(http.MethodPost, upstream.RouteRefresh))
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "admin")
	f.platform.ExpireAccessTokens()

	release := f.platform.HoldRefresh()
	defer release()

	const callers = 12
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.client.GetJSON(context.Background(), "/api/v1/database/", nil)
		}(i)
	}

	require.Eventually(t, func() bool {
		return f.platform.Hits(http.MethodGet, upstream.RouteDatabases) == callers &&
			f.platform.Hits(http.MethodPost, upstream.RouteRefresh) == 1
	}, 2*time.Second, 5*time.Millisecond)
	release()
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.platform.Hits(http.MethodPost, upstream.RouteRefresh))
	assert.Equal(t, 2*callers, f.platform.Hits(http.MethodGet, upstream.RouteDatabases))
}

func TestMutationIsNeverRetriedOnServerFault(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "alpha")
	f.platform.FailNext(http.MethodPost, upstream.RouteCharts, http.StatusBadGateway)

	err := f.client.PostJSON(context.Background(), "/api/v1/chart/", map[string]string{"slice_name": "c"}, nil)

	require.ErrorIs(t, err, errors.ErrServerFault)
	var statusErr *apiclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
	assert.Equal(t, 1, f.platform.Hits(http.MethodPost, upstream.RouteCharts))
	assert.Equal(t, 0, f.platform.ChartCount())
}

func TestMutationIsNeverRetriedOnNetworkFailure(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "alpha")

	broken := apiclient.New("http://127.0.0.1:1", f.manager, apiclient.WithReadRetry(3, time.Millisecond))
	err := broken.Delete(context.Background(), "/api/v1/chart/1")
	require.ErrorIs(t, err, errors.ErrNetwork)
}

func TestReadRetriesThenSucceeds(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "admin")
	f.platform.FailNext(http.MethodGet, upstream.RouteDatabases, http.StatusBadGateway, http.StatusServiceUnavailable)

	require.NoError(t, f.client.GetJSON(context.Background(), "/api/v1/database/", nil))
	assert.Equal(t, 3, f.platform.Hits(http.MethodGet, upstream.RouteDatabases))
	assert.Equal(t, float64(2), f.metrics.RetryCount("server_fault"))
}

func TestReadRetriesAreBounded(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "admin")
	f.platform.FailNext(http.MethodGet, upstream.RouteDatabases, 500, 500, 500, 500)

	err := f.client.GetJSON(context.Background(), "/api/v1/database/", nil)
	require.ErrorIs(t, err, errors.ErrServerFault)
	assert.Equal(t, 3, f.platform.Hits(http.MethodGet, upstream.RouteDatabases))
}

func TestReadOnlyPostIsRetried(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "admin")
	f.platform.FailNext(http.MethodPost, upstream.RouteSQLLabExecute, http.StatusBadGateway)

	resp, err := f.client.Do(context.Background(), &apiclient.Request{
		Method:   http.MethodPost,
		Path:     "/api/v1/sqllab/execute/",
		Body:     map[string]any{"sql": "SHOW DATABASES", "database_id": 2},
		ReadOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, 2, f.platform.Hits(http.MethodPost, upstream.RouteSQLLabExecute))
}

func TestForbiddenIsTerminal(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "gamma")

	err := f.client.GetJSON(context.Background(), "/api/v1/security/roles/", nil)
	require.ErrorIs(t, err, errors.ErrForbidden)
	assert.True(t, errors.Terminal(err))
	assert.Equal(t, 1, f.platform.Hits(http.MethodGet, upstream.RouteRoles))
	assert.Equal(t, session.Authenticated, f.manager.State())
}

func TestLogoutWhileResponseInFlightFailsClosed(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "admin")

	done := make(chan error, 1)
	go func() {
		done <- f.client.GetJSON(context.Background(), "/api/v1/dataset/", nil)
	}()

	<-f.gate.arrived
	require.NoError(t, f.manager.Logout(context.Background()))
	f.gate.open()

	err := <-done
	require.ErrorIs(t, err, errors.ErrUnauthenticated)
}

func TestLogoutAndReloginDuringRetryFailsClosed(t *testing.T) {
	f := setupTestFixture(t, nil, apiclient.WithReadRetry(3, time.Second))
	f.login(t, "admin")
	f.platform.FailNext(http.MethodGet, upstream.RouteDatabases, http.StatusInternalServerError)

	done := make(chan error, 1)
	go func() {
		done <- f.client.GetJSON(context.Background(), "/api/v1/database/", nil)
	}()
	require.Eventually(t, func() bool {
		return f.platform.Hits(http.MethodGet, upstream.RouteDatabases) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.manager.Logout(context.Background()))
	f.login(t, "gamma")

	err := <-done
	require.ErrorIs(t, err, errors.ErrUnauthenticated)
	assert.Equal(t, 1, f.platform.Hits(http.MethodGet, upstream.RouteDatabases))
	assert.Equal(t, session.Authenticated, f.manager.State())
}

func TestLogoutWhileAwaitingRefreshFailsClosed(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "admin")
	f.platform.ExpireAccessTokens()
	release := f.platform.HoldRefresh()
	defer release()

	done := make(chan error, 1)
	go func() {
		done <- f.client.GetJSON(context.Background(), "/api/v1/database/", nil)
	}()
	require.Eventually(t, func() bool {
		return f.platform.Hits(http.MethodPost, upstream.RouteRefresh) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.manager.Logout(context.Background()))
	release()

	err := <-done
	require.ErrorIs(t, err, errors.ErrUnauthenticated)
	assert.Equal(t, 1, f.platform.Hits(http.MethodGet, upstream.RouteDatabases))
}

func TestStatusErrorMessage(t *testing.T) {
	err := &apiclient.StatusError{Method: "GET", Path: "/x", Status: 404, Body: "nope"}
	assert.True(t, strings.Contains(err.Error(), "status 404"))
	assert.ErrorIs(t, err, errors.ErrEndpointNotFound)
	assert.False(t, err.BadRequest())
}
