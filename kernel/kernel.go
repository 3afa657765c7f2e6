// Package kernel assembles the session, API access, catalog and discovery
// layers into one object built at application start.
package kernel

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-superset-kernel/apiclient"
	"github.com/jrsteele09/go-superset-kernel/catalog"
	"github.com/jrsteele09/go-superset-kernel/credentials"
	"github.com/jrsteele09/go-superset-kernel/discovery"
	"github.com/jrsteele09/go-superset-kernel/internal/config"
	"github.com/jrsteele09/go-superset-kernel/internal/logging"
	"github.com/jrsteele09/go-superset-kernel/internal/metrics"
	"github.com/jrsteele09/go-superset-kernel/menu"
	"github.com/jrsteele09/go-superset-kernel/permissions"
	"github.com/jrsteele09/go-superset-kernel/session"
	"github.com/jrsteele09/go-superset-kernel/token"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Kernel struct {
	Tokens    *token.Client
	Session   *session.Manager
	API       *apiclient.Client
	Catalog   *catalog.Service
	Discovery *discovery.Service
	Metrics   *metrics.Recorder

	registry   *prometheus.Registry
	logger     zerolog.Logger
	loggerSet  bool
	httpClient *http.Client
	nowFunc    func() time.Time
}

type Option func(*Kernel)

func WithLogger(l zerolog.Logger) Option {
	return func(k *Kernel) {
		k.logger = l
		k.loggerSet = true
	}
}

// WithHTTPClient replaces the transport used for every platform call.
func WithHTTPClient(c *http.Client) Option {
	return func(k *Kernel) {
		k.httpClient = c
	}
}

// WithRegistry registers the kernel's collectors on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(k *Kernel) {
		k.registry = reg
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(k *Kernel) {
		k.nowFunc = now
	}
}

// New wires the layers from cfg. store holds the persisted credentials.
func New(cfg config.Config, store *credentials.Store, opts ...Option) (*Kernel, error) {
	k := &Kernel{nowFunc: time.Now}
	for _, opt := range opts {
		opt(k)
	}
	if !k.loggerSet {
		k.logger = logging.New(cfg.GetEnv(), cfg.GetLogLevel())
	}
	if k.registry == nil {
		k.registry = prometheus.NewRegistry()
	}
	if k.httpClient == nil {
		k.httpClient = &http.Client{Timeout: cfg.GetRequestTimeout()}
	}

	recorder, err := metrics.New(k.registry, cfg.GetMetricsNamespace())
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[kernel.New] register metrics")
	}
	k.Metrics = recorder

	k.Tokens = token.New(cfg.GetBaseURL(),
		token.WithHTTPClient(k.httpClient),
		token.WithLogger(k.logger),
	)
	k.Session = session.NewManager(k.Tokens, store,
		session.WithLogger(k.logger),
		session.WithMetrics(recorder),
		session.WithNowFunc(k.nowFunc),
		session.WithRefreshLeeway(cfg.GetRefreshLeeway()),
		session.WithRefreshTimeout(cfg.GetRefreshTimeout()),
		session.WithRequireCSRF(cfg.GetRequireCSRF()),
	)
	k.API = apiclient.New(cfg.GetBaseURL(), k.Session,
		apiclient.WithHTTPClient(k.httpClient),
		apiclient.WithLogger(k.logger),
		apiclient.WithMetrics(recorder),
		apiclient.WithReadRetry(cfg.GetReadRetryAttempts(), cfg.GetRetryBackoff()),
		apiclient.WithRateLimit(cfg.GetRequestsPerSecond(), cfg.GetRequestBurst()),
	)
	k.Catalog, err = catalog.New(k.API, k.Session, catalog.WithLogger(k.logger))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[kernel.New]")
	}
	k.Discovery = discovery.New(k.API, k.Catalog,
		discovery.WithLogger(k.logger),
		discovery.WithConfig(cfg),
	)
	return k, nil
}

func (k *Kernel) Logger() zerolog.Logger {
	return k.logger
}

// Gatherer exposes the kernel's metrics.
func (k *Kernel) Gatherer() prometheus.Gatherer {
	return k.registry
}

func (k *Kernel) Login(ctx context.Context, username, password string) (*credentials.Identity, error) {
	return k.Session.Login(ctx, username, password)
}

// Restore resumes the persisted session, if any.
func (k *Kernel) Restore(ctx context.Context) (*credentials.Identity, error) {
	return k.Session.Restore(ctx)
}

func (k *Kernel) Logout(ctx context.Context) error {
	return k.Session.Logout(ctx)
}

// Capabilities of the signed-in user. Anonymous sessions have none.
func (k *Kernel) Capabilities() permissions.Set {
	return k.Session.Identity().Capabilities()
}

func (k *Kernel) Tier() permissions.Tier {
	return permissions.TierOf(k.Capabilities())
}

func (k *Kernel) Layout() permissions.Layout {
	return permissions.LayoutFor(k.Capabilities())
}

func (k *Kernel) Menu() []menu.Item {
	return menu.Project(k.Capabilities())
}

// CanEdit reports whether the signed-in user may edit an object owned by ownerID.
func (k *Kernel) CanEdit(ownerID string) bool {
	identity := k.Session.Identity()
	if identity == nil {
		return false
	}
	return permissions.CanEdit(identity.Capabilities(), identity.ID, ownerID)
}

// Close ends the session and releases idle connections.
func (k *Kernel) Close(ctx context.Context) error {
	defer k.httpClient.CloseIdleConnections()
	if k.Session.State() == session.Anonymous {
		return nil
	}
	return k.Session.Logout(ctx)
}
