// Package catalog offers typed read access to the platform's databases,
// datasets and security listings.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jrsteele09/go-superset-kernel/apiclient"
	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	HealthPath      = "/health"
	DatabasesPath   = "/api/v1/database/"
	DatasetsPath    = "/api/v1/dataset/"
	RolesPath       = "/api/v1/security/roles/"
	PermissionsPath = "/api/v1/security/permissions/"

	defaultCacheSize = 64
)

// Backend identifiers as reported by the platform.
const (
	BackendPostgres = "postgresql"
	BackendMySQL    = "mysql"
	BackendSQLite   = "sqlite"
)

type Database struct {
	ID             int    `json:"id"`
	Name           string `json:"database_name"`
	Backend        string `json:"backend"`
	ExposeInSQLLab bool   `json:"expose_in_sqllab"`
}

// Dialect folds the backend name into one of the known backends. Unknown
// engines are returned lower-cased.
func (d *Database) Dialect() string {
	b := strings.ToLower(d.Backend)
	switch {
	case strings.HasPrefix(b, "postgres"), b == "redshift":
		return BackendPostgres
	case strings.HasPrefix(b, "mysql"), b == "mariadb":
		return BackendMySQL
	case strings.HasPrefix(b, "sqlite"):
		return BackendSQLite
	default:
		return b
	}
}

type DatasetDatabase struct {
	ID   int    `json:"id"`
	Name string `json:"database_name"`
}

type Dataset struct {
	ID        int             `json:"id"`
	TableName string          `json:"table_name"`
	Schema    string          `json:"schema"`
	Database  DatasetDatabase `json:"database"`
}

type Column struct {
	Name string `json:"column_name"`
	Type string `json:"type"`
}

type Role struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Permission struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// API is the part of the resilient client the catalog calls.
type API interface {
	Do(ctx context.Context, req *apiclient.Request) (*apiclient.Response, error)
	GetJSON(ctx context.Context, path string, out any) error
}

var _ API = (*apiclient.Client)(nil)

// LogoutNotifier registers hooks that run when the session ends.
type LogoutNotifier interface {
	OnLogout(fn func())
}

type Service struct {
	api       API
	databases *lru.Cache[int, Database]
	logger    zerolog.Logger
	cacheSize int
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func WithCacheSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cacheSize = size
		}
	}
}

// New builds a catalog over api. The database cache is purged whenever
// notifier reports a logout.
func New(api API, notifier LogoutNotifier, opts ...Option) (*Service, error) {
	s := &Service{
		api:       api,
		logger:    log.Logger,
		cacheSize: defaultCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	cache, err := lru.New[int, Database](s.cacheSize)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[catalog.New] create database cache")
	}
	s.databases = cache
	s.logger = s.logger.With().Str("component", "catalog").Logger()
	if notifier != nil {
		notifier.OnLogout(s.Purge)
	}
	return s, nil
}

// Purge drops every cached database.
func (s *Service) Purge() {
	s.databases.Purge()
}

// Health checks the platform's liveness endpoint without credentials.
func (s *Service) Health(ctx context.Context) error {
	_, err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: HealthPath, Public: true})
	if err != nil {
		return pkgerrors.Wrap(err, "[Service.Health]")
	}
	return nil
}

type listEnvelope[T any] struct {
	Count  int `json:"count"`
	Result []T `json:"result"`
}

type itemEnvelope[T any] struct {
	ID     int `json:"id"`
	Result T   `json:"result"`
}

// Databases lists the connected databases and refreshes the cache with them.
func (s *Service) Databases(ctx context.Context) ([]Database, error) {
	var out listEnvelope[Database]
	if err := s.api.GetJSON(ctx, DatabasesPath, &out); err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.Databases]")
	}
	for _, db := range out.Result {
		s.databases.Add(db.ID, db)
	}
	return out.Result, nil
}

// Database returns one database, served from the cache once seen.
func (s *Service) Database(ctx context.Context, id int) (*Database, error) {
	if db, ok := s.databases.Get(id); ok {
		return &db, nil
	}
	var out itemEnvelope[Database]
	if err := s.api.GetJSON(ctx, fmt.Sprintf("%s%d", DatabasesPath, id), &out); err != nil {
		if errors.Is(err, errors.ErrEndpointNotFound) {
			return nil, pkgerrors.Wrapf(errors.Join(errors.ErrNotFound, err), "[Service.Database] database %d", id)
		}
		return nil, pkgerrors.Wrapf(err, "[Service.Database] database %d", id)
	}
	if out.Result.ID == 0 {
		out.Result.ID = id
	}
	s.databases.Add(id, out.Result)
	s.logger.Debug().Int("database_id", id).Str("backend", out.Result.Backend).Msg("database cached")
	return &out.Result, nil
}

func (s *Service) Datasets(ctx context.Context) ([]Dataset, error) {
	var out listEnvelope[Dataset]
	if err := s.api.GetJSON(ctx, DatasetsPath, &out); err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.Datasets]")
	}
	return out.Result, nil
}

// DatasetColumns returns the column list of one dataset.
func (s *Service) DatasetColumns(ctx context.Context, datasetID int) ([]Column, error) {
	var out itemEnvelope[struct {
		Columns []Column `json:"columns"`
	}]
	if err := s.api.GetJSON(ctx, fmt.Sprintf("%s%d", DatasetsPath, datasetID), &out); err != nil {
		if errors.Is(err, errors.ErrEndpointNotFound) {
			return nil, pkgerrors.Wrapf(errors.Join(errors.ErrNotFound, err), "[Service.DatasetColumns] dataset %d", datasetID)
		}
		return nil, pkgerrors.Wrapf(err, "[Service.DatasetColumns] dataset %d", datasetID)
	}
	if out.Result.Columns == nil {
		return []Column{}, nil
	}
	return out.Result.Columns, nil
}

// Roles lists the platform roles. Only administrators may read it.
func (s *Service) Roles(ctx context.Context) ([]Role, error) {
	var out listEnvelope[Role]
	if err := s.api.GetJSON(ctx, RolesPath, &out); err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.Roles]")
	}
	return out.Result, nil
}

func (s *Service) Permissions(ctx context.Context) ([]Permission, error) {
	var out listEnvelope[Permission]
	if err := s.api.GetJSON(ctx, PermissionsPath, &out); err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.Permissions]")
	}
	return out.Result, nil
}
