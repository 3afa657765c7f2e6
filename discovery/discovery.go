// Package discovery lists the schemas and tables of a platform database. It
// walks listing endpoints in order, falls back to introspection queries and
// normalizes whatever shape answered.
package discovery

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-superset-kernel/apiclient"
	"github.com/jrsteele09/go-superset-kernel/catalog"
	"github.com/jrsteele09/go-superset-kernel/internal/config"
	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	KindSchemas = "schemas"
	KindTables  = "tables"
)

// API is the part of the resilient client discovery uses.
type API interface {
	Do(ctx context.Context, req *apiclient.Request) (*apiclient.Response, error)
	Probe(ctx context.Context, key apiclient.ProbeKey, candidates []string, attempt apiclient.Attempt) (string, error)
}

var _ API = (*apiclient.Client)(nil)

// Databases resolves the backend of a database for the query fallback.
type Databases interface {
	Database(ctx context.Context, id int) (*catalog.Database, error)
}

var _ Databases = (*catalog.Service)(nil)

type Service struct {
	api         API
	databases   Databases
	logger      zerolog.Logger
	emptyPolicy string
	legacy      bool
	sqlFallback bool
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithEmptyPolicy decides whether an empty listing ends the probe
// (config.EmptyIsResult) or moves on to the next strategy (config.EmptyIsMiss).
func WithEmptyPolicy(policy string) Option {
	return func(s *Service) {
		if policy == config.EmptyIsResult || policy == config.EmptyIsMiss {
			s.emptyPolicy = policy
		}
	}
}

func WithLegacyEndpoints(enabled bool) Option {
	return func(s *Service) {
		s.legacy = enabled
	}
}

func WithSQLFallback(enabled bool) Option {
	return func(s *Service) {
		s.sqlFallback = enabled
	}
}

// WithConfig applies the discovery settings of cfg.
func WithConfig(cfg config.DiscoveryConfig) Option {
	return func(s *Service) {
		WithEmptyPolicy(cfg.GetEmptyResultPolicy())(s)
		s.legacy = cfg.GetLegacyEndpointsEnabled()
		s.sqlFallback = cfg.GetSQLFallbackEnabled()
	}
}

func New(api API, databases Databases, opts ...Option) *Service {
	s := &Service{
		api:         api,
		databases:   databases,
		logger:      log.Logger,
		emptyPolicy: config.EmptyIsMiss,
		legacy:      true,
		sqlFallback: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "discovery").Logger()
	return s
}

// Schemas lists the schemas of a database.
func (s *Service) Schemas(ctx context.Context, databaseID int) ([]Table, error) {
	candidates := append([]string(nil), SchemaEndpoints...)
	if s.legacy {
		candidates = append(candidates, LegacySchemaEndpoints...)
	}
	out, err := s.discover(ctx, KindSchemas, databaseID, "", candidates)
	return out, pkgerrors.Wrapf(err, "[Service.Schemas] database %d", databaseID)
}

// Tables lists the tables and views of one schema.
func (s *Service) Tables(ctx context.Context, databaseID int, schema string) ([]Table, error) {
	if strings.TrimSpace(schema) == "" {
		return nil, pkgerrors.New("[Service.Tables] schema is required")
	}
	candidates := append([]string(nil), TableEndpoints...)
	if s.legacy {
		candidates = append(candidates, LegacyTableEndpoints...)
	}
	out, err := s.discover(ctx, KindTables, databaseID, schema, candidates)
	return out, pkgerrors.Wrapf(err, "[Service.Tables] database %d schema %q", databaseID, schema)
}

func (s *Service) discover(ctx context.Context, kind string, databaseID int, schema string, candidates []string) ([]Table, error) {
	if s.sqlFallback {
		candidates = append(candidates, QueryEndpoints...)
	}
	defaultType := TypeTable
	if kind == KindSchemas {
		defaultType = TypeSchema
	}

	var found []Table
	attempt := func(ctx context.Context, candidate string, memoized bool) error {
		var (
			items []any
			err   error
		)
		if strings.HasPrefix(candidate, SQLPrefix) {
			items, err = s.query(ctx, strings.TrimPrefix(candidate, SQLPrefix), kind, databaseID, schema)
		} else {
			items, err = s.list(ctx, expand(candidate, databaseID, schema))
		}
		if err != nil {
			return err
		}
		tables, err := normalize(items, defaultType, schema)
		if err != nil {
			return err
		}
		if len(tables) == 0 && !memoized && s.emptyPolicy == config.EmptyIsMiss {
			return errors.ErrEmptyResult
		}
		found = tables
		return nil
	}

	key := apiclient.ProbeKey{Kind: kind, DatabaseID: databaseID}
	strategy, err := s.api.Probe(ctx, key, candidates, attempt)
	if err != nil {
		var perr *apiclient.ProbeError
		if errors.As(err, &perr) {
			if perr.AnyEmpty() {
				s.logger.Debug().Str("probe", key.String()).Msg("every strategy answered empty")
				return []Table{}, nil
			}
			return nil, errors.Join(errors.ErrDiscoveryExhausted, err)
		}
		return nil, err
	}
	s.logger.Debug().Str("probe", key.String()).Str("strategy", strategy).Int("entries", len(found)).Msg("discovered")
	return found, nil
}

func (s *Service) list(ctx context.Context, path string) ([]any, error) {
	resp, err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, err
	}
	return extractItems(resp.Body)
}

type queryRequest struct {
	SQL        string `json:"sql"`
	DatabaseID int    `json:"database_id"`
	Schema     string `json:"schema,omitempty"`
	RunAsync   bool   `json:"runAsync"`
}

// query runs an introspection statement for the database's dialect.
func (s *Service) query(ctx context.Context, path, kind string, databaseID int, schema string) ([]any, error) {
	db, err := s.databases.Database(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	stmt := schemaStatement(db.Dialect())
	if kind == KindTables {
		stmt = tableStatement(db.Dialect(), schema)
	}
	resp, err := s.api.Do(ctx, &apiclient.Request{
		Method:   http.MethodPost,
		Path:     path,
		Body:     queryRequest{SQL: stmt, DatabaseID: databaseID, Schema: schema},
		ReadOnly: true,
	})
	if err != nil {
		return nil, err
	}
	return extractItems(resp.Body)
}
