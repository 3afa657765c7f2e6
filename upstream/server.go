// Package upstream is an in-process stand-in for the analytics platform's
// REST surface. It issues real signed tokens and supports route disabling,
// failure injection and hit counting so the kernel can be exercised end to end.
package upstream

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Shape selects how list endpoints encode their items.
type Shape int

const (
	ShapeStrings   Shape = iota // ["a", "b"]
	ShapeSingleKey              // [{"schema_name": "a"}]
	ShapeTyped                  // [{"name": "a", "type": "schema"}]
)

type override struct {
	status int
	body   string
}

type Server struct {
	router     chi.Router
	routes     []string
	signer     *HMACSigner
	users      *UserRepo
	logger     zerolog.Logger
	nowFunc    func() time.Time
	bcryptCost int

	accessTTL   time.Duration
	refreshTTL  time.Duration
	shape       Shape
	meRoles     bool
	requireCSRF bool

	lock         sync.Mutex
	databases    map[int]*Database
	datasets     map[int]*Dataset
	charts       map[int]*Chart
	nextChartID  int
	accessEpoch  int64
	refreshEpoch int64
	revoked      map[string]struct{}
	csrfTokens   map[string]string // access jti -> csrf
	disabled     map[string]struct{}
	failures     map[string][]int
	overrides    map[string]override
	hits         map[string]int
	refreshGate  chan struct{}
}

type Option func(*Server)

func WithSecret(secret string) Option {
	return func(s *Server) {
		s.signer = NewHMACSigner(secret)
	}
}

// WithTokenTTL sets access and refresh token lifetimes. Zero means no exp claim.
func WithTokenTTL(access, refresh time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = access
		s.refreshTTL = refresh
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithShape selects the encoding of schema and table listings.
func WithShape(shape Shape) Option {
	return func(s *Server) {
		s.shape = shape
	}
}

// WithRolesInMe embeds roles in the /me payload instead of only /me/roles.
func WithRolesInMe(enabled bool) Option {
	return func(s *Server) {
		s.meRoles = enabled
	}
}

// WithRequireCSRF rejects mutations that do not echo the session csrf token.
func WithRequireCSRF(enabled bool) Option {
	return func(s *Server) {
		s.requireCSRF = enabled
	}
}

func WithBcryptCost(cost int) Option {
	return func(s *Server) {
		s.bcryptCost = cost
	}
}

func New(opts ...Option) (*Server, error) {
	s := &Server{
		signer:      NewHMACSigner("superset-dev-secret"),
		users:       NewUserRepo(),
		logger:      log.Logger,
		nowFunc:     time.Now,
		bcryptCost:  bcrypt.MinCost,
		accessTTL:   15 * time.Minute,
		refreshTTL:  24 * time.Hour,
		databases:   defaultDatabases(),
		datasets:    defaultDatasets(),
		charts:      make(map[int]*Chart),
		nextChartID: 1,
		revoked:     make(map[string]struct{}),
		csrfTokens:  make(map[string]string),
		disabled:    make(map[string]struct{}),
		failures:    make(map[string][]int),
		overrides:   make(map[string]override),
		hits:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "upstream").Logger()

	if err := s.bootstrapUsers(); err != nil {
		return nil, err
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Users exposes the user table for seeding extra accounts.
func (s *Server) Users() *UserRepo {
	return s.users
}

// Routes lists every registered "METHOD pattern".
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func routeKey(method, pattern string) string {
	return method + " " + pattern
}

// Disable makes a registered route answer 404 until Enable is called.
func (s *Server) Disable(method, pattern string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.disabled[routeKey(method, pattern)] = struct{}{}
}

func (s *Server) Enable(method, pattern string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.disabled, routeKey(method, pattern))
}

// FailNext queues statuses to be returned by the next requests to a route.
func (s *Server) FailNext(method, pattern string, statuses ...int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	key := routeKey(method, pattern)
	s.failures[key] = append(s.failures[key], statuses...)
}

// Override answers every request to a route with a fixed response.
func (s *Server) Override(method, pattern string, status int, body string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.overrides[routeKey(method, pattern)] = override{status: status, body: body}
}

func (s *Server) ClearOverride(method, pattern string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.overrides, routeKey(method, pattern))
}

// Hits returns how many requests reached a route, including injected failures.
func (s *Server) Hits(method, pattern string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.hits[routeKey(method, pattern)]
}

func (s *Server) ResetHits() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.hits = make(map[string]int)
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.accessEpoch++
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refreshEpoch++
}

// HoldRefresh parks refresh requests until the returned release is called.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.lock.Lock()
	s.refreshGate = gate
	s.lock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lock.Lock()
			if s.refreshGate == gate {
				s.refreshGate = nil
			}
			s.lock.Unlock()
			close(gate)
		})
	}
}

// handle registers a route wrapped with the instrumentation every fake
// endpoint shares.
func (s *Server) handle(method, pattern string, h http.HandlerFunc) {
	key := routeKey(method, pattern)
	s.routes = append(s.routes, key)
	s.router.Method(method, pattern, s.instrument(key, h))
}

func (s *Server) instrument(key string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		s.hits[key]++
		_, disabled := s.disabled[key]
		ov, overridden := s.overrides[key]
		status := 0
		if queue := s.failures[key]; len(queue) > 0 {
			status = queue[0]
			s.failures[key] = queue[1:]
		}
		s.lock.Unlock()

		switch {
		case disabled:
			writeError(w, http.StatusNotFound, "Not found")
		case status != 0:
			writeError(w, status, http.StatusText(status))
		case overridden:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(ov.status)
			_, _ = w.Write([]byte(ov.body))
		default:
			next(w, r)
		}
	}
}
