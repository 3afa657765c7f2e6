package upstream

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

type principalKey struct{}

type principal struct {
	user *User
	jti  string
}

func principalFrom(ctx context.Context) principal {
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(started)).
			Msg("request")
	})
}

func (s *Server) RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().
					Str("panic", fmt.Sprint(rec)).
					Bytes("stack", debug.Stack()).
					Msg("recovered from panic")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// verify checks a bearer of the given type against the current epochs.
func (s *Server) verify(raw, typ string) (principal, error) {
	claims, err := s.signer.Parse(raw, s.nowFunc())
	if err != nil {
		return principal{}, err
	}
	if t, _ := claims["type"].(string); t != typ {
		return principal{}, fmt.Errorf("wrong token type %q", t)
	}
	jti, _ := claims["jti"].(string)
	epoch, _ := claims["epoch"].(float64)

	s.lock.Lock()
	current := s.accessEpoch
	if typ == tokenTypeRefresh {
		current = s.refreshEpoch
	}
	_, revoked := s.revoked[jti]
	s.lock.Unlock()

	if int64(epoch) < current || revoked {
		return principal{}, jwt.ErrTokenExpired
	}

	sub, _ := claims.GetSubject()
	user, err := s.users.GetByID(sub)
	if err != nil {
		return principal{}, err
	}
	return principal{user: user, jti: jti}, nil
}

// RequireAccess rejects requests without a valid access token with 401.
func (s *Server) RequireAccess(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.verify(bearer(r), tokenTypeAccess)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has expired"})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	}
}

// RequireRole answers 403 unless the principal holds one of roles.
func (s *Server) RequireRole(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		if p.user == nil || !slices.ContainsFunc(p.user.Roles, func(role string) bool { return slices.Contains(roles, role) }) {
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		next(w, r)
	}
}

// RequireCSRF enforces the X-CSRFToken header when the server is configured to.
func (s *Server) RequireCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.requireCSRF {
			next(w, r)
			return
		}
		p := principalFrom(r.Context())
		s.lock.Lock()
		expected := s.csrfTokens[p.user.Username]
		s.lock.Unlock()
		if expected == "" || r.Header.Get("X-CSRFToken") != expected {
			writeError(w, http.StatusBadRequest, "The CSRF token is missing.")
			return
		}
		next(w, r)
	}
}
