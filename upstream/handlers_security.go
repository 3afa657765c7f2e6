package upstream

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Provider string `json:"provider"`
	Refresh  bool   `json:"refresh"`
}

// rolePermissions is a small, fixed permission matrix returned by /me/roles.
var rolePermissions = map[string][][2]string{
	"Admin":  {{"can_read", "Chart"}, {"can_write", "Chart"}, {"can_read", "User"}, {"can_write", "User"}},
	"Alpha":  {{"can_read", "Chart"}, {"can_write", "Chart"}, {"can_read", "Database"}},
	"Gamma":  {{"can_read", "Chart"}, {"can_read", "Dashboard"}},
	"Public": {{"can_read", "Dashboard"}},
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
			writeError(w, http.StatusBadRequest, "Missing username or password")
			return
		}
		if req.Provider != "" && req.Provider != "db" {
			writeError(w, http.StatusBadRequest, "Unsupported provider")
			return
		}
		user, err := s.users.GetByUsername(req.Username)
		if err != nil || !user.Active || !CheckPasswordHash(req.Password, user.PasswordHash) {
			writeError(w, http.StatusUnauthorized, "Invalid login")
			return
		}

		access, err := s.issueAccess(user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp := map[string]string{"access_token": access}
		if req.Refresh {
			s.lock.Lock()
			epoch := s.refreshEpoch
			s.lock.Unlock()
			refresh, err := s.signer.issue(tokenTypeRefresh, strconv.Itoa(user.ID), epoch, s.nowFunc(), s.refreshTTL)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			resp["refresh_token"] = refresh
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) issueAccess(user *User) (string, error) {
	s.lock.Lock()
	epoch := s.accessEpoch
	s.lock.Unlock()
	return s.signer.issue(tokenTypeAccess, strconv.Itoa(user.ID), epoch, s.nowFunc(), s.accessTTL)
}

// RefreshHandler expects the refresh token as the bearer.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		gate := s.refreshGate
		s.lock.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		p, err := s.verify(bearer(r), tokenTypeRefresh)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has expired"})
			return
		}
		access, err := s.issueAccess(p.user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": access})
	}
}

func (s *Server) CSRFHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		token := uuid.New().String()
		s.lock.Lock()
		s.csrfTokens[p.user.Username] = token
		s.lock.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"result": token})
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		s.lock.Lock()
		s.revoked[p.jti] = struct{}{}
		delete(s.csrfTokens, p.user.Username)
		s.lock.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "OK"})
	}
}

func rolesPayload(roles []string) map[string][][2]string {
	out := make(map[string][][2]string, len(roles))
	for _, role := range roles {
		out[role] = rolePermissions[role]
	}
	return out
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := principalFrom(r.Context()).user
		result := map[string]any{
			"id":         u.ID,
			"username":   u.Username,
			"first_name": u.FirstName,
			"last_name":  u.LastName,
			"email":      u.Email,
			"is_active":  u.Active,
		}
		if s.meRoles {
			result["roles"] = rolesPayload(u.Roles)
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result})
	}
}

func (s *Server) MeRolesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := principalFrom(r.Context()).user
		writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{
			"user_id": u.ID,
			"roles":   rolesPayload(u.Roles),
		}})
	}
}

func (s *Server) RolesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		names := []string{"Admin", "Alpha", "Gamma", "Public"}
		result := make([]map[string]any, len(names))
		for i, n := range names {
			result[i] = map[string]any{"id": i + 1, "name": n}
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(result), "result": result})
	}
}

func (s *Server) PermissionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		seen := map[string]bool{}
		result := []map[string]any{}
		for _, role := range []string{"Admin", "Alpha", "Gamma", "Public"} {
			for _, pv := range rolePermissions[role] {
				if seen[pv[0]] {
					continue
				}
				seen[pv[0]] = true
				result = append(result, map[string]any{"id": len(result) + 1, "name": pv[0]})
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(result), "result": result})
	}
}

func (s *Server) UsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		users := s.users.List()
		result := make([]map[string]any, len(users))
		for i, u := range users {
			roles := make([]map[string]string, len(u.Roles))
			for j, role := range u.Roles {
				roles[j] = map[string]string{"name": role}
			}
			result[i] = map[string]any{"id": u.ID, "username": u.Username, "active": u.Active, "roles": roles}
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(result), "result": result})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
