package credentials

import (
	"encoding/json"
	"sync"

	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	pkgerrors "github.com/pkg/errors"
)

// Persisted keys. They are shared with the browser client of the platform.
const (
	KeyAccessToken  = "superset_access_token"
	KeyRefreshToken = "superset_refresh_token"
	KeyCSRFToken    = "superset_csrf_token"
	KeyUser         = "superset_user"
)

var allKeys = []string{KeyAccessToken, KeyRefreshToken, KeyCSRFToken, KeyUser}

// Store persists the session's credential and identity under the namespaced keys.
type Store struct {
	repo Repo
	lock sync.Mutex
}

func NewStore(repo Repo) *Store {
	return &Store{repo: repo}
}

// Save writes the credential and identity in a single batch.
func (s *Store) Save(cred Credential, identity *Identity) error {
	if !cred.Valid() {
		return pkgerrors.Wrap(errors.ErrInvalidCredentials, "[Store.Save] missing access token")
	}
	user, err := json.Marshal(identity)
	if err != nil {
		return pkgerrors.Wrap(err, "[Store.Save] marshal identity")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	// An empty csrf token overwrites a stale one; Load reads empty as absent.
	values := map[string]string{
		KeyAccessToken:  cred.AccessToken,
		KeyRefreshToken: cred.RefreshToken,
		KeyCSRFToken:    cred.CSRFToken,
		KeyUser:         string(user),
	}
	if err := s.repo.Put(values); err != nil {
		return pkgerrors.Wrap(err, "[Store.Save] put")
	}
	return nil
}

// UpdateAccessToken replaces only the access token; the rest is untouched.
func (s *Store) UpdateAccessToken(access string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.repo.Put(map[string]string{KeyAccessToken: access}); err != nil {
		return pkgerrors.Wrap(err, "[Store.UpdateAccessToken] put")
	}
	return nil
}

// Load returns the persisted credential and identity. errors.ErrNotFound is
// returned when either the access token or the identity is missing.
func (s *Store) Load() (Credential, *Identity, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	values := make(map[string]string, len(allKeys))
	for _, k := range allKeys {
		v, ok, err := s.repo.Get(k)
		if err != nil {
			return Credential{}, nil, pkgerrors.Wrapf(err, "[Store.Load] get %s", k)
		}
		if ok {
			values[k] = v
		}
	}

	if values[KeyAccessToken] == "" || values[KeyUser] == "" {
		return Credential{}, nil, errors.ErrNotFound
	}

	var identity Identity
	if err := json.Unmarshal([]byte(values[KeyUser]), &identity); err != nil {
		return Credential{}, nil, pkgerrors.Wrap(errors.Join(errors.ErrInvalidResponse, err), "[Store.Load] decode identity")
	}
	cred := NewCredential(values[KeyAccessToken], values[KeyRefreshToken], values[KeyCSRFToken])
	return cred, &identity, nil
}

// Clear removes every key in one batch.
func (s *Store) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.repo.Delete(allKeys...); err != nil {
		return pkgerrors.Wrap(err, "[Store.Clear] delete")
	}
	return nil
}
