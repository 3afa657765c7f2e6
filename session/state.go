package session

import "github.com/jrsteele09/go-superset-kernel/credentials"

type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "anonymous"
	}
}

// Snapshot is a consistent copy of the session. When State is Authenticated,
// Credential.AccessToken is set and Identity is non-nil. While a re-login is
// Authenticating, Credential and Identity still hold the previous session,
// which keeps serving requests until the new login commits.
type Snapshot struct {
	State      State
	Identity   *credentials.Identity
	Credential credentials.Credential
	Generation uint64
}

// Authenticated reports whether the snapshot holds a usable session. A
// session being replaced by a re-login counts until the new one commits.
func (s Snapshot) Authenticated() bool {
	return s.State != Anonymous && s.Credential.Valid() && s.Identity != nil
}
