package config

import (
	"time"

	"github.com/allisson/go-env"
)

type SecurityConfig interface {
	GetRequireCSRF() bool
	GetRefreshLeeway() time.Duration
	GetCredentialsPassphrase() string
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetRequireCSRF makes a failed csrf fetch fail the login. Off by default.
func (Security) GetRequireCSRF() bool {
	return env.GetBool("REQUIRE_CSRF", false)
}

// GetRefreshLeeway is how close to its exp claim an access token may get before it is refreshed proactively.
func (Security) GetRefreshLeeway() time.Duration {
	return env.GetDuration("REFRESH_LEEWAY_SECONDS", 30, time.Second)
}

// GetCredentialsPassphrase seals the credentials file when non-empty.
func (Security) GetCredentialsPassphrase() string {
	return env.GetString("CREDENTIALS_PASSPHRASE", "")
}
