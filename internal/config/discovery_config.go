package config

import "github.com/allisson/go-env"

const (
	EmptyIsMiss   = "miss"
	EmptyIsResult = "result"
)

type DiscoveryConfig interface {
	GetEmptyResultPolicy() string
	GetLegacyEndpointsEnabled() bool
	GetSQLFallbackEnabled() bool
}

type Discovery struct{}

var _ DiscoveryConfig = Discovery{}

// GetEmptyResultPolicy decides whether an empty 2xx listing ends discovery ("result")
// or advances to the next strategy ("miss").
func (Discovery) GetEmptyResultPolicy() string {
	if env.GetString("DISCOVERY_EMPTY_POLICY", EmptyIsMiss) == EmptyIsResult {
		return EmptyIsResult
	}
	return EmptyIsMiss
}

func (Discovery) GetLegacyEndpointsEnabled() bool {
	return env.GetBool("DISCOVERY_LEGACY_ENDPOINTS", true)
}

func (Discovery) GetSQLFallbackEnabled() bool {
	return env.GetBool("DISCOVERY_SQL_FALLBACK", true)
}
