package config

import (
	"strings"

	"github.com/allisson/go-env"
)

// UpstreamConfig drives the fake platform served by cmd/fakeupstream.
type UpstreamConfig interface {
	GetUpstreamSecret() string
	GetUpstreamShape() string
	GetUpstreamDisabledRoutes() []string
	GetUpstreamRolesInMe() bool
}

type Upstream struct{}

var _ UpstreamConfig = Upstream{}

func (Upstream) GetUpstreamSecret() string {
	return env.GetString("UPSTREAM_SECRET", "superset-dev-secret")
}

// GetUpstreamShape is one of "strings", "single_key" or "typed".
func (Upstream) GetUpstreamShape() string {
	return env.GetString("UPSTREAM_SHAPE", "strings")
}

// GetUpstreamDisabledRoutes lists "METHOD /pattern" entries separated by commas.
func (Upstream) GetUpstreamDisabledRoutes() []string {
	raw := env.GetString("UPSTREAM_DISABLED_ROUTES", "")
	var routes []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			routes = append(routes, r)
		}
	}
	return routes
}

func (Upstream) GetUpstreamRolesInMe() bool {
	return env.GetBool("UPSTREAM_ROLES_IN_ME", false)
}
