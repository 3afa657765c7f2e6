package permissions

import "sort"

type Capability string

const (
	CapViewPublic        Capability = "viewPublic"
	CapViewChart         Capability = "viewChart"
	CapViewDashboard     Capability = "viewDashboard"
	CapCreateChart       Capability = "createChart"
	CapCreateDashboard   Capability = "createDashboard"
	CapConnectDatabase   Capability = "connectDatabase"
	CapEditOwn           Capability = "editOwn"
	CapEditAny           Capability = "editAny"
	CapManageUsers       Capability = "manageUsers"
	CapViewSystemMetrics Capability = "viewSystemMetrics"
)

// All lists every capability in a stable order.
var All = []Capability{
	CapViewPublic,
	CapViewChart,
	CapViewDashboard,
	CapCreateChart,
	CapCreateDashboard,
	CapConnectDatabase,
	CapEditOwn,
	CapEditAny,
	CapManageUsers,
	CapViewSystemMetrics,
}

// roleCapabilities is the single source of truth for what a built-in role grants.
// Roles absent from this table grant nothing.
var roleCapabilities = map[RoleName][]Capability{
	RoleAdmin: All,
	RoleAlpha: {
		CapViewPublic, CapViewChart, CapViewDashboard,
		CapCreateChart, CapCreateDashboard, CapConnectDatabase, CapEditOwn,
	},
	RoleGamma:  {CapViewPublic, CapViewChart, CapViewDashboard},
	RolePublic: {CapViewPublic},
}

// Set is an immutable capability set.
type Set struct {
	caps map[Capability]struct{}
}

// Capabilities derives the capability set for roles. Unknown and empty role
// sets produce an empty set.
func Capabilities(roles ...RoleName) Set {
	s := Set{caps: make(map[Capability]struct{})}
	for _, role := range roles {
		for _, c := range roleCapabilities[role] {
			s.caps[c] = struct{}{}
		}
	}
	return s
}

func (s Set) Has(c Capability) bool {
	_, ok := s.caps[c]
	return ok
}

// HasAny reports whether s holds at least one of cs.
func (s Set) HasAny(cs ...Capability) bool {
	for _, c := range cs {
		if s.Has(c) {
			return true
		}
	}
	return false
}

func (s Set) Len() int {
	return len(s.caps)
}

// List returns the capabilities in the order of All.
func (s Set) List() []Capability {
	out := make([]Capability, 0, len(s.caps))
	for _, c := range All {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Strings is List as sorted strings, handy for logging and JSON.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s.caps))
	for c := range s.caps {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets hold the same capabilities.
func (s Set) Equal(other Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for c := range s.caps {
		if !other.Has(c) {
			return false
		}
	}
	return true
}
