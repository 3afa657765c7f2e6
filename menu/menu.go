// Package menu projects a capability set onto the navigation model shown to
// the signed-in user.
package menu

import "github.com/jrsteele09/go-superset-kernel/permissions"

type Key string

const (
	KeyDashboard   Key = "dashboard"
	KeyCharts      Key = "charts"
	KeyDatasources Key = "datasources"
	KeyUsers       Key = "users"
)

// Item is a navigation entry. Display titles are resolved by the caller.
type Item struct {
	Key        Key                    `json:"key"`
	Path       string                 `json:"path"`
	Icon       string                 `json:"icon"`
	Capability permissions.Capability `json:"capability"`
}

type entry struct {
	item     Item
	requires []permissions.Capability
}

var entries = []entry{
	{
		item: Item{Key: KeyDashboard, Path: "/dashboard", Icon: "dashboard", Capability: permissions.CapViewDashboard},
		requires: []permissions.Capability{
			permissions.CapViewPublic, permissions.CapViewChart, permissions.CapViewDashboard,
		},
	},
	{
		item:     Item{Key: KeyCharts, Path: "/charts", Icon: "bar-chart", Capability: permissions.CapCreateChart},
		requires: []permissions.Capability{permissions.CapCreateChart, permissions.CapCreateDashboard},
	},
	{
		item:     Item{Key: KeyDatasources, Path: "/datasources", Icon: "database", Capability: permissions.CapConnectDatabase},
		requires: []permissions.Capability{permissions.CapConnectDatabase},
	},
	{
		item:     Item{Key: KeyUsers, Path: "/users", Icon: "team", Capability: permissions.CapManageUsers},
		requires: []permissions.Capability{permissions.CapManageUsers},
	},
}

// Project returns the ordered menu for set. An empty set yields an empty menu.
func Project(set permissions.Set) []Item {
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if set.HasAny(e.requires...) {
			items = append(items, e.item)
		}
	}
	return items
}

// Keys is a convenience for callers that only need the ordering.
func Keys(items []Item) []Key {
	keys := make([]Key, len(items))
	for i, it := range items {
		keys[i] = it.Key
	}
	return keys
}
