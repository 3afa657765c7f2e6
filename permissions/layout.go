package permissions

// Tier is the highest privilege band a capability set reaches.
type Tier int

const (
	TierNone Tier = iota
	TierPublic
	TierGamma
	TierAlpha
	TierAdmin
)

func (t Tier) String() string {
	switch t {
	case TierPublic:
		return "public"
	case TierGamma:
		return "gamma"
	case TierAlpha:
		return "alpha"
	case TierAdmin:
		return "admin"
	default:
		return "none"
	}
}

// TierOf picks the maximal tier present in s. Tiers are keyed off the
// capabilities that only that tier grants.
func TierOf(s Set) Tier {
	switch {
	case s.Has(CapManageUsers):
		return TierAdmin
	case s.HasAny(CapCreateChart, CapCreateDashboard):
		return TierAlpha
	case s.HasAny(CapViewChart, CapViewDashboard):
		return TierGamma
	case s.Has(CapViewPublic):
		return TierPublic
	default:
		return TierNone
	}
}

// Layout describes how the dashboard home screen is arranged for a session.
type Layout struct {
	ShowAllCharts     bool `json:"show_all_charts"`
	ShowSystemMetrics bool `json:"show_system_metrics"`
	ShowUserActivity  bool `json:"show_user_activity"`
	ChartsPerRow      int  `json:"charts_per_row"`
}

// LayoutFor derives the layout from the maximal tier in s.
func LayoutFor(s Set) Layout {
	switch TierOf(s) {
	case TierAdmin:
		return Layout{ShowAllCharts: true, ShowSystemMetrics: true, ShowUserActivity: true, ChartsPerRow: 2}
	case TierAlpha:
		return Layout{ShowAllCharts: true, ChartsPerRow: 2}
	default:
		return Layout{ChartsPerRow: 1}
	}
}
