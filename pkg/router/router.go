package router

import (
	"github.com/zen-systems/switchboard/pkg/config"
)

// Policy is the routing table in backend ids.
type Policy struct {
	Code           string
	Reasoning      string
	General        string
	MediumContext  string
	LargeContext   string
	Threshold      int
	LargeThreshold int
}

// PolicyFromConfig extracts the selection policy from routing configuration.
func PolicyFromConfig(cfg config.RoutingConfig) Policy {
	return Policy{
		Code:           cfg.Routes.Code,
		Reasoning:      cfg.Routes.Reasoning,
		General:        cfg.Routes.General,
		MediumContext:  cfg.LongContext.Medium,
		LargeContext:   cfg.LongContext.Large,
		Threshold:      cfg.LongContext.ThresholdChars,
		LargeThreshold: cfg.LongContext.LargeThresholdChars,
	}
}

// RouteInfo describes one compiled rule for display.
type RouteInfo struct {
	Rule    string
	When    string
	Backend string
}

// Routes lists the selector's rules in precedence order.
func (s *Selector) Routes() []RouteInfo {
	routes := make([]RouteInfo, 0, len(s.rules))
	for _, r := range s.rules {
		routes = append(routes, RouteInfo{Rule: r.Name, When: r.Description, Backend: r.Backend})
	}
	return routes
}
