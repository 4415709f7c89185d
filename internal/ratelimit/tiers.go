package ratelimit

import (
	"strings"
	"time"
)

// Tier is an admission-control band with independent windowed counters.
type Tier string

const (
	TierLight     Tier = "light"
	TierStandard  Tier = "standard"
	TierHeavy     Tier = "heavy"
	TierExpensive Tier = "expensive"
)

// TierLimits holds the window sizes and cooldown for one tier.
type TierLimits struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	Cooldown          time.Duration
}

// DefaultTierLimits are the stock tier parameters.
var DefaultTierLimits = map[Tier]TierLimits{
	TierLight:     {RequestsPerMinute: 120, RequestsPerHour: 3600, RequestsPerDay: 50000, Cooldown: 100 * time.Millisecond},
	TierStandard:  {RequestsPerMinute: 60, RequestsPerHour: 1000, RequestsPerDay: 10000, Cooldown: 500 * time.Millisecond},
	TierHeavy:     {RequestsPerMinute: 10, RequestsPerHour: 100, RequestsPerDay: 500, Cooldown: 2 * time.Second},
	TierExpensive: {RequestsPerMinute: 5, RequestsPerHour: 50, RequestsPerDay: 200, Cooldown: 5 * time.Second},
}

// EndpointMap resolves an endpoint path to its tier: exact match first, then
// pattern match over entries with {param} wildcards and equal segment count.
type EndpointMap struct {
	exact    map[string]Tier
	patterns []patternEntry
	fallback Tier
}

type patternEntry struct {
	segments []string
	tier     Tier
}

// NewEndpointMap builds an EndpointMap from path -> tier entries. Paths
// containing "{" are treated as patterns. Unmapped endpoints resolve to
// the fallback tier.
func NewEndpointMap(entries map[string]Tier, fallback Tier) *EndpointMap {
	m := &EndpointMap{exact: make(map[string]Tier), fallback: fallback}
	for path, tier := range entries {
		if strings.Contains(path, "{") {
			m.patterns = append(m.patterns, patternEntry{segments: splitPath(path), tier: tier})
		} else {
			m.exact[path] = tier
		}
	}
	return m
}

// DefaultEndpointMap maps the Wizard API surface to tiers.
func DefaultEndpointMap() *EndpointMap {
	return NewEndpointMap(map[string]Tier{
		"/health":                         TierLight,
		"/api/status":                     TierLight,
		"/api/rate-limits":                TierLight,
		"/api/dispatch":                   TierStandard,
		"/api/ai/complete":                TierExpensive,
		"/api/sync/status":                TierLight,
		"/api/sync/{kind}":                TierHeavy,
		"/api/admin/devices/{id}/block":   TierStandard,
		"/api/admin/devices/{id}/unblock": TierStandard,
	}, TierStandard)
}

// Resolve returns the tier for an endpoint path.
func (m *EndpointMap) Resolve(path string) Tier {
	if tier, ok := m.exact[path]; ok {
		return tier
	}
	segs := splitPath(path)
	for _, p := range m.patterns {
		if len(p.segments) != len(segs) {
			continue
		}
		matched := true
		for i, ps := range p.segments {
			if strings.HasPrefix(ps, "{") && strings.HasSuffix(ps, "}") {
				continue
			}
			if ps != segs[i] {
				matched = false
				break
			}
		}
		if matched {
			return p.tier
		}
	}
	return m.fallback
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}
