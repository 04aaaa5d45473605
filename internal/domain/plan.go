// Package domain contains core business types and interfaces.
//
// This file defines the plan catalog: the static mapping from a
// subscription plan to its feature flags and monthly quota limits.
package domain

// Plan identifies a subscription tier.
type Plan string

const (
	PlanFree  Plan = "free"
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
	PlanElite Plan = "elite"
)

// Valid returns true if the plan is a recognised tier.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanBasic, PlanPro, PlanElite:
		return true
	default:
		return false
	}
}

// Quota sentinel values used throughout the limits table.
const (
	// QuotaUnlimited means the counter is never capped.
	QuotaUnlimited = -1
	// QuotaDisabled means the feature is not part of the plan at all.
	// A disabled cap denies without ever consulting usage.
	QuotaDisabled = 0
)

// Limits defines the feature flags and monthly caps for one plan.
//
// Integer caps use QuotaUnlimited (-1) for "no cap" and QuotaDisabled (0)
// for "feature not included".
type Limits struct {
	PersonalChatMessages int
	PersonChatMessages   int
	StatisticsAccess     int
	MaxTranscriptions    int
	MaxPeopleManaged     int

	HasPersonalChat     bool
	HasStatistics       bool
	HasAdvancedFeatures bool
}

// Catalog is the immutable plan -> limits table.
//
// It is constructed once at startup and passed explicitly to the
// entitlement service; there is no package-level mutable instance.
type Catalog struct {
	limits map[Plan]Limits
}

// NewCatalog builds a catalog from an explicit limits table.
// Entries for unknown plans are ignored; missing plans fall back to
// free-tier limits on lookup.
func NewCatalog(limits map[Plan]Limits) Catalog {
	table := make(map[Plan]Limits, len(limits))
	for p, l := range limits {
		if p.Valid() {
			table[p] = l
		}
	}
	return Catalog{limits: table}
}

// DefaultCatalog returns the standard production plan table.
func DefaultCatalog() Catalog {
	return NewCatalog(map[Plan]Limits{
		PlanFree: {
			PersonalChatMessages: 10,
			PersonChatMessages:   QuotaDisabled,
			StatisticsAccess:     QuotaDisabled,
			MaxTranscriptions:    5,
			MaxPeopleManaged:     3,
			HasPersonalChat:      true,
		},
		PlanBasic: {
			PersonalChatMessages: 100,
			PersonChatMessages:   50,
			StatisticsAccess:     20,
			MaxTranscriptions:    30,
			MaxPeopleManaged:     10,
			HasPersonalChat:      true,
			HasStatistics:        true,
		},
		PlanPro: {
			PersonalChatMessages: QuotaUnlimited,
			PersonChatMessages:   200,
			StatisticsAccess:     QuotaUnlimited,
			MaxTranscriptions:    100,
			MaxPeopleManaged:     50,
			HasPersonalChat:      true,
			HasStatistics:        true,
			HasAdvancedFeatures:  true,
		},
		PlanElite: {
			PersonalChatMessages: QuotaUnlimited,
			PersonChatMessages:   QuotaUnlimited,
			StatisticsAccess:     QuotaUnlimited,
			MaxTranscriptions:    QuotaUnlimited,
			MaxPeopleManaged:     QuotaUnlimited,
			HasPersonalChat:      true,
			HasStatistics:        true,
			HasAdvancedFeatures:  true,
		},
	})
}

// Limits returns the limits for a plan, falling back to the free tier
// for unknown plans. Lookup is pure and never fails.
func (c Catalog) Limits(p Plan) Limits {
	if l, ok := c.limits[p]; ok {
		return l
	}
	return c.limits[PlanFree]
}

// Feature identifies a boolean plan feature.
type Feature string

const (
	FeaturePersonalChat     Feature = "personal_chat"
	FeatureStatistics       Feature = "statistics"
	FeatureAdvancedFeatures Feature = "advanced_features"
)

// FeatureEnabled returns the catalog's stored boolean for the feature.
// Unknown features are never enabled.
func (l Limits) FeatureEnabled(f Feature) bool {
	switch f {
	case FeaturePersonalChat:
		return l.HasPersonalChat
	case FeatureStatistics:
		return l.HasStatistics
	case FeatureAdvancedFeatures:
		return l.HasAdvancedFeatures
	default:
		return false
	}
}

// CapFor returns the monthly cap for a metered counter.
func (l Limits) CapFor(c Counter) int {
	switch c {
	case CounterPersonalChatMessages:
		return l.PersonalChatMessages
	case CounterPersonChatMessages:
		return l.PersonChatMessages
	case CounterStatisticsAccess:
		return l.StatisticsAccess
	case CounterTranscriptions:
		return l.MaxTranscriptions
	case CounterPeopleManaged:
		return l.MaxPeopleManaged
	default:
		return QuotaDisabled
	}
}
