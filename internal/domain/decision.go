package domain

// DenyReason says why a metered action was refused.
type DenyReason string

const (
	// DenyQuotaExceeded: the plan includes the feature but this month's
	// allotment is used up. Resolved next period or by upgrading.
	DenyQuotaExceeded DenyReason = "quota_exceeded"
	// DenyPlanNotIncluded: the cap is zero, the feature is simply not in
	// the plan. Resolved only by upgrading.
	DenyPlanNotIncluded DenyReason = "plan_not_included"
)

// Decision is the outcome of an entitlement check for a metered action.
//
// Expected denials (quota, plan) are values, not errors; only
// infrastructure failures cross the service boundary as errors.
type Decision struct {
	Allowed bool       `json:"allowed"`
	Reason  DenyReason `json:"reason,omitempty"`
	Counter Counter    `json:"counter"`
	Used    int64      `json:"used"`
	Limit   int64      `json:"limit"` // -1 when unlimited
}

// Deny builds a denied decision.
func Deny(counter Counter, reason DenyReason, used, limit int64) Decision {
	return Decision{Counter: counter, Reason: reason, Used: used, Limit: limit}
}

// Allow builds an allowed decision.
func Allow(counter Counter, used, limit int64) Decision {
	return Decision{Allowed: true, Counter: counter, Used: used, Limit: limit}
}
