package models

import "time"

// Plan tiers. Unknown tiers fall back to trial limits.
const (
	PlanTrial     = "trial"
	PlanCreator   = "creator"
	PlanPublisher = "publisher"
	PlanNewsroom  = "newsroom"
)

// ValidPlan reports whether tier is a known plan tier.
func ValidPlan(tier string) bool {
	switch tier {
	case PlanTrial, PlanCreator, PlanPublisher, PlanNewsroom:
		return true
	}
	return false
}

// Tenant is the persistent per-tenant record: plan, usage cycle and domain
// allowlist. Created once at provisioning, mutated on every synthesis and
// admin update, never deleted by the engine.
type Tenant struct {
	TenantKey            string    `json:"tenant_key"`
	PlanTier             string    `json:"plan_tier"`
	UsedSecondsCycle     int       `json:"used_seconds_cycle"`
	RenewalAt            time.Time `json:"renewal_at"`
	CreatedAt            time.Time `json:"created_at"`
	AllowedDomains       []string  `json:"allowed_domains"`
	Status               string    `json:"status"`
	ContactEmail         string    `json:"contact_email,omitempty"`
	QuotaOverrideSeconds *int      `json:"quota_override_seconds,omitempty"`
}
