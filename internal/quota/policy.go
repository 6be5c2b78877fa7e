// Package quota tracks per-tenant monthly usage against plan caps with a
// lazy rolling renewal window.
package quota

import (
	"strings"

	"github.com/easyaudio/easyaudio/internal/models"
)

// Policy maps plan tiers to seconds-per-cycle caps. Unknown tiers get the
// trial cap.
type Policy struct {
	TrialSeconds     int
	CreatorSeconds   int
	PublisherSeconds int
	NewsroomSeconds  int
}

func DefaultPolicy() Policy {
	return Policy{
		TrialSeconds:     600,    // 10 min
		CreatorSeconds:   7200,   // 2h
		PublisherSeconds: 36000,  // 10h
		NewsroomSeconds:  180000, // 50h
	}
}

// TierCap returns the cap for a plan tier, falling back to trial.
func (p Policy) TierCap(tier string) int {
	switch strings.ToLower(tier) {
	case models.PlanCreator:
		return p.CreatorSeconds
	case models.PlanPublisher:
		return p.PublisherSeconds
	case models.PlanNewsroom:
		return p.NewsroomSeconds
	}
	return p.TrialSeconds
}

// LimitFor resolves a tenant's effective cap: per-tenant override first,
// then the plan tier cap, then the trial default.
func (p Policy) LimitFor(t *models.Tenant) int {
	if t.QuotaOverrideSeconds != nil && *t.QuotaOverrideSeconds > 0 {
		return *t.QuotaOverrideSeconds
	}
	return p.TierCap(t.PlanTier)
}
