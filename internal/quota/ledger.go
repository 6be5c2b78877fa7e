package quota

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/easyaudio/easyaudio/internal/errs"
	"github.com/easyaudio/easyaudio/internal/models"
)

// RenewalWindow is the rolling usage cycle length.
const RenewalWindow = 30 * 24 * time.Hour

// Store is the persistence surface the ledger needs from the tenant record
// store.
type Store interface {
	// ResetCycle zeroes the cycle counter and advances the renewal boundary.
	ResetCycle(ctx context.Context, tenantKey string, renewalAt time.Time) error
	// AddUsedSeconds increments the cycle counter and returns the new total.
	AddUsedSeconds(ctx context.Context, tenantKey string, seconds int) (int, error)
}

// Ledger applies the lazy renewal and quota rules over a tenant record. The
// renewal is evaluated on access, never by a background timer.
type Ledger struct {
	store  Store
	policy Policy
	log    *slog.Logger
	now    func() time.Time
}

func NewLedger(store Store, policy Policy, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  store,
		policy: policy,
		log:    logger.With("component", "quota"),
		now:    time.Now,
	}
}

// Refresh resets the usage cycle when the renewal boundary has passed,
// persisting the reset before any quota read. Mutates t to match.
func (l *Ledger) Refresh(ctx context.Context, t *models.Tenant) error {
	now := l.now().UTC()
	if !t.RenewalAt.IsZero() && now.Before(t.RenewalAt) {
		return nil
	}
	renewal := now.Add(RenewalWindow)
	if err := l.store.ResetCycle(ctx, t.TenantKey, renewal); err != nil {
		return err
	}
	l.log.Info("usage cycle renewed", "tenant", t.TenantKey, "renewal_at", renewal)
	t.UsedSecondsCycle = 0
	t.RenewalAt = renewal
	return nil
}

// Check refreshes the cycle and fails closed when the tenant has no budget
// left. Called only after a cache miss is confirmed, before the provider.
func (l *Ledger) Check(ctx context.Context, t *models.Tenant) error {
	if err := l.Refresh(ctx, t); err != nil {
		return err
	}
	limit := l.policy.LimitFor(t)
	if t.UsedSecondsCycle >= limit {
		return &errs.QuotaExceeded{
			Plan:  planOrTrial(t.PlanTier),
			Limit: limit,
			Used:  t.UsedSecondsCycle,
		}
	}
	return nil
}

// Record commits billable seconds after a successful synthesis, rounding up
// and clamping at zero so fractional usage is never undercharged. Returns the
// new cycle total.
func (l *Ledger) Record(ctx context.Context, t *models.Tenant, seconds float64) (int, error) {
	if err := l.Refresh(ctx, t); err != nil {
		return 0, err
	}
	inc := int(math.Ceil(math.Max(seconds, 0)))
	total, err := l.store.AddUsedSeconds(ctx, t.TenantKey, inc)
	if err != nil {
		return 0, err
	}
	t.UsedSecondsCycle = total
	return total, nil
}

// LimitFor exposes the effective cap for response payloads.
func (l *Ledger) LimitFor(t *models.Tenant) int {
	return l.policy.LimitFor(t)
}

func planOrTrial(tier string) string {
	if tier == "" {
		return models.PlanTrial
	}
	return tier
}
