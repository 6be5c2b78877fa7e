package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/easyaudio/easyaudio/internal/models"
)

const tenantColumns = `
        tenant_key, plan_tier, used_seconds_cycle, renewal_at, created_at,
        allowed_domains, status, contact_email, quota_override_seconds
`

// GetTenant returns the tenant record, or (nil, nil) when the key is unknown.
func (db *DB) GetTenant(ctx context.Context, tenantKey string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE tenant_key = $1`

	var tenant models.Tenant
	err := db.Pool.QueryRow(ctx, query, tenantKey).Scan(
		&tenant.TenantKey,
		&tenant.PlanTier,
		&tenant.UsedSecondsCycle,
		&tenant.RenewalAt,
		&tenant.CreatedAt,
		&tenant.AllowedDomains,
		&tenant.Status,
		&tenant.ContactEmail,
		&tenant.QuotaOverrideSeconds,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (db *DB) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	query := `
        INSERT INTO tenants (tenant_key, plan_tier, used_seconds_cycle, renewal_at,
                             created_at, allowed_domains, status, contact_email, quota_override_seconds)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := db.Pool.Exec(ctx, query,
		tenant.TenantKey,
		tenant.PlanTier,
		tenant.UsedSecondsCycle,
		tenant.RenewalAt,
		tenant.CreatedAt,
		tenant.AllowedDomains,
		tenant.Status,
		tenant.ContactEmail,
		tenant.QuotaOverrideSeconds,
	)
	return err
}

func (db *DB) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants ORDER BY created_at`

	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(
			&t.TenantKey,
			&t.PlanTier,
			&t.UsedSecondsCycle,
			&t.RenewalAt,
			&t.CreatedAt,
			&t.AllowedDomains,
			&t.Status,
			&t.ContactEmail,
			&t.QuotaOverrideSeconds,
		); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// TenantUpdates carries optional admin-side field updates; nil means keep.
type TenantUpdates struct {
	PlanTier             *string
	AllowedDomains       []string
	Status               *string
	ContactEmail         *string
	QuotaOverrideSeconds *int
}

func (db *DB) UpdateTenant(ctx context.Context, tenantKey string, updates TenantUpdates) error {
	query := `
        UPDATE tenants SET
            plan_tier              = COALESCE($2, plan_tier),
            allowed_domains        = COALESCE($3, allowed_domains),
            status                 = COALESCE($4, status),
            contact_email          = COALESCE($5, contact_email),
            quota_override_seconds = COALESCE($6, quota_override_seconds)
        WHERE tenant_key = $1
    `
	_, err := db.Pool.Exec(ctx, query,
		tenantKey,
		updates.PlanTier,
		updates.AllowedDomains,
		updates.Status,
		updates.ContactEmail,
		updates.QuotaOverrideSeconds,
	)
	return err
}

// ResetCycle implements quota.Store: zero the counter and advance renewal.
func (db *DB) ResetCycle(ctx context.Context, tenantKey string, renewalAt time.Time) error {
	query := `UPDATE tenants SET used_seconds_cycle = 0, renewal_at = $2 WHERE tenant_key = $1`
	_, err := db.Pool.Exec(ctx, query, tenantKey, renewalAt)
	return err
}

// AddUsedSeconds implements quota.Store: increment the cycle counter and
// return the new total.
func (db *DB) AddUsedSeconds(ctx context.Context, tenantKey string, seconds int) (int, error) {
	query := `
        UPDATE tenants SET used_seconds_cycle = used_seconds_cycle + $2
        WHERE tenant_key = $1
        RETURNING used_seconds_cycle
    `
	var total int
	err := db.Pool.QueryRow(ctx, query, tenantKey, seconds).Scan(&total)
	return total, err
}
