// Package tenantauth resolves the calling tenant from request metadata and
// enforces the per-tenant domain allowlist. Tenants present a public site
// key; the persistent tenant store is the source of truth for existence.
package tenantauth

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/easyaudio/easyaudio/internal/errs"
	"github.com/easyaudio/easyaudio/internal/models"
)

// HeaderTenantKey is the public site key header sent by the embed widget.
const HeaderTenantKey = "X-Tenant-Key"

// Store is the tenant lookup surface. A nil tenant with nil error means the
// key is unknown.
type Store interface {
	GetTenant(ctx context.Context, tenantKey string) (*models.Tenant, error)
}

type Resolver struct {
	store Store
	// permissive allows requests without an Origin/Referer through the
	// allowlist (demo mode).
	permissive bool
	log        *slog.Logger
}

func NewResolver(store Store, permissive bool, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:      store,
		permissive: permissive,
		log:        logger.With("component", "tenantauth"),
	}
}

// ResolveKey extracts the tenant key: header first, then the request body
// value, then the "tenant" query parameter. First non-empty wins.
func ResolveKey(r *http.Request, bodyTenant string) (string, error) {
	if v := strings.TrimSpace(r.Header.Get(HeaderTenantKey)); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(bodyTenant); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(r.URL.Query().Get("tenant")); v != "" {
		return v, nil
	}
	return "", errs.New(errs.KindMissingTenantKey,
		"missing tenant key (X-Tenant-Key header, body.tenant, or tenant query param)")
}

// Load fetches the tenant record, failing with invalid_tenant for unknown
// keys.
func (rv *Resolver) Load(ctx context.Context, tenantKey string) (*models.Tenant, error) {
	t, err := rv.store.GetTenant(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	if t == nil {
		rv.log.Warn("unknown tenant key", "key", RedactKey(tenantKey))
		return nil, errs.New(errs.KindInvalidTenant, "unknown tenant key")
	}
	if t.Status == "suspended" {
		rv.log.Warn("suspended tenant rejected", "key", RedactKey(tenantKey))
		return nil, errs.New(errs.KindInvalidTenant, "tenant is suspended")
	}
	return t, nil
}

// EnforceDomain validates the request's Origin/Referer host against the
// tenant's allowlist. Matching is exact and case-insensitive; no wildcards.
func (rv *Resolver) EnforceDomain(r *http.Request, t *models.Tenant) error {
	host := RequestHost(r)
	if host == "" {
		if rv.permissive {
			rv.log.Warn("missing origin/referer allowed in demo mode", "key", RedactKey(t.TenantKey))
			return nil
		}
		return errs.New(errs.KindDomainRequired, "Origin or Referer header required")
	}
	for _, allowed := range t.AllowedDomains {
		if NormalizeHost(allowed) == host {
			return nil
		}
	}
	return errs.New(errs.KindDomainNotAllowed, "domain not allowed for this key")
}

// RequestHost derives the normalized caller hostname from Origin, falling
// back to Referer.
func RequestHost(r *http.Request) string {
	candidate := strings.TrimSpace(r.Header.Get("Origin"))
	if candidate == "" {
		candidate = strings.TrimSpace(r.Header.Get("Referer"))
	}
	return NormalizeHost(candidate)
}

// NormalizeHost reduces a bare hostname or full URL to a lowercase hostname
// without a trailing dot. Returns "" when no usable host is present.
func NormalizeHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	return strings.TrimSuffix(host, ".")
}

// NormalizeDomains canonicalizes an allowlist: hosts lowercased, wildcards
// and duplicates dropped.
func NormalizeDomains(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		host := NormalizeHost(v)
		if host == "" || strings.Contains(host, "*") {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	return out
}

// RedactKey shortens a tenant key for logs.
func RedactKey(key string) string {
	raw := strings.TrimSpace(key)
	if raw == "" {
		return "missing"
	}
	if len(raw) <= 4 {
		return "***"
	}
	if len(raw) <= 10 {
		return raw[:2] + "..." + raw[len(raw)-2:]
	}
	return raw[:6] + "..." + raw[len(raw)-4:]
}
