// Package engine orchestrates one synthesis request: fingerprint, cache
// lookup, single-flight rendering through the paid provider, usage
// accounting, and cache budget enforcement.
package engine

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/easyaudio/easyaudio/internal/cache"
	"github.com/easyaudio/easyaudio/internal/fingerprint"
	"github.com/easyaudio/easyaudio/internal/models"
	"github.com/easyaudio/easyaudio/internal/provider"
	"github.com/easyaudio/easyaudio/internal/quota"
	"github.com/easyaudio/easyaudio/internal/tenantauth"
	"github.com/easyaudio/easyaudio/internal/usage"
)

// Provider is the opaque paid synthesis boundary.
type Provider interface {
	Synthesize(ctx context.Context, req provider.Request) ([]byte, error)
}

// Request carries one synthesis job. Text must already be normalized by the
// caller; the engine fingerprints it as-is.
type Request struct {
	Text    string
	VoiceID string
	ModelID string
	Params  fingerprint.Params
}

type Result struct {
	Fingerprint     string
	EntryName       string
	Hit             bool
	DurationSeconds int
	// QuotaLimit and UsedSeconds are populated on misses only; hits incur
	// no provider cost and bypass the ledger entirely.
	QuotaLimit  int
	UsedSeconds int
}

type Options struct {
	Cache      *cache.Store
	Evictor    *cache.Evictor
	Ledger     *quota.Ledger
	Provider   Provider
	Accountant *usage.Accountant
	// TenantScoped keys cache entries by tenant so audio never crosses
	// tenants; off, identical inputs dedupe across all tenants.
	TenantScoped bool
	Logger       *slog.Logger
}

type Engine struct {
	cache        *cache.Store
	evictor      *cache.Evictor
	ledger       *quota.Ledger
	provider     Provider
	accountant   *usage.Accountant
	tenantScoped bool
	flight       singleflight.Group
	log          *slog.Logger
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cache:        opts.Cache,
		evictor:      opts.Evictor,
		ledger:       opts.Ledger,
		provider:     opts.Provider,
		accountant:   opts.Accountant,
		tenantScoped: opts.TenantScoped,
		log:          logger.With("component", "engine"),
	}
}

// Synthesize returns cached audio metadata for the request, rendering through
// the provider at most once per fingerprint per process. Duplicate
// concurrent callers share the executor's result and are reported as hits
// since they spent no provider cost.
func (e *Engine) Synthesize(ctx context.Context, tenant *models.Tenant, req Request) (*Result, error) {
	scopeKey := ""
	if e.tenantScoped {
		scopeKey = tenant.TenantKey
	}
	fp := fingerprint.Build(scopeKey, req.Text, req.VoiceID, req.ModelID, req.Params)

	if e.cache.Has(fp) {
		e.log.Info("cache hit", "fingerprint", fp, "tenant", tenantauth.RedactKey(tenant.TenantKey))
		return e.hitResult(fp, req.Text), nil
	}

	// The render runs detached from the caller's cancellation: a client that
	// disconnects mid-render neither aborts the provider call nor strands
	// other waiters, and the finished audio is still cached.
	renderCtx := context.WithoutCancel(ctx)
	executed := false
	v, err, _ := e.flight.Do(fp, func() (interface{}, error) {
		executed = true
		return e.render(renderCtx, tenant, fp, req)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*Result)
	// Followers joined an in-flight render and spent nothing; only the
	// executing caller reports the miss.
	if !executed && !res.Hit {
		dup := *res
		dup.Hit = true
		return &dup, nil
	}
	return res, nil
}

// render is the single-flight executor: re-check the cache, gate on quota,
// call the provider, publish the entry, commit usage, enforce the budget.
func (e *Engine) render(ctx context.Context, tenant *models.Tenant, fp string, req Request) (*Result, error) {
	// A previous flight may have finished while this caller was queued.
	if e.cache.Has(fp) {
		return e.hitResult(fp, req.Text), nil
	}

	// Quota is checked only after the miss is confirmed, and always before
	// any provider spend.
	if err := e.ledger.Check(ctx, tenant); err != nil {
		return nil, err
	}

	e.log.Info("cache miss, rendering", "fingerprint", fp, "tenant", tenantauth.RedactKey(tenant.TenantKey))
	audio, err := e.provider.Synthesize(ctx, provider.Request{
		Text:         req.Text,
		VoiceID:      req.VoiceID,
		ModelID:      req.ModelID,
		Stability:    req.Params.Stability,
		Similarity:   req.Params.Similarity,
		Style:        req.Params.Style,
		SpeakerBoost: req.Params.SpeakerBoost,
		OptLatency:   req.Params.OptLatency,
	})
	if err != nil {
		return nil, err
	}

	path, err := e.cache.Put(fp, audio)
	if err != nil {
		return nil, err
	}

	seconds := e.accountant.BillableSeconds(path, req.Text)
	used, err := e.ledger.Record(ctx, tenant, float64(seconds))
	if err != nil {
		// The audio is already rendered and cached; losing the usage row is
		// a billing gap, not a request failure.
		e.log.Error("usage commit failed", "tenant", tenantauth.RedactKey(tenant.TenantKey), "seconds", seconds, "error", err)
		used = tenant.UsedSecondsCycle
	}

	if e.evictor != nil {
		e.evictor.Enforce()
	}

	return &Result{
		Fingerprint:     fp,
		EntryName:       e.cache.EntryName(fp),
		Hit:             false,
		DurationSeconds: seconds,
		QuotaLimit:      e.ledger.LimitFor(tenant),
		UsedSeconds:     used,
	}, nil
}

func (e *Engine) hitResult(fp, text string) *Result {
	return &Result{
		Fingerprint:     fp,
		EntryName:       e.cache.EntryName(fp),
		Hit:             true,
		DurationSeconds: e.accountant.BillableSeconds(e.cache.LocationFor(fp), text),
	}
}
