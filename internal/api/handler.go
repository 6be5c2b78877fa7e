// Package api exposes the public synthesis endpoint: request decoding,
// text normalization, rate limiting, tenant resolution, and the error
// contract that maps engine failures onto HTTP statuses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"github.com/easyaudio/easyaudio/internal/config"
	"github.com/easyaudio/easyaudio/internal/engine"
	"github.com/easyaudio/easyaudio/internal/errs"
	"github.com/easyaudio/easyaudio/internal/fingerprint"
	"github.com/easyaudio/easyaudio/internal/tenantauth"
)

// RateLimiter is the sliver of the redis limiter the handler needs.
type RateLimiter interface {
	Allow(ctx context.Context, scope, key string, limit int, window time.Duration) (bool, error)
}

type Handler struct {
	cfg      *config.Config
	engine   *engine.Engine
	resolver *tenantauth.Resolver
	limiter  RateLimiter
	log      *slog.Logger
}

func NewHandler(cfg *config.Config, eng *engine.Engine, resolver *tenantauth.Resolver, limiter RateLimiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:      cfg,
		engine:   eng,
		resolver: resolver,
		limiter:  limiter,
		log:      logger.With("component", "api"),
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/synthesize", h.Synthesize).Methods("POST")
	router.HandleFunc("/health", h.Health).Methods("GET")
}

// synthesizeRequest accepts the tenant key under any of its historical
// aliases; the first non-empty one wins in field order.
type synthesizeRequest struct {
	Text         string   `json:"text"`
	Voice        string   `json:"voice"`
	Model        string   `json:"model"`
	Tenant       string   `json:"tenant"`
	TenantKey    string   `json:"tenant_key"`
	TenantKeyAlt string   `json:"tenantKey"`
	Stability    *float64 `json:"stability"`
	Similarity   *float64 `json:"similarity"`
	Style        *float64 `json:"style"`
	SpeakerBoost *bool    `json:"speakerBoost"`
	OptLatency   *int     `json:"optLatency"`
}

func (r *synthesizeRequest) tenantKey() string {
	for _, k := range []string{r.Tenant, r.TenantKey, r.TenantKeyAlt} {
		if strings.TrimSpace(k) != "" {
			return strings.TrimSpace(k)
		}
	}
	return ""
}

type synthesizeResponse struct {
	AudioURL        string `json:"audioUrl"`
	Hit             bool   `json:"hit"`
	DurationSeconds int    `json:"durationSeconds"`
	QuotaLimit      int    `json:"quotaLimit,omitempty"`
	UsedSeconds     int    `json:"usedSeconds,omitempty"`
}

func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx := r.Context()

	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errs.New(errs.KindEmptyInput, "invalid JSON body"))
		return
	}

	if h.limiter != nil {
		if !h.allow(ctx, w, "ip", clientIP(r), h.cfg.RateLimitPerIP) {
			return
		}
	}

	key, err := tenantauth.ResolveKey(r, req.tenantKey())
	if err != nil {
		h.writeError(w, err)
		return
	}
	tenant, err := h.resolver.Load(ctx, key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.resolver.EnforceDomain(r, tenant); err != nil {
		h.writeError(w, err)
		return
	}

	if h.limiter != nil {
		if !h.allow(ctx, w, "tenant", tenant.TenantKey, h.cfg.RateLimitPerTenant) {
			return
		}
	}

	// Length limits count characters, not bytes, so multi-byte scripts are
	// measured the same as ASCII and the cap never splits a rune.
	text := NormalizeText(req.Text)
	if utf8.RuneCountInString(text) < h.cfg.MinTextChars {
		h.writeError(w, errs.New(errs.KindEmptyInput, "text is empty or too short"))
		return
	}
	text = truncateRunes(text, h.cfg.MaxTextChars)

	voice := req.Voice
	if voice == "" {
		voice = h.cfg.VoiceID
	}
	model := req.Model
	if model == "" {
		model = h.cfg.ModelID
	}

	res, err := h.engine.Synthesize(ctx, tenant, engine.Request{
		Text:    text,
		VoiceID: voice,
		ModelID: model,
		Params:  h.params(req),
	})
	if err != nil {
		h.log.Warn("synthesis failed",
			"tenant", tenantauth.RedactKey(tenant.TenantKey),
			"kind", string(errs.KindOf(err)),
			"error", err)
		h.writeError(w, err)
		return
	}

	status := "MISS"
	if res.Hit {
		status = "HIT"
	}
	w.Header().Set("X-Cache", status)
	w.Header().Set("X-Tenant-Key", tenantauth.RedactKey(tenant.TenantKey))
	h.log.Info("synthesis served",
		"tenant", tenantauth.RedactKey(tenant.TenantKey),
		"cache", status,
		"duration_seconds", res.DurationSeconds,
		"elapsed_ms", time.Since(started).Milliseconds())

	writeJSON(w, http.StatusOK, synthesizeResponse{
		AudioURL:        h.cfg.AppURL + "/cache/" + res.EntryName,
		Hit:             res.Hit,
		DurationSeconds: res.DurationSeconds,
		QuotaLimit:      res.QuotaLimit,
		UsedSeconds:     res.UsedSeconds,
	})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) params(req synthesizeRequest) fingerprint.Params {
	p := fingerprint.Params{
		Stability:    0.35,
		Similarity:   0.9,
		Style:        0.35,
		SpeakerBoost: true,
		OptLatency:   h.cfg.OptLatency,
	}
	if req.Stability != nil {
		p.Stability = *req.Stability
	}
	if req.Similarity != nil {
		p.Similarity = *req.Similarity
	}
	if req.Style != nil {
		p.Style = *req.Style
	}
	if req.SpeakerBoost != nil {
		p.SpeakerBoost = *req.SpeakerBoost
	}
	if req.OptLatency != nil {
		p.OptLatency = *req.OptLatency
	}
	return p
}

// allow runs one rate-limit check and writes the 429 itself on rejection.
// Limiter backend failures are logged and treated as allowed.
func (h *Handler) allow(ctx context.Context, w http.ResponseWriter, scope, key string, limit int) bool {
	ok, err := h.limiter.Allow(ctx, scope, key, limit, h.cfg.RateLimitWindow)
	if err != nil {
		h.log.Error("rate limit check failed", "scope", scope, "error", err)
		return true
	}
	if !ok {
		h.writeError(w, errs.New(errs.KindRateLimited, "too many requests"))
		return false
	}
	return true
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeText collapses whitespace runs into single spaces and trims the
// ends, so trivially different spellings of the same text share a cache key.
func NormalizeText(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)

	var qe *errs.QuotaExceeded
	if errors.As(err, &qe) {
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":         string(errs.KindQuotaExceeded),
			"message":       qe.Error(),
			"plan":          qe.Plan,
			"limit_seconds": qe.Limit,
			"used_seconds":  qe.Used,
		})
		return
	}

	var pe *errs.ProviderError
	if errors.As(err, &pe) {
		status := http.StatusBadGateway
		if pe.Status == http.StatusTooManyRequests {
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, map[string]string{
			"error":   string(errs.KindProviderError),
			"message": "speech provider failed",
		})
		return
	}

	status := http.StatusInternalServerError
	switch kind {
	case errs.KindMissingTenantKey, errs.KindInvalidTenant:
		status = http.StatusUnauthorized
	case errs.KindDomainRequired, errs.KindDomainNotAllowed:
		status = http.StatusForbidden
	case errs.KindEmptyInput:
		status = http.StatusUnprocessableEntity
	case errs.KindRateLimited:
		status = http.StatusTooManyRequests
	case errs.KindProviderError:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{
		"error":   string(kind),
		"message": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
