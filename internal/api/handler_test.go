package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"github.com/easyaudio/easyaudio/internal/cache"
	"github.com/easyaudio/easyaudio/internal/config"
	"github.com/easyaudio/easyaudio/internal/engine"
	"github.com/easyaudio/easyaudio/internal/models"
	"github.com/easyaudio/easyaudio/internal/provider"
	"github.com/easyaudio/easyaudio/internal/quota"
	"github.com/easyaudio/easyaudio/internal/tenantauth"
	"github.com/easyaudio/easyaudio/internal/usage"
)

type fakeTenantStore struct {
	tenants map[string]*models.Tenant
}

func (f *fakeTenantStore) GetTenant(_ context.Context, key string) (*models.Tenant, error) {
	return f.tenants[key], nil
}

type fakeQuotaStore struct {
	mu   sync.Mutex
	used int
}

func (f *fakeQuotaStore) ResetCycle(_ context.Context, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used = 0
	return nil
}

func (f *fakeQuotaStore) AddUsedSeconds(_ context.Context, _ string, seconds int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used += seconds
	return f.used, nil
}

type countingProvider struct {
	calls atomic.Int64
}

func (p *countingProvider) Synthesize(_ context.Context, _ provider.Request) ([]byte, error) {
	p.calls.Add(1)
	return []byte("mp3-bytes"), nil
}

type fakeLimiter struct {
	denyScope string
}

func (f *fakeLimiter) Allow(_ context.Context, scope, _ string, _ int, _ time.Duration) (bool, error) {
	return scope != f.denyScope, nil
}

func testConfig() *config.Config {
	return &config.Config{
		AppURL:             "https://tts.example.com",
		CacheScope:         config.ScopeTenant,
		VoiceID:            "default-voice",
		ModelID:            "eleven_turbo_v2",
		MinTextChars:       8,
		MaxTextChars:       160000,
		RateLimitPerIP:     60,
		RateLimitPerTenant: 300,
		RateLimitWindow:    time.Minute,
	}
}

func newTestHandler(t *testing.T, prov engine.Provider, limiter RateLimiter) (*Handler, *fakeTenantStore) {
	t.Helper()
	cs, err := cache.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("cache store: %v", err)
	}
	eng := engine.New(engine.Options{
		Cache:        cs,
		Evictor:      cache.NewEvictor(cs, 1<<30, 1000, nil),
		Ledger:       quota.NewLedger(&fakeQuotaStore{}, quota.DefaultPolicy(), nil),
		Provider:     prov,
		Accountant:   usage.NewAccountant(nil),
		TenantScoped: true,
	})
	tenants := &fakeTenantStore{tenants: map[string]*models.Tenant{
		"pk_live_valid": {
			TenantKey:      "pk_live_valid",
			PlanTier:       models.PlanCreator,
			RenewalAt:      time.Now().Add(24 * time.Hour),
			AllowedDomains: []string{"app.example.com"},
			Status:         "active",
		},
	}}
	resolver := tenantauth.NewResolver(tenants, false, nil)
	return NewHandler(testConfig(), eng, resolver, limiter, nil), tenants
}

func doSynthesize(h *Handler, body string, hdr map[string]string) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	req := httptest.NewRequest(http.MethodPost, "/synthesize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://app.example.com")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestSynthesizeMissThenHit(t *testing.T) {
	prov := &countingProvider{}
	h, _ := newTestHandler(t, prov, nil)
	body := `{"text":"Welcome to the evening news briefing.","tenant":"pk_live_valid"}`

	rr := doSynthesize(h, body, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("first call status = %d, body %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Cache"); got != "MISS" {
		t.Fatalf("first call X-Cache = %q", got)
	}
	var first synthesizeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Hit || first.DurationSeconds <= 0 {
		t.Fatalf("miss response malformed: %+v", first)
	}
	if !strings.HasPrefix(first.AudioURL, "https://tts.example.com/cache/") {
		t.Fatalf("audioUrl = %q", first.AudioURL)
	}
	if first.QuotaLimit != 7200 {
		t.Fatalf("creator quota limit = %d", first.QuotaLimit)
	}

	rr = doSynthesize(h, body, nil)
	if rr.Code != http.StatusOK || rr.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second call: status=%d X-Cache=%q", rr.Code, rr.Header().Get("X-Cache"))
	}
	var second synthesizeResponse
	json.Unmarshal(rr.Body.Bytes(), &second)
	if !second.Hit || second.AudioURL != first.AudioURL {
		t.Fatalf("hit should reuse the artifact: %+v", second)
	}
	if prov.calls.Load() != 1 {
		t.Fatalf("provider calls = %d", prov.calls.Load())
	}
}

func TestSynthesizeWhitespaceVariantsShareEntry(t *testing.T) {
	prov := &countingProvider{}
	h, _ := newTestHandler(t, prov, nil)

	doSynthesize(h, `{"text":"Hello   wonderful\n\tworld today","tenant":"pk_live_valid"}`, nil)
	rr := doSynthesize(h, `{"text":"  Hello wonderful world today ","tenant":"pk_live_valid"}`, nil)
	if rr.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("normalized variants should share a cache entry, got %q", rr.Header().Get("X-Cache"))
	}
	if prov.calls.Load() != 1 {
		t.Fatalf("provider calls = %d", prov.calls.Load())
	}
}

func TestSynthesizeMissingTenantKey(t *testing.T) {
	prov := &countingProvider{}
	h, _ := newTestHandler(t, prov, nil)

	rr := doSynthesize(h, `{"text":"A long enough line of text."}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string]string
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["error"] != "missing_tenant_key" {
		t.Fatalf("error = %q", resp["error"])
	}
	if prov.calls.Load() != 0 {
		t.Fatalf("provider must not be called")
	}
}

func TestSynthesizeUnknownTenant(t *testing.T) {
	h, _ := newTestHandler(t, &countingProvider{}, nil)
	rr := doSynthesize(h, `{"text":"A long enough line of text.","tenant":"pk_live_nope"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSynthesizeHeaderKeyWinsOverBody(t *testing.T) {
	h, store := newTestHandler(t, &countingProvider{}, nil)
	store.tenants["pk_live_header"] = &models.Tenant{
		TenantKey:      "pk_live_header",
		PlanTier:       models.PlanTrial,
		RenewalAt:      time.Now().Add(24 * time.Hour),
		AllowedDomains: []string{"app.example.com"},
		Status:         "active",
	}

	rr := doSynthesize(h,
		`{"text":"A long enough line of text.","tenant":"pk_live_valid"}`,
		map[string]string{"X-Tenant-Key": "pk_live_header"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rr.Code, rr.Body.String())
	}
	var resp synthesizeResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.QuotaLimit != 600 {
		t.Fatalf("expected the header tenant's trial limit, got %d", resp.QuotaLimit)
	}
}

func TestSynthesizeDomainNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t, &countingProvider{}, nil)
	rr := doSynthesize(h,
		`{"text":"A long enough line of text.","tenant":"pk_live_valid"}`,
		map[string]string{"Origin": "https://evil.example.net"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string]string
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["error"] != "domain_not_allowed" {
		t.Fatalf("error = %q", resp["error"])
	}
}

func TestSynthesizeEmptyInput(t *testing.T) {
	prov := &countingProvider{}
	h, _ := newTestHandler(t, prov, nil)

	for _, body := range []string{
		`{"text":"","tenant":"pk_live_valid"}`,
		`{"text":"   \n\t  ","tenant":"pk_live_valid"}`,
		`{"text":"short","tenant":"pk_live_valid"}`,
		// 3 characters, 9 bytes: the minimum counts characters.
		`{"text":"声音波","tenant":"pk_live_valid"}`,
	} {
		rr := doSynthesize(h, body, nil)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("body %s: status = %d", body, rr.Code)
		}
	}
	if prov.calls.Load() != 0 {
		t.Fatalf("provider must not be called for empty input")
	}
}

func TestSynthesizeRateLimited(t *testing.T) {
	h, _ := newTestHandler(t, &countingProvider{}, &fakeLimiter{denyScope: "ip"})
	rr := doSynthesize(h, `{"text":"A long enough line of text.","tenant":"pk_live_valid"}`, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSynthesizeTenantRateLimited(t *testing.T) {
	h, _ := newTestHandler(t, &countingProvider{}, &fakeLimiter{denyScope: "tenant"})
	rr := doSynthesize(h, `{"text":"A long enough line of text.","tenant":"pk_live_valid"}`, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSynthesizeCapsTextByCharacters(t *testing.T) {
	prov := &countingProvider{}
	h, _ := newTestHandler(t, prov, nil)
	h.cfg.MaxTextChars = 10

	// 12 multi-byte characters: the cap must keep whole runes.
	body := `{"text":"声音声音声音声音声音声音","tenant":"pk_live_valid"}`
	rr := doSynthesize(h, body, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rr.Code, rr.Body.String())
	}

	// The same text capped to 10 characters must land on the same entry.
	rr = doSynthesize(h, `{"text":"声音声音声音声音声音","tenant":"pk_live_valid"}`, nil)
	if rr.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("capped text should share the 10-char entry, got %q", rr.Header().Get("X-Cache"))
	}
	if prov.calls.Load() != 1 {
		t.Fatalf("provider calls = %d", prov.calls.Load())
	}
}

func TestTruncateRunes(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"声音波形", 2, "声音"},
		{"", 5, ""},
	}
	for _, tc := range cases {
		got := truncateRunes(tc.in, tc.max)
		if got != tc.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncateRunes(%q, %d) produced invalid UTF-8", tc.in, tc.max)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	cases := map[string]string{
		"  hello  world  ":     "hello world",
		"line\none\n\nline two": "line one line two",
		"tabs\t\tcollapse":      "tabs collapse",
		"":                      "",
	}
	for in, want := range cases {
		if got := NormalizeText(in); got != want {
			t.Errorf("NormalizeText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, &countingProvider{}, nil)
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}
