// Package admin is the management surface: secret-to-token exchange, tenant
// provisioning, and cache budget introspection.
package admin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/easyaudio/easyaudio/internal/auth"
	"github.com/easyaudio/easyaudio/internal/cache"
	"github.com/easyaudio/easyaudio/internal/db"
	"github.com/easyaudio/easyaudio/internal/models"
	"github.com/easyaudio/easyaudio/internal/quota"
	"github.com/easyaudio/easyaudio/internal/tenantauth"
)

const tenantKeyPrefix = "pk_live_"

type Handler struct {
	db          *db.DB
	evictor     *cache.Evictor
	adminSecret string
	jwtSecret   string
	log         *slog.Logger
}

func NewHandler(database *db.DB, evictor *cache.Evictor, adminSecret, jwtSecret string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		db:          database,
		evictor:     evictor,
		adminSecret: adminSecret,
		jwtSecret:   jwtSecret,
		log:         logger.With("component", "admin"),
	}
}

// RegisterRoutes mounts the token exchange openly and everything else behind
// the admin bearer token.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/token", h.IssueToken).Methods("POST")

	mw := auth.NewMiddleware(h.jwtSecret)
	protected := router.PathPrefix("/admin").Subrouter()
	protected.Use(mw.RequireAdmin)
	protected.HandleFunc("/tenants", h.ListTenants).Methods("GET")
	protected.HandleFunc("/tenants", h.CreateTenant).Methods("POST")
	protected.HandleFunc("/tenants/{key}", h.GetTenant).Methods("GET")
	protected.HandleFunc("/tenants/{key}", h.UpdateTenant).Methods("PUT")
	protected.HandleFunc("/cache/stats", h.CacheStats).Methods("GET")
}

// IssueToken exchanges the deployment's admin secret for a bearer token.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if h.adminSecret == "" ||
		subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.adminSecret)) != 1 {
		h.log.Warn("admin token exchange rejected")
		http.Error(w, "Invalid secret", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateAdminToken(h.jwtSecret)
	if err != nil {
		h.log.Error("token generation failed", "error", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanTier             string   `json:"plan_tier"`
		AllowedDomains       []string `json:"allowed_domains"`
		ContactEmail         string   `json:"contact_email"`
		QuotaOverrideSeconds *int     `json:"quota_override_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !models.ValidPlan(req.PlanTier) {
		http.Error(w, "Unknown plan_tier", http.StatusBadRequest)
		return
	}
	domains := tenantauth.NormalizeDomains(req.AllowedDomains)
	if len(domains) == 0 {
		http.Error(w, "At least one allowed domain is required", http.StatusBadRequest)
		return
	}

	key, err := generateTenantKey()
	if err != nil {
		http.Error(w, "Failed to generate tenant key", http.StatusInternalServerError)
		return
	}

	tenant := &models.Tenant{
		TenantKey:            key,
		PlanTier:             req.PlanTier,
		RenewalAt:            time.Now().Add(quota.RenewalWindow),
		AllowedDomains:       domains,
		Status:               "active",
		ContactEmail:         req.ContactEmail,
		QuotaOverrideSeconds: req.QuotaOverrideSeconds,
	}
	if err := h.db.CreateTenant(r.Context(), tenant); err != nil {
		h.log.Error("tenant create failed", "error", err)
		http.Error(w, "Failed to create tenant", http.StatusInternalServerError)
		return
	}

	h.log.Info("tenant created", "key", tenantauth.RedactKey(key), "plan", tenant.PlanTier)
	writeJSON(w, http.StatusCreated, tenant)
}

func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.db.ListTenants(r.Context())
	if err != nil {
		h.log.Error("tenant list failed", "error", err)
		http.Error(w, "Failed to list tenants", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}

func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	tenant, err := h.db.GetTenant(r.Context(), key)
	if err != nil {
		h.log.Error("tenant lookup failed", "error", err)
		http.Error(w, "Failed to fetch tenant", http.StatusInternalServerError)
		return
	}
	if tenant == nil {
		http.Error(w, "Tenant not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (h *Handler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req struct {
		PlanTier             *string  `json:"plan_tier"`
		AllowedDomains       []string `json:"allowed_domains"`
		Status               *string  `json:"status"`
		ContactEmail         *string  `json:"contact_email"`
		QuotaOverrideSeconds *int     `json:"quota_override_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.PlanTier != nil && !models.ValidPlan(*req.PlanTier) {
		http.Error(w, "Unknown plan_tier", http.StatusBadRequest)
		return
	}

	updates := db.TenantUpdates{
		PlanTier:             req.PlanTier,
		Status:               req.Status,
		ContactEmail:         req.ContactEmail,
		QuotaOverrideSeconds: req.QuotaOverrideSeconds,
	}
	if req.AllowedDomains != nil {
		domains := tenantauth.NormalizeDomains(req.AllowedDomains)
		if len(domains) == 0 {
			http.Error(w, "At least one allowed domain is required", http.StatusBadRequest)
			return
		}
		updates.AllowedDomains = domains
	}

	if err := h.db.UpdateTenant(r.Context(), key, updates); err != nil {
		h.log.Error("tenant update failed", "key", tenantauth.RedactKey(key), "error", err)
		http.Error(w, "Failed to update tenant", http.StatusInternalServerError)
		return
	}

	tenant, err := h.db.GetTenant(r.Context(), key)
	if err != nil || tenant == nil {
		http.Error(w, "Tenant not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (h *Handler) CacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.evictor.Stats())
}

func generateTenantKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return tenantKeyPrefix + hex.EncodeToString(buf), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
