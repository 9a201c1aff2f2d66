package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"resellerhub/internal/auth"
	"resellerhub/internal/guard"
	"resellerhub/internal/store"
	"resellerhub/internal/subscription"
)

const (
	maxBodyBytes = 64 << 10
	// maxRenewDays bounds a single renewal to ten years.
	maxRenewDays = 3660
)

type SubscriptionStore interface {
	GetSubscription(ctx context.Context, storeID string) (subscription.Raw, error)
	UpsertSubscription(ctx context.Context, storeID string, rec subscription.Record) error
}

type StoreCreator interface {
	CreateStore(ctx context.Context, name string) (string, error)
}

type SettingsStore interface {
	GetSettings(ctx context.Context, storeID string) (store.Settings, error)
	SetMaintenanceMode(ctx context.Context, storeID string, enabled bool) error
}

// SnapshotCache is the write side of the snapshot cache.
type SnapshotCache interface {
	Invalidate(ctx context.Context, storeID string) error
	Put(ctx context.Context, storeID string, raw subscription.Raw) error
}

type Handler struct {
	Auth          *auth.Service
	Guards        *guard.Guards
	Stores        StoreCreator
	Subscriptions SubscriptionStore
	Settings      SettingsStore
	Cache         SnapshotCache
	Logger        *zap.Logger

	schema *jsonschema.Schema
}

func NewHandler(authSvc *auth.Service, guards *guard.Guards, stores StoreCreator, subs SubscriptionStore, settings SettingsStore, cache SnapshotCache, logger *zap.Logger) (*Handler, error) {
	schema, err := compileSubscriptionSchema()
	if err != nil {
		return nil, fmt.Errorf("compile subscription schema: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Auth:          authSvc,
		Guards:        guards,
		Stores:        stores,
		Subscriptions: subs,
		Settings:      settings,
		Cache:         cache,
		Logger:        logger,
		schema:        schema,
	}, nil
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	authed := func(fn http.Handler) http.Handler { return h.Auth.Middleware(fn) }

	mux.HandleFunc("/blocked", h.handleBlocked)
	mux.Handle("/v1/subscription/status", authed(http.HandlerFunc(h.handleStatus)))
	mux.Handle("/v1/subscription/plan", authed(http.HandlerFunc(h.handlePlan)))
	mux.Handle("/v1/subscription", authed(http.HandlerFunc(h.handlePutSubscription)))
	mux.Handle("/v1/subscription/renew", authed(http.HandlerFunc(h.handleRenew)))
	mux.Handle("/v1/stores", authed(http.HandlerFunc(h.handleCreateStore)))
	mux.Handle("/v1/settings/maintenance", authed(http.HandlerFunc(h.handleMaintenance)))
	mux.Handle("/admin/ping", authed(h.Guards.Admin(http.HandlerFunc(handlePing))))
	mux.Handle("/seller/ping", authed(h.Guards.Seller(http.HandlerFunc(handlePing))))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	storeID, ok := h.targetStore(w, r)
	if !ok {
		return
	}
	ev, err := h.Guards.Evaluate(r.Context(), storeID)
	if err != nil {
		h.Logger.Error("subscription status load failed", zap.String("store_id", storeID), zap.Error(err))
		http.Error(w, "subscription unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"store_id":   storeID,
		"evaluation": ev,
		"notice":     subscription.Banner(ev),
	})
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	storeID, ok := h.targetStore(w, r)
	if !ok {
		return
	}
	raw, err := h.Guards.Snapshots.Subscription(r.Context(), storeID)
	if err != nil {
		h.Logger.Error("plan load failed", zap.String("store_id", storeID), zap.Error(err))
		http.Error(w, "subscription unavailable", http.StatusServiceUnavailable)
		return
	}
	var rec *subscription.Record
	if raw != nil {
		// Undecodable snapshots summarize as absent.
		rec, _ = subscription.DecodeIn(*raw, h.Guards.Location)
	}
	writeJSON(w, http.StatusOK, subscription.Summarize(rec, h.Guards.Now(), h.Guards.Location))
}

func (h *Handler) handlePutSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	principal, ok := requireSuperAdmin(w, r)
	if !ok {
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.schema.Validate(doc); err != nil {
		http.Error(w, "invalid subscription: "+err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		StoreID string `json:"store_id"`
		subscription.Raw
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	storeID := strings.TrimSpace(req.StoreID)
	if storeID == "" {
		storeID = principal.StoreID
	}
	rec, err := subscription.DecodeIn(req.Raw, h.Guards.Location)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rec.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.writeSubscription(r.Context(), w, storeID, *rec) {
		return
	}
	h.Logger.Info("subscription synced",
		zap.String("store_id", storeID),
		zap.String("status", string(rec.Status)),
		zap.Time("end_date", rec.EndDate),
	)

	ev := subscription.Evaluate(rec, h.Guards.Now(), h.Guards.Location)
	writeJSON(w, http.StatusOK, map[string]any{"store_id": storeID, "evaluation": ev})
}

func (h *Handler) handleRenew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	principal, ok := requireSuperAdmin(w, r)
	if !ok {
		return
	}
	var req struct {
		StoreID string `json:"store_id"`
		Days    int    `json:"days"`
		Plan    string `json:"plan"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Days < 1 || req.Days > maxRenewDays {
		http.Error(w, fmt.Sprintf("days must be between 1 and %d", maxRenewDays), http.StatusBadRequest)
		return
	}
	if len(req.Plan) > 120 {
		http.Error(w, "plan too long", http.StatusBadRequest)
		return
	}
	storeID := strings.TrimSpace(req.StoreID)
	if storeID == "" {
		storeID = principal.StoreID
	}

	var current *subscription.Record
	raw, err := h.Subscriptions.GetSubscription(r.Context(), storeID)
	switch {
	case err == nil:
		if current, err = subscription.DecodeIn(raw, h.Guards.Location); err != nil {
			h.Logger.Error("stored subscription unreadable", zap.String("store_id", storeID), zap.Error(err))
			http.Error(w, "stored subscription unreadable", http.StatusInternalServerError)
			return
		}
	case errors.Is(err, store.ErrNotFound):
		// First term for this store; UpsertSubscription still rejects unknown stores.
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	now := h.Guards.Now()
	next := subscription.RenewRecord(current, now, req.Days, h.Guards.Location)
	if plan := strings.TrimSpace(req.Plan); plan != "" {
		next.Plan = plan
	}
	if !h.writeSubscription(r.Context(), w, storeID, next) {
		return
	}
	h.Logger.Info("subscription renewed",
		zap.String("store_id", storeID),
		zap.Int("days", req.Days),
		zap.Time("end_date", next.EndDate),
	)

	ev := subscription.Evaluate(&next, now, h.Guards.Location)
	writeJSON(w, http.StatusOK, map[string]any{
		"store_id":     storeID,
		"subscription": next.Raw(),
		"evaluation":   ev,
	})
}

// writeSubscription persists rec and refreshes its cache entry. The entry is
// dropped before the write and replaced after it so a read racing the write
// cannot leave the old record cached. It reports whether a response is still
// owed.
func (h *Handler) writeSubscription(ctx context.Context, w http.ResponseWriter, storeID string, rec subscription.Record) bool {
	if err := h.Cache.Invalidate(ctx, storeID); err != nil {
		h.Logger.Warn("cache invalidate failed", zap.String("store_id", storeID), zap.Error(err))
	}
	if err := h.Subscriptions.UpsertSubscription(ctx, storeID, rec); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "store not found", http.StatusNotFound)
		case errors.Is(err, subscription.ErrInvalidRecord):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return false
	}
	if err := h.Cache.Put(ctx, storeID, rec.Raw()); err != nil {
		h.Logger.Warn("cache write failed", zap.String("store_id", storeID), zap.Error(err))
		if err := h.Cache.Invalidate(ctx, storeID); err != nil {
			h.Logger.Error("cache left stale", zap.String("store_id", storeID), zap.Error(err))
		}
	}
	return true
}

func (h *Handler) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireSuperAdmin(w, r); !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}
	id, err := h.Stores.CreateStore(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Logger.Info("store created", zap.String("store_id", id), zap.String("name", name))
	writeJSON(w, http.StatusCreated, map[string]any{"store_id": id, "name": name})
}

func (h *Handler) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		principal, _ := auth.PrincipalFromContext(r.Context())
		settings, err := h.Settings.GetSettings(r.Context(), principal.StoreID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "store not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"maintenance_mode": settings.MaintenanceMode})
	case http.MethodPut:
		h.Guards.Admin(http.HandlerFunc(h.putMaintenance)).ServeHTTP(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) putMaintenance(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var req struct {
		MaintenanceMode *bool `json:"maintenance_mode"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.MaintenanceMode == nil {
		http.Error(w, "missing maintenance_mode", http.StatusBadRequest)
		return
	}
	if err := h.Settings.SetMaintenanceMode(r.Context(), principal.StoreID, *req.MaintenanceMode); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "store not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Logger.Info("maintenance mode changed", zap.String("store_id", principal.StoreID), zap.Bool("enabled", *req.MaintenanceMode))
	writeJSON(w, http.StatusOK, map[string]any{"maintenance_mode": *req.MaintenanceMode})
}

func (h *Handler) handleBlocked(w http.ResponseWriter, r *http.Request) {
	var message string
	switch r.URL.Query().Get("reason") {
	case "suspended":
		message = "Your store subscription is suspended. Contact support to reactivate it."
	case "expired":
		message = "Your subscription has expired and the grace period is over. Renew your plan to restore access."
	case "none":
		message = "This store has no active subscription."
	case "role":
		message = "Your account does not have access to the administration area."
	case "unavailable":
		message = "We could not verify your subscription right now. Please try again in a moment."
	default:
		message = "Access to this area is blocked."
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = fmt.Fprintf(w, "<html><body><h1>Access blocked</h1><p>%s</p></body></html>", html.EscapeString(message))
}

func requireSuperAdmin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	if !principal.IsSuperAdmin() {
		http.Error(w, auth.ErrForbidden.Error(), http.StatusForbidden)
		return principal, false
	}
	return principal, true
}

// targetStore resolves which store a read is for. Superadmins may inspect
// any store with ?store_id=.
func (h *Handler) targetStore(w http.ResponseWriter, r *http.Request) (string, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	storeID := principal.StoreID
	if qp := strings.TrimSpace(r.URL.Query().Get("store_id")); qp != "" && principal.IsSuperAdmin() {
		storeID = qp
	}
	if storeID == "" {
		http.Error(w, "missing store_id", http.StatusBadRequest)
		return "", false
	}
	return storeID, true
}

func handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
