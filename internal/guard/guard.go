package guard

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"resellerhub/internal/auth"
	"resellerhub/internal/observability"
	"resellerhub/internal/store"
	"resellerhub/internal/subscription"
)

// SnapshotSource returns the freshest subscription record for a store, or nil
// when it has none.
type SnapshotSource interface {
	Subscription(ctx context.Context, storeID string) (*subscription.Raw, error)
}

type SettingsSource interface {
	GetSettings(ctx context.Context, storeID string) (store.Settings, error)
}

type Guards struct {
	Snapshots   SnapshotSource
	Settings    SettingsSource
	Observer    *observability.GuardObserver
	Logger      *zap.Logger
	Location    *time.Location
	BlockedPath string
	Now         func() time.Time
}

func New(snapshots SnapshotSource, settings SettingsSource, observer *observability.GuardObserver, logger *zap.Logger, loc *time.Location, blockedPath string) *Guards {
	if logger == nil {
		logger = zap.NewNop()
	}
	if blockedPath == "" {
		blockedPath = "/blocked"
	}
	return &Guards{
		Snapshots:   snapshots,
		Settings:    settings,
		Observer:    observer,
		Logger:      logger,
		Location:    loc,
		BlockedPath: blockedPath,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate loads the store's snapshot and classifies it at the current time.
// Load failures classify as absent.
func (g *Guards) Evaluate(ctx context.Context, storeID string) (subscription.Evaluation, error) {
	raw, err := g.Snapshots.Subscription(ctx, storeID)
	ev := subscription.EvaluateRaw(raw, g.Now(), g.Location)
	g.Observer.RecordEvaluation(string(ev.DisplayStatus))
	return ev, err
}

// Admin renders next only for admin or superadmin principals whose store
// subscription is not blocked. Everything else is redirected to the blocked page.
func (g *Guards) Admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			g.Observer.RecordDeny("admin", "", "unauthenticated")
			g.redirect(w, r, "unauthenticated")
			return
		}
		if !principal.IsAdmin() {
			g.Observer.RecordDeny("admin", principal.StoreID, "role_"+string(principal.Role))
			g.redirect(w, r, "role")
			return
		}

		ev, err := g.Evaluate(r.Context(), principal.StoreID)
		if err != nil {
			g.Logger.Error("subscription load failed", zap.String("store_id", principal.StoreID), zap.Error(err))
			g.Observer.RecordDeny("admin", principal.StoreID, "load_failed")
			g.redirect(w, r, "unavailable")
			return
		}
		if ev.AccessBlocked {
			g.Observer.RecordDeny("admin", principal.StoreID, "subscription_"+string(ev.DisplayStatus))
			g.redirect(w, r, string(ev.DisplayStatus))
			return
		}

		g.Observer.RecordAllow("admin", principal.StoreID, "subscription_"+string(ev.DisplayStatus))
		next.ServeHTTP(w, r)
	})
}

// Seller replaces next with a maintenance notice while the store has
// maintenance mode on. Subscription state plays no part here.
func (g *Guards) Seller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		settings, err := g.Settings.GetSettings(r.Context(), principal.StoreID)
		if err != nil {
			g.Logger.Error("store settings load failed", zap.String("store_id", principal.StoreID), zap.Error(err))
			http.Error(w, "store settings unavailable", http.StatusServiceUnavailable)
			return
		}
		if settings.MaintenanceMode {
			g.Observer.RecordDeny("seller", principal.StoreID, "maintenance")
			writeMaintenance(w)
			return
		}
		g.Observer.RecordAllow("seller", principal.StoreID, "open")
		next.ServeHTTP(w, r)
	})
}

func (g *Guards) redirect(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, g.BlockedPath+"?reason="+reason, http.StatusSeeOther)
}

func writeMaintenance(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Retry-After", "300")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("<html><body><h1>Store under maintenance</h1><p>We are making improvements. Please come back shortly.</p></body></html>"))
}
