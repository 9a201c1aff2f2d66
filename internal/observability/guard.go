package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// GuardObserver records allow/deny decisions of the route guards.
type GuardObserver struct {
	logger *zap.Logger

	decisions   *prometheus.CounterVec
	evaluations *prometheus.CounterVec

	mu         sync.Mutex
	denyCounts map[string]int64
}

func NewGuardObserver(registry prometheus.Registerer, logger *zap.Logger) *GuardObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)
	return &GuardObserver{
		logger: logger,
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resellerhub_guard_decisions_total",
			Help: "Route guard decisions by guard, outcome and reason.",
		}, []string{"guard", "outcome", "reason"}),
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resellerhub_subscription_evaluations_total",
			Help: "Subscription evaluations by display status.",
		}, []string{"display_status"}),
		denyCounts: make(map[string]int64),
	}
}

func (o *GuardObserver) RecordEvaluation(displayStatus string) {
	if o == nil {
		return
	}
	o.evaluations.WithLabelValues(displayStatus).Inc()
}

func (o *GuardObserver) RecordAllow(guard, storeID, reason string) {
	if o == nil {
		return
	}
	o.decisions.WithLabelValues(guard, "allow", reason).Inc()
	o.logger.Debug("guard allow", zap.String("guard", guard), zap.String("store_id", storeID), zap.String("reason", reason))
}

func (o *GuardObserver) RecordDeny(guard, storeID, reason string) {
	if o == nil {
		return
	}
	o.decisions.WithLabelValues(guard, "deny", reason).Inc()

	o.mu.Lock()
	o.denyCounts[storeID]++
	count := o.denyCounts[storeID]
	o.mu.Unlock()

	o.logger.Info("guard deny",
		zap.String("guard", guard),
		zap.String("store_id", storeID),
		zap.String("reason", reason),
		zap.Int64("count", count),
	)
	if count%10 == 0 {
		o.logger.Warn("guard repeated denials", zap.String("store_id", storeID), zap.String("reason", reason), zap.Int64("count", count))
	}
}

// DenyCount reports how many denials storeID has accumulated in this process.
func (o *GuardObserver) DenyCount(storeID string) int64 {
	if o == nil {
		return 0
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.denyCounts[storeID]
}
