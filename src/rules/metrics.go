package rules

import (
	"budgee-automation/src/models"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	Evaluations      *prometheus.CounterVec
	Actions          *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	RecursionGuarded prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "budgee_rule_evaluations_total",
			Help: "Rule evaluations by resulting execution status",
		}, []string{"status"}),
		Actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "budgee_rule_actions_total",
			Help: "Rule actions executed by type and outcome",
		}, []string{"type", "outcome"}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "budgee_rule_dispatch_duration_seconds",
			Help:    "Time spent dispatching one trigger event",
			Buckets: prometheus.DefBuckets,
		}),
		RecursionGuarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "budgee_rule_recursion_guard_total",
			Help: "Trigger events skipped by the recursion guard",
		}),
	}
}

func (m *Metrics) observeEvaluation(status models.ExecutionStatus) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) observeAction(result models.ActionResult) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(string(result.Type), string(result.Outcome)).Inc()
}

func (m *Metrics) observeDispatch(started time.Time) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) incRecursionGuarded() {
	if m == nil {
		return
	}
	m.RecursionGuarded.Inc()
}
