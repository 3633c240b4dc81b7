package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	TasksSubmitted      prometheus.Counter
	TasksCompleted      *prometheus.CounterVec
	DispatchOutcomes    *prometheus.CounterVec
	PredictionFallbacks prometheus.Counter
	RobotsConnected     prometheus.Gauge
}

// New creates the instrument set against the given registerer. Pass a
// fresh registry in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "delegation_tasks_submitted_total",
			Help: "Tasks accepted for orchestration.",
		}),
		TasksCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "delegation_tasks_finished_total",
			Help: "Tasks reaching a terminal status.",
		}, []string{"status"}),
		DispatchOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "delegation_dispatch_outcomes_total",
			Help: "Subtask dispatch outcomes by result.",
		}, []string{"outcome"}),
		PredictionFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "delegation_prediction_fallbacks_total",
			Help: "Scoring calls that fell back to registry strengths.",
		}),
		RobotsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "delegation_robots_connected",
			Help: "Robots currently attached to the command channel.",
		}),
	}
}
