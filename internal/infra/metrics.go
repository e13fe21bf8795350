package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments the service records. The poller is
// the main producer; the point of the adaptive loop is keeping runner call
// volume proportional to in-flight jobs, and these counters make that visible.
type Metrics struct {
	PollerTicks  prometheus.Counter
	RunnerCalls  *prometheus.CounterVec
	Transitions  *prometheus.CounterVec
	ActiveJobs   prometheus.Gauge
	PollConflict prometheus.Counter
}

// NewMetrics registers the service instruments on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PollerTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "extractd_poller_ticks_total",
			Help: "Reconciliation cycles executed.",
		}),
		RunnerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extractd_runner_calls_total",
			Help: "Remote runner API calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extractd_job_transitions_total",
			Help: "Job status transitions by source and target status.",
		}, []string{"from", "to"}),
		ActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "extractd_active_jobs",
			Help: "Jobs currently in flight, as of the last reconciliation cycle.",
		}),
		PollConflict: factory.NewCounter(prometheus.CounterOpts{
			Name: "extractd_poll_conflicts_total",
			Help: "Conditional updates dropped because a concurrent writer won.",
		}),
	}
}
