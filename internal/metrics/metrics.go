package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "mediagen"

var (
	BackendJobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_jobs_submitted_total",
			Help:      "Total number of jobs submitted to the image backend, labeled by result.",
		},
		[]string{"result"},
	)

	BackendJobOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_job_outcomes_total",
			Help:      "Terminal outcomes observed while polling backend jobs.",
		},
		[]string{"outcome"},
	)

	BackendPollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_poll_attempts",
			Help:      "Number of history polls needed before a job reached a terminal state.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300, 900},
		},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation requests handled, labeled by media kind and status.",
		},
		[]string{"kind", "status"},
	)

	GenerationLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_seconds",
			Help:      "End-to-end latency of a generation request (seconds).",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 900},
		},
		[]string{"kind", "status"},
	)

	WebhookTriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_triggers_total",
			Help:      "Automation webhook invocations, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		BackendJobsSubmittedTotal,
		BackendJobOutcomesTotal,
		BackendPollAttempts,
		GenerationsTotal,
		GenerationLatencySeconds,
		WebhookTriggersTotal,
	)
}

// Status maps a success flag to the label value used across counters.
func Status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
