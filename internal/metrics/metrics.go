package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	OutboundMessages *prometheus.CounterVec
	RepliesIngested  *prometheus.CounterVec
	OpenEvents       prometheus.Counter
	Unsubscribes     *prometheus.CounterVec
	JobRuns          *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	LLMRequests      *prometheus.CounterVec
	LLMLatency       *prometheus.HistogramVec
	SearchRequests   *prometheus.CounterVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			OutboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbound_messages_total",
				Help:      "Total outbound messages by channel and resulting status.",
			}, []string{"channel", "status"}),
			RepliesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replies_ingested_total",
				Help:      "Total inbound replies recorded by channel.",
			}, []string{"channel"}),
			OpenEvents: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "open_events_total",
				Help:      "Total tracking pixel open events recorded.",
			}),
			Unsubscribes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unsubscribes_total",
				Help:      "Total unsubscribe entries created by source.",
			}, []string{"source"}),
			JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Total scheduled job runs by job and outcome.",
			}, []string{"job", "outcome"}),
			JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration distribution for scheduled job runs.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"job"}),
			LLMRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total LLM API requests by outcome.",
			}, []string{"status"}),
			LLMLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Latency distribution for LLM API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			SearchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_requests_total",
				Help:      "Total contact search API requests by outcome.",
			}, []string{"status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.OutboundMessages,
			metricsInstance.RepliesIngested,
			metricsInstance.OpenEvents,
			metricsInstance.Unsubscribes,
			metricsInstance.JobRuns,
			metricsInstance.JobDuration,
			metricsInstance.LLMRequests,
			metricsInstance.LLMLatency,
			metricsInstance.SearchRequests,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
