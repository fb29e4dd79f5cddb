package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the application's Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ImportJobsTotal       *prometheus.CounterVec
	ImportJobDuration     *prometheus.HistogramVec
	ConversationsImported prometheus.Counter
	MessagesImported      prometheus.Counter
	ArtifactsImported     prometheus.Counter
}

var durationBuckets = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300}

// NewMetrics registers all collectors on reg (DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "convault",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "convault",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"method", "route"},
		),
		ImportJobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "convault",
				Subsystem: "importer",
				Name:      "jobs_total",
				Help:      "Import jobs finished, by terminal status",
			},
			[]string{"provider", "status"},
		),
		ImportJobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "convault",
				Subsystem: "importer",
				Name:      "job_duration_seconds",
				Help:      "Import job wall time in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"provider"},
		),
		ConversationsImported: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "convault",
			Subsystem: "importer",
			Name:      "conversations_imported_total",
			Help:      "Conversations persisted by import jobs",
		}),
		MessagesImported: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "convault",
			Subsystem: "importer",
			Name:      "messages_imported_total",
			Help:      "Messages persisted by import jobs",
		}),
		ArtifactsImported: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "convault",
			Subsystem: "importer",
			Name:      "artifacts_imported_total",
			Help:      "Artifact descriptors persisted by import jobs",
		}),
	}
}

// ObserveJob records one finished import job.
func (m *Metrics) ObserveJob(provider, status string, duration time.Duration, conversations, messages, artifacts int) {
	if m == nil {
		return
	}
	m.ImportJobsTotal.WithLabelValues(provider, status).Inc()
	m.ImportJobDuration.WithLabelValues(provider).Observe(duration.Seconds())
	m.ConversationsImported.Add(float64(conversations))
	m.MessagesImported.Add(float64(messages))
	m.ArtifactsImported.Add(float64(artifacts))
}
