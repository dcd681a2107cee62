package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "credtrack"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	ReportsStarted   *prometheus.CounterVec
	ReportsCompleted *prometheus.CounterVec
	ReportsFailed    *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	PollRequests     prometheus.Counter
	PollRetries      prometheus.Counter
	ArtifactBytes    prometheus.Histogram

	CertificatesRendered *prometheus.CounterVec
	CertificatesRejected *prometheus.CounterVec
	RenderDuration       prometheus.Histogram

	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ReportsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_started_total",
			Help:      "Total number of report generation jobs started",
		}, []string{"kind"}),
		ReportsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_completed_total",
			Help:      "Total number of reports delivered, from a job or the cache",
		}, []string{"kind", "source"}),
		ReportsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_failed_total",
			Help:      "Total number of reports that failed by reason",
		}, []string{"kind", "reason"}),
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_hits_total",
			Help:      "Total number of fresh report cache hits",
		}, []string{"kind"}),
		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_misses_total",
			Help:      "Total number of report cache misses, stale entries included",
		}, []string{"kind"}),
		PollRequests: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_poll_requests_total",
			Help:      "Total number of job status requests",
		}),
		PollRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_poll_retries_total",
			Help:      "Total number of status poll retries",
		}),
		ArtifactBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_artifact_bytes",
			Help:      "Decompressed size of fetched report artifacts",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		CertificatesRendered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_rendered_total",
			Help:      "Total number of certificate PDFs rendered and uploaded",
		}, []string{"type"}),
		CertificatesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_rejected_total",
			Help:      "Total number of certificate requests rejected before rendering",
		}, []string{"reason"}),
		RenderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "certificate_render_duration_seconds",
			Help:      "Headless browser render duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
	}
}
