package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dipak0000812/credtrack/internal/metrics"
)

// RouterConfig wires the HTTP router.
type RouterConfig struct {
	Certificates CertificateService
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Log          *zap.Logger

	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter builds the HTTP handler of the certificate server.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewMetrics(prometheus.NewRegistry())
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := NewHandler(cfg.Certificates, log)

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Instrument(log, m))
	r.Use(Recover(log))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/cms/certificates", func(r chi.Router) {
		r.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		r.Get("/view-cert", h.ViewCertificate)
		r.Get("/download", h.DownloadCertificate)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "not found")
	})

	return r
}
