package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
)

// Metrics names as constants for consistency.
const (
	MetricHTTPRequestsTotal    = "http_requests_total"
	MetricHTTPRequestDuration  = "http_request_duration_seconds"
	MetricHTTPRequestsInFlight = "http_requests_in_flight"
	MetricRateLimitBlocked     = "rate_limit_blocked_total"
	MetricAuditsTotal          = "audits_total"
	MetricAuditDuration        = "audit_duration_seconds"
	MetricAIEnrichmentFailures = "ai_enrichment_failures_total"
	MetricCreditsConsumed      = "credits_consumed_total"
)

// Metrics holds every Prometheus collector of the API. It also receives audit pipeline events.
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
	rateLimitBlocked     *prometheus.CounterVec
	auditsTotal          *prometheus.CounterVec
	auditDuration        *prometheus.HistogramVec
	aiFailures           prometheus.Counter
	creditsConsumed      prometheus.Counter
}

// NewMetrics creates the collectors. Call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: MetricHTTPRequestsTotal, Help: "Total number of HTTP requests"},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPRequestDuration,
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 15, 30, 60, 120},
			},
			[]string{"method", "route"},
		),
		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: MetricHTTPRequestsInFlight, Help: "HTTP requests currently being served"},
		),
		rateLimitBlocked: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: MetricRateLimitBlocked, Help: "Requests rejected by the rate limiter"},
			[]string{"key_type"},
		),
		auditsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: MetricAuditsTotal, Help: "Audits finished, by status"},
			[]string{"status"},
		),
		auditDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricAuditDuration,
				Help:    "Wall time of an audit from request to result",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
			},
			[]string{"status"},
		),
		aiFailures: prometheus.NewCounter(
			prometheus.CounterOpts{Name: MetricAIEnrichmentFailures, Help: "AI summaries that fell back to an error value"},
		),
		creditsConsumed: prometheus.NewCounter(
			prometheus.CounterOpts{Name: MetricCreditsConsumed, Help: "Credits debited for audits"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.rateLimitBlocked,
		m.auditsTotal,
		m.auditDuration,
		m.aiFailures,
		m.creditsConsumed,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) AuditFinished(status domain.Status, d time.Duration) {
	m.auditsTotal.WithLabelValues(string(status)).Inc()
	m.auditDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}

func (m *Metrics) AIEnrichmentFailed() { m.aiFailures.Inc() }

func (m *Metrics) CreditsConsumed(n int) { m.creditsConsumed.Add(float64(n)) }

func (m *Metrics) IncRateLimitBlocked(keyType string) {
	m.rateLimitBlocked.WithLabelValues(keyType).Inc()
}

// HTTP records request count and latency labelled by the chi route pattern,
// so /audits/{id} stays one series.
func (m *Metrics) HTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		start := time.Now()
		wrapped := newResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
