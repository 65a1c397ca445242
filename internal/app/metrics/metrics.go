package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rewards",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rewards",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	tokensCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "ledger",
			Name:      "tokens_created_total",
			Help:      "Total number of tokens created, by type.",
		},
		[]string{"type"},
	)

	tokensDecided = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "ledger",
			Name:      "tokens_decided_total",
			Help:      "Total number of tokens moved to a terminal state.",
		},
		[]string{"type", "status"},
	)

	tokensExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "ledger",
			Name:      "tokens_expired_total",
			Help:      "Total number of pending tokens swept by the expiry worker.",
		},
	)

	commissionPaid = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "referral",
			Name:      "commission_paid_total",
			Help:      "Total referral commission credited, in smallest units.",
		},
	)

	raffleDraws = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "raffle",
			Name:      "draws_total",
			Help:      "Total number of raffle rounds drawn.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		tokensCreated,
		tokensDecided,
		tokensExpired,
		commissionPaid,
		raffleDraws,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordTokenCreated records a newly minted token.
func RecordTokenCreated(tokenType string) {
	tokensCreated.WithLabelValues(tokenType).Inc()
}

// RecordTokenDecided records a terminal transition.
func RecordTokenDecided(tokenType, status string) {
	tokensDecided.WithLabelValues(tokenType, status).Inc()
}

// RecordTokensExpired records a sweep of expired pending tokens.
func RecordTokensExpired(count int64) {
	if count <= 0 {
		return
	}
	tokensExpired.Add(float64(count))
}

// RecordCommissionPaid records credited referral commission.
func RecordCommissionPaid(amount int64) {
	if amount <= 0 {
		return
	}
	commissionPaid.Add(float64(amount))
}

// RecordRaffleDraw records a settled raffle round.
func RecordRaffleDraw() {
	raffleDraws.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "users":
		if len(parts) == 1 {
			return "/users"
		}
		if len(parts) == 2 {
			return "/users/:id"
		}
		return "/users/:id/" + parts[2]
	case "tokens":
		if len(parts) == 1 {
			return "/tokens"
		}
		return "/tokens/:id"
	case "admin":
		if len(parts) <= 2 {
			return "/" + trimmed
		}
		if len(parts) == 3 {
			return "/admin/" + parts[1] + "/:id"
		}
		return "/admin/" + parts[1] + "/:id/" + parts[3]
	case "raffles":
		if len(parts) == 1 {
			return "/raffles"
		}
		if len(parts) == 2 {
			return "/raffles/" + parts[1]
		}
		return "/raffles/:id/" + parts[2]
	}
	return "/" + parts[0]
}
