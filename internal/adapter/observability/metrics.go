package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of completion attempts by outcome",
		},
		[]string{"outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Completion backend request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"operation"},
	)
	AIFallbackRepliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_fallback_replies_total",
			Help: "Total number of fallback replies returned instead of a completion",
		},
		[]string{"reason"},
	)
	AIPromptTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ai_prompt_tokens",
			Help:    "Estimated prompt tokens per assembled conversation",
			Buckets: []float64{64, 128, 256, 512, 1024, 2048, 4096, 8192},
		},
	)

	CredentialPoolCredentials = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "credential_pool_credentials",
			Help: "Number of credentials by state",
		},
		[]string{"state"},
	)

	ChatTriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_triggers_total",
			Help: "Total number of incoming chat messages by routing result",
		},
		[]string{"result"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(AIFallbackRepliesTotal)
	prometheus.MustRegister(AIPromptTokens)
	prometheus.MustRegister(CredentialPoolCredentials)
	prometheus.MustRegister(ChatTriggersTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// RecordAttempt counts one completion attempt by outcome label.
func RecordAttempt(outcome string) {
	AIRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordFallback counts a fallback reply.
func RecordFallback(reason string) {
	AIFallbackRepliesTotal.WithLabelValues(reason).Inc()
}

// ObservePromptTokens records the estimated prompt size of a conversation.
func ObservePromptTokens(n int) {
	if n > 0 {
		AIPromptTokens.Observe(float64(n))
	}
}

// SetPoolState publishes the current credential pool split.
func SetPoolState(available, quarantined int) {
	CredentialPoolCredentials.WithLabelValues("available").Set(float64(available))
	CredentialPoolCredentials.WithLabelValues("quarantined").Set(float64(quarantined))
}

// RecordTrigger counts an incoming chat message by routing result.
func RecordTrigger(result string) {
	ChatTriggersTotal.WithLabelValues(result).Inc()
}
