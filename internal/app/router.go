// Package app wires HTTP routing and readiness probes for the relay.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/llm-chat-relay/internal/adapter/httpserver"
	"github.com/fairyhunter13/llm-chat-relay/internal/adapter/observability"
	"github.com/fairyhunter13/llm-chat-relay/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// RequestTimeout bounds one HTTP request: every completion attempt may use
// its full timeout plus the waits between attempts.
func RequestTimeout(cfg config.Config) time.Duration {
	attempts := cfg.LLMMaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	perCall := cfg.LLMTimeout
	if perCall <= 0 {
		perCall = 30 * time.Second
	}
	d := time.Duration(attempts)*perCall + time.Duration(attempts-1)*cfg.LLMRetryDelay + 5*time.Second
	if d < 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(RequestTimeout(cfg)))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Keep-alive pages for uptime pingers
	r.Get("/", srv.IndexHandler())
	r.Get("/health", srv.HealthHandler())

	perMin := cfg.RateLimitPerMin
	if perMin <= 0 {
		perMin = 60
	}
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(perMin, 1*time.Minute))
		wr.Post("/v1/messages", srv.MessagesHandler())
		wr.Post("/v1/ask", srv.AskHandler())
		wr.Get("/v1/credentials", srv.CredentialsHandler())
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })
	r.Get("/readyz", srv.ReadyzHandler())

	return httpserver.SecurityHeaders(r)
}
