package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/llm-chat-relay/internal/adapter/ai"
	"github.com/fairyhunter13/llm-chat-relay/internal/config"
	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
	"github.com/fairyhunter13/llm-chat-relay/internal/usecase"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// PoolStatser exposes a read-only credential pool snapshot.
type PoolStatser interface {
	Stats() ai.PoolStats
}

// Server aggregates handlers dependencies.
type Server struct {
	Cfg              config.Config
	Responder        *usecase.Responder
	Pool             PoolStatser
	CredentialsCheck func(ctx context.Context) error
	RedisCheck       func(ctx context.Context) error
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// NewServer constructs an HTTP server with all handlers and checks wired.
// redisCheck may be nil when Redis is not configured.
func NewServer(cfg config.Config, responder *usecase.Responder, pool PoolStatser, credentialsCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Responder: responder, Pool: pool, CredentialsCheck: credentialsCheck, RedisCheck: redisCheck}
}

// IndexHandler is the plain-text liveness page used by uptime pingers.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "🤖 %s Online", s.Cfg.BotName)
	}
}

// HealthHandler reports liveness with the bot name.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "online", "bot": s.Cfg.BotName})
	}
}

type messageResponse struct {
	Responded bool   `json:"responded"`
	Reply     string `json:"reply,omitempty"`
}

// MessagesHandler accepts one platform message event and returns the bot reply, if any.
func (s *Server) MessagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		var evt domain.MessageEvent
		if !decodeAndValidate(w, r, &evt) {
			return
		}
		reply, err := s.Responder.HandleMessage(r.Context(), evt)
		if err != nil {
			writeError(w, r, fmt.Errorf("handle message: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Responded: reply.Responded, Reply: reply.Text})
	}
}

type askRequest struct {
	Question   string `json:"question" validate:"required,max=4000"`
	AuthorName string `json:"author_name" validate:"max=128"`
}

// AskHandler answers a direct question without channel history.
func (s *Server) AskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		var req askRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		answer, err := s.Responder.Ask(r.Context(), req.AuthorName, req.Question)
		if err != nil {
			writeError(w, r, fmt.Errorf("ask: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
	}
}

// CredentialsHandler returns credential pool stats. Only labels are exposed.
func (s *Server) CredentialsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Pool == nil {
			writeError(w, r, fmt.Errorf("%w: credential pool not initialized", domain.ErrConfiguration), nil)
			return
		}
		writeJSON(w, http.StatusOK, s.Pool.Stats())
	}
}

// ReadyzHandler returns a readiness handler that probes the credential pool and Redis.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(context.Context) error
		}{
			{"credentials", s.CredentialsCheck},
			{"redis", s.RedisCheck},
		}
		checks := make([]check, 0, len(probes))
		ok := true
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				ok = false
				checks = append(checks, check{Name: p.name, OK: false, Details: err.Error()})
				continue
			}
			checks = append(checks, check{Name: p.name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

// acceptsJSON enforces JSON-only responses; it writes 406 and returns false otherwise.
func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	a := r.Header.Get("Accept")
	if a == "" || a == "*/*" || strings.Contains(a, "application/json") {
		return true
	}
	writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{
		Code:    "INVALID_ARGUMENT",
		Message: "not acceptable",
		Details: map[string]any{"accept": a},
	}})
	return false
}

// decodeAndValidate reads a capped JSON body into dst and runs struct validation.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
		return false
	}
	if err := getValidator().Struct(dst); err != nil {
		verrs := map[string]string{}
		if ve, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range ve {
				verrs[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
		return false
	}
	return true
}
