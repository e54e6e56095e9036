// Command server starts the LLM chat relay HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/llm-chat-relay/internal/adapter/ai"
	"github.com/fairyhunter13/llm-chat-relay/internal/adapter/ai/real"
	"github.com/fairyhunter13/llm-chat-relay/internal/adapter/history"
	httpserver "github.com/fairyhunter13/llm-chat-relay/internal/adapter/httpserver"
	"github.com/fairyhunter13/llm-chat-relay/internal/adapter/observability"
	"github.com/fairyhunter13/llm-chat-relay/internal/app"
	"github.com/fairyhunter13/llm-chat-relay/internal/config"
	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
	"github.com/fairyhunter13/llm-chat-relay/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	persona, err := cfg.ResolvePersona()
	if err != nil {
		slog.Error("persona load failed; using default prompt", slog.Any("error", err))
		persona = config.Persona{Name: cfg.BotName, SystemPrompt: config.DefaultSystemPrompt}
	}

	// An empty pool is not fatal: every completion answers with the
	// no-credentials message and /readyz reports not ready.
	pool, err := ai.LoadCredentialPool(cfg.Credentials(), ai.WithCooldown(cfg.CredentialCooldown))
	if err != nil {
		slog.Error("credential pool is empty", slog.Any("error", err))
	}
	st := pool.Stats()
	observability.SetPoolState(st.Available, st.Quarantined)

	backend := real.New(cfg)
	orchestrator := ai.NewOrchestrator(pool, backend, ai.OrchestratorConfigFrom(cfg))
	slog.Info("completion orchestrator ready",
		slog.String("model", cfg.LLMModel),
		slog.Int("credentials", pool.Len()),
		slog.Int("max_retries", cfg.LLMMaxRetries))

	store := history.NewStore(cfg.HistoryCapacity)

	var (
		limiter domain.Limiter
		pinger  app.Pinger
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		rl := app.BuildLimiter(rdb, cfg)
		limiter, pinger = rl, rl
		slog.Info("throttling enabled",
			slog.Int("trigger_per_min", cfg.TriggerRateLimitPerMin),
			slog.Int("ask_per_min", cfg.AskRateLimitPerMin))
	}

	responder := usecase.NewResponder(usecase.RespondConfigFrom(cfg, persona), orchestrator, store, store, limiter)

	credsCheck, redisCheck := app.BuildReadinessChecks(pool, pinger)
	srv := httpserver.NewServer(cfg, responder, pool, credsCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	writeTimeout := cfg.HTTPWriteTimeout
	if rt := app.RequestTimeout(cfg) + 5*time.Second; writeTimeout < rt {
		writeTimeout = rt
	}
	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting",
			slog.Int("port", cfg.Port),
			slog.String("bot", persona.Name),
			slog.String("fixed_channel", cfg.FixedChannelID),
			slog.String("fixed_channel_mode", cfg.FixedChannelMode))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
