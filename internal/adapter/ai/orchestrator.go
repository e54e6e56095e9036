package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/llm-chat-relay/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/llm-chat-relay/internal/adapter/observability"
	"github.com/fairyhunter13/llm-chat-relay/internal/config"
	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
	obsctx "github.com/fairyhunter13/llm-chat-relay/internal/observability"
	"github.com/fairyhunter13/llm-chat-relay/pkg/textx"
)

// Fallback replies. Callers render these verbatim.
const (
	ReplyNoCredentials = "❌ No API keys configured. Please ask the bot owner to add LLM_API_KEYS."
	ReplyBusy          = "⏳ All API keys are busy or rate limited right now. Please try again in a minute."
	ReplyTechnical     = "⚠️ I ran into a technical issue while answering. Please try again later."
)

const (
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
)

// OrchestratorConfig carries the tunables of the retry loop.
type OrchestratorConfig struct {
	Model          string
	MaxRetries     int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
}

// OrchestratorConfigFrom maps application config onto the orchestrator.
func OrchestratorConfigFrom(cfg config.Config) OrchestratorConfig {
	return OrchestratorConfig{
		Model:          cfg.LLMModel,
		MaxRetries:     cfg.LLMMaxRetries,
		RetryDelay:     cfg.GetRetryDelay(),
		RequestTimeout: cfg.LLMTimeout,
	}
}

// Orchestrator turns a conversation into completion text, failing over
// across the credential pool. It implements domain.Completer and is safe for
// concurrent use; attempts within one Complete call are sequential.
type Orchestrator struct {
	pool    *CredentialPool
	backend domain.CompletionBackend
	cfg     OrchestratorConfig
	tokens  *tokencount.Counter
	timer   backoff.Timer
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithTimer replaces the timer used for inter-attempt waits.
func WithTimer(t backoff.Timer) OrchestratorOption {
	return func(o *Orchestrator) { o.timer = t }
}

// WithTokenCounter sets the counter used for prompt size estimates. Nil disables estimates.
func WithTokenCounter(c *tokencount.Counter) OrchestratorOption {
	return func(o *Orchestrator) { o.tokens = c }
}

// NewOrchestrator wires a pool and backend. Zero config values take defaults
// (3 attempts, 2s delay, 30s per-call timeout).
func NewOrchestrator(pool *CredentialPool, backend domain.CompletionBackend, cfg OrchestratorConfig, opts ...OrchestratorOption) *Orchestrator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	o := &Orchestrator{pool: pool, backend: backend, cfg: cfg, tokens: tokencount.DefaultCounter}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Pool exposes the credential pool for stats and readiness.
func (o *Orchestrator) Pool() *CredentialPool { return o.pool }

var errExhausted = fmt.Errorf("%w: no credential available", domain.ErrPoolExhausted)

// outcome tracks the last observed failure of one Complete call.
type outcome struct {
	attempts  int
	lastClass ErrorClass
	exhausted bool
	text      string
}

// Complete returns the trimmed completion text, or one of the fallback
// replies. It never returns an error.
func (o *Orchestrator) Complete(ctx context.Context, messages []domain.ConversationTurn, maxTokens int, temperature float64) string {
	lg := obsctx.LoggerFromContext(ctx)
	defer o.publishPoolState()

	if o.pool == nil || o.pool.Len() == 0 {
		lg.Error("completion requested with no credentials configured")
		observability.RecordFallback("no_credentials")
		return ReplyNoCredentials
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if temperature < 0 {
		temperature = DefaultTemperature
	}

	ctx, span := otel.Tracer("llm.orchestrator").Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", o.cfg.Model),
		attribute.Int("llm.messages", len(messages)),
		attribute.Int("llm.max_retries", o.cfg.MaxRetries),
	)

	if o.tokens != nil {
		n := o.tokens.EstimateConversationTokens(messages, o.cfg.Model)
		observability.ObservePromptTokens(n)
		span.SetAttributes(attribute.Int("llm.prompt_tokens_estimate", n))
	}

	req := domain.CompletionRequest{
		Model:       o.cfg.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	var (
		out      outcome
		lastUsed *Credential
	)
	op := func() error {
		cred, ok := o.pool.Next(lastUsed)
		if !ok {
			out.exhausted = true
			return backoff.Permanent(errExhausted)
		}
		out.attempts++
		text, err := o.attempt(ctx, cred, req, out.attempts)
		if err == nil {
			o.pool.MarkSuccess(cred)
			observability.RecordAttempt("success")
			out.text = strings.TrimSpace(text)
			return nil
		}

		o.pool.MarkFailure(cred, err.Error())
		class := ClassifyError(err)
		out.lastClass = class
		observability.RecordAttempt(class.String())
		c := cred
		lastUsed = &c

		lg.Warn("completion attempt failed",
			slog.Int("attempt", out.attempts),
			slog.Any("credential", cred),
			slog.String("class", class.String()),
			slog.Bool("retryable", class.Retryable()),
			slog.String("error", textx.Truncate(err.Error(), 200)))
		if !class.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		lg.Info("retrying completion with another credential",
			slog.Int("attempt", out.attempts),
			slog.Duration("wait", wait))
	}

	var bo backoff.BackOff = backoff.WithMaxRetries(backoff.NewConstantBackOff(o.cfg.RetryDelay), uint64(o.cfg.MaxRetries-1))
	bo = backoff.WithContext(bo, ctx)

	err := backoff.RetryNotifyWithTimer(op, bo, notify, o.timer)
	if err == nil {
		span.SetAttributes(attribute.Int("llm.attempts", out.attempts))
		lg.Info("completion succeeded", slog.Int("attempts", out.attempts), slog.Int("chars", len(out.text)))
		return out.text
	}

	span.SetAttributes(attribute.Int("llm.attempts", out.attempts))
	span.SetStatus(codes.Error, err.Error())
	reply, reason := fallbackFor(out, err)
	observability.RecordFallback(reason)
	lg.Error("completion failed; sending fallback reply",
		slog.Int("attempts", out.attempts),
		slog.String("reason", reason),
		slog.String("last_class", out.lastClass.String()),
		slog.Any("error", err))
	return reply
}

// attempt issues one backend call under its own timeout and span.
func (o *Orchestrator) attempt(ctx context.Context, cred Credential, req domain.CompletionRequest, n int) (string, error) {
	ctx, span := otel.Tracer("llm.orchestrator").Start(ctx, "llm.attempt")
	defer span.End()
	span.SetAttributes(
		attribute.Int("llm.attempt", n),
		attribute.String("llm.credential", cred.Label),
	)

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	text, err := o.backend.ChatCompletion(callCtx, cred.Secret(), req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: request timeout after %s: %v", domain.ErrUpstreamTimeout, o.cfg.RequestTimeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt failed")
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		span.SetStatus(codes.Error, domain.ErrEmptyCompletion.Error())
		return "", domain.ErrEmptyCompletion
	}
	return text, nil
}

// fallbackFor picks the user-facing reply from the last observed failure.
func fallbackFor(out outcome, err error) (reply, reason string) {
	if out.exhausted || errors.Is(err, domain.ErrPoolExhausted) || out.lastClass == ClassRateLimited {
		return ReplyBusy, "busy"
	}
	return ReplyTechnical, "technical"
}

func (o *Orchestrator) publishPoolState() {
	if o.pool == nil {
		return
	}
	st := o.pool.Stats()
	observability.SetPoolState(st.Available, st.Quarantined)
}
