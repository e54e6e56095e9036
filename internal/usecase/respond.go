package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/llm-chat-relay/internal/adapter/observability"
	"github.com/fairyhunter13/llm-chat-relay/internal/config"
	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
	obsctx "github.com/fairyhunter13/llm-chat-relay/internal/observability"
	"github.com/fairyhunter13/llm-chat-relay/pkg/textx"
)

// Limiter key classes. Keys are "<class>:<subject>".
const (
	ThrottleTrigger = "trigger"
	ThrottleAsk     = "ask"
)

// DefaultHistoryFetchWindow is how many recent messages are read before the
// triggering message is dropped and the rest capped to the history limit.
const DefaultHistoryFetchWindow = 15

// RespondConfig holds the routing and generation settings of a Responder.
type RespondConfig struct {
	BotName              string
	SystemPrompt         string
	FixedChannelID       string
	AlwaysRespondInFixed bool
	HistoryLimit         int
	HistoryFetchWindow   int
	MaxTokens            int
	Temperature          float64
}

// RespondConfigFrom maps application config and the resolved persona.
func RespondConfigFrom(cfg config.Config, persona config.Persona) RespondConfig {
	name := persona.Name
	if name == "" {
		name = cfg.BotName
	}
	return RespondConfig{
		BotName:              name,
		SystemPrompt:         persona.SystemPrompt,
		FixedChannelID:       cfg.FixedChannelID,
		AlwaysRespondInFixed: cfg.AlwaysRespondInFixedChannel(),
		HistoryLimit:         cfg.HistoryLimit,
		HistoryFetchWindow:   cfg.HistoryFetchWindow,
		MaxTokens:            cfg.LLMMaxTokens,
		Temperature:          cfg.LLMTemperature,
	}
}

// Reply is the outcome of routing one incoming message.
type Reply struct {
	Responded bool   `json:"responded"`
	Text      string `json:"reply,omitempty"`
}

// Responder decides whether to answer a chat message and produces the answer.
// History and Limiter are optional.
type Responder struct {
	Assembler ContextAssembler
	Completer domain.Completer
	History   domain.HistorySource
	Sink      domain.HistorySink
	Limiter   domain.Limiter
	Cfg       RespondConfig
	now       func() time.Time
}

// NewResponder constructs a Responder with its dependencies.
func NewResponder(cfg RespondConfig, c domain.Completer, h domain.HistorySource, s domain.HistorySink, l domain.Limiter) *Responder {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.HistoryFetchWindow < cfg.HistoryLimit {
		cfg.HistoryFetchWindow = DefaultHistoryFetchWindow
		if cfg.HistoryFetchWindow < cfg.HistoryLimit {
			cfg.HistoryFetchWindow = cfg.HistoryLimit + 5
		}
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = config.DefaultSystemPrompt
	}
	return &Responder{Completer: c, History: h, Sink: s, Limiter: l, Cfg: cfg, now: time.Now}
}

// ShouldRespond reports whether evt warrants a completion. The bot never
// answers itself; in the fixed channel it answers every message unless the
// channel is in mention mode; elsewhere it answers only when mentioned.
func (r *Responder) ShouldRespond(evt domain.MessageEvent) bool {
	if evt.FromSelf {
		return false
	}
	if r.isFixedChannel(evt.ChannelID) && r.Cfg.AlwaysRespondInFixed {
		return true
	}
	return evt.MentionsBot
}

func (r *Responder) isFixedChannel(channelID string) bool {
	return r.Cfg.FixedChannelID != "" && channelID == r.Cfg.FixedChannelID
}

// HandleMessage records evt in channel history and, when ShouldRespond says
// so, answers it. Only the fixed channel gets prior history in its prompt.
// A throttled author yields an error wrapping domain.ErrRateLimited.
func (r *Responder) HandleMessage(ctx context.Context, evt domain.MessageEvent) (Reply, error) {
	ctx = obsctx.WithLogAttrs(ctx,
		slog.String("channel_id", evt.ChannelID),
		slog.String("author", evt.AuthorName))
	lg := obsctx.LoggerFromContext(ctx)

	evt.Content = textx.SanitizeText(evt.Content)
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if !evt.FromSelf {
		r.record(ctx, lg, evt.ChannelID, domain.HistoryEntry{
			ID:         evt.ID,
			AuthorName: evt.AuthorName,
			Text:       evt.Content,
			CreatedAt:  r.now().UTC(),
		})
	}

	if evt.Content == "" || !r.ShouldRespond(evt) {
		observability.RecordTrigger("ignored")
		return Reply{}, nil
	}
	if err := r.throttle(ctx, lg, ThrottleTrigger, authorKey(evt)); err != nil {
		return Reply{}, err
	}

	var history []domain.HistoryEntry
	if r.isFixedChannel(evt.ChannelID) {
		history = r.recentHistory(ctx, lg, evt)
	}

	messages := r.Assembler.Build(r.Cfg.SystemPrompt, evt.AuthorName, evt.Content, history, r.Cfg.HistoryLimit)
	text := r.Completer.Complete(ctx, messages, r.Cfg.MaxTokens, r.Cfg.Temperature)

	r.record(ctx, lg, evt.ChannelID, domain.HistoryEntry{
		ID:         uuid.NewString(),
		IsBot:      true,
		AuthorName: r.Cfg.BotName,
		Text:       text,
		CreatedAt:  r.now().UTC(),
	})
	observability.RecordTrigger("responded")
	lg.Info("replied to message",
		slog.Int("history_turns", len(messages)-2),
		slog.Int("reply_chars", len(text)))
	return Reply{Responded: true, Text: text}, nil
}

// Ask answers a direct question without channel history.
func (r *Responder) Ask(ctx context.Context, author, question string) (string, error) {
	question = textx.SanitizeText(question)
	if question == "" {
		return "", fmt.Errorf("%w: question is required", domain.ErrInvalidArgument)
	}
	ctx = obsctx.WithLogAttrs(ctx, slog.String("author", author))
	lg := obsctx.LoggerFromContext(ctx)
	key := strings.TrimSpace(author)
	if key == "" {
		key = "anonymous"
	}
	if err := r.throttle(ctx, lg, ThrottleAsk, key); err != nil {
		return "", err
	}

	messages := r.Assembler.Build(r.Cfg.SystemPrompt, "", question, nil, r.Cfg.HistoryLimit)
	answer := r.Completer.Complete(ctx, messages, r.Cfg.MaxTokens, r.Cfg.Temperature)
	observability.RecordTrigger("asked")
	return answer, nil
}

// recentHistory returns newest-first history without the triggering message.
// Fetch errors degrade to an empty history.
func (r *Responder) recentHistory(ctx context.Context, lg *slog.Logger, evt domain.MessageEvent) []domain.HistoryEntry {
	if r.History == nil {
		return []domain.HistoryEntry{}
	}
	entries, err := r.History.Recent(ctx, evt.ChannelID, r.Cfg.HistoryFetchWindow)
	if err != nil {
		lg.Warn("history fetch failed; continuing without history", slog.Any("error", err))
		return []domain.HistoryEntry{}
	}
	out := make([]domain.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID == evt.ID {
			continue
		}
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (r *Responder) throttle(ctx context.Context, lg *slog.Logger, class, subject string) error {
	if r.Limiter == nil {
		return nil
	}
	ok, retryAfter, err := r.Limiter.Allow(ctx, class+":"+subject, 1)
	if err != nil {
		// fail open
		lg.Warn("limiter unavailable", slog.String("class", class), slog.Any("error", err))
		return nil
	}
	if !ok {
		observability.RecordTrigger("throttled")
		lg.Info("request throttled", slog.String("class", class), slog.Duration("retry_after", retryAfter))
		return fmt.Errorf("%w: retry after %s", domain.ErrRateLimited, retryAfter.Round(time.Second))
	}
	return nil
}

func (r *Responder) record(ctx context.Context, lg *slog.Logger, channelID string, e domain.HistoryEntry) {
	if r.Sink == nil || e.Text == "" {
		return
	}
	if err := r.Sink.Append(ctx, channelID, e); err != nil {
		lg.Warn("history append failed", slog.Any("error", err))
	}
}

func authorKey(evt domain.MessageEvent) string {
	if evt.AuthorID != "" {
		return evt.AuthorID
	}
	return evt.AuthorName
}
