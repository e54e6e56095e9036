package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrConfiguration       = errors.New("configuration error")
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamRateLimit   = errors.New("upstream rate limit")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrEmptyCompletion     = errors.New("completion returned no content")
	ErrPoolExhausted       = errors.New("credential pool exhausted")
	ErrInternal            = errors.New("internal error")
)

// Role is the speaker role of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one role-tagged message unit sent to the completion backend.
// Invariants: the first turn of an assembled conversation is the system
// instruction and the last one is the triggering user turn.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// HistoryEntry is one prior channel message as returned by a HistorySource.
type HistoryEntry struct {
	ID         string
	IsBot      bool
	AuthorName string
	Text       string
	CreatedAt  time.Time
}

// MessageEvent is a platform-neutral incoming chat message.
type MessageEvent struct {
	ID          string `json:"id"`
	ChannelID   string `json:"channel_id" validate:"required,max=128"`
	AuthorID    string `json:"author_id" validate:"max=128"`
	AuthorName  string `json:"author_name" validate:"required,max=128"`
	Content     string `json:"content" validate:"required,max=4000"`
	MentionsBot bool   `json:"mentions_bot"`
	FromSelf    bool   `json:"from_self"`
}

// CompletionRequest is a single call against the completion backend.
type CompletionRequest struct {
	Model       string
	Messages    []ConversationTurn
	MaxTokens   int
	Temperature float64
}

// Ports

// CompletionBackend issues one chat completion with the given bearer secret.
// Implementations must not retry; retries across credentials are the caller's job.
type CompletionBackend interface {
	ChatCompletion(ctx context.Context, secret string, req CompletionRequest) (string, error)
}

// Completer turns a conversation into reply text. It never fails: every
// failure resolves to a human-readable fallback string.
type Completer interface {
	Complete(ctx context.Context, messages []ConversationTurn, maxTokens int, temperature float64) string
}

// HistorySource returns up to limit recent messages of a channel, newest first.
type HistorySource interface {
	Recent(ctx context.Context, channelID string, limit int) ([]HistoryEntry, error)
}

// HistorySink records messages so later triggers can see them as history.
type HistorySink interface {
	Append(ctx context.Context, channelID string, entry HistoryEntry) error
}

// Limiter throttles how often a key may trigger a completion.
type Limiter interface {
	Allow(ctx context.Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}
