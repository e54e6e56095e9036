// Package real implements the OpenAI-compatible chat completion backend.
package real

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/llm-chat-relay/internal/adapter/observability"
	"github.com/fairyhunter13/llm-chat-relay/internal/config"
	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
)

const maxBodySnippet = 512

// StatusError is returned for non-2xx completion responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("chat status %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("chat status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the upstream status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Unwrap maps the status onto the domain taxonomy so callers can use errors.Is.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return domain.ErrUpstreamRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return domain.ErrUpstreamTimeout
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return domain.ErrUpstreamUnavailable
	default:
		return nil
	}
}

// Client implements domain.CompletionBackend against an OpenAI-compatible
// /chat/completions endpoint. One call is one HTTP request; it never retries.
type Client struct {
	baseURL string
	referer string
	title   string
	hc      *http.Client
}

// New constructs a backend client. Per-call timeouts are applied by the caller's context.
func New(cfg config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.LLMBaseURL, "/"),
		referer: cfg.LLMReferer,
		title:   cfg.LLMTitle,
		hc: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatCompletion sends one completion request authenticated with secret.
func (c *Client) ChatCompletion(ctx context.Context, secret string, req domain.CompletionRequest) (string, error) {
	msgs := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	b, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode chat request: %v", domain.ErrInvalidArgument, err)
	}

	endpoint := c.baseURL + "/chat/completions"
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("%w: build chat request: %v", domain.ErrInvalidArgument, err)
	}
	r.Header.Set("Authorization", "Bearer "+secret)
	r.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		r.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		r.Header.Set("X-Title", c.title)
	}

	start := time.Now()
	resp, err := c.hc.Do(r)
	observability.AIRequestDuration.WithLabelValues("chat").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("failed to read response body", slog.String("op", "chat"), slog.Any("error", err))
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(bodyBytes)
		if len(snippet) > maxBodySnippet {
			snippet = snippet[:maxBodySnippet]
		}
		slog.Warn("ai provider non-2xx",
			slog.String("op", "chat"),
			slog.Int("status", resp.StatusCode),
			slog.String("model", req.Model),
			slog.String("endpoint", endpoint),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
			slog.String("body", snippet))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}

	var out chatResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		slog.Error("ai provider decode error", slog.String("op", "chat"), slog.String("model", req.Model), slog.Any("error", err))
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", domain.ErrEmptyCompletion
	}
	if out.Model != "" && out.Model != req.Model {
		slog.Debug("model substitution detected",
			slog.String("requested_model", req.Model),
			slog.String("actual_model", out.Model))
	}
	return out.Choices[0].Message.Content, nil
}
