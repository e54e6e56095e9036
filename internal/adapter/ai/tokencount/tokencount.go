// Package tokencount estimates prompt sizes for chat completion calls.
//
// It uses tiktoken-go with the offline BPE loader so no encoding files are
// fetched at runtime. Counts are estimates for monitoring only; nothing in
// the request path truncates on them.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Counter provides thread-safe token counting for LLM models.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
	}
}

// DefaultCounter is a global token counter instance.
var DefaultCounter = NewCounter()

// getEncodingForModel returns the appropriate tiktoken encoding for a model.
// It caches encodings for performance.
func (c *Counter) getEncodingForModel(model string) (*tiktoken.Tiktoken, error) {
	normalizedModel := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalizedModel]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encodingCache[normalizedModel]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalizedModel)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model),
			slog.String("normalized", normalizedModel),
			slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	c.encodingCache[normalizedModel] = enc
	return enc, nil
}

// normalizeModelName converts OpenRouter model IDs to tiktoken-compatible names.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)

	// e.g. "venice/uncensored:free"
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if i := strings.Index(model, ":"); i >= 0 {
		model = model[:i]
	}

	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		// cl100k_base is a reasonable approximation for the open models served via OpenRouter
		return "gpt-4"
	}
}

// CountTokens counts the number of tokens in a text string for a given model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountConversationTokens counts tokens for a chat completion request,
// including the per-message framing used by OpenAI-compatible APIs.
// See: https://github.com/openai/openai-cookbook/blob/main/examples/How_to_count_tokens_with_tiktoken.ipynb
func (c *Counter) CountConversationTokens(messages []domain.ConversationTurn, model string) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}

	const tokensPerMessage = 3
	n := 0
	for _, m := range messages {
		n += tokensPerMessage
		n += len(enc.Encode(string(m.Role), nil, nil))
		n += len(enc.Encode(m.Content, nil, nil))
	}
	// Every reply is primed with <|start|>assistant<|message|>
	n += 3
	return n, nil
}

// EstimateConversationTokens never fails: when no encoding is available it
// falls back to roughly four characters per token.
func (c *Counter) EstimateConversationTokens(messages []domain.ConversationTurn, model string) int {
	n, err := c.CountConversationTokens(messages, model)
	if err == nil {
		return n
	}
	slog.Warn("failed to count prompt tokens, using estimate",
		slog.String("model", model),
		slog.Any("error", err))
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 4
}
