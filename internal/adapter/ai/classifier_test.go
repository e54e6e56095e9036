package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/llm-chat-relay/internal/adapter/ai/real"
	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassOther},
		{"status 429", errors.New("chat status 429: slow down"), ClassRateLimited},
		{"rate limit text", errors.New("Rate limit exceeded: free-models-per-day"), ClassRateLimited},
		{"quota", errors.New("Quota exhausted for this key"), ClassRateLimited},
		{"credits", errors.New("Insufficient credits"), ClassRateLimited},
		{"too many requests", errors.New("Too Many Requests"), ClassRateLimited},
		{"timeout", fmt.Errorf("%w: after 30s", domain.ErrUpstreamTimeout), ClassConnectivity},
		{"deadline", context.DeadlineExceeded, ClassConnectivity},
		{"refused", errors.New("dial tcp 1.2.3.4:443: connect: connection refused"), ClassConnectivity},
		{"dns", errors.New("lookup openrouter.ai: no such host"), ClassConnectivity},
		{"eof", errors.New("unexpected EOF"), ClassConnectivity},
		{"503", errors.New("chat status 503: Service Unavailable"), ClassConnectivity},
		{"bad request", errors.New("chat status 400: invalid model id"), ClassOther},
		{"auth", errors.New("chat status 401: No auth credentials found"), ClassOther},
		{"canceled", context.Canceled, ClassOther},
		{"generate is not rate", errors.New("chat status 400: Failed to generate completion"), ClassOther},
		{"limit alone is not rate", errors.New("max_tokens limit exceeded for model"), ClassOther},
		{"empty completion", domain.ErrEmptyCompletion, ClassOther},
		{"upstream rate limit", fmt.Errorf("attempt: %w", domain.ErrUpstreamRateLimit), ClassRateLimited},
		{"upstream unavailable", domain.ErrUpstreamUnavailable, ClassConnectivity},
		{"typed 429", &real.StatusError{StatusCode: 429, Body: "slow down"}, ClassRateLimited},
		{"typed 402", &real.StatusError{StatusCode: 402, Body: "Insufficient credits"}, ClassRateLimited},
		{"typed 502", &real.StatusError{StatusCode: 502}, ClassConnectivity},
		{"typed 504", &real.StatusError{StatusCode: 504}, ClassConnectivity},
		{"typed 400 mentioning rate", &real.StatusError{StatusCode: 400, Body: "Failed to generate: rate limit param invalid"}, ClassOther},
		{"typed 401", &real.StatusError{StatusCode: 401, Body: "No auth credentials found"}, ClassOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyError(tc.err))
		})
	}
}

func TestErrorClass_RetryableAndString(t *testing.T) {
	assert.True(t, ClassRateLimited.Retryable())
	assert.True(t, ClassConnectivity.Retryable())
	assert.False(t, ClassOther.Retryable())

	assert.Equal(t, "rate_limited", ClassRateLimited.String())
	assert.Equal(t, "connectivity", ClassConnectivity.String())
	assert.Equal(t, "other", ClassOther.String())
}
