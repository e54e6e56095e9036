package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
)

// ErrorClass is the coarse kind of a failed completion attempt.
type ErrorClass int

const (
	// ClassOther is any failure not recognized below; it is not retried.
	ClassOther ErrorClass = iota
	// ClassRateLimited covers rate limiting and exhausted quota.
	ClassRateLimited
	// ClassConnectivity covers timeouts and transport failures.
	ClassConnectivity
)

// String returns the metric/log label of the class.
func (c ErrorClass) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassConnectivity:
		return "connectivity"
	default:
		return "other"
	}
}

// Retryable reports whether another credential should be tried.
func (c ErrorClass) Retryable() bool {
	return c == ClassRateLimited || c == ClassConnectivity
}

// statusCoder is implemented by backend errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

var rateLimitMarkers = []string{
	"rate limit", "rate-limit", "ratelimit", "rate_limit",
	"quota", "429", "too many requests", "insufficient credits",
}

var connectivityMarkers = []string{
	"timeout", "timed out", "deadline exceeded", "connection", "connect:",
	"eof", "no such host", "unavailable", "bad gateway", "overloaded",
}

// ClassifyError maps a backend error onto an ErrorClass. Domain sentinels
// win; an error carrying an HTTP status that maps to none of them is not
// retried. Only untyped transport errors fall through to text matching.
func ClassifyError(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassOther
	case errors.Is(err, domain.ErrUpstreamRateLimit):
		return ClassRateLimited
	case errors.Is(err, domain.ErrUpstreamTimeout),
		errors.Is(err, domain.ErrUpstreamUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return ClassConnectivity
	case errors.Is(err, domain.ErrEmptyCompletion), errors.Is(err, context.Canceled):
		return ClassOther
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return ClassOther
	}

	msg := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return ClassRateLimited
		}
	}
	for _, m := range connectivityMarkers {
		if strings.Contains(msg, m) {
			return ClassConnectivity
		}
	}
	return ClassOther
}
