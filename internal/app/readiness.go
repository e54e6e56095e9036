package app

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
)

// CredentialCounter is the minimal view of the credential pool needed for readiness.
type CredentialCounter interface{ Len() int }

// Pinger is anything that can check its backing connection.
type Pinger interface{ Ping(ctx context.Context) error }

// BuildReadinessChecks returns the credentials check and, when redis is
// non-nil, a redis check. The redis check is nil otherwise so it is skipped.
func BuildReadinessChecks(pool CredentialCounter, redis Pinger) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	credentialsCheck := func(_ context.Context) error {
		if pool == nil || pool.Len() == 0 {
			return fmt.Errorf("%w: no usable API keys loaded", domain.ErrConfiguration)
		}
		return nil
	}
	if redis == nil {
		return credentialsCheck, nil
	}
	redisCheck := func(ctx context.Context) error {
		return redis.Ping(ctx)
	}
	return credentialsCheck, redisCheck
}
