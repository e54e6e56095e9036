package app

import (
	"context"
	"errors"
	"testing"

	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
)

type fixedLen int

func (f fixedLen) Len() int { return int(f) }

type fakePinger struct{ err error }

func (f fakePinger) Ping(_ context.Context) error { return f.err }

func TestBuildReadinessChecks_Credentials(t *testing.T) {
	creds, red := BuildReadinessChecks(fixedLen(2), nil)
	if err := creds(context.Background()); err != nil {
		t.Fatalf("credentials check: %v", err)
	}
	if red != nil {
		t.Fatalf("expected nil redis check when redis is not configured")
	}

	creds, _ = BuildReadinessChecks(fixedLen(0), nil)
	if err := creds(context.Background()); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error for empty pool, got %v", err)
	}

	creds, _ = BuildReadinessChecks(nil, nil)
	if err := creds(context.Background()); err == nil {
		t.Fatalf("expected error for missing pool")
	}
}

func TestBuildReadinessChecks_Redis(t *testing.T) {
	_, red := BuildReadinessChecks(fixedLen(1), fakePinger{})
	if err := red(context.Background()); err != nil {
		t.Fatalf("redis check: %v", err)
	}

	_, red = BuildReadinessChecks(fixedLen(1), fakePinger{err: context.DeadlineExceeded})
	if err := red(context.Background()); err == nil {
		t.Fatalf("expected redis error")
	}
}
