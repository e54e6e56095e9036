package ai

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
	"github.com/fairyhunter13/llm-chat-relay/pkg/textx"
)

// DefaultCooldown is how long a failed credential is kept out of rotation.
const DefaultCooldown = 60 * time.Second

// placeholderMarkers are template values that must never be used as credentials.
var placeholderMarkers = []string{
	"your_openrouter_api_key",
	"your_api_key",
	"your-api-key",
	"changeme",
}

// Credential is one API secret in the pool. Only Label is safe to log.
type Credential struct {
	index  int
	Label  string
	secret string
}

// Secret returns the raw bearer token.
func (c Credential) Secret() string { return c.secret }

// LogValue keeps secrets out of structured logs.
func (c Credential) LogValue() slog.Value { return slog.StringValue(c.Label) }

// String implements fmt.Stringer with the non-secret label.
func (c Credential) String() string { return c.Label }

// CredentialStats is a per-credential usage snapshot.
type CredentialStats struct {
	Label         string     `json:"label"`
	Available     bool       `json:"available"`
	Successes     int        `json:"successes"`
	Failures      int        `json:"failures"`
	LastUsed      *time.Time `json:"last_used,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// PoolStats is a read-only snapshot of the pool.
type PoolStats struct {
	Total       int               `json:"total"`
	Available   int               `json:"available"`
	Quarantined int               `json:"quarantined"`
	Credentials []CredentialStats `json:"credentials"`
}

type credentialState struct {
	cred          Credential
	cooldownUntil time.Time
	failedAt      time.Time
	successes     int
	failures      int
	lastUsed      time.Time
}

func (s *credentialState) available(now time.Time) bool {
	return s.cooldownUntil.IsZero() || !now.Before(s.cooldownUntil)
}

// CredentialPool rotates over interchangeable credentials and quarantines
// failing ones for a cooldown window. It is safe for concurrent use.
type CredentialPool struct {
	mu       sync.Mutex
	states   []*credentialState
	cursor   int
	cooldown time.Duration
	now      func() time.Time
}

// PoolOption customizes a CredentialPool.
type PoolOption func(*CredentialPool)

// WithCooldown overrides the quarantine window.
func WithCooldown(d time.Duration) PoolOption {
	return func(p *CredentialPool) {
		if d > 0 {
			p.cooldown = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) PoolOption {
	return func(p *CredentialPool) {
		if now != nil {
			p.now = now
		}
	}
}

// LoadCredentialPool builds a pool from raw configuration values, dropping
// blanks and placeholders while preserving order. When nothing usable is left
// it returns a working empty pool together with an error wrapping
// domain.ErrConfiguration, so callers can log and keep running.
func LoadCredentialPool(raw []string, opts ...PoolOption) (*CredentialPool, error) {
	p := &CredentialPool{cooldown: DefaultCooldown, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	for i, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" || isPlaceholder(v) {
			slog.Debug("skipping unusable credential entry", slog.Int("position", i+1))
			continue
		}
		cred := Credential{index: len(p.states), Label: credentialLabel(v), secret: v}
		p.states = append(p.states, &credentialState{cred: cred})
	}
	if len(p.states) == 0 {
		return p, fmt.Errorf("%w: no usable API keys (set LLM_API_KEYS)", domain.ErrConfiguration)
	}
	slog.Info("credential pool loaded", slog.Int("count", len(p.states)))
	return p, nil
}

// Len returns the fixed number of credentials.
func (p *CredentialPool) Len() int { return len(p.states) }

// Next returns the next candidate in round-robin order over available
// credentials. If exclude is the selected candidate and more than one is
// available the cursor advances once more. When every credential is
// quarantined the one with the oldest failure is returned. It reports false
// only for an empty pool.
func (p *CredentialPool) Next(exclude *Credential) (Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.states) == 0 {
		return Credential{}, false
	}
	now := p.now()

	picked := p.scan(now, nil)
	if picked == nil {
		oldest := p.states[0]
		for _, s := range p.states[1:] {
			if s.failedAt.Before(oldest.failedAt) {
				oldest = s
			}
		}
		slog.Warn("all credentials in cooldown, trying oldest failed one",
			slog.String("credential", oldest.cred.Label),
			slog.Time("failed_at", oldest.failedAt))
		oldest.lastUsed = now
		return oldest.cred, true
	}
	if exclude != nil && picked.cred == *exclude {
		if alt := p.scan(now, picked); alt != nil {
			picked = alt
		}
	}
	picked.lastUsed = now
	return picked.cred, true
}

// scan walks the full credential list from the cursor and returns the first
// available state other than skip, moving the cursor just past it.
func (p *CredentialPool) scan(now time.Time, skip *credentialState) *credentialState {
	n := len(p.states)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		s := p.states[idx]
		if s == skip || !s.available(now) {
			continue
		}
		p.cursor = (idx + 1) % n
		return s
	}
	return nil
}

// MarkSuccess clears any cooldown on c. Idempotent.
func (p *CredentialPool) MarkSuccess(c Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.lookup(c)
	if s == nil {
		return
	}
	if !s.cooldownUntil.IsZero() {
		slog.Info("credential recovered", slog.String("credential", c.Label), slog.Int("failures", s.failures))
	}
	s.cooldownUntil = time.Time{}
	s.failedAt = time.Time{}
	s.successes++
}

// MarkFailure quarantines c for the cooldown window, refreshing any existing expiry.
func (p *CredentialPool) MarkFailure(c Credential, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.lookup(c)
	if s == nil {
		return
	}
	now := p.now()
	s.failedAt = now
	s.cooldownUntil = now.Add(p.cooldown)
	s.failures++

	slog.Warn("credential failed; cooling down",
		slog.String("credential", c.Label),
		slog.Duration("cooldown", p.cooldown),
		slog.Time("cooldown_until", s.cooldownUntil),
		slog.String("reason", textx.Truncate(reason, 100)))
}

// Stats returns a snapshot computed from the current time. It never mutates state.
func (p *CredentialPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	st := PoolStats{Total: len(p.states), Credentials: make([]CredentialStats, 0, len(p.states))}
	for _, s := range p.states {
		cs := CredentialStats{
			Label:     s.cred.Label,
			Available: s.available(now),
			Successes: s.successes,
			Failures:  s.failures,
		}
		if !s.lastUsed.IsZero() {
			t := s.lastUsed
			cs.LastUsed = &t
		}
		if cs.Available {
			st.Available++
		} else {
			t := s.cooldownUntil
			cs.CooldownUntil = &t
			st.Quarantined++
		}
		st.Credentials = append(st.Credentials, cs)
	}
	return st
}

func (p *CredentialPool) lookup(c Credential) *credentialState {
	if c.index < 0 || c.index >= len(p.states) {
		return nil
	}
	s := p.states[c.index]
	if s.cred != c {
		return nil
	}
	return s
}

func isPlaceholder(v string) bool {
	lv := strings.ToLower(v)
	for _, m := range placeholderMarkers {
		if strings.Contains(lv, m) {
			return true
		}
	}
	return strings.HasPrefix(lv, "<") && strings.HasSuffix(lv, ">")
}

func credentialLabel(secret string) string {
	sum := blake2b.Sum256([]byte(secret))
	return "key-" + hex.EncodeToString(sum[:4])
}
