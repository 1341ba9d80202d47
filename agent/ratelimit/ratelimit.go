// Package ratelimit enforces the per-session token budget over a sliding
// window of the usage ledger.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBudget = 10_000
	DefaultWindow = 24 * time.Hour
)

type Config struct {
	Budget int           `split_words:"true" default:"10000"`
	Window time.Duration `split_words:"true" default:"24h"`
}

func (c Config) Validate() error {
	if c.Budget <= 0 {
		return fmt.Errorf("rate limit budget must be positive, got %d", c.Budget)
	}
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.Window)
	}
	return nil
}

// Ledger is the read side of the token-usage table.
type Ledger interface {
	SumTokensSince(ctx context.Context, sessionID uuid.UUID, from, to time.Time) (int, error)
}

type Limiter struct {
	budget int
	window time.Duration
	now    func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		budget: cfg.Budget,
		window: cfg.Window,
		now:    time.Now,
	}
	if l.budget <= 0 {
		l.budget = DefaultBudget
	}
	if l.window <= 0 {
		l.window = DefaultWindow
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether the session may start another turn: the tokens
// recorded in (now-window, now] must not exceed the budget. It only reads.
func (l *Limiter) Allow(ctx context.Context, ledger Ledger, sessionID uuid.UUID) (bool, error) {
	used, err := l.Used(ctx, ledger, sessionID)
	if err != nil {
		return false, err
	}
	return used <= l.budget, nil
}

// Used is the token total currently counted against the session.
func (l *Limiter) Used(ctx context.Context, ledger Ledger, sessionID uuid.UUID) (int, error) {
	now := l.now().UTC()
	used, err := ledger.SumTokensSince(ctx, sessionID, now.Add(-l.window), now)
	if err != nil {
		return 0, fmt.Errorf("rate limit: sum usage: %w", err)
	}
	return used, nil
}

func (l *Limiter) Budget() int { return l.budget }
