// Package ratelimit implements the sliding-window admission gate applied
// before any call reaches the lifecycle manager. It only limits call
// frequency and never coordinates with the atomic stock operations.
package ratelimit

import (
	"sync"
	"time"

	"festival-orders/internal/domain"
)

type Rule struct {
	MaxRequests   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultRules mirror the production gate settings.
var DefaultRules = map[string]Rule{
	"place_order": {MaxRequests: 10, Window: time.Minute, BlockDuration: 5 * time.Minute},
	"login":       {MaxRequests: 5, Window: time.Minute, BlockDuration: 10 * time.Minute},
}

type record struct {
	times        []time.Time
	blockedUntil time.Time
}

// Limiter is explicitly constructed and injected; Reset gives it a defined
// lifecycle instead of process-global state.
type Limiter struct {
	mu      sync.Mutex
	rules   map[string]Rule
	records map[string]*record
	now     func() time.Time
}

func New(rules map[string]Rule) *Limiter {
	if rules == nil {
		rules = DefaultRules
	}
	return &Limiter{
		rules:   rules,
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// Allow records one attempt for (tenant, action) and returns nil, or a
// RateLimitedError carrying the remaining block. Attempts while blocked do
// not extend or reset the block.
func (l *Limiter) Allow(tenantID, action string) error {
	rule, ok := l.rules[action]
	if !ok {
		return nil
	}
	key := tenantID + ":" + action

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	rec, ok := l.records[key]
	if !ok {
		rec = &record{}
		l.records[key] = rec
	}
	if now.Before(rec.blockedUntil) {
		return &domain.RateLimitedError{Key: key, RetryAfter: rec.blockedUntil.Sub(now)}
	}

	cutoff := now.Add(-rule.Window)
	kept := rec.times[:0]
	for _, t := range rec.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rec.times = kept

	if len(rec.times) >= rule.MaxRequests {
		rec.blockedUntil = now.Add(rule.BlockDuration)
		rec.times = nil
		return &domain.RateLimitedError{Key: key, RetryAfter: rule.BlockDuration}
	}
	rec.times = append(rec.times, now)
	return nil
}

// Reset drops all windows and blocks.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = make(map[string]*record)
}
