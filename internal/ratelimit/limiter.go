package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	DefaultWindow = time.Minute
	DefaultMax    = 50
)

// ExceededError is returned when a key already holds the maximum number of
// requests inside the trailing window.
type ExceededError struct {
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("Rate limit exceeded. Please wait %d seconds.", e.Seconds())
}

// Seconds returns RetryAfter rounded up to whole seconds.
func (e *ExceededError) Seconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// Limiter is a per-key sliding window counter.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	now     func() time.Time
	windows map[string][]time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(window time.Duration, max int, opts ...Option) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMax
	}
	l := &Limiter{
		window:  window,
		max:     max,
		now:     time.Now,
		windows: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckAndRecord purges stale entries for key and records a new request, or
// returns *ExceededError when the window is full.
func (l *Limiter) CheckAndRecord(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := l.purge(l.windows[key], now)

	if len(valid) >= l.max {
		l.windows[key] = valid
		return &ExceededError{RetryAfter: l.window - now.Sub(valid[0])}
	}

	l.windows[key] = append(valid, now)
	return nil
}

// Sweep drops keys whose entries have all left the window and returns how
// many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, ts := range l.windows {
		valid := l.purge(ts, now)
		if len(valid) == 0 {
			delete(l.windows, key)
			removed++
			continue
		}
		l.windows[key] = valid
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// purge keeps timestamps younger than the window; entries are chronological.
func (l *Limiter) purge(ts []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= l.window {
		i++
	}
	if i == 0 {
		return ts
	}
	out := make([]time.Time, len(ts)-i)
	copy(out, ts[i:])
	return out
}
