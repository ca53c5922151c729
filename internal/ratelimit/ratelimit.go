package ratelimit

import (
	"context"
	"sync"
	"time"

	"viola-joke/pkg/logger"
)

const DefaultMaxKeys = 10000

// Limiter is a per-key sliding window counter held in process memory.
type Limiter struct {
	limit   int
	window  time.Duration
	maxKeys int
	now     func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithMaxKeys bounds how many client keys are tracked before an inline sweep runs.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxKeys = n
		}
	}
}

func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:   limit,
		window:  window,
		maxKeys: DefaultMaxKeys,
		now:     time.Now,
		events:  make(map[string][]time.Time),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Allow records an event for key and reports true when the key is still under
// its limit for the current window. Denied calls are not recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(key, now)

	if len(recent) >= l.limit {
		return false
	}

	if _, tracked := l.events[key]; !tracked && len(l.events) >= l.maxKeys {
		l.sweepLocked(now)
	}

	l.events[key] = append(recent, now)
	return true
}

// Remaining reports how many more events key may record in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(key, l.now())
	return max(0, l.limit-len(recent))
}

// Sweep drops every key whose history has aged out of the window.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.sweepLocked(l.now())
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.events)
}

// Run sweeps on every tick until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = l.window
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				logger.Debug("Rate limiter swept stale clients", logger.Int("evicted", n))
			}
		}
	}
}

func (l *Limiter) prune(key string, now time.Time) []time.Time {
	history, ok := l.events[key]
	if !ok {
		return nil
	}

	recent := history[:0]
	for _, t := range history {
		if now.Sub(t) < l.window {
			recent = append(recent, t)
		}
	}

	if len(recent) == 0 {
		delete(l.events, key)
		return nil
	}

	l.events[key] = recent
	return recent
}

func (l *Limiter) sweepLocked(now time.Time) int {
	evicted := 0
	for key := range l.events {
		if l.prune(key, now) == nil {
			evicted++
		}
	}
	return evicted
}
