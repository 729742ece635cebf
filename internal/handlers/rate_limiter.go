package handlers

import (
	"strings"
	"sync"
	"time"
)

// rateLimiter admits or rejects a keyed action. When it rejects, it reports how long until the key's
// window resets.
type rateLimiter interface {
	Allow(key string) (bool, time.Duration)
}

// windowLimiter is a fixed-window counter per key. Expired windows are pruned lazily whenever a new
// window opens.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]windowState
}

type windowState struct {
	count int
	reset time.Time
}

func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]windowState),
	}
}

func (l *windowLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.windows[key]
	if !ok || !now.Before(state.reset) {
		l.prune(now)
		l.windows[key] = windowState{count: 1, reset: now.Add(l.window)}
		return true, 0
	}
	if state.count >= l.limit {
		return false, state.reset.Sub(now)
	}
	state.count++
	l.windows[key] = state
	return true, 0
}

func (l *windowLimiter) prune(now time.Time) {
	for key, state := range l.windows {
		if !now.Before(state.reset) {
			delete(l.windows, key)
		}
	}
}
