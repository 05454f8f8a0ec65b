// Package ratelimit enforces per-account article quotas over fixed windows.
package ratelimit

import (
	"sync"
	"time"

	"rss_relay/internal/benefits"
)

// window is one fixed-length counter.
type window struct {
	start time.Time
	count int
}

// account holds the windows of one account, one per rate limit rule.
type account struct {
	mu      sync.Mutex
	windows map[time.Duration]*window
	lastHit time.Time
	// removed is set by Prune once the account left the map.
	removed bool
}

// Limiter counts delivered articles per account. Admission checks for the
// same account are serialized so concurrent deliveries cannot exceed a cap.
type Limiter struct {
	mu       sync.Mutex
	accounts map[string]*account
	now      func() time.Time
}

// New creates a Limiter using the wall clock.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Limiter with a custom clock (useful for testing).
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{
		accounts: make(map[string]*account),
		now:      now,
	}
}

func (l *Limiter) account(id string) *account {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[id]
	if !ok {
		acc = &account{windows: make(map[time.Duration]*window)}
		l.accounts[id] = acc
	}
	return acc
}

// lock returns the live record of an account with its mutex held. A record
// pruned between the lookup and the lock is skipped.
func (l *Limiter) lock(id string) *account {
	for {
		acc := l.account(id)
		acc.mu.Lock()
		if !acc.removed {
			return acc
		}
		acc.mu.Unlock()
	}
}

// Admit records one article for the account and reports whether it fits in
// every window of the profile's rate limits. A rejected article does not
// count against any window.
func (l *Limiter) Admit(accountID string, profile benefits.Profile) bool {
	now := l.now()
	acc := l.lock(accountID)
	defer acc.mu.Unlock()
	acc.lastHit = now

	for _, rule := range profile.ArticleRateLimits {
		w := acc.current(rule.Window, now)
		if w.count >= rule.Max {
			return false
		}
	}
	for _, rule := range profile.ArticleRateLimits {
		acc.current(rule.Window, now).count++
	}
	return true
}

// Remaining returns how many more articles the account may deliver before
// its tightest window is exhausted.
func (l *Limiter) Remaining(accountID string, profile benefits.Profile) int {
	now := l.now()
	acc := l.lock(accountID)
	defer acc.mu.Unlock()

	remaining := -1
	for _, rule := range profile.ArticleRateLimits {
		left := max(rule.Max-acc.current(rule.Window, now).count, 0)
		if remaining < 0 || left < remaining {
			remaining = left
		}
	}
	return max(remaining, 0)
}

// Prune forgets accounts that have not been checked for longer than idle.
func (l *Limiter) Prune(idle time.Duration) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, acc := range l.accounts {
		acc.mu.Lock()
		if now.Sub(acc.lastHit) > idle {
			acc.removed = true
			delete(l.accounts, id)
			removed++
		}
		acc.mu.Unlock()
	}
	return removed
}

// current returns the live window for a rule length, starting a new one
// when none exists or the previous one has elapsed. Callers hold acc.mu.
func (acc *account) current(length time.Duration, now time.Time) *window {
	w, ok := acc.windows[length]
	if !ok || !now.Before(w.start.Add(length)) {
		w = &window{start: now}
		acc.windows[length] = w
	}
	return w
}
