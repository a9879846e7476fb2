// Package ratelimiter throttles high-frequency callbacks such as transfer progress.
package ratelimiter

import (
	"sync"
	"time"
)

// Limiter allows one action per interval and is safe for concurrent use.
// A zero interval allows every action.
type Limiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed time.Time
	now         func() time.Time
}

// New creates a new rate limiter with the specified interval.
func New(interval time.Duration) *Limiter {
	return NewWithClock(interval, time.Now)
}

// NewWithClock creates a limiter reading time from now.
func NewWithClock(interval time.Duration, now func() time.Time) *Limiter {
	return &Limiter{
		interval: interval,
		now:      now,
	}
}

// Allow reports whether an action may run now and records it if so.
// When rate-limited it returns the remaining wait duration.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.interval <= 0 || l.lastAllowed.IsZero() {
		l.lastAllowed = now
		return true, 0
	}

	elapsed := now.Sub(l.lastAllowed)
	if elapsed >= l.interval {
		l.lastAllowed = now
		return true, 0
	}
	return false, l.interval - elapsed
}

// Reset clears the limiter state, allowing the next action immediately.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.lastAllowed = time.Time{}
	l.mu.Unlock()
}

// Interval returns the configured rate limit interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
