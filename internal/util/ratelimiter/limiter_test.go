package ratelimiter

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		advances []time.Duration // clock advance before each Allow() call
		want     []bool
		wantWait []time.Duration
	}{
		{
			name:     "first call always allowed",
			interval: 100 * time.Millisecond,
			advances: []time.Duration{0},
			want:     []bool{true},
			wantWait: []time.Duration{0},
		},
		{
			name:     "second call immediately after is blocked",
			interval: 100 * time.Millisecond,
			advances: []time.Duration{0, 0},
			want:     []bool{true, false},
			wantWait: []time.Duration{0, 100 * time.Millisecond},
		},
		{
			name:     "call after interval is allowed",
			interval: 50 * time.Millisecond,
			advances: []time.Duration{0, 60 * time.Millisecond},
			want:     []bool{true, true},
			wantWait: []time.Duration{0, 0},
		},
		{
			name:     "wait shrinks as time passes",
			interval: 100 * time.Millisecond,
			advances: []time.Duration{0, 30 * time.Millisecond, 30 * time.Millisecond, 40 * time.Millisecond},
			want:     []bool{true, false, false, true},
			wantWait: []time.Duration{0, 70 * time.Millisecond, 40 * time.Millisecond, 0},
		},
		{
			name:     "zero interval never limits",
			interval: 0,
			advances: []time.Duration{0, 0, 0},
			want:     []bool{true, true, true},
			wantWait: []time.Duration{0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Unix(1000, 0)}
			limiter := NewWithClock(tt.interval, clock.Now)

			for i, adv := range tt.advances {
				clock.Advance(adv)

				allowed, wait := limiter.Allow()
				if allowed != tt.want[i] {
					t.Errorf("call %d: Allow() = %v, want %v", i, allowed, tt.want[i])
				}
				if wait != tt.wantWait[i] {
					t.Errorf("call %d: wait = %v, want %v", i, wait, tt.wantWait[i])
				}
			}
		})
	}
}

func TestLimiter_Reset(t *testing.T) {
	limiter := New(time.Hour)

	if allowed, _ := limiter.Allow(); !allowed {
		t.Fatal("first call should be allowed")
	}
	if allowed, _ := limiter.Allow(); allowed {
		t.Fatal("second call should be blocked")
	}

	limiter.Reset()

	if allowed, _ := limiter.Allow(); !allowed {
		t.Fatal("call after reset should be allowed")
	}
}

func TestLimiter_Interval(t *testing.T) {
	interval := 42 * time.Second
	limiter := New(interval)

	if got := limiter.Interval(); got != interval {
		t.Errorf("Interval() = %v, want %v", got, interval)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := New(time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := limiter.Allow(); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if allowedCount != 1 {
		t.Errorf("concurrent calls: %d allowed, want exactly 1", allowedCount)
	}
}
