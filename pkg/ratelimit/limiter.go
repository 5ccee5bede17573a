package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter paces outgoing requests
type Limiter interface {
	// Allow takes a slot if one is free
	Allow() bool
	// Wait blocks until a slot is free or ctx is done
	Wait(ctx context.Context) error
	// Reset forgets all recorded requests
	Reset()
}

// TokenBucket refills to full capacity once per refill period
type TokenBucket struct {
	capacity     int
	tokens       int
	refillPeriod time.Duration
	lastRefill   time.Time
	mu           sync.Mutex
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		tb.mu.Lock()
		delay := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	if now.Sub(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}

// SlidingWindow allows at most maxRequests within any window of windowSize.
// It matches the per endpoint windows of the Twitter API.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates an empty window
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.cleanOldRequests(now)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true
	}
	return false
}

func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for !sw.Allow() {
		sw.mu.Lock()
		var delay time.Duration
		if len(sw.requests) > 0 {
			delay = sw.windowSize - time.Since(sw.requests[0])
		}
		sw.mu.Unlock()

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.requests = sw.requests[:0]
}

func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}

// sleep waits for d (at least a short poll interval) unless ctx ends first
func sleep(ctx context.Context, d time.Duration) error {
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
