// Package ratelimit implements a blocking token-bucket rate limiter used to
// bound outbound catalog requests.
//
// Design Notes:
//   - Lazy refill: tokens are recomputed from elapsed wall-clock time on each
//     Acquire call, no background timer goroutine
//   - Burst capacity equals the refill rate, so at most R requests can be
//     issued instantaneously before the bucket drains
//   - Single mutex critical section for token accounting; the wait itself
//     happens outside the lock
//   - Clock and sleep are injectable so timing behavior is deterministic in
//     tests
//
// Trade-offs:
//   - Mutex vs CAS loop: chose mutex because the blocking path must compute a
//     wait duration atomically with the token debit
//   - Fractional tokens: float64 accounting keeps sub-second refill exact
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a token bucket refilled at a steady rate with burst capacity
// equal to the rate. Safe for concurrent callers.
type Bucket struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	burst      float64 // maximum tokens held
	tokens     float64
	lastRefill time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates a bucket issuing ratePerSec tokens per second with burst
// capacity ratePerSec. The bucket starts full.
func New(ratePerSec float64) *Bucket {
	if ratePerSec <= 0 {
		panic("ratePerSec must be positive")
	}
	b := &Bucket{
		rate:  ratePerSec,
		burst: ratePerSec,
		now:   time.Now,
		sleep: sleepCtx,
	}
	b.tokens = b.burst
	b.lastRefill = b.now()
	return b
}

// SetClock injects a clock and sleep function. Test use only; must be called
// before any Acquire.
func (b *Bucket) SetClock(now func() time.Time, sleep func(context.Context, time.Duration) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	b.sleep = sleep
	b.tokens = b.burst
	b.lastRefill = now()
}

// Acquire blocks until one token is available, then consumes it. The only
// failure mode is context cancellation; worst case otherwise is an unbounded
// wait, which callers bound via ctx.
func (b *Bucket) Acquire(ctx context.Context) error {
	for {
		wait, ok := b.take()
		if ok {
			return nil
		}
		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// TryAcquire consumes a token without blocking. Returns false if the bucket
// is empty.
func (b *Bucket) TryAcquire() bool {
	_, ok := b.take()
	return ok
}

// Tokens reports the current token count after refill. Snapshot only.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

// take refills from elapsed time and attempts to debit one token.
// On failure it returns the duration until the next token accrues.
func (b *Bucket) take() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}

	deficit := 1 - b.tokens
	wait := time.Duration(deficit / b.rate * float64(time.Second))
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// refillLocked credits tokens for elapsed time. Must hold mu.
func (b *Bucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens += b.rate * elapsed.Seconds()
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastRefill = now
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
