package oeis

import (
	"context"
	"time"
)

// The retry loop is modeled as an explicit state machine so the control flow
// and timing are testable without real sleeps.
//
//	Attempting --success--> Succeeded
//	Attempting --permanent error or attempts spent--> Exhausted
//	Attempting --transient/429--> Backoff --sleep--> Attempting
type retryState int

const (
	stateAttempting retryState = iota
	stateBackoff
	stateExhausted
	stateSucceeded
)

type attemptOutcome int

const (
	outcomeSuccess attemptOutcome = iota
	outcomeTransient
	outcomeRateLimited
	outcomePermanent
)

type retryMachine struct {
	state       retryState
	attempt     int           // attempts consumed so far
	maxAttempts int
	backoffBase time.Duration
	sleep       func(context.Context, time.Duration) error
}

func newRetryMachine(maxAttempts int, backoffBase time.Duration, sleep func(context.Context, time.Duration) error) *retryMachine {
	return &retryMachine{
		state:       stateAttempting,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		sleep:       sleep,
	}
}

// nextDelay consumes an attempt and returns the delay before the next one,
// or a negative duration when attempts are exhausted. A server retry-after
// hint overrides exponential backoff.
func (m *retryMachine) nextDelay(rateLimited bool, hint time.Duration) time.Duration {
	m.attempt++
	if m.attempt >= m.maxAttempts {
		m.state = stateExhausted
		return -1
	}

	if rateLimited && hint > 0 {
		return hint
	}
	// Exponential: base, base*2, base*4, ...
	return m.backoffBase << (m.attempt - 1)
}

// backoff sleeps for delay, transitioning Backoff -> Attempting. Context
// cancellation aborts the machine.
func (m *retryMachine) backoff(ctx context.Context, delay time.Duration) error {
	m.state = stateBackoff
	if err := m.sleep(ctx, delay); err != nil {
		m.state = stateExhausted
		return err
	}
	m.state = stateAttempting
	return nil
}

func (m *retryMachine) succeed() { m.state = stateSucceeded }
func (m *retryMachine) exhaust() { m.state = stateExhausted }
