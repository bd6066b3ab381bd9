package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errAckAborted reports that the acknowledgment wait was torn down by a reset
// or close before the server answered.
var errAckAborted = errors.New("session: acknowledgment wait aborted")

// ackWaiter is a one-shot bounded wait for a single server acknowledgment.
// Exactly one of the racing branches — resolve, abort, timeout, context
// cancellation — wins; the losing branches are torn down so no listener
// dangles after the wait returns.
type ackWaiter struct {
	resolveOnce sync.Once
	abortOnce   sync.Once
	resolved    chan struct{}
	aborted     chan struct{}
}

func newAckWaiter() *ackWaiter {
	return &ackWaiter{
		resolved: make(chan struct{}),
		aborted:  make(chan struct{}),
	}
}

// resolve marks the acknowledgment as received. Idempotent; safe to call
// after the wait already timed out (the late resolution is discarded).
func (w *ackWaiter) resolve() {
	w.resolveOnce.Do(func() { close(w.resolved) })
}

// abort unblocks a pending wait with [errAckAborted]. Idempotent.
func (w *ackWaiter) abort() {
	w.abortOnce.Do(func() { close(w.aborted) })
}

// wait blocks until resolve, abort, the timeout elapsing, or ctx
// cancellation. Returns nil on acknowledgment, an
// [*AcknowledgmentTimeoutError] on timeout, [errAckAborted] on abort, or
// ctx.Err().
func (w *ackWaiter) wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.resolved:
		return nil
	case <-w.aborted:
		return errAckAborted
	case <-timer.C:
		return &AcknowledgmentTimeoutError{Timeout: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}
