package workerrt

import (
	"context"
	"errors"
	"syscall"
	"time"
)

// Backoff constants for the supervisor's restart loop, carried over unchanged from
// the teacher's broker package: small initial delay, capped exponential
// growth, same cap.
const (
	initialBackoff = 10 * time.Millisecond
	maxBackoff     = 1 * time.Second
	backoffFactor  = 2
)

// Backoff tracks the current delay across repeated worker restarts.
type Backoff struct {
	current time.Duration
}

func NewBackoff() *Backoff {
	return &Backoff{current: initialBackoff}
}

// Wait blocks for the current delay (or until ctx is done) and advances
// the delay for next time.
func (b *Backoff) Wait(ctx context.Context) error {
	select {
	case <-time.After(b.current):
	case <-ctx.Done():
		return ctx.Err()
	}
	b.current *= backoffFactor
	if b.current > maxBackoff {
		b.current = maxBackoff
	}
	return nil
}

func (b *Backoff) Reset() {
	b.current = initialBackoff
}

// isFatal reports whether err indicates the socket is permanently broken
// and reconnecting is pointless — e.g. the supervisor tore down the
// listening socket rather than merely dropping this connection. Mirrors
// broker.isFatal's errno classification.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EBADF, syscall.ENOENT:
			return true
		}
	}
	return false
}

// isRetryable reports whether a reconnect attempt is worth making: not a
// shutdown-driven context cancellation, and not already classified fatal.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !isFatal(err)
}
