package workerrt

import "sync"

// CancelToken is the per-request cancellation token the dispatcher hands to
// registry.NewContext. It satisfies registry.CancelSignal without workerrt
// and registry needing to import each other directly (registry only knows
// the narrow interface).
type CancelToken struct {
	mu        sync.Mutex
	cancelled bool
	done      chan struct{}
}

func newCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel marks the token cancelled exactly once, closing Cancelled()'s
// channel. Safe to call more than once or concurrently.
func (t *CancelToken) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.cancelled = true
	close(t.done)
}

func (t *CancelToken) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *CancelToken) Cancelled() <-chan struct{} {
	return t.done
}
