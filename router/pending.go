package router

import (
	"sync"
	"time"

	"github.com/zapsplice/zap/wire"
)

// pendingEntry is one in-flight request's waiter, the uint64-keyed analog
// of broker.waiterMap's [16]byte-keyed entries.
type pendingEntry struct {
	ch        chan wire.Message
	createdAt time.Time
}

// pendingMap correlates a worker's InvokeResult/InvokeError replies back
// to the goroutine blocked in Invoke (CancelAck is only logged), grounded directly on
// broker.waiterMap — generalized from a random [16]byte message id to the
// router's own sequential uint64 request ids, and with an explicit
// createdAt so the reaper can use wall-clock TTL instead of relying on
// sync.Map iteration order.
type pendingMap struct {
	mu sync.Mutex
	m  map[uint64]*pendingEntry
}

func newPendingMap() *pendingMap {
	return &pendingMap{m: map[uint64]*pendingEntry{}}
}

func (p *pendingMap) new(id uint64) chan wire.Message {
	ch := make(chan wire.Message, 1)
	p.mu.Lock()
	p.m[id] = &pendingEntry{ch: ch, createdAt: time.Now()}
	p.mu.Unlock()
	return ch
}

func (p *pendingMap) loadAndDelete(id uint64) (chan wire.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[id]
	if !ok {
		return nil, false
	}
	delete(p.m, id)
	return e.ch, true
}

func (p *pendingMap) delete(id uint64) {
	p.mu.Lock()
	delete(p.m, id)
	p.mu.Unlock()
}

// reapStale drops waiters older than ttl that nobody ever collected —
// their caller must have already abandoned the call via its own ctx
// timeout. Mirrors broker.startReaper's waiterTTL sweep.
func (p *pendingMap) reapStale(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	p.mu.Lock()
	defer p.mu.Unlock()
	reaped := 0
	for id, e := range p.m {
		if e.createdAt.Before(cutoff) {
			delete(p.m, id)
			reaped++
		}
	}
	return reaped
}

func (p *pendingMap) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
