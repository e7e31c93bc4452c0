package router

import "sync/atomic"

// idAllocator hands out monotonically increasing request ids, the uint64
// analog of broker.NewMessageID's random [16]byte — sequential here since
// the router is the sole issuer of ids for its own worker connection, so
// collision is a non-issue and sequential ids make logs easier to read.
type idAllocator struct {
	counter atomic.Uint64
}

func newIDAllocator() *idAllocator {
	return &idAllocator{}
}

func (a *idAllocator) next() uint64 {
	return a.counter.Add(1)
}
