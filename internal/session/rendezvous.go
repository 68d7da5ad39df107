package session

import (
	"context"
	"sync"
)

// callback is what the redirect endpoint hands to a waiting browser flow.
type callback struct {
	code string
	err  error
}

// Rendezvous is a one-shot, single-slot hand-off of an authorization code from the
// callback request to the flow waiting on it.
//
// Delivering never blocks: an unconsumed value is replaced by the newer one.
type Rendezvous struct {
	mu sync.Mutex
	ch chan callback
}

func newRendezvous() *Rendezvous {
	return &Rendezvous{ch: make(chan callback, 1)}
}

// Deliver stores code for the current or next waiter.
func (r *Rendezvous) Deliver(code string) {
	r.put(callback{code: code})
}

// Fail wakes the waiter with err, e.g. when the user denied access.
func (r *Rendezvous) Fail(err error) {
	r.put(callback{err: err})
}

func (r *Rendezvous) put(cb callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.ch:
	default:
	}
	r.ch <- cb
}

// Discard drops a stale, unclaimed value. It reports whether one was present.
func (r *Rendezvous) Discard() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.ch:
		return true
	default:
		return false
	}
}

// Pending reports whether a value is waiting to be claimed.
func (r *Rendezvous) Pending() bool {
	return len(r.ch) > 0
}

// Wait blocks until a value is delivered or ctx ends.
func (r *Rendezvous) Wait(ctx context.Context) (string, error) {
	select {
	case cb := <-r.ch:
		return cb.code, cb.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
