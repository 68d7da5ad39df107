package session

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultBackoff applies when a 429 carries no usable Retry-After header.
const DefaultBackoff = 5 * time.Second

// Clock abstracts time so backoff waits can be observed in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backoff holds a session's not-before deadline for upstream calls.
type Backoff struct {
	mu    sync.Mutex
	until time.Time
	clock Clock
}

func newBackoff(clock Clock) *Backoff {
	return &Backoff{clock: clock}
}

// Deadline returns the instant before which no upstream call may start.
func (b *Backoff) Deadline() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.until
}

// Extend pushes the deadline to now+d. An earlier deadline never replaces a later one.
func (b *Backoff) Extend(d time.Duration) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	until := b.clock.Now().Add(d)
	if until.After(b.until) {
		b.until = until
	}
	return b.until
}

// Reset clears an elapsed deadline after a successful call.
//
// A deadline still in the future is left alone so a concurrent 429 is not lost.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.until.After(b.clock.Now()) {
		b.until = time.Time{}
	}
}

// Wait blocks until the deadline has passed. It only fails when ctx ends first.
//
// The deadline is re-read after each sleep since a concurrent 429 may have moved it.
func (b *Backoff) Wait(ctx context.Context) error {
	for {
		d := b.Deadline().Sub(b.clock.Now())
		if d <= 0 {
			return nil
		}
		if err := b.clock.Sleep(ctx, d); err != nil {
			return err
		}
	}
}

// ParseRetryAfter reads a Retry-After header given in delta-seconds or as an HTTP date.
func ParseRetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseUint(v, 10, 32); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
