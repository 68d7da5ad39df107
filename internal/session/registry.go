package session

import (
	"math"
	"sync"
)

// ActivityRecorder is notified whenever the registry is used.
type ActivityRecorder interface {
	Touch()
}

// Registry maps client ids to sessions and is the only place sessions are created.
//
// The lock guards map membership only; per-session state has its own locks, so work on
// one session never waits on another.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	last     uint64
	opts     Options
	activity ActivityRecorder
}

// NewRegistry creates an empty registry. activity may be nil.
func NewRegistry(opts Options, activity ActivityRecorder) *Registry {
	return &Registry{
		sessions: make(map[uint64]*Session),
		opts:     opts,
		activity: activity,
	}
}

// Create allocates the next sequential id, starting at 1, and inserts a fresh session.
func (r *Registry) Create() (uint64, error) {
	r.mu.Lock()
	if r.last == math.MaxUint64 {
		r.mu.Unlock()
		return 0, ErrIDOverflow
	}
	r.last++
	id := r.last
	r.sessions[id] = newSession(id, r.opts)
	r.mu.Unlock()

	r.touch()
	return id, nil
}

// Get returns the session for id, or false when it was never created.
func (r *Registry) Get(id uint64) (*Session, bool) {
	r.touch()

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of sessions created so far.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) touch() {
	if r.activity != nil {
		r.activity.Touch()
	}
}
