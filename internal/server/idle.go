package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// IdleSupervisor ends the proxy after a period with no inbound requests.
//
// It implements [session.ActivityRecorder].
type IdleSupervisor struct {
	window time.Duration
	last   atomic.Int64 // unix nanoseconds of the latest activity
	logger *log.Logger
}

// NewIdleSupervisor creates a supervisor whose activity clock starts now.
func NewIdleSupervisor(window time.Duration, logger *log.Logger) *IdleSupervisor {
	s := &IdleSupervisor{window: window, logger: logger}
	s.Touch()
	return s
}

// Touch records activity.
func (s *IdleSupervisor) Touch() {
	s.last.Store(time.Now().UnixNano())
}

// Idle returns the time since the last recorded activity.
func (s *IdleSupervisor) Idle() time.Duration {
	return time.Since(time.Unix(0, s.last.Load()))
}

// Window returns the configured inactivity window.
func (s *IdleSupervisor) Window() time.Duration {
	return s.window
}

// Run sleeps for the window and returns nil once a full window has passed without
// activity. It returns ctx.Err() if ctx ends first.
func (s *IdleSupervisor) Run(ctx context.Context) error {
	if s.window <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	t := time.NewTimer(s.window)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		idle := s.Idle()
		if idle >= s.window {
			return nil
		}
		if s.logger != nil {
			s.logger.Debug("activity within idle window", "idle", idle.Round(time.Millisecond))
		}
		t.Reset(s.window)
	}
}
