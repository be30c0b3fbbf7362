// Package cancel implements one-shot cooperative cancellation shared by
// pipeline stages.
package cancel

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// Signal is a one-shot cancellation flag.
//
// Stages poll Cancelled between units of work. Subscribers are invoked
// exactly once, synchronously, by the Cancel call that flips the flag.
// Zero value is not usable, use New.
type Signal struct {
	cancelled atomic.Bool

	mu    sync.Mutex
	done  chan struct{}
	cause error
	subs  []func()
}

// New returns new non-cancelled Signal.
func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Cancel triggers the signal, recording cause if this call is the first.
//
// Returns true if the call performed the transition.
// Safe for concurrent use.
func (s *Signal) Cancel(cause error) bool {
	if cause == nil {
		cause = context.Canceled
	}
	s.mu.Lock()
	if s.cancelled.Load() {
		s.mu.Unlock()
		return false
	}
	s.cause = cause
	s.cancelled.Store(true)
	subs := s.subs
	s.subs = nil
	close(s.done)
	s.mu.Unlock()

	// Outside the lock: subscribers may call back into the signal.
	for _, f := range subs {
		f()
	}
	return true
}

// Subscribe registers f to be called on cancellation.
//
// If the signal is already cancelled, f is called immediately.
func (s *Signal) Subscribe(f func()) {
	s.mu.Lock()
	if !s.cancelled.Load() {
		s.subs = append(s.subs, f)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	f()
}

// Cancelled reports whether Cancel was called.
func (s *Signal) Cancelled() bool { return s.cancelled.Load() }

// Done is closed on cancellation.
func (s *Signal) Done() <-chan struct{} { return s.done }

// Err returns the cause passed to the first Cancel, or nil.
func (s *Signal) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Bind cancels s when ctx is done.
//
// The returned function detaches s from ctx and reports whether it did so
// before the cancellation fired.
func (s *Signal) Bind(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		s.Cancel(context.Cause(ctx))
	})
}
