package finalizer

import (
	"context"
	"sync"
	"time"
)

// AutoResetEvent is a one-shot signal consumed by exactly one waiter per
// Set call, mirroring the auto-reset CLREvent the original finalizer thread
// waits on. Unlike an unbuffered channel, multiple concurrent Set calls
// before a Wait collapse into a single pending signal rather than blocking
// or being lost in a way that depends on goroutine scheduling order.
type AutoResetEvent struct {
	ch chan struct{}
}

// NewAutoResetEvent returns a new, initially unsignaled AutoResetEvent.
func NewAutoResetEvent() *AutoResetEvent {
	return &AutoResetEvent{ch: make(chan struct{}, 1)}
}

// Set signals the event. If a waiter is blocked in Wait, exactly one is
// woken and the event returns to the unsignaled state. If no waiter is
// blocked, the signal is latched (at most one pending signal is retained)
// until the next Wait call consumes it.
func (e *AutoResetEvent) Set() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the event is signaled or timeout elapses. A negative
// timeout waits forever. It returns true if the event was consumed, false
// on timeout.
func (e *AutoResetEvent) Wait(timeout time.Duration) bool {
	if timeout < 0 {
		<-e.ch
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-e.ch:
		return true
	case <-t.C:
		return false
	}
}

// Chan exposes the underlying channel for use in a select statement, e.g.
// as part of [WaitMulti]. Receiving from it has the same consuming effect
// as Wait.
func (e *AutoResetEvent) Chan() <-chan struct{} {
	return e.ch
}

// ManualResetEvent is a signal that, once Set, stays signaled for every
// waiter until explicitly Reset — the manual-reset CLREvent semantics the
// finalizer's "done" signal and the barrier's wait depend on.
type ManualResetEvent struct {
	mu   sync.Mutex
	ch   chan struct{}
	done bool
}

// NewManualResetEvent returns a new, initially unsignaled ManualResetEvent.
func NewManualResetEvent() *ManualResetEvent {
	return &ManualResetEvent{ch: make(chan struct{})}
}

// Set puts the event into the signaled state. All current and future
// waiters unblock until Reset is called. Calling Set on an already-signaled
// event is a no-op.
func (e *ManualResetEvent) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.done {
		e.done = true
		close(e.ch)
	}
}

// Reset returns the event to the unsignaled state. Callers must Reset
// before relying on a subsequent Wait to observe a fresh Set — resetting
// after a Wait observed the signal, but before a logically new cycle,
// avoids racing a late Set against an early Reset (see [Barrier]).
func (e *ManualResetEvent) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		e.ch = make(chan struct{})
		e.done = false
	}
}

// Wait blocks until the event is signaled, the context is done, or timeout
// elapses (a negative timeout waits forever, bounded only by ctx). It
// returns true if the event was observed signaled.
func (e *ManualResetEvent) Wait(ctx context.Context, timeout time.Duration) bool {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()

	if timeout < 0 {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// An already-signaled event wins over an already-expired timer.
	select {
	case <-ch:
		return true
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// WaitSource identifies which member of a [WaitMulti] array was observed
// signaled. Using a named result — rather than a raw index into the wait
// array — preserves the semantics the original implementation derives from
// a fixed handle-array layout (kLowMemoryNotification == 0, kFinalizer == 1)
// without depending on that layout in Go (see spec §9, "Event ordering in
// multi-wait").
type WaitSource int

const (
	// WaitTimedOut indicates no source fired before the deadline.
	WaitTimedOut WaitSource = iota
	// WaitLowMemory indicates the low-memory notification fired.
	WaitLowMemory
	// WaitFinalization indicates the finalization signal fired.
	WaitFinalization
)

// WaitMulti waits on the low-memory channel (which may be nil, meaning
// "absent or not yet eligible") and the finalization auto-reset event
// together, returning which one fired first. Low memory is checked first on
// simultaneous readiness, matching the original's documented preference for
// handling memory pressure before ordinary finalization work on a tie.
//
// A negative timeout waits forever.
func WaitMulti(ctx context.Context, lowMemory <-chan struct{}, finalization *AutoResetEvent, timeout time.Duration) WaitSource {
	var timeoutC <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutC = t.C
	}

	// Non-blocking priority check first: if both are already ready, this
	// guarantees low-memory wins regardless of Go's pseudo-random select
	// case ordering.
	select {
	case <-lowMemory:
		return WaitLowMemory
	default:
	}

	select {
	case <-lowMemory:
		return WaitLowMemory
	case <-finalization.Chan():
		return WaitFinalization
	case <-timeoutC:
		return WaitTimedOut
	case <-ctx.Done():
		return WaitTimedOut
	}
}
