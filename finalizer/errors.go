package finalizer

import "errors"

// Standard errors. Matches the teacher's pattern of a var() block of
// sentinel errors per package (see eventloop/loop.go, poller_linux.go).
var (
	// ErrCalledFromFinalizerThread is returned by [Barrier.WaitForCycle]
	// when invoked from the finalizer worker's own goroutine. Spec §4.2
	// documents this as undefined-otherwise; this package treats it as a
	// LifecycleViolation (§7): tolerated and returned, not panicked and
	// not logged.
	ErrCalledFromFinalizerThread = errors.New("finalizer: waitForCycle called from the finalizer goroutine")

	// ErrEventInitFailed is a Fatal-kind (§7) error: something needed to
	// construct the worker's event primitives failed. In this
	// implementation that can currently only happen via a nil GCHeap or
	// ManagedRunner passed to NewWorker, since Go's channel/mutex-based
	// events can't themselves fail to allocate short of an OOM panic.
	ErrEventInitFailed = errors.New("finalizer: failed to initialize worker")

	// ErrAlreadyRunning is returned by Run if called more than once
	// concurrently.
	ErrAlreadyRunning = errors.New("finalizer: worker is already running")
)
