package finalizer

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
)

// WorkItem is one entry in the GC's pending-work list (spec §3
// pendingWorkList). The worker walks the list via Next, invoking Callback
// for each, exactly once per drain.
type WorkItem interface {
	Callback()
	Next() WorkItem
}

// GCHeap is the subset of the garbage collector this package depends on.
// It is supplied by the caller; finalizer never implements a collector
// (spec §1 Non-goals).
type GCHeap interface {
	// CollectionCount returns the monotonically increasing collection
	// count for the given generation.
	CollectionCount(gen int) uint64
	// GarbageCollect performs a synchronous collection of gen. forced
	// mirrors the original's "forced" flag on gen-0 low-memory collections.
	GarbageCollect(gen int, forced bool) error
	// PendingWorkList returns (and clears) the head of the non-finalizer
	// work item list, or nil if empty.
	PendingWorkList() WorkItem
	// MaxGeneration returns the index of the oldest/maximum generation
	// (GenMax in spec terms).
	MaxGeneration() int
}

// ManagedRunner is the managed-code entry point that runs all queued
// finalizer methods to completion (spec §6 runFinalizers).
type ManagedRunner interface {
	RunFinalizers() uint32
}

// StressInhibitor is the optional GC-stress inhibition hook used by
// [Barrier.WaitForCycle] (spec §4.2 "Stress interaction") and by the
// worker's quiescence probe (spec §4.1.2). A nil StressInhibitor makes both
// a no-op, which is the expected configuration in production — GC-stress is
// a debug/testing-only facility (spec §9).
type StressInhibitor interface {
	// Level reports the current GC-stress level. 0 or 1 means disabled.
	Level() int
	// Inhibit temporarily suppresses stress-induced collections; the
	// returned func reverses it and must be called exactly once.
	Inhibit() (release func())
}

// WorkerOptions configures optional, rarely-needed behavior of [Worker].
// All fields are optional; a zero-value WorkerOptions reproduces the
// mandatory core of spec §4.1 only (steps 1, 2, 5, 6, 7, 8, 9), skipping
// the optional diagnostic hooks (steps 3, 4, 4.1.2).
type WorkerOptions struct {
	// OnFirstCycle runs exactly once, in the first cycle, after the
	// pending-work drain and before the managed finalizer run. It
	// corresponds to the original's priority-boost step (bPriorityBoosted).
	OnFirstCycle func()

	// OnPlatformAttach runs exactly once, independently of OnFirstCycle,
	// corresponding to Thread::InitializationForManagedThreadInNative.
	OnPlatformAttach func()

	// OnPlatformDetach runs once, on shutdown, corresponding to
	// Thread::CleanUpForManagedThreadInNative. Only called if
	// OnPlatformAttach was called and succeeded.
	OnPlatformDetach func()

	// JITReclaim is invoked every cycle, after the drain of the pending
	// work list and before the managed finalizer run (spec §4.1 step 5).
	JITReclaim func()

	// HeapDumpRequested reports whether a heap-dump/gen-analysis session
	// has been requested. Checked every cycle (spec §4.1 step 3).
	HeapDumpRequested func() bool

	// HeapDumpLimiter throttles how often a requested heap dump actually
	// triggers a blocking gen-MAX collection, replacing the original's raw
	// "LastHeapDumpTime" timestamp with a category rate limiter. If nil,
	// a heap dump triggers on every cycle it's requested.
	HeapDumpLimiter *catrate.Limiter

	// GenAnalysisDone reports (and, on true, should clear) whether an
	// in-progress gen-analysis session just completed. When true, the
	// worker writes the zero-byte completion file (spec §6 "Persisted
	// state") and calls GenAnalysisDisable.
	GenAnalysisDone func() bool
	// GenAnalysisDisable is called once when GenAnalysisDone transitions
	// to true, mirroring gcGenAnalysisState: Done -> Disabled.
	GenAnalysisDisable func()
	// GenAnalysisCompletionPathTemplate is a path containing the literal
	// substring "%p", replaced with the current process ID, matching
	// GENAWARE_COMPLETION_FILE_NAME / ReplacePid in the original. Empty
	// disables writing the completion file.
	GenAnalysisCompletionPathTemplate string

	// Stress, if non-nil, enables the debug-only quiescence probe (spec
	// §4.1.2) whenever Stress.Level() > 1.
	Stress StressInhibitor

	Logger Logger
}

const heapDumpRateCategory = "heap-dump"

// Worker owns the dedicated finalizer goroutine (spec §4.1, C3). Exactly
// one Worker should run per process-equivalent lifetime; construct with
// [NewWorker] and start with [Worker.Run] on a dedicated goroutine.
type Worker struct {
	heap   GCHeap
	runner ManagedRunner
	opts   WorkerOptions
	log    Logger

	finalizationSignal     *AutoResetEvent
	finalizationDoneSignal *ManualResetEvent
	shutdownCompleteSignal *AutoResetEvent
	lowMemory              *LowMemoryNotifier

	quitRequested      atomic.Bool
	observedFullGcCnt  atomic.Uint64
	goroutineID        atomic.Uint64
	running            atomic.Bool
	platformAttached   bool
}

// NewWorker constructs a Worker. heap and runner must not be nil; a nil
// value is treated as a Fatal-kind initialization error per spec §7.
func NewWorker(heap GCHeap, runner ManagedRunner, lowMemory *LowMemoryNotifier, opts WorkerOptions) (*Worker, error) {
	if heap == nil || runner == nil {
		return nil, ErrEventInitFailed
	}
	if opts.Logger == nil {
		opts.Logger = NoOpLogger{}
	}
	return &Worker{
		heap:                   heap,
		runner:                 runner,
		opts:                   opts,
		log:                    opts.Logger,
		finalizationSignal:     NewAutoResetEvent(),
		finalizationDoneSignal: NewManualResetEvent(),
		shutdownCompleteSignal: NewAutoResetEvent(),
		lowMemory:              lowMemory,
	}, nil
}

// EnableFinalization requests a new finalization cycle (spec §6
// enableFinalization). Safe to call from any goroutine.
func (w *Worker) EnableFinalization() {
	w.finalizationSignal.Set()
}

// IsCurrentThreadFinalizer reports whether the calling goroutine is the
// worker's own goroutine (spec §6 isCurrentThreadFinalizer).
func (w *Worker) IsCurrentThreadFinalizer() bool {
	id := w.goroutineID.Load()
	return id != 0 && getGoroutineID() == id
}

// DoneSignal exposes the manual-reset "cycle completed" event for use by
// [Barrier].
func (w *Worker) DoneSignal() *ManualResetEvent { return w.finalizationDoneSignal }

// ObservedFullGCCount returns the gen-MAX collection count published by the
// most recently completed cycle's pre-drain snapshot (spec §3
// observedFullGcCount).
func (w *Worker) ObservedFullGCCount() uint64 { return w.observedFullGcCnt.Load() }

// RequestShutdown sets quitRequested and wakes the worker so it observes it
// at the top of its current or next wait (spec §4.6, finalizer side).
// Idempotent.
func (w *Worker) RequestShutdown() {
	w.quitRequested.Store(true)
	w.finalizationSignal.Set()
}

// ShutdownComplete returns the signal set once, after the worker's final
// cycle, by [Worker.Run] just before it returns (spec §3
// ShutdownCompleteSignal).
func (w *Worker) ShutdownComplete() *AutoResetEvent { return w.shutdownCompleteSignal }

// Run executes the finalizer worker loop until shutdown is requested. It
// must be called exactly once, from a dedicated goroutine that the caller
// does not use for anything else — per spec §5, the worker's suspension
// points (event waits, the managed drain, the reclaim hook) may block
// arbitrarily.
//
// Run blocks until ctx is done or RequestShutdown is called and the final
// cycle completes; it never returns nil early just because a cycle's
// callback panicked (see the panic-recovery note on runCycle).
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.running.Store(false)

	w.goroutineID.Store(getGoroutineID())
	defer w.goroutineID.Store(0)

	go func() {
		<-ctx.Done()
		w.RequestShutdown()
	}()

	firstCycleDone := false

	for !w.quitRequested.Load() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// The original's FinalizerThreadStart loop re-arms
					// EnableFinalization after an exception unwinds the
					// cycle, on the theory that a signal was likely lost
					// mid-drain. We do the same rather than letting a
					// single bad finalizer kill the whole goroutine.
					w.log.Err("finalizer: recovered panic in cycle", "panic", r)
					if !w.quitRequested.Load() {
						w.finalizationSignal.Set()
					}
				}
			}()
			w.runCycle(ctx, &firstCycleDone)
		}()
	}

	if w.platformAttached && w.opts.OnPlatformDetach != nil {
		w.opts.OnPlatformDetach()
	}
	w.shutdownCompleteSignal.Set()
	return nil
}

// runCycle executes steps 1-9 of spec §4.1 for a single finalization cycle.
func (w *Worker) runCycle(ctx context.Context, firstCycleDone *bool) {
	// Step 1: preemptive wait for work. quitRequested is deliberately not
	// re-checked here: the original's FinalizerThreadWorker runs the full
	// cycle body unconditionally once the wait returns, and only the outer
	// loop in Run tests fQuitFinalizer/quitRequested. RequestShutdown
	// sets quitRequested and then signals finalizationSignal using the
	// same event EnableFinalization uses, so a shutdown racing an ordinary
	// cycle must still complete that cycle (drain, run, signal done)
	// before the worker parks for the last time — never abort it midway.
	source := w.wait(ctx)
	if source == WaitTimedOut {
		// wait returned without a finalization signal (shutdown was
		// requested after a Phase 1 timeout, or ctx is done); nothing to
		// drain this iteration.
		return
	}

	// Step 2: drain the pending work list.
	w.drainPendingWork()

	// Step 3: optional heap-dump / gen-analysis diagnostic hook.
	w.maybeTriggerHeapDump()
	w.maybeCompleteGenAnalysis()

	// Step 4: one-shot first-cycle initialization.
	if !*firstCycleDone {
		*firstCycleDone = true
		if w.opts.OnFirstCycle != nil {
			w.opts.OnFirstCycle()
		}
	}
	if !w.platformAttached && w.opts.OnPlatformAttach != nil {
		w.opts.OnPlatformAttach()
		w.platformAttached = true
	}

	// Step 5: external reclaim hook.
	if w.opts.JITReclaim != nil {
		w.opts.JITReclaim()
	}

	// Step 5.5 (debug-only): quiescence probe, spec §4.1.2.
	w.quiescenceProbe()

	// Step 7: snapshot the pre-drain full-GC count.
	fullGcCount := w.heap.CollectionCount(w.heap.MaxGeneration())

	// Step 8: run all finalizers.
	w.runner.RunFinalizers()

	// Step 9: publish and signal completion unconditionally — a pending
	// shutdown only takes effect once this cycle's DoneSignal has gone out,
	// so any concurrent WaitForCycle always observes a real result instead
	// of hanging.
	w.observedFullGcCnt.Store(fullGcCount)
	w.finalizationDoneSignal.Set()
}

// wait implements the two-phase adaptive wait of spec §4.1.1.
func (w *Worker) wait(ctx context.Context) WaitSource {
	// Phase 1: finalization alone, 2s.
	if w.finalizationSignal.Wait(2 * time.Second) {
		return WaitFinalization
	}
	if w.quitRequested.Load() {
		return WaitTimedOut
	}

	// Phase 2: finalization + low memory (if eligible), infinite.
	for {
		source := WaitMulti(ctx, w.lowMemory.Chan(), w.finalizationSignal, -1)
		switch source {
		case WaitLowMemory:
			_ = w.heap.GarbageCollect(0, true)
			if w.finalizationSignal.Wait(2 * time.Second) {
				return WaitFinalization
			}
			if w.quitRequested.Load() {
				return WaitTimedOut
			}
			continue
		case WaitFinalization:
			return WaitFinalization
		default:
			return WaitTimedOut
		}
	}
}

func (w *Worker) drainPendingWork() {
	item := w.heap.PendingWorkList()
	for item != nil {
		next := item.Next()
		item.Callback()
		item = next
	}
}

func (w *Worker) maybeTriggerHeapDump() {
	if w.opts.HeapDumpRequested == nil || !w.opts.HeapDumpRequested() {
		return
	}
	if w.opts.HeapDumpLimiter != nil {
		if _, ok := w.opts.HeapDumpLimiter.Allow(heapDumpRateCategory); !ok {
			return
		}
	}
	if err := w.heap.GarbageCollect(w.heap.MaxGeneration(), false); err != nil {
		w.log.Err("finalizer: heap dump collection failed", "error", err)
	}
}

func (w *Worker) maybeCompleteGenAnalysis() {
	if w.opts.GenAnalysisDone == nil || !w.opts.GenAnalysisDone() {
		return
	}
	if w.opts.GenAnalysisDisable != nil {
		w.opts.GenAnalysisDisable()
	}
	path := w.opts.GenAnalysisCompletionPathTemplate
	if path == "" {
		return
	}
	path = strings.ReplaceAll(path, "%p", strconv.Itoa(os.Getpid()))
	f, err := os.Create(path)
	if err != nil {
		w.log.Err("finalizer: failed writing gen-analysis completion file", "path", path, "error", err)
		return
	}
	_ = f.Close()
}

// quiescenceProbe is the debug-only aid from spec §4.1.2: loop yielding the
// CPU until a gen-0 collection count between two adjacent yields is
// unchanged. It is skipped entirely unless a [StressInhibitor] reporting a
// level above 1 is configured.
func (w *Worker) quiescenceProbe() {
	if w.opts.Stress == nil || w.opts.Stress.Level() <= 1 {
		return
	}
	for {
		last := w.heap.CollectionCount(0)
		runtime.Gosched()
		if w.heap.CollectionCount(0)-last == 0 {
			return
		}
	}
}
