package rtcoord

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/coreclrgo/rtcoord/diagport"
	"github.com/coreclrgo/rtcoord/finalizer"
)

// Runtime groups the two coordination cores (finalizer worker/barrier and
// the diagnostic port poller) into one explicitly constructed value,
// rather than the original's pair of process-wide globals — spec §9's own
// design note calls this out as the natural Go translation.
type Runtime struct {
	worker  *finalizer.Worker
	barrier *finalizer.Barrier
	poller  *diagport.Poller

	running atomic.Bool
	wg      sync.WaitGroup

	cancel context.CancelFunc
}

// New constructs a Runtime. heap and runner back the finalizer core (spec
// §6 "Consumed from the GC"/"Consumed from the managed runtime"); they
// must not be nil.
func New(heap finalizer.GCHeap, runner finalizer.ManagedRunner, opts ...RuntimeOption) (*Runtime, error) {
	cfg := resolveRuntimeOptions(opts)

	lowMemory := finalizer.NewLowMemoryNotifier(cfg.lowMemoryThresholdBytes, cfg.lowMemoryPollInterval)

	workerOpts := finalizer.WorkerOptions{
		HeapDumpLimiter:                   cfg.heapDumpLimiter,
		GenAnalysisCompletionPathTemplate: cfg.genAnalysisPath,
		Stress:                            cfg.stress,
		Logger:                            cfg.logger,
	}

	worker, err := finalizer.NewWorker(heap, runner, lowMemory, workerOpts)
	if err != nil {
		return nil, err
	}

	barrier := finalizer.NewBarrier(worker, heap, cfg.stress)

	poller := diagport.NewPoller(diagport.PollerOptions{
		DefaultListenAddress:   cfg.defaultListenAddress,
		DisableDefaultListen:   cfg.disableDefaultListen,
		DefaultListenSuspend:   cfg.defaultListenSuspend,
		AdvertiseMessage:       cfg.advertiseMessage,
		ConnectDialTimeout:     cfg.connectDialTimeout,
		ConnectRetryLogLimiter: cfg.connectRetryLogLimiter,
		Transports:             cfg.transports,
		Logger:                 asDiagportLogger(cfg.logger),
	})
	if err := poller.Configure(cfg.portsConfig); err != nil {
		return nil, err
	}

	return &Runtime{worker: worker, barrier: barrier, poller: poller}, nil
}

// Start launches the finalizer worker goroutine. It must be called
// exactly once; ctx cancellation is one of the two ways to trigger
// shutdown (the other being [Runtime.Shutdown]).
func (r *Runtime) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.worker.Run(ctx)
	}()
	return nil
}

// EnableFinalization requests a new finalization cycle (spec §6
// enableFinalization). Returns [ErrNotRunning] if [Runtime.Start] hasn't
// been called yet.
func (r *Runtime) EnableFinalization() error {
	if !r.running.Load() {
		return ErrNotRunning
	}
	r.worker.EnableFinalization()
	return nil
}

// WaitForCycle blocks until a full finalization cycle completes whose
// pre-drain gen-MAX collection count is at least the count observed at
// call entry (spec §4.2 waitForCycle). Returns [ErrNotRunning] if
// [Runtime.Start] hasn't been called yet.
func (r *Runtime) WaitForCycle() error {
	if !r.running.Load() {
		return ErrNotRunning
	}
	return r.barrier.WaitForCycle(-1)
}

// IsCurrentThreadFinalizer reports whether the calling goroutine is the
// finalizer worker's own goroutine.
func (r *Runtime) IsCurrentThreadFinalizer() bool { return r.worker.IsCurrentThreadFinalizer() }

// GetNextAvailableStream blocks until a diagnostic port yields a
// connected stream, ctx is done, or shutdown completes. Returns
// [ErrNotRunning] if [Runtime.Start] hasn't been called yet.
func (r *Runtime) GetNextAvailableStream(ctx context.Context) (any, error) {
	if !r.running.Load() {
		return nil, ErrNotRunning
	}
	return r.poller.GetNextAvailableStream(ctx)
}

// ResumeCurrentPort marks the most recently yielded diagnostic port as
// having resumed the runtime (spec §4.5 resumeCurrentPort).
func (r *Runtime) ResumeCurrentPort() { r.poller.ResumeCurrentPort() }

// AnySuspendedPorts reports whether any diagnostic port still awaits an
// explicit resume.
func (r *Runtime) AnySuspendedPorts() bool { return r.poller.AnySuspendedPorts() }

// Shutdown implements spec §4.6 (C8), finalizer side first: set
// quitRequested, wake the worker, wait for ShutdownCompleteSignal — then
// the IPC side: CAS shuttingDown, close every port.
//
// This sequencing (finalizer before IPC) is this module's resolution of
// Open Question OQ-3: the spec doesn't mandate an order between the two
// halves, but draining outstanding finalizers before tearing down the
// diagnostic ports means any finalizer that itself touches a diagnostic
// stream still has one to touch.
func (r *Runtime) Shutdown() {
	if r.cancel != nil {
		r.cancel()
	}
	r.worker.RequestShutdown()
	r.worker.ShutdownComplete().Wait(-1)
	r.wg.Wait()

	r.poller.Shutdown()
}
