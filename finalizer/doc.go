// Package finalizer implements the finalizer coordination core: a single,
// long-lived worker that drains a runtime's finalization queue, interleaves
// low-memory-triggered collections, and exposes a synchronous "wait for a
// full finalization cycle" primitive ([Barrier.WaitForCycle]) for other
// subsystems.
//
// # Architecture
//
// [Worker] owns the dedicated finalizer goroutine. It runs one finalization
// cycle at a time: wait for work ([AutoResetEvent]), drain the pending work
// list, invoke the external [ManagedRunner], and publish the full-GC count
// observed before the drain began. [Barrier] is the external-facing half:
// any number of goroutines may call [Barrier.WaitForCycle] concurrently,
// each one requesting a cycle and comparing its desired full-GC count
// against what the worker actually observed.
//
// # External collaborators
//
// The GC heap and the managed method runner are supplied by the caller via
// the [GCHeap] and [ManagedRunner] interfaces; this package never implements
// a collector. See [NewWorker].
//
// # Thread safety
//
// [Worker.Run] must be called from exactly one goroutine for the lifetime of
// the worker. [Barrier.WaitForCycle] is safe to call concurrently from any
// number of goroutines other than the worker goroutine itself; calling it
// from the worker goroutine returns immediately (see
// [ErrCalledFromFinalizerThread]).
package finalizer
