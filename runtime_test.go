package rtcoord_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coreclrgo/rtcoord"
	"github.com/coreclrgo/rtcoord/diagport"
	"github.com/coreclrgo/rtcoord/finalizer"
)

type fakeWorkItem struct {
	name  string
	next  *fakeWorkItem
	onRun func(name string)
}

func (w *fakeWorkItem) Callback() {
	if w.onRun != nil {
		w.onRun(w.name)
	}
}

func (w *fakeWorkItem) Next() finalizer.WorkItem {
	if w.next == nil {
		return nil
	}
	return w.next
}

type fakeGCHeap struct {
	mu      sync.Mutex
	count   uint64
	pending finalizer.WorkItem
}

func (h *fakeGCHeap) CollectionCount(gen int) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *fakeGCHeap) GarbageCollect(gen int, forced bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	return nil
}

func (h *fakeGCHeap) PendingWorkList() finalizer.WorkItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	item := h.pending
	h.pending = nil
	return item
}

func (h *fakeGCHeap) MaxGeneration() int { return 2 }

type fakeManagedRunner struct{}

func (fakeManagedRunner) RunFinalizers() uint32 { return 0 }

func TestRuntime_EnableFinalizationAndWaitForCycle(t *testing.T) {
	heap := &fakeGCHeap{}
	runtime, err := rtcoord.New(heap, fakeManagedRunner{}, rtcoord.WithPortsConfig(""), rtcoord.WithDefaultListenPort("", diagport.SuspendModeNoSuspend, true))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, runtime.Start(ctx))
	defer runtime.Shutdown()

	require.NoError(t, runtime.WaitForCycle())
}

func TestRuntime_OperationsRejectedBeforeStart(t *testing.T) {
	heap := &fakeGCHeap{}
	runtime, err := rtcoord.New(heap, fakeManagedRunner{}, rtcoord.WithDefaultListenPort("", diagport.SuspendModeNoSuspend, true))
	require.NoError(t, err)

	require.ErrorIs(t, runtime.EnableFinalization(), rtcoord.ErrNotRunning)
	require.ErrorIs(t, runtime.WaitForCycle(), rtcoord.ErrNotRunning)
	_, err = runtime.GetNextAvailableStream(context.Background())
	require.ErrorIs(t, err, rtcoord.ErrNotRunning)
}

func TestRuntime_DoubleStartFails(t *testing.T) {
	heap := &fakeGCHeap{}
	runtime, err := rtcoord.New(heap, fakeManagedRunner{}, rtcoord.WithDefaultListenPort("", diagport.SuspendModeNoSuspend, true))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, runtime.Start(ctx))
	defer runtime.Shutdown()

	require.ErrorIs(t, runtime.Start(ctx), rtcoord.ErrAlreadyStarted)
}

func TestRuntime_ShutdownCompletesPromptly(t *testing.T) {
	heap := &fakeGCHeap{}
	runtime, err := rtcoord.New(heap, fakeManagedRunner{}, rtcoord.WithDefaultListenPort("", diagport.SuspendModeNoSuspend, true))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, runtime.Start(ctx))

	done := make(chan struct{})
	go func() {
		runtime.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown did not complete")
	}
}
