package finalizer

import "sync"

// fakeWorkItem is a hand-written linked-list WorkItem for tests, matching
// spec §3's pendingWorkList shape without pulling in a real collector.
type fakeWorkItem struct {
	name   string
	next   *fakeWorkItem
	onRun  func(name string)
}

func (w *fakeWorkItem) Callback() {
	if w.onRun != nil {
		w.onRun(w.name)
	}
}

func (w *fakeWorkItem) Next() WorkItem {
	if w.next == nil {
		return nil
	}
	return w.next
}

// fakeGCHeap is a minimal, test-controlled GCHeap. CollectionCount can
// optionally be driven by a fixed sequence (seq), advancing one element per
// call, to simulate the pre-drain snapshot racing an external collection
// (spec §4.2 S2/S3 scenarios). Once the sequence is exhausted, the last
// value repeats.
type fakeGCHeap struct {
	mu      sync.Mutex
	seq     []uint64
	seqIdx  int
	counts  [4]uint64
	maxGen  int
	pending WorkItem
	gcErr   error
	gcCalls int
}

func (h *fakeGCHeap) CollectionCount(gen int) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.seq) > 0 {
		idx := h.seqIdx
		if idx >= len(h.seq) {
			idx = len(h.seq) - 1
		} else {
			h.seqIdx++
		}
		return h.seq[idx]
	}
	return h.counts[gen]
}

func (h *fakeGCHeap) GarbageCollect(gen int, forced bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gcCalls++
	for g := 0; g <= gen && g < len(h.counts); g++ {
		h.counts[g]++
	}
	return h.gcErr
}

func (h *fakeGCHeap) PendingWorkList() WorkItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	item := h.pending
	h.pending = nil
	return item
}

func (h *fakeGCHeap) MaxGeneration() int { return h.maxGen }

// fakeManagedRunner counts RunFinalizers invocations.
type fakeManagedRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *fakeManagedRunner) RunFinalizers() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return 0
}

func (r *fakeManagedRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
