package history

import (
	"sync"
	"sync/atomic"

	"nexflow/internal/graph"
)

// Recorder subscribes to the store's mutation stream and feeds the Manager.
// Store events fire after the mutation has been applied, so the recorder
// keeps the previous state around and records that. A cascade emits several
// events under one mutation seq; the recorder records the first and ignores
// the rest, so one user action costs exactly one undo step. Position-only
// updates coalesce inside the Manager, and transient job writes (progress,
// errorMessage) bypass history entirely.
type Recorder struct {
	store *graph.Store
	mgr   *Manager

	// restoring suppresses recording while an undo/redo swap is applied;
	// store events fire synchronously inside Restore.
	restoring atomic.Bool

	mu        sync.Mutex
	prevNodes []*graph.Node
	prevEdges []graph.Edge
	lastSeq   uint64
}

func NewRecorder(store *graph.Store, mgr *Manager) *Recorder {
	r := &Recorder{store: store, mgr: mgr}
	r.prevNodes, r.prevEdges = store.Snapshot()
	return r
}

// Bind subscribes the recorder to the store.
func (r *Recorder) Bind() {
	r.store.Subscribe(r.handle)
}

func (r *Recorder) handle(ev graph.Event) {
	if r.restoring.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev.Op {
	case graph.OpReplaced:
		// Wholesale swaps (project load) reset the baseline without
		// recording.
		r.prevNodes, r.prevEdges = r.store.Snapshot()
		r.lastSeq = ev.Seq
	case graph.OpNodeAdded, graph.OpNodeRemoved, graph.OpEdgeAdded,
		graph.OpEdgeRemoved, graph.OpNodeDataChanged:
		if ev.Seq == r.lastSeq {
			// Later event of a cascade already recorded above.
			return
		}
		if ev.Op == graph.OpNodeDataChanged && ev.Transient {
			// Job-owned churn; advance the baseline, record nothing.
			r.prevNodes, r.prevEdges = r.store.Snapshot()
			r.lastSeq = ev.Seq
			return
		}
		reason := ReasonGeneral
		if ev.Op == graph.OpNodeDataChanged && ev.Positional {
			reason = ReasonPosition
		}
		r.mgr.Record(r.prevNodes, r.prevEdges, reason)
		r.prevNodes, r.prevEdges = r.store.Snapshot()
		r.lastSeq = ev.Seq
	}
}

// Undo restores the most recent snapshot into the store. Returns false when
// the log is empty.
func (r *Recorder) Undo() bool {
	curNodes, curEdges := r.store.Snapshot()
	snap, ok := r.mgr.Undo(curNodes, curEdges)
	if !ok {
		return false
	}
	r.apply(snap)
	return true
}

// Redo restores the most recently undone state into the store.
func (r *Recorder) Redo() bool {
	curNodes, curEdges := r.store.Snapshot()
	snap, ok := r.mgr.Redo(curNodes, curEdges)
	if !ok {
		return false
	}
	r.apply(snap)
	return true
}

func (r *Recorder) apply(snap Snapshot) {
	r.restoring.Store(true)
	r.store.Restore(snap.Nodes, snap.Edges)
	r.restoring.Store(false)

	r.mu.Lock()
	r.prevNodes, r.prevEdges = r.store.Snapshot()
	r.mu.Unlock()
}
