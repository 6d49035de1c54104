package graph

// Op enumerates graph mutations observable on the store's event stream.
type Op string

const (
	OpNodeAdded       Op = "node-added"
	OpNodeRemoved     Op = "node-removed"
	OpNodeDataChanged Op = "node-data-changed"
	OpEdgeAdded       Op = "edge-added"
	OpEdgeRemoved     Op = "edge-removed"
	// OpReplaced fires when the whole graph is swapped wholesale
	// (project load, undo, redo).
	OpReplaced Op = "graph-replaced"
)

// Event describes one completed mutation. Edge carries a copy of the edge for
// add/remove ops so observers can react after the edge is already gone from
// the store.
type Event struct {
	Op     Op
	NodeID string
	Edge   Edge
	// Seq identifies the top-level mutation that produced the event. A
	// cascade (node removal plus its edges) emits several events sharing
	// one Seq; observers that care about user actions, not individual
	// events, key on it.
	Seq uint64
	// Fields lists the data keys that actually changed for OpNodeDataChanged.
	Fields []string
	// Positional reports that the change touched only position/style
	// metadata; history coalesces these.
	Positional bool
	// Transient reports that the change touched only job-owned churn
	// fields (progress, errorMessage); history skips these.
	Transient bool
}

// Observer receives store events synchronously, in mutation order, after the
// mutation has been applied. Observers may call back into the store.
type Observer func(Event)
