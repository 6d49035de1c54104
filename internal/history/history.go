// Package history keeps a bounded, coalesced snapshot log of the graph for
// undo/redo.
package history

import (
	"sync"

	"nexflow/internal/graph"
)

// Reason classifies a snapshot. Consecutive position snapshots coalesce so
// drag interactions do not flood the log.
type Reason string

const (
	ReasonPosition Reason = "position"
	ReasonGeneral  Reason = "general"
)

// MaxEntries bounds the undo stack; the oldest entry is evicted first.
const MaxEntries = 50

// Snapshot is a deep copy of the node and edge collections at capture time.
type Snapshot struct {
	Nodes  []*graph.Node
	Edges  []graph.Edge
	Reason Reason
}

func capture(nodes []*graph.Node, edges []graph.Edge, reason Reason) Snapshot {
	cp := Snapshot{
		Nodes:  make([]*graph.Node, 0, len(nodes)),
		Edges:  append([]graph.Edge(nil), edges...),
		Reason: reason,
	}
	for _, n := range nodes {
		cp.Nodes = append(cp.Nodes, n.Clone())
	}
	return cp
}

// Manager holds the undo and redo stacks. It never touches the store
// directly; callers pass in captured state and apply returned snapshots.
type Manager struct {
	mu   sync.Mutex
	undo []Snapshot
	redo []Snapshot
}

func NewManager() *Manager {
	return &Manager{}
}

// Record pushes a snapshot of the given state. A position snapshot directly
// on top of another position snapshot overwrites it instead of growing the
// stack; everything else pushes and truncates the redo tail.
func (m *Manager) Record(nodes []*graph.Node, edges []graph.Edge, reason Reason) {
	snap := capture(nodes, edges, reason)
	m.mu.Lock()
	defer m.mu.Unlock()

	if reason == ReasonPosition && len(m.redo) == 0 && len(m.undo) > 0 &&
		m.undo[len(m.undo)-1].Reason == ReasonPosition {
		m.undo[len(m.undo)-1] = snap
		return
	}
	m.redo = m.redo[:0]
	m.undo = append(m.undo, snap)
	if len(m.undo) > MaxEntries {
		m.undo = append(m.undo[:0], m.undo[len(m.undo)-MaxEntries:]...)
	}
}

// Undo pops the most recent snapshot, saving the passed-in current state to
// the redo stack. Returns false when there is nothing to undo.
func (m *Manager) Undo(curNodes []*graph.Node, curEdges []graph.Edge) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.undo) == 0 {
		return Snapshot{}, false
	}
	snap := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = append(m.redo, capture(curNodes, curEdges, snap.Reason))
	return snap, true
}

// Redo pops the most recent undone state, saving current state back to the
// undo stack.
func (m *Manager) Redo(curNodes []*graph.Node, curEdges []graph.Edge) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.redo) == 0 {
		return Snapshot{}, false
	}
	snap := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = append(m.undo, capture(curNodes, curEdges, snap.Reason))
	return snap, true
}

// Depth reports the undo stack size.
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo)
}
