package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// Store owns the canonical node and edge sets. All mutation goes through its
// typed operations; no operation leaves a dangling edge behind. Observers are
// notified synchronously after each mutation, outside the store lock, so they
// may call back into the store.
type Store struct {
	mu        sync.RWMutex
	nodes     map[string]*Node
	nodeOrder []string
	edges     []Edge
	seq       uint64

	obsMu     sync.RWMutex
	observers []Observer
}

func NewStore() *Store {
	return &Store{nodes: make(map[string]*Node)}
}

// Subscribe registers an observer for all subsequent mutations.
func (s *Store) Subscribe(fn Observer) {
	if fn == nil {
		return
	}
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

func (s *Store) emit(events ...Event) {
	s.obsMu.RLock()
	obs := s.observers
	s.obsMu.RUnlock()
	for _, ev := range events {
		for _, fn := range obs {
			fn(ev)
		}
	}
}

// AddNode inserts a node. The store keeps its own deep copy.
func (s *Store) AddNode(n *Node) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("graph: node id is required")
	}
	if !n.Kind.Valid() {
		return fmt.Errorf("graph: unknown node kind %q", n.Kind)
	}
	s.mu.Lock()
	if _, exists := s.nodes[n.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("graph: node %s already exists", n.ID)
	}
	cp := n.Clone()
	if cp.Data == nil {
		cp.Data = map[string]any{}
	}
	s.nodes[cp.ID] = cp
	s.nodeOrder = append(s.nodeOrder, cp.ID)
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	s.emit(Event{Op: OpNodeAdded, NodeID: n.ID, Seq: seq})
	return nil
}

// RemoveNode deletes a node and cascades removal of every edge touching it.
// Edge removals are observable individually, before the node removal itself.
func (s *Store) RemoveNode(id string) error {
	s.mu.Lock()
	if _, ok := s.nodes[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("graph: node %s not found", id)
	}
	var dropped []Edge
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Source == id || e.Target == id {
			dropped = append(dropped, e)
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	delete(s.nodes, id)
	for i, nid := range s.nodeOrder {
		if nid == id {
			s.nodeOrder = append(s.nodeOrder[:i], s.nodeOrder[i+1:]...)
			break
		}
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	events := make([]Event, 0, len(dropped)+1)
	for _, e := range dropped {
		events = append(events, Event{Op: OpEdgeRemoved, Edge: e, Seq: seq})
	}
	events = append(events, Event{Op: OpNodeRemoved, NodeID: id, Seq: seq})
	s.emit(events...)
	return nil
}

// AddEdge inserts an edge after validating both endpoints and the target
// port's contract. Creation order is preserved and significant.
func (s *Store) AddEdge(e Edge) error {
	if e.ID == "" {
		return fmt.Errorf("graph: edge id is required")
	}
	s.mu.Lock()
	src, ok := s.nodes[e.Source]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("graph: edge source %s not found", e.Source)
	}
	tgt, ok := s.nodes[e.Target]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("graph: edge target %s not found", e.Target)
	}
	for _, ex := range s.edges {
		if ex.ID == e.ID {
			s.mu.Unlock()
			return fmt.Errorf("graph: edge %s already exists", e.ID)
		}
	}
	port, ok := LookupInputPort(tgt.Kind, e.TargetPort)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("graph: node kind %s has no input port %q", tgt.Kind, e.TargetPort)
	}
	if !port.AcceptsKind(src.Kind) {
		s.mu.Unlock()
		return fmt.Errorf("graph: port %q does not accept %s nodes", e.TargetPort, src.Kind)
	}
	s.edges = append(s.edges, e)
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	s.emit(Event{Op: OpEdgeAdded, Edge: e, Seq: seq})
	return nil
}

func (s *Store) RemoveEdge(id string) error {
	s.mu.Lock()
	idx := -1
	for i, e := range s.edges {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("graph: edge %s not found", id)
	}
	removed := s.edges[idx]
	s.edges = append(s.edges[:idx], s.edges[idx+1:]...)
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	s.emit(Event{Op: OpEdgeRemoved, Edge: removed, Seq: seq})
	return nil
}

// UpdateNodeData merges a partial data map into the node. Only keys whose
// value actually changed (structural equality) are reported; an update that
// changes nothing emits no event.
func (s *Store) UpdateNodeData(id string, partial map[string]any) error {
	if len(partial) == 0 {
		return nil
	}
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("graph: node %s not found", id)
	}
	var changed []string
	for k, v := range partial {
		if equalValue(n.Data[k], v) {
			continue
		}
		n.Data[k] = v
		changed = append(changed, k)
	}
	var seq uint64
	if len(changed) > 0 {
		s.seq++
		seq = s.seq
	}
	s.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}
	s.emit(Event{
		Op:         OpNodeDataChanged,
		NodeID:     id,
		Seq:        seq,
		Fields:     changed,
		Positional: allPositional(changed),
		Transient:  allTransient(changed),
	})
	return nil
}

// ApplyDerived writes a recomputed derived field without emitting an event;
// the propagation engine owns its own cascade. Returns whether the stored
// value changed.
func (s *Store) ApplyDerived(id, field string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	if equalValue(n.Data[field], value) {
		return false
	}
	n.Data[field] = value
	return true
}

// GetNode returns a deep copy of the node, or false if it does not exist.
func (s *Store) GetNode(id string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Exists reports node presence without copying.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// Nodes returns deep copies of all nodes in insertion order.
func (s *Store) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Node, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		out = append(out, s.nodes[id].Clone())
	}
	return out
}

// EdgesInto lists edges targeting the node, optionally filtered by target
// port (empty port means all), in creation order.
func (s *Store) EdgesInto(nodeID, port string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Edge
	for _, e := range s.edges {
		if e.Target != nodeID {
			continue
		}
		if port != "" && e.TargetPort != port {
			continue
		}
		out = append(out, e)
	}
	return out
}

// EdgesFrom lists edges originating at the node, optionally filtered by
// source port, in creation order.
func (s *Store) EdgesFrom(nodeID, port string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Edge
	for _, e := range s.edges {
		if e.Source != nodeID {
			continue
		}
		if port != "" && e.SourcePort != port {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Edges returns all edges in creation order.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Edge(nil), s.edges...)
}

// Snapshot captures deep copies of the node and edge collections.
func (s *Store) Snapshot() ([]*Node, []Edge) {
	return s.Nodes(), s.Edges()
}

// Restore replaces the whole graph wholesale (project load, undo, redo) and
// emits a single OpReplaced event.
func (s *Store) Restore(nodes []*Node, edges []Edge) {
	s.mu.Lock()
	s.nodes = make(map[string]*Node, len(nodes))
	s.nodeOrder = s.nodeOrder[:0]
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			continue
		}
		cp := n.Clone()
		if cp.Data == nil {
			cp.Data = map[string]any{}
		}
		s.nodes[cp.ID] = cp
		s.nodeOrder = append(s.nodeOrder, cp.ID)
	}
	kept := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if _, ok := s.nodes[e.Source]; !ok {
			continue
		}
		if _, ok := s.nodes[e.Target]; !ok {
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	s.emit(Event{Op: OpReplaced, Seq: seq})
}

// equalValue compares two data values structurally via their JSON encoding,
// which sidesteps int/float64 mismatches between in-process writes and
// JSON-decoded payloads.
func equalValue(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// positionalFields are UI placement keys; data updates touching only these
// coalesce in history.
var positionalFields = map[string]struct{}{
	"x":         {},
	"y":         {},
	FieldWidth:  {},
	FieldHeight: {},
}

func allPositional(fields []string) bool {
	for _, f := range fields {
		if _, ok := positionalFields[f]; !ok {
			return false
		}
	}
	return len(fields) > 0
}

// transientFields are written by running jobs, not by the user; data updates
// touching only these never enter history.
var transientFields = map[string]struct{}{
	FieldProgress:     {},
	FieldErrorMessage: {},
}

func allTransient(fields []string) bool {
	for _, f := range fields {
		if _, ok := transientFields[f]; !ok {
			return false
		}
	}
	return len(fields) > 0
}
