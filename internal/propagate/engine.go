// Package propagate keeps every node's derived fields consistent with the
// graph: concatenated input text, collected input images, single-slot
// references, and TextSplit segment fan-out.
package propagate

import (
	"strconv"
	"strings"
	"sync"

	"nexflow/internal/graph"
)

// Engine recomputes derived fields whenever the store reports a mutation that
// can affect them. Recomputation runs synchronously inside the mutation call,
// so callers never observe a stale derived field after an edit returns.
type Engine struct {
	store *graph.Store
	mu    sync.Mutex
}

func New(store *graph.Store) *Engine {
	return &Engine{store: store}
}

// Bind subscribes the engine to the store's event stream.
func (e *Engine) Bind() {
	e.store.Subscribe(e.handle)
}

func (e *Engine) handle(ev graph.Event) {
	switch ev.Op {
	case graph.OpEdgeAdded, graph.OpEdgeRemoved:
		e.Recompute(ev.Edge.Target)
	case graph.OpNodeDataChanged:
		if ev.Positional {
			return
		}
		e.Recompute(ev.NodeID)
	case graph.OpNodeAdded:
		e.Recompute(ev.NodeID)
	case graph.OpReplaced:
		e.RecomputeAll()
	}
}

// Recompute resolves derived fields for the given node and everything
// downstream of it, in topological order, iterating until no field changes.
func (e *Engine) Recompute(start string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.run([]string{start})
}

// RecomputeAll resolves derived fields for the whole graph.
func (e *Engine) RecomputeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0)
	for _, n := range e.store.Nodes() {
		ids = append(ids, n.ID)
	}
	e.run(ids)
}

func (e *Engine) run(start []string) {
	affected := e.downstreamClosure(start)
	order := e.topoOrder(affected)
	// A static graph reaches a fixed point in at most one pass per hop;
	// the pass bound only guards against cyclic wiring.
	for pass := 0; pass <= len(order); pass++ {
		changed := false
		for _, id := range order {
			if e.recomputeNode(id) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// downstreamClosure returns start plus every node reachable from it.
func (e *Engine) downstreamClosure(start []string) map[string]struct{} {
	seen := make(map[string]struct{}, len(start))
	queue := make([]string, 0, len(start))
	for _, id := range start {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		queue = append(queue, id)
	}
	for i := 0; i < len(queue); i++ {
		for _, edge := range e.store.EdgesFrom(queue[i], "") {
			if _, ok := seen[edge.Target]; ok {
				continue
			}
			seen[edge.Target] = struct{}{}
			queue = append(queue, edge.Target)
		}
	}
	return seen
}

// topoOrder orders the affected set so that upstream nodes are recomputed
// before their dependents (Kahn). Nodes left over by a cycle are appended in
// stable store order; the pass loop still converges for them.
func (e *Engine) topoOrder(affected map[string]struct{}) []string {
	indeg := make(map[string]int, len(affected))
	succ := make(map[string][]string, len(affected))
	stable := make([]string, 0, len(affected))
	for _, n := range e.store.Nodes() {
		if _, ok := affected[n.ID]; !ok {
			continue
		}
		stable = append(stable, n.ID)
		indeg[n.ID] = 0
	}
	for _, id := range stable {
		for _, edge := range e.store.EdgesFrom(id, "") {
			if _, ok := affected[edge.Target]; !ok {
				continue
			}
			succ[id] = append(succ[id], edge.Target)
			indeg[edge.Target]++
		}
	}

	order := make([]string, 0, len(stable))
	queue := make([]string, 0, len(stable))
	for _, id := range stable {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}
	for i := 0; i < len(queue); i++ {
		id := queue[i]
		order = append(order, id)
		for _, t := range succ[id] {
			indeg[t]--
			if indeg[t] == 0 {
				queue = append(queue, t)
			}
		}
	}
	if len(order) < len(stable) {
		inOrder := make(map[string]struct{}, len(order))
		for _, id := range order {
			inOrder[id] = struct{}{}
		}
		for _, id := range stable {
			if _, ok := inOrder[id]; !ok {
				order = append(order, id)
			}
		}
	}
	return order
}

// recomputeNode resolves every input port of the node plus its local
// derivations. Returns whether any stored field changed.
func (e *Engine) recomputeNode(id string) bool {
	node, ok := e.store.GetNode(id)
	if !ok {
		return false
	}
	changed := false
	for _, port := range graph.InputPorts(node.Kind) {
		value := e.resolvePort(node, port)
		if e.store.ApplyDerived(id, port.Field, value) {
			changed = true
		}
	}
	if node.Kind == graph.KindTextSplit {
		// Segments derive from the node's own (already resolved) input text.
		fresh, _ := e.store.GetNode(id)
		segs := SplitSegments(fresh.Str(graph.FieldInputText))
		if e.store.ApplyDerived(id, graph.FieldSegments, segs) {
			changed = true
		}
	}
	return changed
}

// resolvePort combines the contributions of every edge into the port, in edge
// creation order, per the port's combine mode.
func (e *Engine) resolvePort(node *graph.Node, port graph.InputPort) any {
	edges := e.store.EdgesInto(node.ID, port.Name)
	switch port.Combine {
	case graph.CombineJoinText:
		parts := make([]string, 0, len(edges))
		for _, edge := range edges {
			if v := e.contribution(edge); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, ",")
	case graph.CombineCollect:
		seen := make(map[string]struct{}, len(edges))
		urls := make([]string, 0, len(edges))
		for _, edge := range edges {
			v := e.contribution(edge)
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			urls = append(urls, v)
			if len(urls) == graph.MaxCollected {
				break
			}
		}
		return urls
	case graph.CombineSingle:
		for _, edge := range edges {
			if v := e.contribution(edge); v != "" {
				return v
			}
		}
		return ""
	}
	return ""
}

// contribution resolves one upstream node's contributed value by kind. A
// missing upstream node or malformed segment reference contributes nothing;
// propagation never fails on a bad edge.
func (e *Engine) contribution(edge graph.Edge) string {
	src, ok := e.store.GetNode(edge.Source)
	if !ok {
		return ""
	}
	switch src.Kind {
	case graph.KindText:
		return src.Str(graph.FieldContent)
	case graph.KindLanguageModel:
		return src.Str(graph.FieldOutputText)
	case graph.KindTextSplit:
		return segmentContribution(src, edge.SourcePort)
	case graph.KindCamera:
		return CameraInstruction(src)
	case graph.KindImage:
		if out := src.Str(graph.FieldOutputImage); out != "" {
			return out
		}
		if refs := src.StrList(graph.FieldInputImages); len(refs) > 0 {
			return refs[0]
		}
		return ""
	case graph.KindVideo:
		return src.Str(graph.FieldOutputVideo)
	case graph.KindAudio, graph.KindSpeaker:
		return src.Str(graph.FieldOutputAudio)
	}
	return ""
}

// segmentContribution picks the i-th segment addressed by an output-<i>
// source port. The output-null sentinel and any unparsable index yield "".
func segmentContribution(src *graph.Node, sourcePort string) string {
	if sourcePort == graph.PortSplitNull {
		return ""
	}
	if !strings.HasPrefix(sourcePort, graph.PortSplitPrefix) {
		return ""
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(sourcePort, graph.PortSplitPrefix))
	if err != nil || idx < 0 {
		return ""
	}
	segs := src.StrList(graph.FieldSegments)
	if idx >= len(segs) {
		return ""
	}
	return segs[idx]
}

// CameraInstruction resolves a camera node's single instruction string from
// its candidate fields, first non-empty wins.
func CameraInstruction(n *graph.Node) string {
	for _, field := range []string{
		graph.FieldMovementPrompt,
		graph.FieldPresetLabel,
		graph.FieldCustomPrompt,
	} {
		if v := strings.TrimSpace(n.Str(field)); v != "" {
			return v
		}
	}
	return ""
}

// SplitSegments breaks text into non-empty trimmed lines.
func SplitSegments(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		if t := strings.TrimSpace(ln); t != "" {
			out = append(out, t)
		}
	}
	return out
}
