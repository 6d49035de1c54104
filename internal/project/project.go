// Package project persists the graph as a {nodes, edges} JSON document and
// keeps a debounced autosave observer on the store's mutation stream.
package project

import (
	"encoding/json"
	"fmt"
	"os"

	"nexflow/internal/graph"
	"nexflow/internal/safeio"
)

// Project is the persisted document. Round-trip loadable; nodes may carry
// partially populated data.
type Project struct {
	Nodes []*graph.Node `json:"nodes"`
	Edges []graph.Edge  `json:"edges"`
}

// Load reads a project file and backfills kind-default width/height style
// metadata where missing.
func Load(path string) (*Project, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Project
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("project: parse %s: %w", path, err)
	}
	for _, n := range p.Nodes {
		if n == nil {
			continue
		}
		if n.Data == nil {
			n.Data = map[string]any{}
		}
		w, h := graph.DefaultSize(n.Kind)
		if _, ok := n.Data[graph.FieldWidth]; !ok {
			n.Data[graph.FieldWidth] = w
		}
		if _, ok := n.Data[graph.FieldHeight]; !ok {
			n.Data[graph.FieldHeight] = h
		}
	}
	return &p, nil
}

// Save writes the store's current graph atomically.
func Save(path string, store *graph.Store) error {
	nodes, edges := store.Snapshot()
	p := Project{Nodes: nodes, Edges: edges}
	if p.Nodes == nil {
		p.Nodes = []*graph.Node{}
	}
	if p.Edges == nil {
		p.Edges = []graph.Edge{}
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return safeio.WriteFileAtomic(path, b)
}

// Apply replaces the store's graph with the project's contents.
func (p *Project) Apply(store *graph.Store) {
	store.Restore(p.Nodes, p.Edges)
}
