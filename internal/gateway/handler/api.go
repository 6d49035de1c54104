// Package handler exposes the core over a JSON HTTP API plus a websocket
// watch feed. It is a thin layer: every operation delegates to the stores
// and the job runner.
package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"

	"nexflow/internal/graph"
	"nexflow/internal/history"
	"nexflow/internal/job"
	"nexflow/internal/ledger"
	"nexflow/internal/project"
)

type API struct {
	Store   *graph.Store
	Runner  *job.Runner
	Ledger  *ledger.Store
	History *history.Recorder
	Watch   *WatchHub
}

// Routes builds the API mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/graph", a.handleGetGraph)
	mux.HandleFunc("POST /api/nodes", a.handleAddNode)
	mux.HandleFunc("GET /api/nodes/{id}", a.handleGetNode)
	mux.HandleFunc("PATCH /api/nodes/{id}", a.handleUpdateNode)
	mux.HandleFunc("DELETE /api/nodes/{id}", a.handleRemoveNode)
	mux.HandleFunc("POST /api/edges", a.handleAddEdge)
	mux.HandleFunc("DELETE /api/edges/{id}", a.handleRemoveEdge)

	mux.HandleFunc("POST /api/nodes/{id}/generate", a.handleGenerate)
	mux.HandleFunc("POST /api/generate", a.handleGenerateBatch)

	mux.HandleFunc("GET /api/tasks", a.handleListTasks)
	mux.HandleFunc("DELETE /api/tasks/{id}", a.handleRemoveTask)

	mux.HandleFunc("POST /api/undo", a.handleUndo)
	mux.HandleFunc("POST /api/redo", a.handleRedo)

	mux.HandleFunc("GET /api/project", a.handleGetProject)
	mux.HandleFunc("PUT /api/project", a.handlePutProject)

	if a.Watch != nil {
		mux.HandleFunc("GET /api/watch", a.Watch.Handle)
	}
	return mux
}

func (a *API) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	nodes, edges := a.Store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "edges": edges})
}

type addNodeRequest struct {
	ID   string         `json:"id,omitempty"`
	Kind graph.Kind     `json:"kind"`
	Data map[string]any `json:"data,omitempty"`
}

func (a *API) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	n := &graph.Node{ID: req.ID, Kind: req.Kind, Data: req.Data}
	if err := a.Store.AddNode(n); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	node, _ := a.Store.GetNode(req.ID)
	writeJSON(w, http.StatusCreated, node)
}

func (a *API) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, ok := a.Store.GetNode(r.PathValue("id"))
	if !ok {
		http.Error(w, "node not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (a *API) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if !readJSON(w, r, &partial) {
		return
	}
	id := r.PathValue("id")
	if err := a.Store.UpdateNodeData(id, partial); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	node, _ := a.Store.GetNode(id)
	writeJSON(w, http.StatusOK, node)
}

func (a *API) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.RemoveNode(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addEdgeRequest struct {
	ID         string `json:"id,omitempty"`
	Source     string `json:"source"`
	SourcePort string `json:"sourcePort"`
	Target     string `json:"target"`
	TargetPort string `json:"targetPort"`
}

func (a *API) handleAddEdge(w http.ResponseWriter, r *http.Request) {
	var req addEdgeRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.SourcePort == "" {
		req.SourcePort = graph.PortOutput
	}
	if req.TargetPort == "" {
		req.TargetPort = graph.PortInput
	}
	edge := graph.Edge{
		ID:         req.ID,
		Source:     req.Source,
		SourcePort: req.SourcePort,
		Target:     req.Target,
		TargetPort: req.TargetPort,
	}
	if err := a.Store.AddEdge(edge); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

func (a *API) handleRemoveEdge(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.RemoveEdge(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.Store.Exists(id) {
		http.Error(w, "node not found", http.StatusNotFound)
		return
	}
	if a.Runner.Busy(id) {
		http.Error(w, "node already has an active job", http.StatusConflict)
		return
	}
	// Jobs outlive the triggering request.
	a.Runner.Start(context.WithoutCancel(r.Context()), id)
	writeJSON(w, http.StatusAccepted, map[string]any{"nodeId": id, "started": true})
}

type batchRequest struct {
	NodeIDs []string `json:"nodeIds"`
}

func (a *API) handleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !readJSON(w, r, &req) {
		return
	}
	a.Runner.RunBatch(context.WithoutCancel(r.Context()), req.NodeIDs)
	writeJSON(w, http.StatusAccepted, map[string]any{"count": len(req.NodeIDs)})
}

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Ledger.List())
}

func (a *API) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	a.Ledger.Remove(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUndo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"applied": a.History.Undo()})
}

func (a *API) handleRedo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"applied": a.History.Redo()})
}

func (a *API) handleGetProject(w http.ResponseWriter, r *http.Request) {
	nodes, edges := a.Store.Snapshot()
	writeJSON(w, http.StatusOK, project.Project{Nodes: nodes, Edges: edges})
}

func (a *API) handlePutProject(w http.ResponseWriter, r *http.Request) {
	var p project.Project
	if !readJSON(w, r, &p) {
		return
	}
	p.Apply(a.Store)
	w.WriteHeader(http.StatusNoContent)
}

func readJSON(w http.ResponseWriter, r *http.Request, into any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20))
	if err := dec.Decode(into); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
