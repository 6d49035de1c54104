// Package provider defines the generation-provider capability consumed by
// the job runner, plus concrete adapters (Gemini, generic HTTP task APIs) and
// a scriptable fake for tests.
package provider

import (
	"context"
	"sync"

	"nexflow/internal/graph"
)

// Status is a provider-reported task state.
type Status string

const (
	StatusQueued  Status = "QUEUED"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// SubmitResult is the outcome of submitting a generation. Exactly one of
// TaskID (async, poll for it) or ResultURL/ResultText (synchronous result)
// is populated.
type SubmitResult struct {
	TaskID     string
	ResultURL  string
	ResultText string
}

// Sync reports whether the provider answered synchronously with no task id.
func (r SubmitResult) Sync() bool { return r.TaskID == "" }

// PollResult is one poll observation of an async task.
type PollResult struct {
	Status     Status
	ResultURL  string
	ResultText string
	Message    string
}

// Provider is the external generation capability for one node kind. Payload
// shape and authentication are the adapter's business; the runner only sees
// this contract.
type Provider interface {
	Name() string
	Submit(ctx context.Context, input map[string]any) (SubmitResult, error)
	Poll(ctx context.Context, taskID string) (PollResult, error)
}

// Registry maps node kinds to their provider.
type Registry struct {
	mu     sync.RWMutex
	byKind map[graph.Kind]Provider
}

func NewRegistry() *Registry {
	return &Registry{byKind: make(map[graph.Kind]Provider)}
}

func (r *Registry) Register(k graph.Kind, p Provider) {
	r.mu.Lock()
	r.byKind[k] = p
	r.mu.Unlock()
}

func (r *Registry) For(k graph.Kind) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byKind[k]
	return p, ok
}
