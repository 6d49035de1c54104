// Package job drives one generation request per node to completion through
// submit, poll, materialize, with retry and timeout policy.
package job

import (
	"time"

	"nexflow/internal/graph"
)

// State of a job's lifecycle. There is no cancelled state: abandonment on
// node deletion is silent.
type State string

const (
	StateIdle          State = "idle"
	StateSubmitting    State = "submitting"
	StatePolling       State = "polling"
	StateMaterializing State = "materializing"
	StateSuccess       State = "success"
	StateError         State = "error"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool { return s == StateSuccess || s == StateError }

// Job is one provider invocation lifecycle for a node.
type Job struct {
	ID             string
	NodeID         string
	Kind           graph.Kind
	State          State
	SubmittedAt    time.Time
	ProviderTaskID string
	Attempts       int
	LastError      string

	// ResultRemote and ResultLocal are set on success; they are equal when
	// materialization degraded to the remote URL.
	ResultRemote string
	ResultLocal  string
	ResultText   string
}
