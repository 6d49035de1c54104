package job

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"nexflow/internal/asset"
	"nexflow/internal/graph"
	"nexflow/internal/ledger"
	"nexflow/internal/provider"
)

// Poll and timeout policy.
const (
	// pollFast applies for the first fastWindow of elapsed time after
	// submission, pollSlow thereafter.
	pollFast   = 2 * time.Second
	fastWindow = 30 * time.Second
	pollSlow   = 5 * time.Second

	// retryBackoff is the fixed delay after a transient poll failure. It
	// does not reset the elapsed-time budget.
	retryBackoff = 5 * time.Second

	// maxElapsed is the hard budget for one job.
	maxElapsed = 10 * time.Minute
)

// ErrJobActive rejects a trigger for a node that already has a job in
// flight.
var ErrJobActive = errors.New("job: node already has an active job")

// Runner executes jobs. Jobs for different nodes run concurrently; at most
// one job per node is active at a time.
type Runner struct {
	store       *graph.Store
	providers   *provider.Registry
	materialize *asset.Materializer
	ledger      *ledger.Store
	clock       Clock

	active *activeSet
}

func NewRunner(store *graph.Store, providers *provider.Registry, mat *asset.Materializer, led *ledger.Store, clock Clock) *Runner {
	if clock == nil {
		clock = RealClock{}
	}
	return &Runner{
		store:       store,
		providers:   providers,
		materialize: mat,
		ledger:      led,
		clock:       clock,
		active:      newActiveSet(),
	}
}

// Run drives one job for the node to a terminal state, blocking until done.
// It returns ErrJobActive without side effects when the node already has a
// job in flight. Job failures are not Go errors: they land in the returned
// job's state and on the node itself.
func (r *Runner) Run(ctx context.Context, nodeID string) (*Job, error) {
	if !r.active.acquire(nodeID) {
		return nil, ErrJobActive
	}
	defer r.active.release(nodeID)

	node, ok := r.store.GetNode(nodeID)
	if !ok {
		return nil, fmt.Errorf("job: node %s not found", nodeID)
	}

	j := &Job{
		ID:          uuid.NewString(),
		NodeID:      nodeID,
		Kind:        node.Kind,
		State:       StateSubmitting,
		SubmittedAt: r.clock.Now(),
	}
	r.setNodeProgress(j, 5)

	if err := validateInput(node); err != nil {
		r.fail(j, node, err)
		return j, nil
	}

	p, ok := r.providers.For(node.Kind)
	if !ok {
		r.fail(j, node, &provider.ValidationError{
			Field:  "kind",
			Reason: "no provider configured for " + string(node.Kind),
		})
		return j, nil
	}

	sub, err := p.Submit(ctx, buildInput(node))
	if err != nil {
		r.fail(j, node, err)
		return j, nil
	}

	if sub.Sync() {
		// Synchronous result: skip polling entirely.
		r.finish(ctx, j, node, sub.ResultURL, sub.ResultText)
		return j, nil
	}

	j.ProviderTaskID = sub.TaskID
	j.State = StatePolling
	r.setNodeProgress(j, 10)
	r.poll(ctx, j, node, p)
	return j, nil
}

// Busy reports whether the node currently has a job in flight.
func (r *Runner) Busy(nodeID string) bool {
	return r.active.busy(nodeID)
}

// Start launches Run on its own goroutine, logging the terminal state.
func (r *Runner) Start(ctx context.Context, nodeID string) {
	go func() {
		j, err := r.Run(ctx, nodeID)
		if err != nil {
			log.Printf("job for node %s not started: %v", nodeID, err)
			return
		}
		log.Printf("job %s for node %s finished: %s", j.ID, nodeID, j.State)
	}()
}

// poll drives the POLLING state: adaptive interval, fixed transient backoff,
// hard overall timeout.
func (r *Runner) poll(ctx context.Context, j *Job, node *graph.Node, p provider.Provider) {
	for {
		elapsed := r.clock.Now().Sub(j.SubmittedAt)
		if elapsed >= maxElapsed {
			r.fail(j, node, &provider.TimeoutError{Elapsed: elapsed})
			return
		}
		if ctx.Err() != nil {
			r.fail(j, node, ctx.Err())
			return
		}

		res, err := p.Poll(ctx, j.ProviderTaskID)
		j.Attempts++
		if err != nil {
			if provider.IsTransient(err) {
				j.LastError = err.Error()
				if r.clock.Sleep(ctx, retryBackoff) != nil {
					r.fail(j, node, ctx.Err())
					return
				}
				continue
			}
			r.fail(j, node, err)
			return
		}

		switch res.Status {
		case provider.StatusFailed:
			r.fail(j, node, &provider.ProviderError{Message: res.Message})
			return
		case provider.StatusSuccess:
			if res.ResultURL == "" && res.ResultText == "" {
				// Provider lag: success without a usable result; keep
				// polling under the same budget.
				break
			}
			r.finish(ctx, j, node, res.ResultURL, res.ResultText)
			return
		default:
			// queued or running
		}

		r.setNodeProgress(j, processingProgress(elapsed))
		interval := pollFast
		if elapsed >= fastWindow {
			interval = pollSlow
		}
		if r.clock.Sleep(ctx, interval) != nil {
			r.fail(j, node, ctx.Err())
			return
		}
	}
}

// finish materializes the result (URL results only) and lands the terminal
// SUCCESS state on the node and the ledger. Materialization failure degrades
// to the remote URL and never fails the job.
func (r *Runner) finish(ctx context.Context, j *Job, node *graph.Node, resultURL, resultText string) {
	field := outputField(j.Kind)
	update := map[string]any{
		graph.FieldProgress:     100,
		graph.FieldErrorMessage: "",
	}
	rec := ledger.Record{
		ID:        uuid.NewString(),
		NodeID:    j.NodeID,
		NodeTitle: node.Title(),
		Prompt:    promptOf(node),
		CreatedAt: r.clock.Now(),
		Status:    ledger.StatusSuccess,
	}

	if resultText != "" && resultURL == "" {
		j.ResultText = resultText
		update[field] = resultText
		rec.ArtifactURL = ""
	} else {
		j.State = StateMaterializing
		r.setNodeProgress(j, 90)
		mat := r.materialize.Materialize(ctx, resultURL, j.Kind, node.Title())
		j.ResultRemote = mat.Remote
		j.ResultLocal = mat.Local
		update[field] = mat.Local
		rec.ArtifactURL = mat.Remote
		rec.LocalPath = mat.Local
	}

	j.State = StateSuccess
	// A deleted node abandons the job: nothing is written anywhere.
	if !r.store.Exists(j.NodeID) {
		return
	}
	if err := r.store.UpdateNodeData(j.NodeID, update); err != nil {
		return
	}
	if r.ledger != nil {
		r.ledger.Append(rec)
	}
}

// fail lands a terminal ERROR state. All failures are converted to a node
// errorMessage plus an error ledger record; nothing escapes the runner.
func (r *Runner) fail(j *Job, node *graph.Node, cause error) {
	msg := errorMessage(cause)
	j.State = StateError
	j.LastError = msg

	if !r.store.Exists(j.NodeID) {
		return
	}
	_ = r.store.UpdateNodeData(j.NodeID, map[string]any{
		graph.FieldErrorMessage: msg,
		graph.FieldProgress:     0,
	})
	if r.ledger != nil {
		r.ledger.Append(ledger.Record{
			ID:           uuid.NewString(),
			NodeID:       j.NodeID,
			NodeTitle:    node.Title(),
			Prompt:       promptOf(node),
			CreatedAt:    r.clock.Now(),
			Status:       ledger.StatusError,
			ErrorMessage: msg,
		})
	}
}

func errorMessage(cause error) string {
	if cause == nil {
		return "unknown error"
	}
	return cause.Error()
}

// setNodeProgress surfaces progress on the owning node, skipping silently
// when the node has been deleted.
func (r *Runner) setNodeProgress(j *Job, progress int) {
	if !r.store.Exists(j.NodeID) {
		return
	}
	_ = r.store.UpdateNodeData(j.NodeID, map[string]any{graph.FieldProgress: progress})
}

// processingProgress maps elapsed time to a coarse progress number between
// 10 and 85 so long waits still show movement.
func processingProgress(elapsed time.Duration) int {
	p := 10 + int(elapsed/(15*time.Second))*5
	if p > 85 {
		p = 85
	}
	return p
}

// activeSet enforces at most one in-flight job per node.
type activeSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newActiveSet() *activeSet {
	return &activeSet{ids: make(map[string]struct{})}
}

func (a *activeSet) acquire(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.ids[id]; busy {
		return false
	}
	a.ids[id] = struct{}{}
	return true
}

func (a *activeSet) busy(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, busy := a.ids[id]
	return busy
}

func (a *activeSet) release(id string) {
	a.mu.Lock()
	delete(a.ids, id)
	a.mu.Unlock()
}
