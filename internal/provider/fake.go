package provider

import (
	"context"
	"sync"
)

// Fake is a scriptable provider for tests. Submit returns the configured
// SubmitResult or error; Poll walks PollScript one entry per call, sticking
// on the last entry when the script runs out.
type Fake struct {
	mu sync.Mutex

	SubmitRes SubmitResult
	SubmitErr error

	PollScript []PollStep

	submits int
	polls   int
}

// PollStep is one scripted poll observation.
type PollStep struct {
	Res PollResult
	Err error
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Submit(ctx context.Context, input map[string]any) (SubmitResult, error) {
	f.mu.Lock()
	f.submits++
	f.mu.Unlock()
	return f.SubmitRes, f.SubmitErr
}

func (f *Fake) Poll(ctx context.Context, taskID string) (PollResult, error) {
	f.mu.Lock()
	i := f.polls
	f.polls++
	f.mu.Unlock()
	if len(f.PollScript) == 0 {
		return PollResult{Status: StatusRunning}, nil
	}
	if i >= len(f.PollScript) {
		i = len(f.PollScript) - 1
	}
	step := f.PollScript[i]
	return step.Res, step.Err
}

// Submits reports how many times Submit was called.
func (f *Fake) Submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

// Polls reports how many times Poll was called.
func (f *Fake) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}
