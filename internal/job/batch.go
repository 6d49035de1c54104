package job

import (
	"context"
	"sync"
	"time"
)

// staggerDelay spaces out batch-triggered submissions.
const staggerDelay = 50 * time.Millisecond

// RunBatch triggers a job for every listed node, staggering starts by a
// small fixed delay. Jobs run concurrently and independently: a failed or
// rejected node never blocks or rolls back its siblings. The returned
// channel closes once every job has reached a terminal state.
func (r *Runner) RunBatch(ctx context.Context, nodeIDs []string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i, id := range nodeIDs {
			if i > 0 {
				if r.clock.Sleep(ctx, staggerDelay) != nil {
					break
				}
			}
			wg.Add(1)
			go func(nodeID string) {
				defer wg.Done()
				// Already-active nodes are skipped; everything else
				// lands its own terminal state.
				_, _ = r.Run(ctx, nodeID)
			}(id)
		}
		wg.Wait()
	}()
	return done
}
