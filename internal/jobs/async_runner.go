package jobs

import (
	"context"
	"log"
)

// AsyncRunner executes jobs on plain goroutines. It backs deployments that
// run without the durable task queue; queued jobs do not survive a process
// restart.
type AsyncRunner struct {
	registry *Registry
}

func NewAsyncRunner(registry *Registry) *AsyncRunner {
	return &AsyncRunner{registry: registry}
}

func (a *AsyncRunner) EnqueueImport(jobID string, document []byte) error {
	go func() {
		if err := a.registry.Execute(context.Background(), jobID, document); err != nil {
			log.Printf("[JOBS] job %s: %v", jobID, err)
		}
	}()
	return nil
}
