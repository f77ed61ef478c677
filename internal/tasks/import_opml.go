package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// ImportExecutor runs a submitted import job to completion.
type ImportExecutor interface {
	Execute(ctx context.Context, jobID string, document []byte) error
}

// ImportOPMLTask carries one queued import job execution. The document
// bytes are embedded in the task payload, so a job survives process
// restarts without any external staging area.
type ImportOPMLTask struct {
	JobID    string `json:"job_id"`
	Document []byte `json:"document"`
}

// Config returns the queue configuration for import tasks. A second
// attempt after an infrastructure failure is safe: a job already claimed
// or finished is skipped by the executor.
func (t ImportOPMLTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "import_opml",
		MaxAttempts: 2,
		Backoff:     30 * time.Second,
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ImportOPMLProcessor creates a processor function for ImportOPMLTask.
func ImportOPMLProcessor(executor ImportExecutor) backlite.QueueProcessor[ImportOPMLTask] {
	return func(ctx context.Context, task ImportOPMLTask) error {
		if executor == nil {
			return fmt.Errorf("import executor not configured")
		}

		log.Printf("[TASK] Processing import job %s (%d bytes)", task.JobID, len(task.Document))
		if err := executor.Execute(ctx, task.JobID, task.Document); err != nil {
			return fmt.Errorf("import job %s: %w", task.JobID, err)
		}
		return nil
	}
}

// NewImportOPMLQueue creates a backlite queue for import tasks.
func NewImportOPMLQueue(executor ImportExecutor) backlite.Queue {
	return backlite.NewQueue(ImportOPMLProcessor(executor))
}
