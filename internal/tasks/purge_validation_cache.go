package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// ValidationCachePurger deletes validation cache rows that expired before
// a given time.
type ValidationCachePurger interface {
	DeleteExpired(now time.Time) (int64, error)
}

// PurgeValidationCacheTask removes expired feed validation cache entries.
// Expired rows are already invisible to lookups; the purge only reclaims
// space.
type PurgeValidationCacheTask struct{}

// Config returns the queue configuration for cache purge tasks.
func (t PurgeValidationCacheTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "purge_validation_cache",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// PurgeValidationCacheProcessor creates a processor function for
// PurgeValidationCacheTask.
func PurgeValidationCacheProcessor(purger ValidationCachePurger) backlite.QueueProcessor[PurgeValidationCacheTask] {
	return func(ctx context.Context, task PurgeValidationCacheTask) error {
		if purger == nil {
			return fmt.Errorf("validation cache purger not configured")
		}

		deleted, err := purger.DeleteExpired(time.Now())
		if err != nil {
			return fmt.Errorf("purge validation cache: %w", err)
		}

		log.Printf("[TASK] Purged %d expired validation cache entries", deleted)
		return nil
	}
}

// NewPurgeValidationCacheQueue creates a backlite queue for cache purge tasks.
func NewPurgeValidationCacheQueue(purger ValidationCachePurger) backlite.Queue {
	return backlite.NewQueue(PurgeValidationCacheProcessor(purger))
}
