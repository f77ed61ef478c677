package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// MaintenanceEnqueuer schedules the recurring cleanup work on the task
// queue.
type MaintenanceEnqueuer interface {
	EnqueueCachePurge() error
	EnqueueAuditCleanup(retentionDays int) error
}

// MaintenanceScheduler periodically enqueues housekeeping tasks: purging
// expired validation cache rows and trimming old audit events. The work
// itself runs on the task queue workers, so the scheduler goroutine never
// touches the database.
type MaintenanceScheduler struct {
	enqueuer           MaintenanceEnqueuer
	schedule           string
	auditRetentionDays int

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

// NewMaintenanceScheduler creates a scheduler with a standard five-field
// cron schedule, e.g. "0 3 * * *" for a nightly run.
func NewMaintenanceScheduler(enqueuer MaintenanceEnqueuer, schedule string, auditRetentionDays int) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		enqueuer:           enqueuer,
		schedule:           schedule,
		auditRetentionDays: auditRetentionDays,
		cron:               cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler. A blank schedule disables it.
func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if s.schedule == "" {
		log.Printf("Maintenance scheduler: disabled")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, s.enqueueAll)
	if err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.schedule, err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("Maintenance scheduler: started with schedule '%s'", s.schedule)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

func (s *MaintenanceScheduler) enqueueAll() {
	if err := s.enqueuer.EnqueueCachePurge(); err != nil {
		log.Printf("Maintenance scheduler: cache purge enqueue failed: %v", err)
	}
	if err := s.enqueuer.EnqueueAuditCleanup(s.auditRetentionDays); err != nil {
		log.Printf("Maintenance scheduler: audit cleanup enqueue failed: %v", err)
	}
}

// Stop gracefully stops the scheduler, waiting for a running enqueue.
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("Maintenance scheduler: stopped")
}

// IsRunning reports whether the scheduler has been started.
func (s *MaintenanceScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
