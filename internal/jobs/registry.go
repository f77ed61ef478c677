package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mkhomutov/feedkeeper/internal/audit"
	"github.com/mkhomutov/feedkeeper/internal/database/imports"
	"github.com/mkhomutov/feedkeeper/internal/entities"
	"github.com/mkhomutov/feedkeeper/internal/importer"
)

var (
	// ErrJobNotFound is returned when no job exists for an id.
	ErrJobNotFound = errors.New("import job not found")
	// ErrAlreadyTerminal is returned for operations that require a live job.
	ErrAlreadyTerminal = errors.New("import job already finished")
	// ErrUnsupportedStrategy is returned for duplicate strategies the
	// pipeline cannot honor. Rejected at submission, never mid-run.
	ErrUnsupportedStrategy = errors.New("unsupported duplicate strategy")
	// ErrJobActive is returned when deleting a job that has not finished.
	ErrJobActive = errors.New("import job is still active")
	// ErrEmptyDocument is returned when the uploaded file has no content.
	ErrEmptyDocument = errors.New("empty document")
)

// Enqueuer schedules the background execution of a submitted job.
type Enqueuer interface {
	EnqueueImport(jobID string, document []byte) error
}

// Options are the user-chosen knobs for one import submission.
type Options struct {
	DuplicateStrategy entities.DuplicateStrategy
	ValidateFeeds     bool
	CategoryParentID  *uint
}

// Registry is the lifecycle authority for import jobs: it creates them,
// hands them to the task queue, serves status reads and routes
// cancellation. Cancellation of a running job is cooperative, through an
// in-process flag the orchestrator polls between phases.
type Registry struct {
	repo     *imports.Repository
	subs     importer.SubscriptionStore
	validate importer.BatchValidator
	enqueuer Enqueuer
	auditor  *audit.Service
	cfg      importer.Config

	cancels sync.Map // job id -> *atomic.Bool
}

func NewRegistry(repo *imports.Repository, subs importer.SubscriptionStore, v importer.BatchValidator, enqueuer Enqueuer, auditor *audit.Service, cfg importer.Config) *Registry {
	return &Registry{
		repo:     repo,
		subs:     subs,
		validate: v,
		enqueuer: enqueuer,
		auditor:  auditor,
		cfg:      cfg,
	}
}

// SetEnqueuer wires the execution backend. Must be called before Create
// when the registry was built without one.
func (r *Registry) SetEnqueuer(e Enqueuer) {
	r.enqueuer = e
}

// Create validates the submission, persists a pending job and enqueues its
// execution. It returns as soon as the job is durable; processing happens
// on the task queue workers.
func (r *Registry) Create(userID uint, filename string, document []byte, opts Options) (*entities.ImportJob, error) {
	if len(bytes.TrimSpace(document)) == 0 {
		return nil, ErrEmptyDocument
	}

	strategy := opts.DuplicateStrategy
	if strategy == "" {
		strategy = entities.DuplicateStrategySkip
	}
	if strategy != entities.DuplicateStrategySkip {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStrategy, strategy)
	}

	job := &entities.ImportJob{
		ID:                uuid.NewString(),
		UserID:            userID,
		Filename:          filename,
		FileSize:          int64(len(document)),
		Status:            entities.ImportStatusPending,
		DuplicateStrategy: strategy,
		CategoryParentID:  opts.CategoryParentID,
		ValidateFeeds:     opts.ValidateFeeds,
	}
	if err := r.repo.CreateJob(job); err != nil {
		return nil, fmt.Errorf("persist import job: %w", err)
	}

	if err := r.enqueuer.EnqueueImport(job.ID, document); err != nil {
		// The job row exists but will never run. Fail it so the user sees
		// a terminal status instead of a forever-pending job.
		if markErr := r.repo.MarkFailed(job.ID, "could not schedule import", err.Error()); markErr != nil {
			log.Printf("[JOBS] job %s: mark failed after enqueue error: %v", job.ID, markErr)
		}
		return nil, fmt.Errorf("enqueue import job: %w", err)
	}

	if r.auditor != nil {
		r.auditor.LogImportSubmitted(userID, job.ID, filename)
	}
	return job, nil
}

// Get returns a job by id.
func (r *Registry) Get(jobID string) (*entities.ImportJob, error) {
	job, err := r.repo.GetJob(jobID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List returns the user's jobs, most recent first.
func (r *Registry) List(userID uint) ([]entities.ImportJob, error) {
	return r.repo.ListJobs(userID)
}

// Results returns the per-item outcome rows for a job.
func (r *Registry) Results(jobID string) ([]entities.ImportResult, error) {
	if _, err := r.Get(jobID); err != nil {
		return nil, err
	}
	return r.repo.ResultsForJob(jobID)
}

// Cancel requests cancellation of a job. A pending job is cancelled
// immediately; a processing job keeps running until the orchestrator
// reaches its next phase boundary and observes the flag. Work already
// dispatched stays dispatched.
func (r *Registry) Cancel(jobID string) error {
	job, err := r.Get(jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}

	// Raise the flag first so a worker claiming the job right now still
	// observes the request.
	r.flag(jobID).Store(true)

	cancelled, err := r.repo.CancelPending(jobID)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	if cancelled {
		log.Printf("[JOBS] job %s: cancelled before start", jobID)
		if r.auditor != nil {
			r.auditor.LogImportCancelled(job.UserID, jobID)
		}
		return nil
	}

	log.Printf("[JOBS] job %s: cancellation requested, waiting for phase boundary", jobID)
	if r.auditor != nil {
		r.auditor.LogImportCancelled(job.UserID, jobID)
	}
	return nil
}

// Delete removes a finished job together with its result rows.
func (r *Registry) Delete(jobID string) error {
	job, err := r.Get(jobID)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return ErrJobActive
	}
	if err := r.repo.DeleteJob(jobID); err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	if r.auditor != nil {
		r.auditor.LogImportDeleted(job.UserID, jobID)
	}
	return nil
}

// Execute runs one job to completion. It is the task queue entry point and
// satisfies tasks.ImportExecutor. The cancellation probe handed to the
// orchestrator reads the registry's in-process flag for the job.
func (r *Registry) Execute(ctx context.Context, jobID string, document []byte) error {
	defer r.cancels.Delete(jobID)

	orch := importer.New(r.repo, r.subs, r.validate, r.isCancelled, r.cfg)
	runErr := orch.Run(ctx, jobID, document)

	if r.auditor != nil {
		if job, err := r.repo.GetJob(jobID); err == nil && job.Status.IsTerminal() {
			r.auditor.LogImportFinished(job.UserID, job)
		}
	}
	return runErr
}

// CancelRequested reports whether an in-process cancellation flag is set.
func (r *Registry) CancelRequested(jobID string) bool {
	return r.isCancelled(jobID)
}

func (r *Registry) isCancelled(jobID string) bool {
	if v, ok := r.cancels.Load(jobID); ok {
		return v.(*atomic.Bool).Load()
	}
	return false
}

func (r *Registry) flag(jobID string) *atomic.Bool {
	v, _ := r.cancels.LoadOrStore(jobID, &atomic.Bool{})
	return v.(*atomic.Bool)
}
