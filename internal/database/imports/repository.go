package imports

import (
	"time"

	"gorm.io/gorm"

	"github.com/mkhomutov/feedkeeper/internal/entities"
)

// Repository persists import jobs and their per-item result rows. Status
// transitions are guarded at the SQL level so a job never leaves a terminal
// state, regardless of caller ordering.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var terminalStatuses = []entities.ImportStatus{
	entities.ImportStatusCompleted,
	entities.ImportStatusFailed,
	entities.ImportStatusCancelled,
}

// CreateJob persists a freshly submitted job.
func (r *Repository) CreateJob(job *entities.ImportJob) error {
	if job.Status == "" {
		job.Status = entities.ImportStatusPending
	}
	return r.db.Create(job).Error
}

// GetJob fetches a job by id.
func (r *Repository) GetJob(id string) (*entities.ImportJob, error) {
	var job entities.ImportJob
	err := r.db.First(&job, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns the user's jobs, most recent first.
func (r *Repository) ListJobs(userID uint) ([]entities.ImportJob, error) {
	var jobs []entities.ImportJob
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

// MarkProcessing moves a pending job into processing and stamps started_at.
// Returns false when the job was not pending (already running, cancelled or
// otherwise terminal).
func (r *Repository) MarkProcessing(id string) (bool, error) {
	now := time.Now()
	result := r.db.Model(&entities.ImportJob{}).
		Where("id = ? AND status = ?", id, entities.ImportStatusPending).
		Updates(map[string]interface{}{
			"status":     entities.ImportStatusProcessing,
			"started_at": now,
		})
	return result.RowsAffected > 0, result.Error
}

// UpdateProgress persists the job's phase, step and counter fields. The
// update only applies while the job is still processing, so a cancellation
// committed by another goroutine is never overwritten.
func (r *Repository) UpdateProgress(job *entities.ImportJob) error {
	return r.db.Model(&entities.ImportJob{}).
		Where("id = ? AND status = ?", job.ID, entities.ImportStatusProcessing).
		Updates(map[string]interface{}{
			"total_steps":        job.TotalSteps,
			"current_step":       job.CurrentStep,
			"current_phase":      job.CurrentPhase,
			"categories_created": job.CategoriesCreated,
			"feeds_imported":     job.FeedsImported,
			"feeds_failed":       job.FeedsFailed,
			"duplicates_found":   job.DuplicatesFound,
		}).Error
}

// MarkCompleted finalizes a successful run, freezing the counters.
func (r *Repository) MarkCompleted(job *entities.ImportJob) error {
	now := time.Now()
	return r.db.Model(&entities.ImportJob{}).
		Where("id = ? AND status = ?", job.ID, entities.ImportStatusProcessing).
		Updates(map[string]interface{}{
			"status":             entities.ImportStatusCompleted,
			"completed_at":       now,
			"current_step":       job.CurrentStep,
			"current_phase":      job.CurrentPhase,
			"categories_created": job.CategoriesCreated,
			"feeds_imported":     job.FeedsImported,
			"feeds_failed":       job.FeedsFailed,
			"duplicates_found":   job.DuplicatesFound,
		}).Error
}

// MarkFailed records a phase-fatal error. No-op when already terminal.
func (r *Repository) MarkFailed(id, message, details string) error {
	now := time.Now()
	return r.db.Model(&entities.ImportJob{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(map[string]interface{}{
			"status":        entities.ImportStatusFailed,
			"completed_at":  now,
			"error_message": message,
			"error_details": details,
		}).Error
}

// MarkCancelled ends the job with whatever counters had accumulated.
// Returns false when the job was already terminal.
func (r *Repository) MarkCancelled(id string) (bool, error) {
	now := time.Now()
	result := r.db.Model(&entities.ImportJob{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(map[string]interface{}{
			"status":       entities.ImportStatusCancelled,
			"completed_at": now,
		})
	return result.RowsAffected > 0, result.Error
}

// CancelPending cancels a job that has not been claimed by a worker yet.
// Returns false when the job already left the pending state; a processing
// job is cancelled cooperatively instead.
func (r *Repository) CancelPending(id string) (bool, error) {
	now := time.Now()
	result := r.db.Model(&entities.ImportJob{}).
		Where("id = ? AND status = ?", id, entities.ImportStatusPending).
		Updates(map[string]interface{}{
			"status":       entities.ImportStatusCancelled,
			"completed_at": now,
		})
	return result.RowsAffected > 0, result.Error
}

// AppendResult writes the audit row for one processed item. Re-processing
// the same logical item finds the existing row instead of creating a second
// one.
func (r *Repository) AppendResult(res *entities.ImportResult) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Where(map[string]interface{}{
			"job_id":    res.JobID,
			"item_type": res.ItemType,
			"item_name": res.ItemName,
			"item_url":  res.ItemURL,
		}).FirstOrCreate(res).Error
	})
}

// ResultsForJob returns the job's result rows in processing order.
func (r *Repository) ResultsForJob(jobID string) ([]entities.ImportResult, error) {
	var results []entities.ImportResult
	err := r.db.Where("job_id = ?", jobID).Order("id").Find(&results).Error
	return results, err
}

// DeleteJob removes a job together with its result rows.
func (r *Repository) DeleteJob(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", id).Delete(&entities.ImportResult{}).Error; err != nil {
			return err
		}
		return tx.Delete(&entities.ImportJob{}, "id = ?", id).Error
	})
}
