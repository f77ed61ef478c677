package audit

import (
	"fmt"
	"log"

	"github.com/mkhomutov/feedkeeper/internal/database/audit"
	"github.com/mkhomutov/feedkeeper/internal/entities"
)

// Service provides high-level audit logging for the import pipeline.
type Service struct {
	repo *audit.Repository
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	go func() {
		if err := s.repo.LogEvent(event); err != nil {
			log.Printf("Failed to log audit event: %v", err)
		}
	}()
}

// LogImportSubmitted records acceptance of a subscription list upload.
func (s *Service) LogImportSubmitted(userID uint, jobID, filename string) {
	s.LogAsync(&entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventImport,
		Action:      "opml_import_submitted",
		Description: fmt.Sprintf("Accepted subscription list %q", filename),
		JobID:       jobID,
		Status:      entities.AuditStatusSuccess,
	})
}

// LogImportFinished records the terminal outcome of an import job.
func (s *Service) LogImportFinished(userID uint, job *entities.ImportJob) {
	event := &entities.AuditEvent{
		UserID:    userID,
		EventType: entities.AuditEventImport,
		Action:    "opml_import_finished",
		Description: fmt.Sprintf("Import finished as %s: %d categories, %d feeds, %d duplicates, %d failures",
			job.Status, job.CategoriesCreated, job.FeedsImported, job.DuplicatesFound, job.FeedsFailed),
		JobID:  job.ID,
		Status: entities.AuditStatusSuccess,
	}
	if job.Status == entities.ImportStatusFailed {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(job.ErrorMessage, 500)
	}
	s.LogAsync(event)
}

// LogImportCancelled records a cancellation request that took effect.
func (s *Service) LogImportCancelled(userID uint, jobID string) {
	s.LogAsync(&entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventCancel,
		Action:      "opml_import_cancelled",
		Description: "Import cancelled by user",
		JobID:       jobID,
		Status:      entities.AuditStatusSuccess,
	})
}

// LogImportDeleted records removal of a finished job and its results.
func (s *Service) LogImportDeleted(userID uint, jobID string) {
	s.LogAsync(&entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventDelete,
		Action:      "opml_import_deleted",
		Description: "Import job deleted",
		JobID:       jobID,
		Status:      entities.AuditStatusSuccess,
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
