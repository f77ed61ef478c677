package importer

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mkhomutov/feedkeeper/internal/dedup"
	"github.com/mkhomutov/feedkeeper/internal/entities"
	"github.com/mkhomutov/feedkeeper/internal/opml"
	"github.com/mkhomutov/feedkeeper/internal/utils"
	"github.com/mkhomutov/feedkeeper/internal/validator"
)

// JobStore is the slice of the persistence layer that tracks job state and
// the per-item audit trail.
type JobStore interface {
	GetJob(id string) (*entities.ImportJob, error)
	MarkProcessing(id string) (bool, error)
	UpdateProgress(job *entities.ImportJob) error
	MarkCompleted(job *entities.ImportJob) error
	MarkFailed(id, message, details string) error
	MarkCancelled(id string) (bool, error)
	AppendResult(res *entities.ImportResult) error
}

// SubscriptionStore reads existing subscriptions and creates new ones.
type SubscriptionStore interface {
	dedup.SubscriptionStore
	CreateCategory(category *entities.Category) error
	CreateFeed(feed *entities.Feed) error
}

// BatchValidator classifies feed URLs; see the validator package.
type BatchValidator interface {
	ValidateBatch(ctx context.Context, urls []string) []validator.Result
}

// CancelProbe reports whether cancellation has been requested for a job.
// The orchestrator consults it between phases and between validation
// batches.
type CancelProbe func(jobID string) bool

// Config holds orchestrator tuning knobs.
type Config struct {
	// ValidationBatchSize is how many URLs go into one validation batch.
	// Cancellation is observed between batches. Default: 25
	ValidationBatchSize int
}

// ErrCodePersistence marks a per-item storage failure in result rows.
const ErrCodePersistence = "persistence_error"

// Orchestrator drives one import job through the pipeline phases:
// parsing, validating_feeds (optional), detecting_duplicates,
// creating_categories, importing_feeds, cleanup. Any single item may fail
// without aborting the batch; only document-level parse failures and
// unreachable storage fail the whole job.
type Orchestrator struct {
	jobs      JobStore
	subs      SubscriptionStore
	validator BatchValidator
	cancelled CancelProbe
	batchSize int
}

func New(jobs JobStore, subs SubscriptionStore, v BatchValidator, cancelled CancelProbe, cfg Config) *Orchestrator {
	if cfg.ValidationBatchSize <= 0 {
		cfg.ValidationBatchSize = 25
	}
	if cancelled == nil {
		cancelled = func(string) bool { return false }
	}
	return &Orchestrator{
		jobs:      jobs,
		subs:      subs,
		validator: v,
		cancelled: cancelled,
		batchSize: cfg.ValidationBatchSize,
	}
}

// Run executes the pipeline for one job. The returned error reports only
// infrastructure problems talking to the job store; pipeline failures end
// up in the job's terminal status instead.
func (o *Orchestrator) Run(ctx context.Context, jobID string, document []byte) error {
	claimed, err := o.jobs.MarkProcessing(jobID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}
	if !claimed {
		// Already running, cancelled before start, or a re-delivery of a
		// finished job.
		log.Printf("[IMPORT] job %s: not pending, skipping", jobID)
		return nil
	}

	job, err := o.jobs.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	// Phase: parsing
	job.CurrentPhase = entities.ImportPhaseParsing
	doc, err := opml.Parse(document)
	if err != nil {
		log.Printf("[IMPORT] job %s: parse failed: %v", jobID, err)
		return o.fail(jobID, "document is not a valid subscription list", err)
	}

	categories := doc.FlattenCategories()
	feeds := doc.Feeds

	// total_steps is fixed here and never changes again:
	// parse + optional per-feed validation + duplicate detection +
	// one step per category + one per feed + cleanup.
	job.TotalSteps = 1 + 1 + len(categories) + len(feeds) + 1
	if job.ValidateFeeds {
		job.TotalSteps += len(feeds)
	}
	job.CurrentStep = 1
	if err := o.jobs.UpdateProgress(job); err != nil {
		return o.fail(jobID, "storage unavailable", err)
	}
	log.Printf("[IMPORT] job %s: parsed %d categories, %d feeds", jobID, len(categories), len(feeds))

	if o.checkCancelled(job) {
		return nil
	}

	// Phase: validating_feeds (skipped when the job opts out)
	validation := make(map[string]validator.Result)
	if job.ValidateFeeds && o.validator != nil && len(feeds) > 0 {
		if done, err := o.validateFeeds(ctx, job, feeds, validation); done || err != nil {
			return err
		}
	}

	// Phase: detecting_duplicates
	job.CurrentPhase = entities.ImportPhaseDetectingDuplicates
	resolver := dedup.NewResolver(o.subs, job.UserID, job.DuplicateStrategy, false)
	if err := resolver.LoadExistingData(); err != nil {
		return o.fail(jobID, "storage unavailable", err)
	}
	catMatches := resolver.DetectCategoryDuplicates(categories)
	feedMatches := resolver.DetectFeedDuplicates(feeds)
	job.CurrentStep++
	o.progress(job)

	if o.checkCancelled(job) {
		return nil
	}

	// Phase: creating_categories
	categoryIDByKey := make(map[string]uint)
	o.createCategories(job, categories, catMatches, resolver, categoryIDByKey)

	if o.checkCancelled(job) {
		return nil
	}

	// Phase: importing_feeds
	o.importFeeds(job, feeds, feedMatches, validation, resolver, categoryIDByKey)

	// Phase: cleanup
	job.CurrentPhase = entities.ImportPhaseCleanup
	job.CurrentStep++
	if err := o.jobs.MarkCompleted(job); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	log.Printf("[IMPORT] job %s: completed (%d categories, %d feeds, %d duplicates, %d failed)",
		jobID, job.CategoriesCreated, job.FeedsImported, job.DuplicatesFound, job.FeedsFailed)
	return nil
}

// validateFeeds runs the batched validation phase. It returns done=true
// when the job reached a terminal state (cancelled) during the phase.
func (o *Orchestrator) validateFeeds(ctx context.Context, job *entities.ImportJob, feeds []opml.Feed, validation map[string]validator.Result) (bool, error) {
	job.CurrentPhase = entities.ImportPhaseValidatingFeeds
	o.progress(job)

	for start := 0; start < len(feeds); start += o.batchSize {
		if o.checkCancelled(job) {
			return true, nil
		}

		end := start + o.batchSize
		if end > len(feeds) {
			end = len(feeds)
		}
		urls := make([]string, 0, end-start)
		for _, feed := range feeds[start:end] {
			urls = append(urls, feed.FeedURL)
		}

		for _, res := range o.validator.ValidateBatch(ctx, urls) {
			validation[utils.NormalizeFeedURL(res.URL)] = res
		}

		job.CurrentStep += len(urls)
		o.progress(job)
	}
	return false, nil
}

func (o *Orchestrator) createCategories(job *entities.ImportJob, categories []*opml.Category, matches map[int]dedup.CategoryMatch, resolver *dedup.Resolver, categoryIDByKey map[string]uint) {
	job.CurrentPhase = entities.ImportPhaseCreatingCategories
	o.progress(job)

	for i, cat := range categories {
		key := opml.PathKey(cat.Path)
		name := strings.Join(cat.Path, "/")

		if match, dup := matches[i]; dup {
			var dupID *uint
			if match.Existing != nil {
				categoryIDByKey[key] = match.Existing.ID
				dupID = &match.Existing.ID
			} else if id, ok := categoryIDByKey[key]; ok {
				dupID = &id
			}
			job.DuplicatesFound++
			o.appendResult(&entities.ImportResult{
				JobID:         job.ID,
				ItemType:      entities.ImportItemCategory,
				ItemName:      name,
				Status:        entities.ImportResultDuplicate,
				DuplicateOfID: dupID,
			})
		} else {
			created := &entities.Category{
				UserID:   job.UserID,
				Name:     cat.Name,
				ParentID: o.resolveParent(cat.Path, categoryIDByKey, resolver, job.CategoryParentID),
			}
			if err := o.subs.CreateCategory(created); err != nil {
				o.appendResult(&entities.ImportResult{
					JobID:        job.ID,
					ItemType:     entities.ImportItemCategory,
					ItemName:     name,
					Status:       entities.ImportResultFailed,
					ErrorCode:    ErrCodePersistence,
					ErrorMessage: err.Error(),
				})
			} else {
				categoryIDByKey[key] = created.ID
				job.CategoriesCreated++
				o.appendResult(&entities.ImportResult{
					JobID:    job.ID,
					ItemType: entities.ImportItemCategory,
					ItemName: name,
					Status:   entities.ImportResultCreated,
					EntityID: &created.ID,
				})
			}
		}

		job.CurrentStep++
		o.progress(job)
	}
}

func (o *Orchestrator) importFeeds(job *entities.ImportJob, feeds []opml.Feed, matches map[int]dedup.FeedMatch, validation map[string]validator.Result, resolver *dedup.Resolver, categoryIDByKey map[string]uint) {
	job.CurrentPhase = entities.ImportPhaseImportingFeeds
	o.progress(job)

	createdByKey := make(map[string]uint)

	for i, feed := range feeds {
		key := utils.NormalizeFeedURL(feed.FeedURL)

		if match, dup := matches[i]; dup {
			var dupID *uint
			if match.Existing != nil {
				dupID = &match.Existing.ID
			} else if id, ok := createdByKey[key]; ok {
				dupID = &id
			}
			job.DuplicatesFound++
			o.appendResult(&entities.ImportResult{
				JobID:         job.ID,
				ItemType:      entities.ImportItemFeed,
				ItemName:      feed.Title,
				ItemURL:       feed.FeedURL,
				Status:        entities.ImportResultDuplicate,
				DuplicateOfID: dupID,
			})
			job.CurrentStep++
			o.progress(job)
			continue
		}

		if res, checked := validation[key]; job.ValidateFeeds && checked && !res.Valid {
			job.FeedsFailed++
			o.appendResult(&entities.ImportResult{
				JobID:        job.ID,
				ItemType:     entities.ImportItemFeed,
				ItemName:     feed.Title,
				ItemURL:      feed.FeedURL,
				Status:       entities.ImportResultFailed,
				ErrorCode:    res.ErrorCode,
				ErrorMessage: res.ErrorMessage,
			})
			job.CurrentStep++
			o.progress(job)
			continue
		}

		created := o.buildFeed(job, feed, validation[key], resolver, categoryIDByKey)
		if err := o.subs.CreateFeed(created); err != nil {
			job.FeedsFailed++
			o.appendResult(&entities.ImportResult{
				JobID:        job.ID,
				ItemType:     entities.ImportItemFeed,
				ItemName:     feed.Title,
				ItemURL:      feed.FeedURL,
				Status:       entities.ImportResultFailed,
				ErrorCode:    ErrCodePersistence,
				ErrorMessage: err.Error(),
			})
		} else {
			createdByKey[key] = created.ID
			job.FeedsImported++
			o.appendResult(&entities.ImportResult{
				JobID:    job.ID,
				ItemType: entities.ImportItemFeed,
				ItemName: feed.Title,
				ItemURL:  feed.FeedURL,
				Status:   entities.ImportResultCreated,
				EntityID: &created.ID,
			})
		}

		job.CurrentStep++
		o.progress(job)
	}
}

// buildFeed assembles the entity for a creation-eligible feed, preferring
// validation-discovered metadata over the document's declarations.
func (o *Orchestrator) buildFeed(job *entities.ImportJob, feed opml.Feed, res validator.Result, resolver *dedup.Resolver, categoryIDByKey map[string]uint) *entities.Feed {
	created := &entities.Feed{
		UserID:      job.UserID,
		Title:       feed.Title,
		FeedURL:     feed.FeedURL,
		SiteURL:     feed.SiteURL,
		Description: feed.Description,
		ImportJobID: &job.ID,
	}

	if res.Valid {
		created.FeedFormat = res.FeedFormat
		if res.FinalURL != "" {
			created.FeedURL = res.FinalURL
		}
		if created.Description == "" {
			created.Description = res.Description
		}
	}

	if len(feed.CategoryPath) > 0 {
		if id, ok := categoryIDByKey[opml.PathKey(feed.CategoryPath)]; ok {
			created.CategoryID = &id
		} else if existing := resolver.ExistingCategory(feed.CategoryPath); existing != nil {
			created.CategoryID = &existing.ID
		}
	} else {
		created.CategoryID = job.CategoryParentID
	}

	return created
}

// resolveParent finds the parent id for a new category: a category created
// earlier in this job, then the user's existing tree, then the job's target
// parent.
func (o *Orchestrator) resolveParent(path []string, categoryIDByKey map[string]uint, resolver *dedup.Resolver, rootParent *uint) *uint {
	if len(path) <= 1 {
		return rootParent
	}
	parentPath := path[:len(path)-1]
	if id, ok := categoryIDByKey[opml.PathKey(parentPath)]; ok {
		return &id
	}
	if existing := resolver.ExistingCategory(parentPath); existing != nil {
		return &existing.ID
	}
	return rootParent
}

// checkCancelled observes the cooperative cancellation flag and, when set,
// moves the job to cancelled with the counters accumulated so far.
func (o *Orchestrator) checkCancelled(job *entities.ImportJob) bool {
	if !o.cancelled(job.ID) {
		return false
	}
	if _, err := o.jobs.MarkCancelled(job.ID); err != nil {
		log.Printf("[IMPORT] job %s: cancel failed: %v", job.ID, err)
		return true
	}
	log.Printf("[IMPORT] job %s: cancelled during %s", job.ID, job.CurrentPhase)
	return true
}

func (o *Orchestrator) fail(jobID, message string, cause error) error {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	if err := o.jobs.MarkFailed(jobID, message, details); err != nil {
		return fmt.Errorf("mark job %s failed: %w", jobID, err)
	}
	return nil
}

// progress persists the job's step counters; failures are logged and do not
// interrupt the phase.
func (o *Orchestrator) progress(job *entities.ImportJob) {
	if err := o.jobs.UpdateProgress(job); err != nil {
		log.Printf("[IMPORT] job %s: progress update failed: %v", job.ID, err)
	}
}

func (o *Orchestrator) appendResult(res *entities.ImportResult) {
	if err := o.jobs.AppendResult(res); err != nil {
		log.Printf("[IMPORT] job %s: result row failed: %v", res.JobID, err)
	}
}
