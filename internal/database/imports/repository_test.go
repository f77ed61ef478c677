package imports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mkhomutov/feedkeeper/internal/entities"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.ImportJob{}, &entities.ImportResult{})
	require.NoError(t, err)

	return db
}

func newJob(id string) *entities.ImportJob {
	return &entities.ImportJob{
		ID:                id,
		UserID:            1,
		Filename:          "subs.opml",
		FileSize:          1024,
		DuplicateStrategy: entities.DuplicateStrategySkip,
	}
}

func TestRepository_JobLifecycle(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	job := newJob("job-1")
	require.NoError(t, repo.CreateJob(job))

	stored, err := repo.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusPending, stored.Status)
	assert.Nil(t, stored.StartedAt)
	assert.Nil(t, stored.CompletedAt)

	ok, err := repo.MarkProcessing("job-1")
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err = repo.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusProcessing, stored.Status)
	assert.NotNil(t, stored.StartedAt)

	// A second claim of the same job does nothing.
	ok, err = repo.MarkProcessing("job-1")
	require.NoError(t, err)
	assert.False(t, ok)

	stored.CurrentPhase = entities.ImportPhaseImportingFeeds
	stored.CurrentStep = 7
	stored.TotalSteps = 10
	stored.FeedsImported = 3
	require.NoError(t, repo.UpdateProgress(stored))

	reloaded, err := repo.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, 7, reloaded.CurrentStep)
	assert.Equal(t, entities.ImportPhaseImportingFeeds, reloaded.CurrentPhase)
	assert.Equal(t, 3, reloaded.FeedsImported)

	require.NoError(t, repo.MarkCompleted(reloaded))

	final, err := repo.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusCompleted, final.Status)
	assert.NotNil(t, final.CompletedAt)
}

func TestRepository_TerminalStatesAreFinal(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	job := newJob("job-done")
	require.NoError(t, repo.CreateJob(job))
	ok, err := repo.MarkProcessing("job-done")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.MarkCompleted(job))

	// None of these may move the job out of completed.
	require.NoError(t, repo.MarkFailed("job-done", "boom", ""))
	cancelled, err := repo.MarkCancelled("job-done")
	require.NoError(t, err)
	assert.False(t, cancelled)
	require.NoError(t, repo.UpdateProgress(&entities.ImportJob{ID: "job-done", CurrentStep: 99}))

	stored, err := repo.GetJob("job-done")
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusCompleted, stored.Status)
	assert.NotEqual(t, 99, stored.CurrentStep)
}

func TestRepository_CancelFromPendingAndProcessing(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	pending := newJob("job-pending")
	require.NoError(t, repo.CreateJob(pending))
	ok, err := repo.MarkCancelled("job-pending")
	require.NoError(t, err)
	assert.True(t, ok)

	running := newJob("job-running")
	require.NoError(t, repo.CreateJob(running))
	claimed, err := repo.MarkProcessing("job-running")
	require.NoError(t, err)
	require.True(t, claimed)
	ok, err = repo.MarkCancelled("job-running")
	require.NoError(t, err)
	assert.True(t, ok)

	for _, id := range []string{"job-pending", "job-running"} {
		stored, err := repo.GetJob(id)
		require.NoError(t, err)
		assert.Equal(t, entities.ImportStatusCancelled, stored.Status)
		assert.NotNil(t, stored.CompletedAt)
	}
}

func TestRepository_CancelPendingDoesNotTouchClaimedJobs(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	pending := newJob("job-queued")
	require.NoError(t, repo.CreateJob(pending))
	ok, err := repo.CancelPending("job-queued")
	require.NoError(t, err)
	assert.True(t, ok)

	running := newJob("job-claimed")
	require.NoError(t, repo.CreateJob(running))
	claimed, err := repo.MarkProcessing("job-claimed")
	require.NoError(t, err)
	require.True(t, claimed)

	ok, err = repo.CancelPending("job-claimed")
	require.NoError(t, err)
	assert.False(t, ok, "a claimed job is cancelled cooperatively, not directly")

	stored, err := repo.GetJob("job-claimed")
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusProcessing, stored.Status)
}

func TestRepository_MarkFailedStoresError(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	job := newJob("job-broken")
	require.NoError(t, repo.CreateJob(job))
	ok, err := repo.MarkProcessing("job-broken")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.MarkFailed("job-broken", "document is not valid OPML", "xml: unexpected EOF"))

	stored, err := repo.GetJob("job-broken")
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusFailed, stored.Status)
	assert.Equal(t, "document is not valid OPML", stored.ErrorMessage)
	assert.Equal(t, "xml: unexpected EOF", stored.ErrorDetails)
	assert.NotNil(t, stored.CompletedAt)
}

func TestRepository_AppendResultIsIdempotent(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	job := newJob("job-results")
	require.NoError(t, repo.CreateJob(job))

	first := &entities.ImportResult{
		JobID:    "job-results",
		ItemType: entities.ImportItemFeed,
		ItemName: "Hacker News",
		ItemURL:  "https://news.ycombinator.com/rss",
		Status:   entities.ImportResultCreated,
	}
	require.NoError(t, repo.AppendResult(first))

	// Same logical item again: no second row.
	again := &entities.ImportResult{
		JobID:    "job-results",
		ItemType: entities.ImportItemFeed,
		ItemName: "Hacker News",
		ItemURL:  "https://news.ycombinator.com/rss",
		Status:   entities.ImportResultFailed,
	}
	require.NoError(t, repo.AppendResult(again))
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, entities.ImportResultCreated, again.Status)

	// Same name, different type is a distinct item.
	category := &entities.ImportResult{
		JobID:    "job-results",
		ItemType: entities.ImportItemCategory,
		ItemName: "Hacker News",
		Status:   entities.ImportResultCreated,
	}
	require.NoError(t, repo.AppendResult(category))

	results, err := repo.ResultsForJob("job-results")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRepository_DeleteJobCascadesResults(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	job := newJob("job-gone")
	require.NoError(t, repo.CreateJob(job))
	require.NoError(t, repo.AppendResult(&entities.ImportResult{
		JobID:    "job-gone",
		ItemType: entities.ImportItemCategory,
		ItemName: "Tech",
		Status:   entities.ImportResultCreated,
	}))

	require.NoError(t, repo.DeleteJob("job-gone"))

	_, err := repo.GetJob("job-gone")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	results, err := repo.ResultsForJob("job-gone")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRepository_ListJobs(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.CreateJob(newJob(id)))
	}
	other := newJob("other-user")
	other.UserID = 2
	require.NoError(t, repo.CreateJob(other))

	jobs, err := repo.ListJobs(1)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}
