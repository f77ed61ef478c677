package subscriptions

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

	err = db.AutoMigrate(&entities.Category{}, &entities.Feed{})
	require.NoError(t, err)

	return db
}

func TestRepository_CreateAndListCategories(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	tech := &entities.Category{UserID: 1, Name: "Tech"}
	require.NoError(t, repo.CreateCategory(tech))
	assert.NotZero(t, tech.ID)

	sub := &entities.Category{UserID: 1, Name: "Go", ParentID: &tech.ID}
	require.NoError(t, repo.CreateCategory(sub))

	other := &entities.Category{UserID: 2, Name: "Tech"}
	require.NoError(t, repo.CreateCategory(other))

	categories, err := repo.CategoriesByUser(1)
	require.NoError(t, err)
	assert.Len(t, categories, 2)
}

func TestRepository_CategoryPaths(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	root := &entities.Category{UserID: 1, Name: "News"}
	require.NoError(t, repo.CreateCategory(root))
	mid := &entities.Category{UserID: 1, Name: "World", ParentID: &root.ID}
	require.NoError(t, repo.CreateCategory(mid))
	leaf := &entities.Category{UserID: 1, Name: "Europe", ParentID: &mid.ID}
	require.NoError(t, repo.CreateCategory(leaf))

	paths, err := repo.CategoryPaths(1)
	require.NoError(t, err)

	assert.Equal(t, []string{"News"}, paths[root.ID])
	assert.Equal(t, []string{"News", "World"}, paths[mid.ID])
	assert.Equal(t, []string{"News", "World", "Europe"}, paths[leaf.ID])
}

func TestRepository_CreateAndListFeeds(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	jobID := "job-1"
	feed := &entities.Feed{
		UserID:      1,
		Title:       "Hacker News",
		FeedURL:     "https://news.ycombinator.com/rss",
		SiteURL:     "https://news.ycombinator.com",
		ImportJobID: &jobID,
	}
	require.NoError(t, repo.CreateFeed(feed))
	assert.NotZero(t, feed.ID)

	feeds, err := repo.FeedsByUser(1)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "Hacker News", feeds[0].Title)
	require.NotNil(t, feeds[0].ImportJobID)
	assert.Equal(t, "job-1", *feeds[0].ImportJobID)

	feeds, err = repo.FeedsByUser(2)
	require.NoError(t, err)
	assert.Empty(t, feeds)
}
