package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mkhomutov/feedkeeper/internal/database/subscriptions"
	"github.com/mkhomutov/feedkeeper/internal/entities"
	"github.com/mkhomutov/feedkeeper/internal/opml"
)

func setupStore(t *testing.T) *subscriptions.Repository {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entities.Category{}, &entities.Feed{}))
	return subscriptions.NewRepository(db)
}

func seedExisting(t *testing.T, store *subscriptions.Repository) {
	tech := &entities.Category{UserID: 1, Name: "Tech"}
	require.NoError(t, store.CreateCategory(tech))
	sub := &entities.Category{UserID: 1, Name: "Go", ParentID: &tech.ID}
	require.NoError(t, store.CreateCategory(sub))

	require.NoError(t, store.CreateFeed(&entities.Feed{
		UserID:     1,
		CategoryID: &tech.ID,
		Title:      "Hacker News",
		FeedURL:    "https://news.ycombinator.com/rss",
	}))
}

func loadedResolver(t *testing.T, store *subscriptions.Repository) *Resolver {
	r := NewResolver(store, 1, entities.DuplicateStrategySkip, false)
	require.NoError(t, r.LoadExistingData())
	return r
}

func TestResolver_CategoryDuplicates(t *testing.T) {
	store := setupStore(t)
	seedExisting(t, store)
	r := loadedResolver(t, store)

	categories := []*opml.Category{
		{Name: "tech", Path: []string{"tech"}},          // existing, case differs
		{Name: "Go", Path: []string{"Tech", "Go"}},      // existing nested
		{Name: "News", Path: []string{"News"}},          // new
		{Name: "Go", Path: []string{"Go"}},              // same leaf, different path: new
		{Name: "News", Path: []string{"News"}},          // repeat within document
	}

	matches := r.DetectCategoryDuplicates(categories)

	require.Contains(t, matches, 0)
	require.NotNil(t, matches[0].Existing)
	assert.Equal(t, "Tech", matches[0].Existing.Name)
	assert.False(t, matches[0].WithinBatch)

	require.Contains(t, matches, 1)
	require.NotNil(t, matches[1].Existing)
	assert.Equal(t, "Go", matches[1].Existing.Name)

	assert.NotContains(t, matches, 2)
	assert.NotContains(t, matches, 3, "same leaf under a different parent is a distinct category")

	require.Contains(t, matches, 4)
	assert.True(t, matches[4].WithinBatch)
	assert.Equal(t, 2, matches[4].FirstIndex)

	unique := r.UniqueCategories(categories)
	require.Len(t, unique, 2)
	assert.Equal(t, []string{"News"}, unique[0].Path)
	assert.Equal(t, []string{"Go"}, unique[1].Path)
}

func TestResolver_FeedDuplicatesByNormalizedURL(t *testing.T) {
	store := setupStore(t)
	seedExisting(t, store)
	r := loadedResolver(t, store)

	feeds := []opml.Feed{
		// Existing subscription in a different scheme with a query string.
		{Title: "HN Mirror", FeedURL: "http://news.ycombinator.com/rss?fmt=xml"},
		{Title: "Go Blog", FeedURL: "https://go.dev/blog/feed.atom"},
		// Same URL as index 1 modulo trailing slash: within-batch duplicate.
		{Title: "Go Blog Again", FeedURL: "https://go.dev/blog/feed.atom/"},
	}

	matches := r.DetectFeedDuplicates(feeds)

	require.Contains(t, matches, 0)
	require.NotNil(t, matches[0].Existing)
	assert.Equal(t, "Hacker News", matches[0].Existing.Title)
	assert.False(t, matches[0].WithinBatch)

	assert.NotContains(t, matches, 1)

	require.Contains(t, matches, 2)
	assert.True(t, matches[2].WithinBatch)
	assert.Equal(t, 1, matches[2].FirstIndex)

	unique := r.UniqueFeeds(feeds)
	require.Len(t, unique, 1)
	assert.Equal(t, "Go Blog", unique[0].Title)
}

func TestResolver_TitleMatchAloneIsNotADuplicate(t *testing.T) {
	store := setupStore(t)
	seedExisting(t, store)
	r := loadedResolver(t, store)

	feeds := []opml.Feed{
		// Same title as the existing subscription, different source.
		{Title: "Hacker News", FeedURL: "https://hnrss.org/frontpage"},
	}

	matches := r.DetectFeedDuplicates(feeds)
	assert.Empty(t, matches)
	assert.Len(t, r.UniqueFeeds(feeds), 1)
}

func TestResolver_ScopedToUser(t *testing.T) {
	store := setupStore(t)
	seedExisting(t, store)

	// User 2 has no subscriptions, so nothing matches.
	r := NewResolver(store, 2, entities.DuplicateStrategySkip, false)
	require.NoError(t, r.LoadExistingData())

	feeds := []opml.Feed{{Title: "HN", FeedURL: "https://news.ycombinator.com/rss"}}
	assert.Empty(t, r.DetectFeedDuplicates(feeds))

	categories := []*opml.Category{{Name: "Tech", Path: []string{"Tech"}}}
	assert.Empty(t, r.DetectCategoryDuplicates(categories))
}

func TestResolver_ExistingCategoryLookup(t *testing.T) {
	store := setupStore(t)
	seedExisting(t, store)
	r := loadedResolver(t, store)

	cat := r.ExistingCategory([]string{"tech", "go"})
	require.NotNil(t, cat)
	assert.Equal(t, "Go", cat.Name)

	assert.Nil(t, r.ExistingCategory([]string{"Go"}))
}
