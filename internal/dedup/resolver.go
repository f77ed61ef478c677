package dedup

import (
	"fmt"

	"github.com/mkhomutov/feedkeeper/internal/entities"
	"github.com/mkhomutov/feedkeeper/internal/opml"
	"github.com/mkhomutov/feedkeeper/internal/utils"
)

// SubscriptionStore is the slice of the persistence layer the resolver
// reads. It never writes.
type SubscriptionStore interface {
	CategoriesByUser(userID uint) ([]entities.Category, error)
	CategoryPaths(userID uint) (map[uint][]string, error)
	FeedsByUser(userID uint) ([]entities.Feed, error)
}

// CategoryMatch classifies one parsed category as a duplicate. Existing is
// set for duplicates of already-persisted categories; WithinBatch marks a
// later occurrence of a path already seen in the same document.
type CategoryMatch struct {
	Existing    *entities.Category
	WithinBatch bool
	FirstIndex  int
}

// FeedMatch is the feed counterpart of CategoryMatch.
type FeedMatch struct {
	Existing    *entities.Feed
	WithinBatch bool
	FirstIndex  int
}

// Resolver classifies parsed categories and feeds against the user's
// existing subscriptions and against the submitted document itself. It is
// constructed per job and works from a one-time snapshot: changes made by
// concurrent jobs after LoadExistingData are not observed.
type Resolver struct {
	store           SubscriptionStore
	userID          uint
	strategy        entities.DuplicateStrategy
	mergeCategories bool

	existingCategories map[string]entities.Category // by case-insensitive path key
	existingFeeds      map[string]entities.Feed     // by normalized feed URL
	loaded             bool
}

func NewResolver(store SubscriptionStore, userID uint, strategy entities.DuplicateStrategy, mergeCategories bool) *Resolver {
	return &Resolver{
		store:           store,
		userID:          userID,
		strategy:        strategy,
		mergeCategories: mergeCategories,
	}
}

// LoadExistingData snapshots the user's categories and feeds into memory.
// Must be called before any Detect method.
func (r *Resolver) LoadExistingData() error {
	categories, err := r.store.CategoriesByUser(r.userID)
	if err != nil {
		return fmt.Errorf("load existing categories: %w", err)
	}
	paths, err := r.store.CategoryPaths(r.userID)
	if err != nil {
		return fmt.Errorf("load category paths: %w", err)
	}
	feeds, err := r.store.FeedsByUser(r.userID)
	if err != nil {
		return fmt.Errorf("load existing feeds: %w", err)
	}

	r.existingCategories = make(map[string]entities.Category, len(categories))
	for _, cat := range categories {
		r.existingCategories[opml.PathKey(paths[cat.ID])] = cat
	}

	r.existingFeeds = make(map[string]entities.Feed, len(feeds))
	for _, feed := range feeds {
		key := utils.NormalizeFeedURL(feed.FeedURL)
		if _, taken := r.existingFeeds[key]; !taken {
			r.existingFeeds[key] = feed
		}
	}

	r.loaded = true
	return nil
}

// DetectCategoryDuplicates maps the index of each duplicate category to its
// match. Categories match existing ones by exact case-insensitive path;
// repeated paths inside the document collapse to the first occurrence.
// Indices absent from the map are new.
func (r *Resolver) DetectCategoryDuplicates(categories []*opml.Category) map[int]CategoryMatch {
	matches := make(map[int]CategoryMatch)
	seen := make(map[string]int)

	for i, cat := range categories {
		key := opml.PathKey(cat.Path)
		if first, dup := seen[key]; dup {
			matches[i] = CategoryMatch{WithinBatch: true, FirstIndex: first}
			continue
		}
		seen[key] = i
		if existing, ok := r.existingCategories[key]; ok {
			e := existing
			matches[i] = CategoryMatch{Existing: &e, FirstIndex: i}
		}
	}
	return matches
}

// DetectFeedDuplicates maps the index of each duplicate feed to its match.
// Feeds match by normalized URL only; a shared title is never sufficient,
// since two different feeds can carry the same name. Indices absent from
// the map are new.
func (r *Resolver) DetectFeedDuplicates(feeds []opml.Feed) map[int]FeedMatch {
	matches := make(map[int]FeedMatch)
	seen := make(map[string]int)

	for i, feed := range feeds {
		key := utils.NormalizeFeedURL(feed.FeedURL)
		if first, dup := seen[key]; dup {
			matches[i] = FeedMatch{WithinBatch: true, FirstIndex: first}
			continue
		}
		seen[key] = i
		if existing, ok := r.existingFeeds[key]; ok {
			e := existing
			matches[i] = FeedMatch{Existing: &e, FirstIndex: i}
		}
	}
	return matches
}

// UniqueCategories returns the subset eligible for creation: not matched
// against existing data and not a repeat within the batch.
func (r *Resolver) UniqueCategories(categories []*opml.Category) []*opml.Category {
	matches := r.DetectCategoryDuplicates(categories)
	unique := make([]*opml.Category, 0, len(categories))
	for i, cat := range categories {
		if _, dup := matches[i]; !dup {
			unique = append(unique, cat)
		}
	}
	return unique
}

// UniqueFeeds returns the subset of feeds eligible for creation.
func (r *Resolver) UniqueFeeds(feeds []opml.Feed) []opml.Feed {
	matches := r.DetectFeedDuplicates(feeds)
	unique := make([]opml.Feed, 0, len(feeds))
	for i, feed := range feeds {
		if _, dup := matches[i]; !dup {
			unique = append(unique, feed)
		}
	}
	return unique
}

// ExistingCategory returns the snapshot category for a path, when present.
func (r *Resolver) ExistingCategory(path []string) *entities.Category {
	if existing, ok := r.existingCategories[opml.PathKey(path)]; ok {
		e := existing
		return &e
	}
	return nil
}
