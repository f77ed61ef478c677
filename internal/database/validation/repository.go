package validation

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mkhomutov/feedkeeper/internal/entities"
)

// Repository persists feed validation outcomes keyed by normalized URL.
// The cache is job-agnostic: every import shares it.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Lookup returns the live cache entry for the key, or nil when the key is
// unknown or the entry has expired. Expired entries are treated as absent.
func (r *Repository) Lookup(urlKey string) (*entities.FeedValidationCache, error) {
	var entry entities.FeedValidationCache
	err := r.db.Where("url_key = ?", urlKey).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if entry.Expired(time.Now()) {
		return nil, nil
	}
	return &entry, nil
}

// Save upserts the entry for its URL key. Concurrent jobs validating the
// same URL both land on the single row.
func (r *Repository) Save(entry *entities.FeedValidationCache) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "url_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"valid", "final_url", "title", "description", "feed_format",
			"error_code", "error_message", "validated_at", "expires_at",
		}),
	}).Create(entry).Error
}

// DeleteExpired purges entries past their TTL. Returns the number removed.
func (r *Repository) DeleteExpired(now time.Time) (int64, error) {
	result := r.db.Where("expires_at <= ?", now).Delete(&entities.FeedValidationCache{})
	return result.RowsAffected, result.Error
}
