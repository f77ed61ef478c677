package entities

import "time"

// FeedValidationCache stores the outcome of validating a single feed URL.
// Entries are shared across jobs; an entry past ExpiresAt is treated as
// absent and the URL is re-validated.
type FeedValidationCache struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	URLKey       string    `gorm:"uniqueIndex;size:2048" json:"url_key"` // normalized feed URL
	Valid        bool      `json:"valid"`
	FinalURL     string    `gorm:"size:2048" json:"final_url,omitempty"` // after redirects
	Title        string    `gorm:"size:512" json:"title,omitempty"`
	Description  string    `gorm:"type:text" json:"description,omitempty"`
	FeedFormat   string    `gorm:"size:20" json:"feed_format,omitempty"`
	ErrorCode    string    `gorm:"size:50" json:"error_code,omitempty"`
	ErrorMessage string    `gorm:"size:500" json:"error_message,omitempty"`
	ValidatedAt  time.Time `json:"validated_at"`
	ExpiresAt    time.Time `gorm:"index" json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e *FeedValidationCache) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

func (FeedValidationCache) TableName() string {
	return "feed_validation_cache"
}
