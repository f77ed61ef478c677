package entities

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;size:100" json:"username"`
	Email     string         `gorm:"uniqueIndex;size:255" json:"email"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// Category groups feed subscriptions. Categories nest via ParentID; a
// category's identity is its full path from the root, so two categories may
// share a leaf name under different parents.
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Name      string    `gorm:"index;size:256" json:"name"`
	ParentID  *uint     `gorm:"index" json:"parent_id,omitempty"`
	Parent    *Category `gorm:"foreignKey:ParentID" json:"-"`
	User      User      `gorm:"foreignKey:UserID" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Feed is a user's subscription to a single feed source.
type Feed struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index" json:"user_id"`
	CategoryID  *uint     `gorm:"index" json:"category_id,omitempty"`
	Category    *Category `gorm:"foreignKey:CategoryID" json:"-"`
	Title       string    `gorm:"size:512" json:"title"`
	FeedURL     string    `gorm:"index;size:2048" json:"feed_url"`
	SiteURL     string    `gorm:"size:2048" json:"site_url,omitempty"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	FeedFormat  string    `gorm:"size:20" json:"feed_format,omitempty"` // rss, atom, json

	// Import provenance: set when the feed was created by an OPML import.
	ImportJobID *string `gorm:"index;size:36" json:"import_job_id,omitempty"`

	User      User      `gorm:"foreignKey:UserID" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (Category) TableName() string {
	return "categories"
}

func (Feed) TableName() string {
	return "feeds"
}
