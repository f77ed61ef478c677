package http

import (
	"github.com/mkhomutov/feedkeeper/internal/database"
	"github.com/mkhomutov/feedkeeper/internal/database/subscriptions"
	"github.com/mkhomutov/feedkeeper/internal/jobs"
)

// RouterConfig contains all dependencies and configuration needed to
// create the HTTP router. This replaces a long parameter list in
// NewRouter for better maintainability.
type RouterConfig struct {
	// Core dependencies
	Database      *database.Database
	Registry      *jobs.Registry
	Subscriptions *subscriptions.Repository

	// Upload limits
	MaxUploadBytes int64

	// Application info
	Version string
}
