package entities

import "time"

type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
	ImportStatusCancelled  ImportStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ImportStatus) IsTerminal() bool {
	switch s {
	case ImportStatusCompleted, ImportStatusFailed, ImportStatusCancelled:
		return true
	}
	return false
}

type ImportPhase string

const (
	ImportPhaseParsing             ImportPhase = "parsing"
	ImportPhaseValidatingFeeds     ImportPhase = "validating_feeds"
	ImportPhaseDetectingDuplicates ImportPhase = "detecting_duplicates"
	ImportPhaseCreatingCategories  ImportPhase = "creating_categories"
	ImportPhaseImportingFeeds      ImportPhase = "importing_feeds"
	ImportPhaseCleanup             ImportPhase = "cleanup"
)

type DuplicateStrategy string

const (
	// DuplicateStrategySkip records duplicates as results and creates nothing.
	DuplicateStrategySkip DuplicateStrategy = "skip"
	// DuplicateStrategyMerge is declared but not implemented; job creation
	// rejects it until merge conflict resolution is specified.
	DuplicateStrategyMerge DuplicateStrategy = "merge"
)

// ImportJob tracks one submitted OPML document through the import pipeline.
// The job is mutated only by the orchestrator while processing and becomes
// immutable once it reaches a terminal status.
type ImportJob struct {
	ID                string            `gorm:"primaryKey;size:36" json:"id"`
	UserID            uint              `gorm:"index" json:"user_id"`
	Filename          string            `gorm:"size:512" json:"filename"`
	FileSize          int64             `json:"file_size"`
	Status            ImportStatus      `gorm:"size:20;index;default:'pending'" json:"status"`
	DuplicateStrategy DuplicateStrategy `gorm:"size:20;default:'skip'" json:"duplicate_strategy"`
	CategoryParentID  *uint             `json:"category_parent_id,omitempty"`
	ValidateFeeds     bool              `json:"validate_feeds"`

	TotalSteps   int         `json:"total_steps"`
	CurrentStep  int         `json:"current_step"`
	CurrentPhase ImportPhase `gorm:"size:40" json:"current_phase,omitempty"`

	CategoriesCreated int `json:"categories_created"`
	FeedsImported     int `json:"feeds_imported"`
	FeedsFailed       int `json:"feeds_failed"`
	DuplicatesFound   int `json:"duplicates_found"`

	ErrorMessage string `gorm:"size:500" json:"error_message,omitempty"`
	ErrorDetails string `gorm:"type:text" json:"error_details,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Results []ImportResult `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"results,omitempty"`
	User    User           `gorm:"foreignKey:UserID" json:"-"`
}

// ProgressPercentage derives overall progress from step counters. Before
// parsing fixes TotalSteps it reports zero.
func (j *ImportJob) ProgressPercentage() float64 {
	if j.TotalSteps <= 0 {
		return 0
	}
	pct := float64(j.CurrentStep) / float64(j.TotalSteps) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

type ImportItemType string

const (
	ImportItemCategory ImportItemType = "category"
	ImportItemFeed     ImportItemType = "feed"
)

type ImportResultStatus string

const (
	ImportResultCreated   ImportResultStatus = "created"
	ImportResultDuplicate ImportResultStatus = "duplicate"
	ImportResultFailed    ImportResultStatus = "failed"
)

// ImportResult is the audit row for one category or feed processed by a job.
// The unique index makes re-processing the same logical item idempotent.
type ImportResult struct {
	ID       uint           `gorm:"primaryKey" json:"id"`
	JobID    string         `gorm:"size:36;uniqueIndex:idx_import_results_item,priority:1" json:"job_id"`
	ItemType ImportItemType `gorm:"size:20;uniqueIndex:idx_import_results_item,priority:2" json:"item_type"`
	ItemName string         `gorm:"size:512;uniqueIndex:idx_import_results_item,priority:3" json:"item_name"`
	ItemURL  string         `gorm:"size:2048;uniqueIndex:idx_import_results_item,priority:4" json:"item_url,omitempty"`

	Status       ImportResultStatus `gorm:"size:20" json:"status"`
	ErrorCode    string             `gorm:"size:50" json:"error_code,omitempty"`
	ErrorMessage string             `gorm:"size:500" json:"error_message,omitempty"`

	// EntityID references the created category or feed; DuplicateOfID the
	// pre-existing entity when the item was classified as a duplicate.
	EntityID      *uint `json:"entity_id,omitempty"`
	DuplicateOfID *uint `json:"duplicate_of_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (ImportJob) TableName() string {
	return "import_jobs"
}

func (ImportResult) TableName() string {
	return "import_results"
}
