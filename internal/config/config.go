package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Database
		Global
		Tasks
		Validator
		Imports
		Audit
		CachePurge
	}

	HTTP struct {
		Port int32
		Host string
	}
	Database struct {
		Path string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Tasks struct {
		Enabled           bool
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		ImportTimeout     time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
	Validator struct {
		Workers      int
		FetchTimeout time.Duration
		CacheTTL     time.Duration
		MaxRedirects int
		UserAgent    string
	}
	Imports struct {
		ValidationBatchSize int
		MaxUploadBytes      int64
	}
	Audit struct {
		RetentionDays int // Days to keep audit events (default: 30)
	}
	CachePurge struct {
		Schedule string // Cron format: "0 3 * * *" = nightly. Blank disables.
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8199)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("audit_retention_days", 30)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 2)
	v.SetDefault("task_retry_delay", "30s")
	v.SetDefault("task_import_timeout", "10m")
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	// Feed validation defaults
	v.SetDefault("validator_workers", 5)
	v.SetDefault("validator_fetch_timeout", "15s")
	v.SetDefault("validator_cache_ttl", "1h")
	v.SetDefault("validator_max_redirects", 5)
	v.SetDefault("validator_user_agent", DefaultUserAgent)

	// Import pipeline defaults
	v.SetDefault("import_validation_batch_size", 25)
	v.SetDefault("import_max_upload_bytes", DefaultMaxUploadBytes)

	// Validation cache purge defaults
	v.SetDefault("cache_purge_schedule", "0 3 * * *")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			ImportTimeout:     v.GetDuration("TASK_IMPORT_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Validator: Validator{
			Workers:      v.GetInt("VALIDATOR_WORKERS"),
			FetchTimeout: v.GetDuration("VALIDATOR_FETCH_TIMEOUT"),
			CacheTTL:     v.GetDuration("VALIDATOR_CACHE_TTL"),
			MaxRedirects: v.GetInt("VALIDATOR_MAX_REDIRECTS"),
			UserAgent:    v.GetString("VALIDATOR_USER_AGENT"),
		},
		Imports: Imports{
			ValidationBatchSize: v.GetInt("IMPORT_VALIDATION_BATCH_SIZE"),
			MaxUploadBytes:      v.GetInt64("IMPORT_MAX_UPLOAD_BYTES"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		CachePurge: CachePurge{
			Schedule: v.GetString("CACHE_PURGE_SCHEDULE"),
		},
	}
}
