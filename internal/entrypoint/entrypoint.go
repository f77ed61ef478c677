package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mkhomutov/feedkeeper/internal/audit"
	"github.com/mkhomutov/feedkeeper/internal/config"
	"github.com/mkhomutov/feedkeeper/internal/database"
	auditrepo "github.com/mkhomutov/feedkeeper/internal/database/audit"
	importsrepo "github.com/mkhomutov/feedkeeper/internal/database/imports"
	subsrepo "github.com/mkhomutov/feedkeeper/internal/database/subscriptions"
	validationrepo "github.com/mkhomutov/feedkeeper/internal/database/validation"
	http_controllers "github.com/mkhomutov/feedkeeper/internal/http"
	"github.com/mkhomutov/feedkeeper/internal/importer"
	"github.com/mkhomutov/feedkeeper/internal/jobs"
	"github.com/mkhomutov/feedkeeper/internal/scheduler"
	"github.com/mkhomutov/feedkeeper/internal/tasks"
	"github.com/mkhomutov/feedkeeper/internal/validator"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for interrupt before shutting down with the configured timeout.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background workers before the listener so in-flight jobs can
	// persist their state.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting feedkeeper v%s", version)

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	importsRepo := importsrepo.NewRepository(db.DB)
	subscriptionsRepo := subsrepo.NewRepository(db.DB)
	validationRepo := validationrepo.NewRepository(db.DB)
	auditRepo := auditrepo.NewRepository(db.DB)
	auditService := audit.NewService(auditRepo)

	feedValidator := validator.New(validationRepo, validator.Config{
		Workers:      cfg.Validator.Workers,
		FetchTimeout: cfg.Validator.FetchTimeout,
		CacheTTL:     cfg.Validator.CacheTTL,
		MaxRedirects: cfg.Validator.MaxRedirects,
		UserAgent:    cfg.Validator.UserAgent,
	})

	registry := jobs.NewRegistry(
		importsRepo,
		subscriptionsRepo,
		feedValidator,
		nil,
		auditService,
		importer.Config{ValidationBatchSize: cfg.Imports.ValidationBatchSize},
	)

	// Initialize the task queue if enabled; fall back to plain goroutines
	// otherwise.
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	var maintenance *scheduler.MaintenanceScheduler
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:           cfg.Tasks.Workers,
			MaxRetries:        cfg.Tasks.MaxRetries,
			RetryDelay:        cfg.Tasks.RetryDelay,
			ImportTimeout:     cfg.Tasks.ImportTimeout,
			ReleaseAfter:      cfg.Tasks.ReleaseAfter,
			CleanupInterval:   cfg.Tasks.CleanupInterval,
			RetentionDuration: cfg.Tasks.RetentionDuration,
		}

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewImportOPMLQueue(registry),
			tasks.NewPurgeValidationCacheQueue(validationRepo),
			tasks.NewCleanupAuditEventsQueue(auditRepo),
		)
		registry.SetEnqueuer(taskClient)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)

		maintenance = scheduler.NewMaintenanceScheduler(taskClient, cfg.CachePurge.Schedule, cfg.Audit.RetentionDays)
		if err := maintenance.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start maintenance scheduler: %v", err)
		}
	} else {
		log.Printf("Task queue disabled, imports will run on in-process goroutines")
		registry.SetEnqueuer(jobs.NewAsyncRunner(registry))
	}

	routerCfg := http_controllers.RouterConfig{
		Database:       db,
		Registry:       registry,
		Subscriptions:  subscriptionsRepo,
		MaxUploadBytes: cfg.Imports.MaxUploadBytes,
		Version:        version,
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if maintenance != nil {
			maintenance.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}
