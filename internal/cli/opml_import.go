package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mkhomutov/feedkeeper/internal/config"
	"github.com/mkhomutov/feedkeeper/internal/database"
	importsrepo "github.com/mkhomutov/feedkeeper/internal/database/imports"
	subsrepo "github.com/mkhomutov/feedkeeper/internal/database/subscriptions"
	validationrepo "github.com/mkhomutov/feedkeeper/internal/database/validation"
	"github.com/mkhomutov/feedkeeper/internal/dedup"
	"github.com/mkhomutov/feedkeeper/internal/entities"
	"github.com/mkhomutov/feedkeeper/internal/importer"
	"github.com/mkhomutov/feedkeeper/internal/jobs"
	"github.com/mkhomutov/feedkeeper/internal/opml"
	"github.com/mkhomutov/feedkeeper/internal/validator"
)

// OPMLImportCommand imports a subscription list file straight into the
// local database, without going through the HTTP server.
type OPMLImportCommand struct {
	FilePath      string
	DatabasePath  string
	ValidateFeeds bool
	Verbose       bool
	DryRun        bool
}

func NewOPMLImportCommand() *OPMLImportCommand {
	return &OPMLImportCommand{}
}

func (cmd *OPMLImportCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("opml-import", flag.ExitOnError)

	fs.StringVar(&cmd.FilePath, "file", "", "Path to the OPML subscription list (required)")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the local database file")
	fs.BoolVar(&cmd.ValidateFeeds, "validate", false, "Fetch each feed URL and verify it serves a parseable feed")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&cmd.DryRun, "dry-run", false, "Show what would be imported without making changes")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s opml-import -file <path> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Import feed subscriptions from an OPML file exported by another reader.\n\n")
		fmt.Fprintf(os.Stderr, "Categories are derived from the outline nesting; feeds already present\n")
		fmt.Fprintf(os.Stderr, "in the database (matched by URL) are skipped.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Import a Feedly export:\n")
		fmt.Fprintf(os.Stderr, "  %s opml-import -file feedly.opml\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Preview without writing anything:\n")
		fmt.Fprintf(os.Stderr, "  %s opml-import -file feedly.opml -dry-run\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.FilePath == "" {
		return fmt.Errorf("required flag -file not provided")
	}

	return nil
}

func (cmd *OPMLImportCommand) Run() error {
	fmt.Println("OPML Import")
	fmt.Println("===========")

	if cmd.DryRun {
		fmt.Println("DRY RUN MODE - No changes will be made")
		fmt.Println()
	}

	document, err := os.ReadFile(cmd.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read subscription list: %w", err)
	}
	fmt.Printf("File: %s (%d bytes)\n", cmd.FilePath, len(document))

	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if cmd.DryRun {
		return cmd.preview(db, document)
	}

	importsRepo := importsrepo.NewRepository(db.DB)
	subscriptionsRepo := subsrepo.NewRepository(db.DB)

	var batchValidator importer.BatchValidator
	if cmd.ValidateFeeds {
		batchValidator = validator.New(validationrepo.NewRepository(db.DB), validator.DefaultConfig())
	}

	registry := jobs.NewRegistry(importsRepo, subscriptionsRepo, batchValidator, nil, nil, importer.Config{})
	registry.SetEnqueuer(&syncRunner{registry: registry})

	job, err := registry.Create(database.DefaultUserID, cmd.FilePath, document, jobs.Options{
		ValidateFeeds: cmd.ValidateFeeds,
	})
	if err != nil {
		return err
	}

	// The synchronous runner finished the job inside Create; reload for
	// the final counters.
	job, err = registry.Get(job.ID)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Status:             %s\n", job.Status)
	fmt.Printf("Categories created: %d\n", job.CategoriesCreated)
	fmt.Printf("Feeds imported:     %d\n", job.FeedsImported)
	fmt.Printf("Duplicates skipped: %d\n", job.DuplicatesFound)
	fmt.Printf("Feeds failed:       %d\n", job.FeedsFailed)

	if job.Status == entities.ImportStatusFailed {
		return fmt.Errorf("import failed: %s", job.ErrorMessage)
	}

	if cmd.Verbose {
		results, err := registry.Results(job.ID)
		if err != nil {
			return err
		}
		fmt.Println()
		for _, res := range results {
			line := fmt.Sprintf("  [%s] %s %q", res.Status, res.ItemType, res.ItemName)
			if res.ErrorMessage != "" {
				line += " - " + res.ErrorMessage
			}
			fmt.Println(line)
		}
	}

	return nil
}

// preview parses the document and reports what the import would do.
func (cmd *OPMLImportCommand) preview(db *database.Database, document []byte) error {
	doc, err := opml.Parse(document)
	if err != nil {
		return fmt.Errorf("document is not a valid subscription list: %w", err)
	}

	resolver := dedup.NewResolver(subsrepo.NewRepository(db.DB), database.DefaultUserID, entities.DuplicateStrategySkip, false)
	if err := resolver.LoadExistingData(); err != nil {
		return err
	}

	categories := doc.FlattenCategories()
	newCategories := resolver.UniqueCategories(categories)
	newFeeds := resolver.UniqueFeeds(doc.Feeds)

	fmt.Println()
	fmt.Printf("Document contains %d categories and %d feeds.\n", len(categories), len(doc.Feeds))
	fmt.Printf("Would create %d categories and %d feeds; %d duplicates would be skipped.\n",
		len(newCategories), len(newFeeds),
		(len(categories)-len(newCategories))+(len(doc.Feeds)-len(newFeeds)))

	if cmd.Verbose {
		fmt.Println()
		for _, cat := range newCategories {
			fmt.Printf("  + category %s\n", strings.Join(cat.Path, "/"))
		}
		for _, feed := range newFeeds {
			fmt.Printf("  + feed %q (%s)\n", feed.Title, feed.FeedURL)
		}
	}

	return nil
}

// syncRunner executes the job inline so the command blocks until done.
type syncRunner struct {
	registry *jobs.Registry
}

func (r *syncRunner) EnqueueImport(jobID string, document []byte) error {
	return r.registry.Execute(context.Background(), jobID, document)
}
