package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/lepinkainen/shelfsource/cmd/goodreads"
	"github.com/lepinkainen/shelfsource/internal/cache"
	"github.com/lepinkainen/shelfsource/internal/config"
	shelferrors "github.com/lepinkainen/shelfsource/internal/errors"
	"github.com/spf13/viper"
)

var importShelves = goodreads.ImportShelvesWithParams

// CLI represents the complete command structure for the shelfsource application
type CLI struct {
	// Global flags
	Overwrite    bool `help:"Overwrite existing markdown and JSON files when processing"`
	UpdateCovers bool `help:"Re-download cover images even if they already exist"`
	Verbose      bool `short:"v" help:"Enable debug logging"`

	// Local datastore flags
	Datastore   bool   `help:"Enable the local SQLite datastore" default:"true" negatable:""`
	DatastoreDB string `help:"Path to the datastore SQLite file" default:"./shelfsource.db"`

	// Remote Datasette flags
	DatasetteURL   string `help:"Base URL of a remote Datasette instance to forward records to"`
	DatasetteToken string `help:"API token for the remote Datasette instance" env:"DATASETTE_TOKEN"`

	// Cache flags
	CacheDBFile string `help:"Path to cache SQLite database file" default:"./cache.db"`
	CacheTTL    string `help:"Cache time-to-live duration (e.g., 720h for 30 days)" default:"720h"`

	Import ImportCmd `cmd:"" help:"Import shelves from a reading site"`
	Cache  CacheCmd  `cmd:"" help:"Manage the cover cache"`
}

// ImportCmd represents the import command and its subcommands
type ImportCmd struct {
	Goodreads GoodreadsCmd `cmd:"" help:"Import books from public Goodreads shelves"`
}

// CacheCmd groups the cache maintenance subcommands
type CacheCmd struct {
	Invalidate cache.InvalidateCacheCmd `cmd:"" help:"Delete every entry of a cache source"`
	Prune      cache.PruneCacheCmd      `cmd:"" help:"Delete cache entries older than the cache TTL"`
}

// GoodreadsCmd represents the goodreads import command
type GoodreadsCmd struct {
	UserID    string   `short:"u" help:"Goodreads user ID whose shelves are imported"`
	Shelf     []string `short:"s" help:"Shelf to import, repeat for several (defaults to goodreads.shelves)"`
	Transport string   `help:"Page transport: http or browser"`

	Output     string `short:"o" help:"Subdirectory under markdown output directory for Goodreads files" default:"goodreads"`
	Markdown   bool   `help:"Write one markdown note per book" default:"true" negatable:""`
	JSON       bool   `help:"Write data to JSON format"`
	JSONOutput string `help:"Path to JSON output file (defaults to json/goodreads.json)"`

	ShelfPolicy    string `help:"What to do when a shelf fails to load: abort or continue"`
	CoverPolicy    string `help:"What to do when a cover fails to resolve: fail-fast or best-effort"`
	IdentityPolicy string `help:"How book node IDs are derived: isbn or isbn-shelf"`

	CoverConcurrency int `help:"Number of covers resolved in parallel"`
	CoverMaxWidth    int `help:"Resize downloaded covers to at most this width (0 keeps the original)"`
}

// Execute runs the Kong-based CLI
func Execute() {
	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("shelfsource"),
		kong.Description("Import Goodreads shelves into a local datastore, markdown notes and JSON."),
		kong.UsageOnError(),
	)

	initLogging(cli.Verbose)
	initConfig()
	updateGlobalConfig(&cli)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx.BindTo(runCtx, (*context.Context)(nil))

	if err := ctx.Run(); err != nil {
		slog.Error("Command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	config.SetDefaults()

	viper.AutomaticEnv()
	if err := viper.BindEnv("goodreads.userid", "GOODREADS_USER_ID"); err != nil {
		slog.Error("Failed to bind environment variable", "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("Config file not found, writing default config file")
			if err := viper.SafeWriteConfig(); err != nil {
				slog.Warn("Error writing config file", "error", err)
			}
		} else {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
	}

	config.InitConfig()
}

func updateGlobalConfig(cli *CLI) {
	config.SetOverwriteFiles(cli.Overwrite)
	config.SetUpdateCovers(cli.UpdateCovers)

	viper.Set("datastore.enabled", cli.Datastore)
	viper.Set("datastore.dbfile", cli.DatastoreDB)

	if cli.DatasetteURL != "" {
		viper.Set("datasette.url", cli.DatasetteURL)
	}
	if cli.DatasetteToken != "" {
		viper.Set("datasette.token", cli.DatasetteToken)
	}

	viper.Set("cache.dbfile", cli.CacheDBFile)
	viper.Set("cache.ttl", cli.CacheTTL)
}

// Run imports the requested shelves
func (g *GoodreadsCmd) Run(ctx context.Context) error {
	report, err := importShelves(ctx, goodreads.ImportParams{
		UserID:           g.UserID,
		Shelves:          g.Shelf,
		Transport:        g.Transport,
		OutputDir:        g.Output,
		WriteMarkdown:    g.Markdown,
		WriteJSON:        g.JSON,
		JSONOutput:       g.JSONOutput,
		ShelfPolicy:      g.ShelfPolicy,
		CoverPolicy:      g.CoverPolicy,
		IdentityPolicy:   g.IdentityPolicy,
		CoverConcurrency: g.CoverConcurrency,
		CoverMaxWidth:    g.CoverMaxWidth,
	})
	if err != nil {
		if report != nil {
			report.Log()
		}
		if hint := importFailureHint(err); hint != "" {
			slog.Error(hint, "error", err)
		}
		return fmt.Errorf("goodreads import failed: %w", err)
	}
	return nil
}

// importFailureHint names the policy flag that lets a run get past err
func importFailureHint(err error) string {
	switch {
	case shelferrors.IsFetchError(err):
		return "Shelf could not be fetched, use --shelf-policy continue to skip failing shelves"
	case shelferrors.IsCoverError(err):
		return "Cover could not be resolved, use --cover-policy best-effort to import books without it"
	default:
		return ""
	}
}

func initLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
