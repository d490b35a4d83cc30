package goodreads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/shelfsource/internal/cache"
	"github.com/lepinkainen/shelfsource/internal/cmdutil"
	"github.com/lepinkainen/shelfsource/internal/config"
	"github.com/lepinkainen/shelfsource/internal/datastore"
	"github.com/lepinkainen/shelfsource/internal/fileutil"
	"github.com/lepinkainen/shelfsource/internal/ratelimit"
	"github.com/spf13/viper"
)

var newTransport = NewTransport

// ImportParams carries command line overrides. Zero values fall back to the
// goodreads.* configuration.
type ImportParams struct {
	UserID    string
	Shelves   []string
	Transport string

	OutputDir     string
	WriteMarkdown bool
	WriteJSON     bool
	JSONOutput    string

	ShelfPolicy    string
	CoverPolicy    string
	IdentityPolicy string

	CoverConcurrency int
	CoverMaxWidth    int
}

// ImportShelvesWithParams ingests the configured shelves into every enabled output
func ImportShelvesWithParams(ctx context.Context, params ImportParams) (*Report, error) {
	cfg := config.LoadGoodreads()
	applyParams(&cfg, params)

	if cfg.UserID == "" {
		return nil, fmt.Errorf("goodreads user ID is required (provide via --user-id flag, goodreads.userid in config or GOODREADS_USER_ID)")
	}
	if len(cfg.Shelves) == 0 {
		cfg.Shelves = config.DefaultShelves
	}

	shelfPolicy, err := ParseShelfPolicy(cfg.ShelfPolicy)
	if err != nil {
		return nil, err
	}
	coverPolicy, err := ParseCoverPolicy(cfg.CoverPolicy)
	if err != nil {
		return nil, err
	}
	identityPolicy, err := ParseIdentityPolicy(cfg.IdentityPolicy)
	if err != nil {
		return nil, err
	}

	transport, err := newTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}

	cacheDB, err := cache.GetGlobalCache()
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	coverCache := cache.NewStore[CoverImage](cacheDB, cache.CoverCacheTable, cache.ConfiguredTTL())

	downloader := fileutil.NewDownloader(fileutil.DownloaderOptions{
		Dir:      cfg.CoverDir,
		Limiter:  ratelimit.NewHostLimiter(cfg.CoverRateLimit, 1),
		MaxWidth: cfg.CoverMaxWidth,
		Force:    config.UpdateCovers,
	})

	output := cmdutil.OutputConfig{
		ConfigKey:     "goodreads",
		OutputDir:     params.OutputDir,
		WriteMarkdown: params.WriteMarkdown,
		WriteJSON:     params.WriteJSON,
		JSONOutput:    params.JSONOutput,
	}
	if err := cmdutil.SetupOutputDir(&output); err != nil {
		return nil, err
	}

	sinks, err := buildSinks(output)
	if err != nil {
		return nil, err
	}

	slog.Info("Importing Goodreads shelves", "user", cfg.UserID, "shelves", cfg.Shelves, "transport", cfg.Transport)

	ingester := NewIngester(transport, NewCoverResolver(coverCache, downloader).WithRefresh(config.UpdateCovers), sinks, Options{
		SiteURL:          cfg.BaseURL,
		CoverConcurrency: cfg.CoverConcurrency,
		ShelfPolicy:      shelfPolicy,
		CoverPolicy:      coverPolicy,
		IdentityPolicy:   identityPolicy,
	})

	report, runErr := ingester.Run(ctx, cfg.UserID, cfg.Shelves)
	closeErr := sinks.Close()
	if runErr != nil {
		return report, errors.Join(runErr, closeErr)
	}
	if closeErr != nil {
		return report, closeErr
	}

	report.Log()
	return report, nil
}

func applyParams(cfg *config.Goodreads, params ImportParams) {
	if params.UserID != "" {
		cfg.UserID = params.UserID
	}
	if len(params.Shelves) > 0 {
		cfg.Shelves = params.Shelves
	}
	if params.Transport != "" {
		cfg.Transport = params.Transport
	}
	if params.ShelfPolicy != "" {
		cfg.ShelfPolicy = params.ShelfPolicy
	}
	if params.CoverPolicy != "" {
		cfg.CoverPolicy = params.CoverPolicy
	}
	if params.IdentityPolicy != "" {
		cfg.IdentityPolicy = params.IdentityPolicy
	}
	if params.CoverConcurrency > 0 {
		cfg.CoverConcurrency = params.CoverConcurrency
	}
	if params.CoverMaxWidth > 0 {
		cfg.CoverMaxWidth = params.CoverMaxWidth
	}
}

// buildSinks opens every enabled output. The local datastore comes first so
// its created/updated/unchanged results are the ones reported.
func buildSinks(output cmdutil.OutputConfig) (MultiSink, error) {
	var sinks MultiSink

	fail := func(err error) (MultiSink, error) {
		return nil, errors.Join(err, sinks.Close())
	}

	if viper.GetBool("datastore.enabled") {
		dbPath := viper.GetString("datastore.dbfile")
		sink, err := NewStoreSink(datastore.NewSQLiteStore(dbPath))
		if err != nil {
			return fail(fmt.Errorf("failed to open datastore %s: %w", dbPath, err))
		}
		sinks = append(sinks, sink)
	}

	if baseURL := viper.GetString("datasette.url"); baseURL != "" {
		client := datastore.NewDatasetteClient(baseURL, viper.GetString("datasette.token"), viper.GetString("datasette.database"))
		sink, err := NewStoreSink(client)
		if err != nil {
			return fail(fmt.Errorf("failed to configure Datasette: %w", err))
		}
		sinks = append(sinks, sink)
	}

	if output.WriteMarkdown {
		sinks = append(sinks, NewMarkdownSink(output.OutputDir, config.OverwriteFiles))
	}

	if output.WriteJSON {
		sinks = append(sinks, NewJSONSink(output.JSONOutput, config.OverwriteFiles))
	}

	if len(sinks) == 0 {
		return nil, fmt.Errorf("no outputs enabled; enable the datastore, Datasette, markdown or JSON output")
	}
	return sinks, nil
}
