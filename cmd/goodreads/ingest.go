package goodreads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/shelfsource/internal/datastore"
	"golang.org/x/sync/errgroup"
)

// DefaultCoverConcurrency bounds concurrent cover resolutions
const DefaultCoverConcurrency = 4

// ShelfPolicy decides what a failed shelf fetch does to the run
type ShelfPolicy string

const (
	// ShelfAbort stops the run on the first failed shelf; nothing is emitted
	ShelfAbort ShelfPolicy = "abort"
	// ShelfContinue logs the failure and moves on to the next shelf
	ShelfContinue ShelfPolicy = "continue"
)

// ParseShelfPolicy validates a shelf policy name. Empty selects ShelfAbort.
func ParseShelfPolicy(s string) (ShelfPolicy, error) {
	switch ShelfPolicy(s) {
	case "", ShelfAbort:
		return ShelfAbort, nil
	case ShelfContinue:
		return ShelfContinue, nil
	default:
		return "", fmt.Errorf("unknown shelf policy %q; valid policies are: %s, %s", s, ShelfAbort, ShelfContinue)
	}
}

// CoverPolicy decides what a failed cover resolution does to the run
type CoverPolicy string

const (
	// CoverFailFast stops the run before anything is emitted
	CoverFailFast CoverPolicy = "fail-fast"
	// CoverBestEffort emits the book without a cover image
	CoverBestEffort CoverPolicy = "best-effort"
)

// ParseCoverPolicy validates a cover policy name. Empty selects CoverFailFast.
func ParseCoverPolicy(s string) (CoverPolicy, error) {
	switch CoverPolicy(s) {
	case "", CoverFailFast:
		return CoverFailFast, nil
	case CoverBestEffort:
		return CoverBestEffort, nil
	default:
		return "", fmt.Errorf("unknown cover policy %q; valid policies are: %s, %s", s, CoverFailFast, CoverBestEffort)
	}
}

// Options configures an Ingester
type Options struct {
	SiteURL          string
	CoverConcurrency int
	ShelfPolicy      ShelfPolicy
	CoverPolicy      CoverPolicy
	IdentityPolicy   IdentityPolicy
}

// CoverResult is the resolution outcome for the book at the same index
type CoverResult struct {
	Image   *CoverImage
	Outcome CoverOutcome
	Err     error
}

// Report summarizes a run
type Report struct {
	Shelves       int
	ShelvesFailed int
	Rows          int
	RowsSkipped   int
	Books         int

	CoverHits     int
	CoverFetched  int
	CoverUncached int
	CoverFailures int
	CoverSkipped  int

	Created   int
	Updated   int
	Unchanged int
	Forwarded int
}

// Log writes the report at info level
func (r *Report) Log() {
	slog.Info("Shelf import finished",
		"shelves", r.Shelves,
		"shelves_failed", r.ShelvesFailed,
		"rows", r.Rows,
		"rows_skipped", r.RowsSkipped,
		"books", r.Books,
		"cover_hits", r.CoverHits,
		"cover_fetched", r.CoverFetched,
		"cover_uncached", r.CoverUncached,
		"cover_failures", r.CoverFailures,
		"cover_skipped", r.CoverSkipped,
		"created", r.Created,
		"updated", r.Updated,
		"unchanged", r.Unchanged,
		"forwarded", r.Forwarded,
	)
}

// Ingester runs the fetch, resolve and emit stages for a set of shelves
type Ingester struct {
	transport Transport
	resolver  *CoverResolver
	sink      Sink
	opts      Options
}

// NewIngester creates an Ingester, filling in default options
func NewIngester(transport Transport, resolver *CoverResolver, sink Sink, opts Options) *Ingester {
	if opts.SiteURL == "" {
		opts.SiteURL = DefaultSiteURL
	}
	if opts.CoverConcurrency <= 0 {
		opts.CoverConcurrency = DefaultCoverConcurrency
	}
	if opts.ShelfPolicy == "" {
		opts.ShelfPolicy = ShelfAbort
	}
	if opts.CoverPolicy == "" {
		opts.CoverPolicy = CoverFailFast
	}
	if opts.IdentityPolicy == "" {
		opts.IdentityPolicy = IdentityISBN
	}
	return &Ingester{
		transport: transport,
		resolver:  resolver,
		sink:      sink,
		opts:      opts,
	}
}

// Run ingests every shelf of userID. On error the partial report is returned
// alongside it.
func (i *Ingester) Run(ctx context.Context, userID string, shelves []string) (*Report, error) {
	report := &Report{}
	if userID == "" {
		return report, fmt.Errorf("goodreads user ID is required")
	}

	books, err := i.fetchShelves(ctx, userID, shelves, report)
	if err != nil {
		return report, err
	}

	results, err := i.resolveCovers(ctx, books, report)
	if err != nil {
		return report, err
	}

	if err := i.emit(ctx, books, results, report); err != nil {
		return report, err
	}

	return report, nil
}

func (i *Ingester) fetchShelves(ctx context.Context, userID string, shelves []string, report *Report) ([]Book, error) {
	var books []Book

	for _, shelf := range shelves {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Shelves++

		html, err := FetchShelf(ctx, i.transport, i.opts.SiteURL, NewShelfRequest(userID, shelf))
		if err != nil {
			report.ShelvesFailed++
			if i.opts.ShelfPolicy == ShelfContinue {
				slog.Error("Failed to fetch shelf, skipping", "shelf", shelf, "error", err)
				continue
			}
			return nil, err
		}

		doc, err := Parse(html, i.opts.SiteURL, shelf)
		if err != nil {
			report.ShelvesFailed++
			if i.opts.ShelfPolicy == ShelfContinue {
				slog.Error("Failed to parse shelf, skipping", "shelf", shelf, "error", err)
				continue
			}
			return nil, fmt.Errorf("shelf %q: %w", shelf, err)
		}

		for row := range doc.Rows() {
			books = append(books, row.Book)
		}

		stats := doc.Stats()
		report.Rows += stats.Rows
		report.RowsSkipped += stats.Skipped
		report.Books += stats.Books
		slog.Info("Fetched shelf", "shelf", shelf, "books", stats.Books, "skipped", stats.Skipped)
	}

	return books, nil
}

func (i *Ingester) resolveCovers(ctx context.Context, books []Book, report *Report) ([]CoverResult, error) {
	results := make([]CoverResult, len(books))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.opts.CoverConcurrency)

	for idx := range books {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[idx] = CoverResult{Outcome: CoverSkipped, Err: err}
				return err
			}

			image, outcome, err := i.resolver.Resolve(gctx, books[idx])
			if err != nil {
				if gctx.Err() != nil && errors.Is(err, context.Canceled) {
					outcome = CoverSkipped
				}
				results[idx] = CoverResult{Outcome: outcome, Err: err}
				if i.opts.CoverPolicy == CoverFailFast {
					return err
				}
				slog.Warn("Failed to resolve cover, emitting without it", "book", books[idx].DisplayTitle(), "error", err)
				return nil
			}

			results[idx] = CoverResult{Image: &image, Outcome: outcome}
			return nil
		})
	}

	waitErr := g.Wait()

	for _, r := range results {
		switch r.Outcome {
		case CoverCacheHit:
			report.CoverHits++
		case CoverFetched:
			report.CoverFetched++
		case CoverUncached:
			report.CoverUncached++
		case CoverFailed:
			report.CoverFailures++
		case CoverSkipped:
			report.CoverSkipped++
		}
	}

	if waitErr != nil {
		return nil, waitErr
	}
	return results, nil
}

func (i *Ingester) emit(ctx context.Context, books []Book, results []CoverResult, report *Report) error {
	for idx, book := range books {
		if err := ctx.Err(); err != nil {
			return err
		}

		book.CoverImage = results[idx].Image

		node, err := NewNode(book, i.opts.IdentityPolicy)
		if err != nil {
			return err
		}

		result, err := i.sink.Emit(ctx, node)
		if err != nil {
			return fmt.Errorf("failed to emit %q: %w", book.DisplayTitle(), err)
		}

		switch result {
		case datastore.EmitCreated:
			report.Created++
		case datastore.EmitUpdated:
			report.Updated++
		case datastore.EmitUnchanged:
			report.Unchanged++
		case datastore.EmitForwarded:
			report.Forwarded++
		}
		slog.Debug("Emitted book", "book", book.DisplayTitle(), "id", node.ID, "result", result)
	}
	return nil
}
