package goodreads

import (
	"context"
	"log/slog"

	shelferrors "github.com/lepinkainen/shelfsource/internal/errors"
	"github.com/lepinkainen/shelfsource/internal/fileutil"
)

const coverCacheKeyPrefix = "local-goodreads-cover-"

// CoverCache stores resolved cover identities. cache.Store[CoverImage] satisfies it.
type CoverCache interface {
	Get(ctx context.Context, key string) (CoverImage, bool, error)
	Set(ctx context.Context, key string, image CoverImage) error
}

// Materializer stores a remote file locally. *fileutil.Downloader satisfies it.
type Materializer interface {
	Materialize(ctx context.Context, url string) (*fileutil.RemoteFile, error)
}

// CoverOutcome records how a cover was resolved
type CoverOutcome int

const (
	coverPending CoverOutcome = iota
	// CoverCacheHit means the cached identity was returned without fetching
	CoverCacheHit
	// CoverFetched means the cover was materialized and written to the cache
	CoverFetched
	// CoverUncached means the book has no ISBN so the cover bypassed the cache
	CoverUncached
	// CoverFailed means materialization failed
	CoverFailed
	// CoverSkipped means resolution was cancelled before the cover was attempted
	CoverSkipped
)

func (o CoverOutcome) String() string {
	switch o {
	case CoverCacheHit:
		return "hit"
	case CoverFetched:
		return "fetched"
	case CoverUncached:
		return "uncached"
	case CoverFailed:
		return "failed"
	case CoverSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// CoverCacheKey returns the cache key for a book's cover
func CoverCacheKey(isbn string) string {
	return coverCacheKeyPrefix + isbn
}

// CoverResolver turns a book's cover URL into a local file, consulting the
// cache first when the book has an ISBN.
type CoverResolver struct {
	cache        CoverCache
	materializer Materializer
	refresh      bool
}

// NewCoverResolver creates a resolver. A nil cache disables caching.
func NewCoverResolver(cache CoverCache, materializer Materializer) *CoverResolver {
	return &CoverResolver{cache: cache, materializer: materializer}
}

// WithRefresh makes the resolver skip cache reads, so every cover is
// materialized again and its cache entry rewritten.
func (r *CoverResolver) WithRefresh(refresh bool) *CoverResolver {
	r.refresh = refresh
	return r
}

// Resolve returns the local cover identity for book
func (r *CoverResolver) Resolve(ctx context.Context, book Book) (CoverImage, CoverOutcome, error) {
	isbn := book.ISBNValue()
	if isbn == "" || r.cache == nil {
		image, err := r.materialize(ctx, book)
		if err != nil {
			return CoverImage{}, CoverFailed, err
		}
		return image, CoverUncached, nil
	}

	key := CoverCacheKey(isbn)
	if !r.refresh {
		cached, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("Failed to read cover cache, fetching instead", "key", key, "error", err)
		}
		if ok && cached.FileID != "" {
			return cached, CoverCacheHit, nil
		}
	}

	image, err := r.materialize(ctx, book)
	if err != nil {
		return CoverImage{}, CoverFailed, err
	}

	if err := r.cache.Set(ctx, key, image); err != nil {
		slog.Warn("Failed to cache cover", "key", key, "error", err)
	}

	return image, CoverFetched, nil
}

func (r *CoverResolver) materialize(ctx context.Context, book Book) (CoverImage, error) {
	file, err := r.materializer.Materialize(ctx, book.Cover)
	if err != nil {
		return CoverImage{}, shelferrors.NewCoverError(book.ISBNValue(), book.Cover, err)
	}
	return CoverImage{
		FileID:   file.ID,
		Path:     file.Path,
		Modified: file.Modified,
	}, nil
}
