package goodreads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lepinkainen/shelfsource/internal/datastore"
	"github.com/lepinkainen/shelfsource/internal/fileutil"
	"github.com/lepinkainen/shelfsource/internal/obsidian"
)

// BooksTable is the datastore table book nodes are written to
const BooksTable = "goodreads_books"

// BooksSchema defines the datastore table for book nodes
const BooksSchema = `
CREATE TABLE IF NOT EXISTS goodreads_books (
	id TEXT PRIMARY KEY,
	node_type TEXT NOT NULL,
	content_digest TEXT NOT NULL,
	title TEXT,
	author TEXT,
	isbn TEXT,
	isbn13 TEXT,
	asin TEXT,
	pages INTEGER,
	published TEXT,
	started TEXT,
	finished TEXT,
	cover TEXT,
	cover_image TEXT,
	cover_path TEXT,
	cover_modified TEXT,
	url TEXT,
	shelf TEXT
)`

// Sink receives emitted nodes in order
type Sink interface {
	Emit(ctx context.Context, node Node) (datastore.EmitResult, error)
}

// StoreSink writes nodes to a datastore table
type StoreSink struct {
	store datastore.Store
	table string
}

// NewStoreSink connects store and creates the books table
func NewStoreSink(store datastore.Store) (*StoreSink, error) {
	if err := store.Connect(); err != nil {
		return nil, err
	}
	if err := store.CreateTable(BooksSchema); err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return &StoreSink{store: store, table: BooksTable}, nil
}

func (s *StoreSink) Emit(ctx context.Context, node Node) (datastore.EmitResult, error) {
	return s.store.Emit(ctx, s.table, node.Record())
}

func (s *StoreSink) Close() error {
	return s.store.Close()
}

// JSONSink collects nodes and writes them as one JSON array on Close
type JSONSink struct {
	path      string
	overwrite bool

	mu    sync.Mutex
	nodes []Node
}

// NewJSONSink creates a sink writing to path
func NewJSONSink(path string, overwrite bool) *JSONSink {
	return &JSONSink{path: path, overwrite: overwrite}
}

func (s *JSONSink) Emit(_ context.Context, node Node) (datastore.EmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = append(s.nodes, node)
	return datastore.EmitForwarded, nil
}

func (s *JSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := s.nodes
	if nodes == nil {
		nodes = []Node{}
	}
	written, err := fileutil.WriteJSONFile(s.path, nodes, s.overwrite)
	if err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	if written {
		slog.Info("Wrote JSON output", "path", s.path, "books", len(nodes))
	}
	return nil
}

// MarkdownSink writes one note per node. A note whose stored digest matches
// the node is left alone unless overwrite is set.
type MarkdownSink struct {
	dir       string
	overwrite bool
}

// NewMarkdownSink creates a sink writing notes into dir
func NewMarkdownSink(dir string, overwrite bool) *MarkdownSink {
	return &MarkdownSink{dir: dir, overwrite: overwrite}
}

func (s *MarkdownSink) Emit(_ context.Context, node Node) (datastore.EmitResult, error) {
	path, existing, err := s.claimNote(node)
	if err != nil {
		return 0, err
	}

	result := datastore.EmitCreated
	if existing != nil {
		result = datastore.EmitUpdated
		if existing.Frontmatter.GetString("content_digest") == node.ContentDigest && !s.overwrite {
			return datastore.EmitUnchanged, nil
		}
	}

	content, err := s.render(node)
	if err != nil {
		return 0, err
	}

	if _, err := fileutil.WriteFile(path, content, true); err != nil {
		return 0, err
	}
	return result, nil
}

// claimNote picks the note file for node. Notes are named by title; when
// that file belongs to another node the ISBN, then the shelf, then the node
// ID are appended until a free or already owned file is found. The existing
// note is returned when the file is present.
func (s *MarkdownSink) claimNote(node Node) (string, *obsidian.Note, error) {
	var (
		path string
		note *obsidian.Note
	)
	for _, name := range noteNames(node) {
		path = fileutil.NotePath(s.dir, name)

		content, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return path, nil, nil
		}
		if err != nil {
			return "", nil, fmt.Errorf("failed to read note %s: %w", path, err)
		}

		note, err = obsidian.ParseMarkdown(content)
		if err != nil {
			return path, &obsidian.Note{Frontmatter: obsidian.NewFrontmatter()}, nil
		}
		if owner := note.Frontmatter.GetString("node_id"); owner == "" || owner == node.ID {
			return path, note, nil
		}
	}

	slog.Warn("Every note name is taken by another book, replacing the last one", "path", path, "node", node.ID)
	return path, note, nil
}

func noteNames(node Node) []string {
	book := node.Book
	title := book.DisplayTitle()

	names := []string{title}
	if isbn := book.ISBNValue(); isbn != "" && isbn != title {
		names = append(names,
			fmt.Sprintf("%s (%s)", title, isbn),
			fmt.Sprintf("%s (%s, %s)", title, isbn, book.Shelf))
	} else {
		names = append(names, fmt.Sprintf("%s (%s)", title, book.Shelf))
	}

	id := node.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return append(names, fmt.Sprintf("%s (%s)", title, id))
}

func (s *MarkdownSink) render(node Node) ([]byte, error) {
	book := node.Book

	fm := obsidian.NewFrontmatterWithTitle(book.DisplayTitle())
	setIfPresent(fm, "author", book.Author)
	setIfPresent(fm, "isbn", book.ISBN)
	setIfPresent(fm, "isbn13", book.ISBN13)
	setIfPresent(fm, "asin", book.ASIN)
	if book.Pages > 0 {
		fm.Set("pages", book.Pages)
	}
	setDate(fm, "published", book.Published)
	setDate(fm, "date_started", book.Started)
	setDate(fm, "date_read", book.Finished)
	fm.Set("shelf", book.Shelf)
	fm.Set("goodreads_url", book.URL)
	fm.Set("node_id", node.ID)
	fm.Set("content_digest", node.ContentDigest)

	cover := book.Cover
	if book.CoverImage != nil {
		cover = s.relativeCover(book.CoverImage.Path)
	}
	fm.Set("cover", cover)

	tags := obsidian.NewTagSet()
	tags.Add("goodreads/" + book.Shelf)
	tags.AddIf(book.Shelf == "read", "read")
	obsidian.ApplyTagSet(fm, tags)

	body := fmt.Sprintf("![cover](%s)\n\n[View on Goodreads](%s)\n", cover, book.URL)
	return obsidian.BuildNoteMarkdown(fm, body)
}

func (s *MarkdownSink) relativeCover(path string) string {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func setIfPresent(fm *obsidian.Frontmatter, key string, value *string) {
	if value != nil && *value != "" {
		fm.Set(key, *value)
	}
}

func setDate(fm *obsidian.Frontmatter, key string, t time.Time) {
	if !t.Equal(SentinelDate) {
		fm.Set(key, t.Format(time.DateOnly))
	}
}

// MultiSink fans nodes out to several sinks. The first sink's result is
// the one reported.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, node Node) (datastore.EmitResult, error) {
	var first datastore.EmitResult
	for i, sink := range m {
		result, err := sink.Emit(ctx, node)
		if err != nil {
			return 0, err
		}
		if i == 0 {
			first = result
		}
	}
	return first, nil
}

// Close closes every sink that holds resources
func (m MultiSink) Close() error {
	var errs []error
	for _, sink := range m {
		if closer, ok := sink.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}
