package goodreads

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/lepinkainen/shelfsource/internal/datastore"
	"github.com/lepinkainen/shelfsource/internal/obsidian"
	"github.com/lepinkainen/shelfsource/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func mustNode(t *testing.T, book Book) Node {
	t.Helper()
	node, err := NewNode(book, IdentityISBN)
	require.NoError(t, err)
	return node
}

func TestStoreSink_SQLite(t *testing.T) {
	env := testutil.NewTestEnv(t)
	dbPath := env.Path("shelfsource.db")

	sink, err := NewStoreSink(datastore.NewSQLiteStore(dbPath))
	require.NoError(t, err)

	ctx := context.Background()
	node := mustNode(t, duneBook())

	result, err := sink.Emit(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, datastore.EmitCreated, result)

	result, err = sink.Emit(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, datastore.EmitUnchanged, result, "re-emitting an unchanged node is a no-op")

	changed := duneBook()
	changed.Finished = date(2021, 2, 10)
	result, err = sink.Emit(ctx, mustNode(t, changed))
	require.NoError(t, err)
	assert.Equal(t, datastore.EmitUpdated, result)

	require.NoError(t, sink.Close())

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM goodreads_books").Scan(&count))
	assert.Equal(t, 1, count)

	var title, finished, nodeType string
	var pages int
	require.NoError(t, db.QueryRow("SELECT title, pages, finished, node_type FROM goodreads_books WHERE id = ?", node.ID).
		Scan(&title, &pages, &finished, &nodeType))
	assert.Equal(t, "Dune", title)
	assert.Equal(t, 412, pages)
	assert.Equal(t, "2021-02-10", finished)
	assert.Equal(t, NodeType, nodeType)
}

func TestMarkdownSink(t *testing.T) {
	env := testutil.NewTestEnv(t)
	dir := env.Path("markdown", "goodreads")
	sink := NewMarkdownSink(dir, false)

	book := duneBook()
	book.CoverImage = &CoverImage{FileID: "f1", Path: env.Path("covers", "abc.jpg")}
	node := mustNode(t, book)

	result, err := sink.Emit(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, datastore.EmitCreated, result)

	content := env.ReadFileString(filepath.Join("markdown", "goodreads", "Dune.md"))
	assert.Contains(t, content, "title: Dune\n")
	assert.Contains(t, content, "author: Frank Herbert\n")
	assert.Contains(t, content, "pages: 412\n")
	assert.Contains(t, content, "shelf: read\n")
	assert.Contains(t, content, "cover: ../../covers/abc.jpg\n")
	assert.Contains(t, content, "tags: [goodreads/read, read]\n")
	assert.Contains(t, content, "![cover](../../covers/abc.jpg)")
	assert.Contains(t, content, "[View on Goodreads](https://www.goodreads.com/book/show/234)")
	assert.NotContains(t, content, "date_started", "sentinel dates are left out")
	assert.NotContains(t, content, "asin")

	note, err := obsidian.ParseMarkdown([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, node.ContentDigest, note.Frontmatter.GetString("content_digest"))
	assert.Equal(t, node.ID, note.Frontmatter.GetString("node_id"))
	assert.Equal(t, "1965-01-01", note.Frontmatter.GetString("published"))

	result, err = sink.Emit(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, datastore.EmitUnchanged, result)

	book.Pages = 500
	result, err = sink.Emit(context.Background(), mustNode(t, book))
	require.NoError(t, err)
	assert.Equal(t, datastore.EmitUpdated, result)
	assert.Contains(t, env.ReadFileString(filepath.Join("markdown", "goodreads", "Dune.md")), "pages: 500\n")
}

func TestMarkdownSink_OverwriteRewritesUnchanged(t *testing.T) {
	env := testutil.NewTestEnv(t)
	dir := env.Path("notes")
	node := mustNode(t, duneBook())

	_, err := NewMarkdownSink(dir, false).Emit(context.Background(), node)
	require.NoError(t, err)

	result, err := NewMarkdownSink(dir, true).Emit(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, datastore.EmitUpdated, result)
}

func TestMarkdownSink_RewritesNoteWithoutDigest(t *testing.T) {
	env := testutil.NewTestEnv(t)
	dir := env.Path("notes")
	env.WriteFile("notes/Dune.md", []byte("hand edited"))

	result, err := NewMarkdownSink(dir, false).Emit(context.Background(), mustNode(t, duneBook()))
	require.NoError(t, err)
	assert.Equal(t, datastore.EmitUpdated, result)
	assert.Contains(t, env.ReadFileString("notes/Dune.md"), "title: Dune")
}

func TestMarkdownSink_SameTitleBooksGetSeparateNotes(t *testing.T) {
	env := testutil.NewTestEnv(t)
	sink := NewMarkdownSink(env.Path("notes"), false)
	ctx := context.Background()

	first := duneBook()
	second := duneBook()
	second.ISBN = strPtr("0593099322")
	second.URL = "https://www.goodreads.com/book/show/999"
	firstNode, secondNode := mustNode(t, first), mustNode(t, second)
	require.NotEqual(t, firstNode.ID, secondNode.ID)

	for _, node := range []Node{firstNode, secondNode} {
		result, err := sink.Emit(ctx, node)
		require.NoError(t, err)
		assert.Equal(t, datastore.EmitCreated, result)
	}

	assert.Equal(t, []string{"Dune (0593099322).md", "Dune.md"}, env.ListFiles("notes"))
	assert.Contains(t, env.ReadFileString("notes/Dune.md"), "node_id: "+firstNode.ID)
	assert.Contains(t, env.ReadFileString("notes/Dune (0593099322).md"), "node_id: "+secondNode.ID)

	for _, node := range []Node{firstNode, secondNode} {
		result, err := sink.Emit(ctx, node)
		require.NoError(t, err)
		assert.Equal(t, datastore.EmitUnchanged, result, "each book finds its own note again")
	}
	assert.Len(t, env.ListFiles("notes"), 2)
}

func TestMarkdownSink_PerShelfIdentityKeepsEveryNote(t *testing.T) {
	env := testutil.NewTestEnv(t)
	sink := NewMarkdownSink(env.Path("notes"), false)

	for _, shelf := range []string{"read", "favorites"} {
		book := duneBook()
		book.Shelf = shelf
		node, err := NewNode(book, IdentityISBNShelf)
		require.NoError(t, err)

		result, err := sink.Emit(context.Background(), node)
		require.NoError(t, err)
		assert.Equal(t, datastore.EmitCreated, result, shelf)
	}

	assert.Equal(t, []string{"Dune (0441013597).md", "Dune.md"}, env.ListFiles("notes"))
	assert.Contains(t, env.ReadFileString("notes/Dune (0441013597).md"), "shelf: favorites\n")
}

func TestMarkdownSink_UsesRemoteCoverWithoutImage(t *testing.T) {
	env := testutil.NewTestEnv(t)
	book := duneBook()
	book.Title = nil

	_, err := NewMarkdownSink(env.Path("notes"), false).Emit(context.Background(), mustNode(t, book))
	require.NoError(t, err)

	content := env.ReadFileString("notes/0441013597.md")
	assert.Contains(t, content, "cover: https://www.goodreads.com/books/123.jpg\n")
}

func TestJSONSink(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.Path("json", "goodreads.json")
	sink := NewJSONSink(path, false)

	hobbit := duneBook()
	hobbit.Title = strPtr("The Hobbit")
	hobbit.ISBN = nil

	for _, b := range []Book{duneBook(), hobbit} {
		result, err := sink.Emit(context.Background(), mustNode(t, b))
		require.NoError(t, err)
		assert.Equal(t, datastore.EmitForwarded, result)
	}
	require.NoError(t, sink.Close())

	var nodes []Node
	require.NoError(t, json.Unmarshal([]byte(env.ReadFileString("json/goodreads.json")), &nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "Dune", *nodes[0].Book.Title)
	assert.Equal(t, "The Hobbit", *nodes[1].Book.Title)
	assert.Nil(t, nodes[1].Book.ISBN)
	assert.Equal(t, NodeType, nodes[0].Type)
}

type failingSink struct{ closed bool }

func (f *failingSink) Emit(context.Context, Node) (datastore.EmitResult, error) {
	return 0, errors.New("disk full")
}

func (f *failingSink) Close() error {
	f.closed = true
	return nil
}

func TestMultiSink(t *testing.T) {
	primary := &recordingSink{result: datastore.EmitUnchanged}
	secondary := &recordingSink{result: datastore.EmitForwarded}
	multi := MultiSink{primary, secondary}

	result, err := multi.Emit(context.Background(), mustNode(t, duneBook()))
	require.NoError(t, err)
	assert.Equal(t, datastore.EmitUnchanged, result)
	assert.Len(t, primary.nodes, 1)
	assert.Len(t, secondary.nodes, 1)

	failing := &failingSink{}
	multi = MultiSink{primary, failing}
	_, err = multi.Emit(context.Background(), mustNode(t, duneBook()))
	require.Error(t, err)

	require.NoError(t, multi.Close())
	assert.True(t, failing.closed)
}
