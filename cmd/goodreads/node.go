package goodreads

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/lepinkainen/shelfsource/internal/cmdutil"
	"github.com/lepinkainen/shelfsource/internal/datastore"
)

// NodeType is the type name of emitted book nodes
const NodeType = "GoodreadsBook"

var nodeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("shelfsource/node"))

// IdentityPolicy decides which books share a node ID
type IdentityPolicy string

const (
	// IdentityISBN keys nodes by ISBN; a book on two shelves is emitted twice under one ID
	IdentityISBN IdentityPolicy = "isbn"
	// IdentityISBNShelf keys nodes by ISBN and shelf
	IdentityISBNShelf IdentityPolicy = "isbn-shelf"
)

// ParseIdentityPolicy validates an identity policy name. Empty selects IdentityISBN.
func ParseIdentityPolicy(s string) (IdentityPolicy, error) {
	switch IdentityPolicy(s) {
	case "", IdentityISBN:
		return IdentityISBN, nil
	case IdentityISBNShelf:
		return IdentityISBNShelf, nil
	default:
		return "", fmt.Errorf("unknown identity policy %q; valid policies are: %s, %s", s, IdentityISBN, IdentityISBNShelf)
	}
}

// Key returns the identity key for book. Books without an ISBN are keyed by
// their detail URL.
func (p IdentityPolicy) Key(book Book) string {
	id := book.ISBNValue()
	if id == "" {
		id = book.URL
	}
	key := "goodreads-book-" + id
	if p == IdentityISBNShelf {
		key += "-" + book.Shelf
	}
	return key
}

// Node is a book ready for emission
type Node struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	ContentDigest string `json:"contentDigest"`
	Book          Book   `json:"book"`
}

// digestView replaces the cover identity with its file ID so the digest does
// not change when only the local file's timestamp does.
type digestView struct {
	Book
	CoverImage string `json:"coverImage"`
}

// ContentDigest hashes the canonical JSON form of book
func ContentDigest(book Book) (string, error) {
	view := digestView{Book: book}
	if book.CoverImage != nil {
		view.CoverImage = book.CoverImage.FileID
	}

	data, err := json.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("failed to encode book for digest: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

// NodeID derives a stable identifier from an identity key
func NodeID(key string) string {
	return uuid.NewSHA1(nodeNamespace, []byte(key)).String()
}

// NewNode builds the node for book under policy
func NewNode(book Book, policy IdentityPolicy) (Node, error) {
	digest, err := ContentDigest(book)
	if err != nil {
		return Node{}, err
	}
	return Node{
		ID:            NodeID(policy.Key(book)),
		Type:          NodeType,
		ContentDigest: digest,
		Book:          book,
	}, nil
}

// Record flattens the node into a datastore row
func (n Node) Record() datastore.Node {
	fields := cmdutil.StructToMap(n.Book, cmdutil.StructToMapOptions{
		Omit:       []string{"CoverImage"},
		TimeLayout: time.DateOnly,
	})
	if img := n.Book.CoverImage; img != nil {
		fields["cover_image"] = img.FileID
		fields["cover_path"] = img.Path
		fields["cover_modified"] = img.Modified.UTC().Format(time.RFC3339)
	}
	return datastore.Node{
		ID:            n.ID,
		Type:          n.Type,
		ContentDigest: n.ContentDigest,
		Fields:        fields,
	}
}
