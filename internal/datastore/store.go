package datastore

import "context"

// Node is one emitted record: a stable identifier, a type name, a digest of
// its content and the flattened field set.
type Node struct {
	ID            string
	Type          string
	ContentDigest string
	Fields        map[string]any
}

// EmitResult describes what a store did with an emitted node
type EmitResult int

const (
	// EmitCreated means the node ID was not present before
	EmitCreated EmitResult = iota
	// EmitUpdated means the node existed with a different content digest
	EmitUpdated
	// EmitUnchanged means the node existed with the same content digest; nothing was written
	EmitUnchanged
	// EmitForwarded means the node was handed to a store that does not report its prior state
	EmitForwarded
)

func (r EmitResult) String() string {
	switch r {
	case EmitCreated:
		return "created"
	case EmitUpdated:
		return "updated"
	case EmitUnchanged:
		return "unchanged"
	case EmitForwarded:
		return "forwarded"
	default:
		return "unknown"
	}
}

// Store defines the interface for node storage
type Store interface {
	// Connect establishes a connection to the data store
	Connect() error

	// CreateTable creates a new table with the given schema if it doesn't exist
	CreateTable(schema string) error

	// Emit writes node into table. Re-emitting a node with an unchanged
	// digest is a no-op; a changed digest replaces the stored row.
	Emit(ctx context.Context, table string, node Node) (EmitResult, error)

	// Close flushes pending writes and closes the connection to the data store
	Close() error
}

// Reserved columns every node table carries in addition to its fields
const (
	columnID     = "id"
	columnType   = "node_type"
	columnDigest = "content_digest"
)

func nodeRow(node Node) map[string]any {
	row := make(map[string]any, len(node.Fields)+3)
	for k, v := range node.Fields {
		row[k] = v
	}
	row[columnID] = node.ID
	row[columnType] = node.Type
	row[columnDigest] = node.ContentDigest
	return row
}
