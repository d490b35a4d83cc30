package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface for local SQLite storage
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// NewSQLiteStore creates a new SQLiteStore instance
func NewSQLiteStore(dbPath string) *SQLiteStore {
	return &SQLiteStore{
		dbPath: dbPath,
	}
}

// Connect opens a connection to the SQLite database
func (s *SQLiteStore) Connect() error {
	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return errors.Join(fmt.Errorf("failed to connect to database: %w", err), closeErr)
	}
	s.db = db
	return nil
}

// CreateTable creates a new table with the given schema if it doesn't exist
func (s *SQLiteStore) CreateTable(schema string) error {
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Emit upserts node into table keyed by its ID
func (s *SQLiteStore) Emit(ctx context.Context, table string, node Node) (EmitResult, error) {
	if node.ID == "" {
		return 0, fmt.Errorf("node has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback if we don't commit - ignore errors as they're expected if transaction was committed
		_ = tx.Rollback()
	}()

	var existing string
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", columnDigest, table, columnID),
		node.ID,
	).Scan(&existing)

	result := EmitUpdated
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result = EmitCreated
	case err != nil:
		return 0, fmt.Errorf("failed to look up node %s: %w", node.ID, err)
	case existing == node.ContentDigest:
		return EmitUnchanged, nil
	}

	row := nodeRow(node)
	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	placeholders := make([]string, len(columns))
	values := make([]any, len(columns))
	for i, col := range columns {
		placeholders[i] = "?"
		values[i] = row[col]
	}

	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)
	if _, err := tx.ExecContext(ctx, query, values...); err != nil {
		return 0, fmt.Errorf("failed to write node %s: %w", node.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// Count returns the number of rows in table
func (s *SQLiteStore) Count(ctx context.Context, table string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n)
	return n, err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
