package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sync"
)

// DefaultDatasetteBatchSize is how many rows are buffered before a flush
const DefaultDatasetteBatchSize = 100

// DatasetteClient implements the Store interface for remote Datasette instances.
// Rows are buffered per table and sent with the upsert flag so re-emitting a
// node replaces its previous row.
type DatasetteClient struct {
	baseURL   string
	apiToken  string
	database  string
	batchSize int
	client    *http.Client

	mu      sync.Mutex
	pending map[string][]map[string]any
}

// NewDatasetteClient creates a new DatasetteClient instance
func NewDatasetteClient(baseURL, apiToken, database string) *DatasetteClient {
	return &DatasetteClient{
		baseURL:   baseURL,
		apiToken:  apiToken,
		database:  database,
		batchSize: DefaultDatasetteBatchSize,
		client:    &http.Client{},
		pending:   make(map[string][]map[string]any),
	}
}

// Connect verifies the configured base URL
func (c *DatasetteClient) Connect() error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base URL: %q", c.baseURL)
	}
	return nil
}

// CreateTable is a no-op for remote Datasette as tables are created via the insert API
func (c *DatasetteClient) CreateTable(schema string) error {
	return nil
}

// Emit buffers node for table and flushes once a batch is full
func (c *DatasetteClient) Emit(ctx context.Context, table string, node Node) (EmitResult, error) {
	c.mu.Lock()
	c.pending[table] = append(c.pending[table], nodeRow(node))
	var batch []map[string]any
	if len(c.pending[table]) >= c.batchSize {
		batch = c.pending[table]
		delete(c.pending, table)
	}
	c.mu.Unlock()

	if batch != nil {
		if err := c.BatchInsert(ctx, table, batch); err != nil {
			return 0, err
		}
	}
	return EmitForwarded, nil
}

// Flush sends every buffered row
func (c *DatasetteClient) Flush(ctx context.Context) error {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string][]map[string]any)
	c.mu.Unlock()

	for table, rows := range pending {
		if err := c.BatchInsert(ctx, table, rows); err != nil {
			return err
		}
	}
	return nil
}

// BatchInsert sends records to the Datasette insert API
func (c *DatasetteClient) BatchInsert(ctx context.Context, table string, records []map[string]any) error {
	if len(records) == 0 {
		return nil
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path.Join(u.Path, "-/insert", c.database, table)
	q := u.Query()
	q.Set("pk", columnID)
	q.Set("upsert", "1")
	u.RawQuery = q.Encode()

	jsonData, err := json.Marshal(map[string]any{"rows": records})
	if err != nil {
		return fmt.Errorf("failed to marshal JSON payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("request failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("API error: %v", errResp)
	}

	return nil
}

// Close flushes any buffered rows
func (c *DatasetteClient) Close() error {
	return c.Flush(context.Background())
}
