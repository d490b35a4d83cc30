package goodreads

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	shelferrors "github.com/lepinkainen/shelfsource/internal/errors"
)

const (
	// DefaultSiteURL is the public Goodreads site
	DefaultSiteURL = "https://www.goodreads.com"
	// DefaultPerPage is the page size requested for every shelf
	DefaultPerPage = 100
	// DefaultRef is the navigation reference Goodreads adds to shelf links
	DefaultRef = "nav_mybooks"

	defaultUserAgent = "shelfsource/1.0"
)

// Transport fetches a page and reports its HTTP status
type Transport interface {
	Fetch(ctx context.Context, pageURL string) (body []byte, status int, err error)
}

// ShelfRequest describes one shelf listing
type ShelfRequest struct {
	UserID  string
	Shelf   string
	PerPage int
	Ref     string
}

// NewShelfRequest returns a request with the default page size and ref
func NewShelfRequest(userID, shelf string) ShelfRequest {
	return ShelfRequest{
		UserID:  userID,
		Shelf:   shelf,
		PerPage: DefaultPerPage,
		Ref:     DefaultRef,
	}
}

// URL builds the shelf listing URL under siteURL
func (r ShelfRequest) URL(siteURL string) (string, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return "", fmt.Errorf("invalid site URL %q: %w", siteURL, err)
	}
	u = u.JoinPath("review", "list", r.UserID)

	q := url.Values{}
	q.Set("ref", r.Ref)
	q.Set("shelf", r.Shelf)
	q.Set("per_page", strconv.Itoa(r.PerPage))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// FetchShelf fetches the HTML of one shelf. Transport failures and non-2xx
// responses are returned as *errors.FetchError.
func FetchShelf(ctx context.Context, transport Transport, siteURL string, req ShelfRequest) ([]byte, error) {
	pageURL, err := req.URL(siteURL)
	if err != nil {
		return nil, shelferrors.NewFetchError(req.Shelf, siteURL, err)
	}

	slog.Debug("Fetching shelf", "shelf", req.Shelf, "url", pageURL)

	body, status, err := transport.Fetch(ctx, pageURL)
	if err != nil {
		return nil, shelferrors.NewFetchError(req.Shelf, pageURL, err)
	}
	if status < 200 || status >= 300 {
		return nil, shelferrors.NewFetchStatusError(req.Shelf, pageURL, status)
	}

	return body, nil
}

// HTTPTransport fetches pages with a plain HTTP client
type HTTPTransport struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPTransport returns a transport with a 30 second timeout
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: defaultUserAgent,
	}
}

// Fetch performs a GET request for pageURL
func (t *HTTPTransport) Fetch(ctx context.Context, pageURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}
