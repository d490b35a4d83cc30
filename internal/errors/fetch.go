package errors

import (
	stdErrors "errors"
	"fmt"
)

// FetchError represents a failed shelf page request (transport failure or non-2xx response).
type FetchError struct {
	Shelf      string
	URL        string
	StatusCode int // 0 when the request never produced a response
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching shelf %q from %s: unexpected status %d", e.Shelf, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching shelf %q from %s: %v", e.Shelf, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a FetchError for a transport-level failure
func NewFetchError(shelf, url string, err error) *FetchError {
	return &FetchError{Shelf: shelf, URL: url, Err: err}
}

// NewFetchStatusError creates a FetchError for a non-success HTTP status
func NewFetchStatusError(shelf, url string, statusCode int) *FetchError {
	return &FetchError{
		Shelf:      shelf,
		URL:        url,
		StatusCode: statusCode,
		Err:        fmt.Errorf("HTTP %d", statusCode),
	}
}

// IsFetchError reports whether err is a FetchError (even when wrapped).
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return stdErrors.As(err, &fetchErr)
}
