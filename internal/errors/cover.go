package errors

import (
	stdErrors "errors"
	"fmt"
)

// CoverError represents a failure to materialize a book's cover image locally.
type CoverError struct {
	ISBN string
	URL  string
	Err  error
}

func (e *CoverError) Error() string {
	if e.ISBN == "" {
		return fmt.Sprintf("resolving cover %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("resolving cover for ISBN %s (%s): %v", e.ISBN, e.URL, e.Err)
}

func (e *CoverError) Unwrap() error {
	return e.Err
}

// NewCoverError wraps a materialization failure with the book it belongs to
func NewCoverError(isbn, url string, err error) *CoverError {
	return &CoverError{ISBN: isbn, URL: url, Err: err}
}

// IsCoverError reports whether err is a CoverError (even when wrapped).
func IsCoverError(err error) bool {
	var coverErr *CoverError
	return stdErrors.As(err, &coverErr)
}
