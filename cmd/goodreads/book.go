package goodreads

import "time"

// SentinelDate stands in for dates that are missing, unknown or unparsable
var SentinelDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Book is a single row of a Goodreads shelf
type Book struct {
	Title  *string `json:"title"`
	Author *string `json:"author"`
	ISBN   *string `json:"isbn"`
	ISBN13 *string `json:"isbn13"`
	ASIN   *string `json:"asin"`
	Pages  int     `json:"pages"`

	Published time.Time `json:"published"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`

	// Cover is the full-size cover image URL
	Cover      string      `json:"cover"`
	CoverImage *CoverImage `json:"coverImage"`
	// URL is the book's detail page
	URL   string `json:"url"`
	Shelf string `json:"shelf"`
}

// CoverImage identifies a cover that has been stored locally
type CoverImage struct {
	FileID   string    `json:"fileNodeID"`
	Path     string    `json:"path"`
	Modified time.Time `json:"modified"`
}

// ISBNValue returns the ISBN or an empty string when the book has none
func (b Book) ISBNValue() string {
	return deref(b.ISBN)
}

// DisplayTitle is the title used for notes and logging
func (b Book) DisplayTitle() string {
	if t := deref(b.Title); t != "" {
		return t
	}
	if isbn := b.ISBNValue(); isbn != "" {
		return isbn
	}
	return b.URL
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
