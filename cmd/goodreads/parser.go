package goodreads

import (
	"bytes"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the shelf table. Each row is a "bookalike" table row whose
// cells are classed "field <name>".
const (
	rowSelector       = "#booksBody .bookalike"
	coverImgSelector  = "td.field.cover img"
	coverLinkSelector = "td.field.cover a"
	titleSelector     = "td.field.title a"
	authorSelector    = "td.field.author .value"
	isbnSelector      = "td.field.isbn .value"
	isbn13Selector    = "td.field.isbn13 .value"
	asinSelector      = "td.field.asin .value"
	pagesSelector     = "td.field.num_pages .value"
	publishedSelector = "td.field.date_pub .value"
	startedSelector   = "td.field.date_started .date_started_value"
	finishedSelector  = "td.field.date_read .date_read_value"
)

// thumbnailToken is the size suffix in cover thumbnail URLs, e.g. "._SX98_"
var thumbnailToken = regexp.MustCompile(`\._\w+\d+_`)

// ParseStats counts what the parser saw
type ParseStats struct {
	Rows    int
	Books   int
	Skipped int
}

// Row is a parsed shelf row
type Row struct {
	// Index is the row's position among all rows on the page
	Index int
	Book  Book
}

// Document is one parsed shelf page
type Document struct {
	doc      *goquery.Document
	site     *url.URL
	shelf    string
	stats    ParseStats
	consumed bool
}

// Parse builds a Document from shelf page HTML. Relative links are resolved
// against siteURL.
func Parse(html []byte, siteURL, shelf string) (*Document, error) {
	site, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid site URL %q: %w", siteURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse shelf HTML: %w", err)
	}

	return &Document{doc: doc, site: site, shelf: shelf}, nil
}

// Stats returns the counts accumulated so far
func (d *Document) Stats() ParseStats {
	return d.stats
}

// Rows yields one Row per usable book in document order. Rows without a
// cover image or detail link are skipped. The sequence can be consumed once.
func (d *Document) Rows() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		if d.consumed {
			return
		}
		d.consumed = true

		rows := d.doc.Find(rowSelector)
		for i := range rows.Length() {
			d.stats.Rows++
			sel := rows.Eq(i)

			book, ok := d.extract(sel)
			if !ok {
				d.stats.Skipped++
				slog.Debug("Skipping shelf row without cover or link", "shelf", d.shelf, "row", i)
				continue
			}

			d.stats.Books++
			if !yield(Row{Index: i, Book: book}) {
				return
			}
		}
	}
}

func (d *Document) extract(row *goquery.Selection) (Book, bool) {
	src := attrValue(row, coverImgSelector, "src")
	href := attrValue(row, coverLinkSelector, "href")
	if src == nil || *src == "" || href == nil || *href == "" {
		return Book{}, false
	}

	book := Book{
		Title:     attrValue(row, titleSelector, "title"),
		Author:    textValue(row, authorSelector),
		ISBN:      textValue(row, isbnSelector),
		ISBN13:    textValue(row, isbn13Selector),
		ASIN:      textValue(row, asinSelector),
		Pages:     parsePages(textValue(row, pagesSelector)),
		Published: normalizeDate(textValue(row, publishedSelector)),
		Started:   normalizeDate(textValue(row, startedSelector)),
		Finished:  normalizeDate(textValue(row, finishedSelector)),
		Cover:     d.absolute(fullSizeCover(*src)),
		URL:       d.absolute(*href),
		Shelf:     d.shelf,
	}
	return book, true
}

// fullSizeCover strips the first thumbnail size token from a cover URL
func fullSizeCover(src string) string {
	loc := thumbnailToken.FindStringIndex(src)
	if loc == nil {
		return src
	}
	return src[:loc[0]] + src[loc[1]:]
}

func (d *Document) absolute(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return d.site.ResolveReference(u).String()
}
