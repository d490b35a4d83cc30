package goodreads

import (
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const trimChars = " \t\r\n*"

// dateLayouts are tried in order; the first that parses wins
var dateLayouts = []string{
	"2006",
	"Jan 2006",
	"January 2006",
	"Jan 2, 2006",
	"Jan 02, 2006",
	"January 2, 2006",
	"2006-01-02",
	"01/02/2006",
	"2 Jan 2006",
}

func trimValue(s string) string {
	return strings.Trim(s, trimChars)
}

// textValue returns the trimmed text of the first element matching selector,
// or nil when nothing matches.
func textValue(row *goquery.Selection, selector string) *string {
	found := row.Find(selector).First()
	if found.Length() == 0 {
		return nil
	}
	v := trimValue(found.Text())
	return &v
}

// attrValue returns the trimmed attribute of the first element matching
// selector, or nil when the element or attribute is missing.
func attrValue(row *goquery.Selection, selector, attr string) *string {
	v, ok := row.Find(selector).First().Attr(attr)
	if !ok {
		return nil
	}
	v = trimValue(v)
	return &v
}

// parsePages reads the leading digits of raw. Anything else yields 0.
func parsePages(raw *string) int {
	if raw == nil {
		return 0
	}
	s := trimValue(*raw)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// normalizeDate converts a shelf date column to a UTC calendar date.
// Missing, unknown and unparsable values become SentinelDate.
func normalizeDate(raw *string) time.Time {
	if raw == nil {
		return SentinelDate
	}
	s := trimValue(*raw)
	if s == "" || strings.Contains(strings.ToLower(s), "unknown") {
		return SentinelDate
	}

	// Goodreads sometimes wraps long dates over several lines
	s = strings.Join(strings.Fields(s), " ")

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return SentinelDate
}
