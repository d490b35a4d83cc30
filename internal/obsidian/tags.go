package obsidian

import (
	"regexp"
	"sort"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	hyphenRun     = regexp.MustCompile(`-+`)
)

// NormalizeTag converts tag to Obsidian form: no leading '#', whitespace
// replaced by hyphens, repeated hyphens collapsed. Case and '/' hierarchy
// separators are preserved. Returns "" when nothing is left.
func NormalizeTag(tag string) string {
	tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
	if tag == "" {
		return ""
	}

	tag = strings.ReplaceAll(tag, "&", "and")
	tag = strings.ReplaceAll(tag, "#", "")
	tag = whitespaceRun.ReplaceAllString(tag, "-")
	tag = hyphenRun.ReplaceAllString(tag, "-")
	return strings.Trim(tag, "-")
}

// TagSet collects normalized, de-duplicated tags.
type TagSet struct {
	tags map[string]bool
}

// NewTagSet creates an empty TagSet.
func NewTagSet() *TagSet {
	return &TagSet{tags: make(map[string]bool)}
}

// Add normalizes tag and adds it unless it is empty.
func (ts *TagSet) Add(tag string) {
	if normalized := NormalizeTag(tag); normalized != "" {
		ts.tags[normalized] = true
	}
}

// AddIf adds tag when condition holds.
func (ts *TagSet) AddIf(condition bool, tag string) {
	if condition {
		ts.Add(tag)
	}
}

// GetSorted returns the tags in sorted order.
func (ts *TagSet) GetSorted() []string {
	result := make([]string, 0, len(ts.tags))
	for tag := range ts.tags {
		result = append(result, tag)
	}
	sort.Strings(result)
	return result
}

// TagsFromAny reads a tag list decoded from YAML, which may be []string or []any.
func TagsFromAny(val any) []string {
	result := []string{}
	switch v := val.(type) {
	case []string:
		for _, s := range v {
			if s != "" {
				result = append(result, s)
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				result = append(result, s)
			}
		}
	}
	return result
}
