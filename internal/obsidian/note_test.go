package obsidian

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarkdown(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTitle string
		wantTags  []string
		wantBody  string
	}{
		{
			name: "flow tags",
			input: `---
title: Dune
tags: [goodreads/read, read]
pages: 412
---
Body text.`,
			wantTitle: "Dune",
			wantTags:  []string{"goodreads/read", "read"},
			wantBody:  "Body text.",
		},
		{
			name: "block tags",
			input: `---
title: Dune
tags:
  - a
  - b
---
Body.`,
			wantTitle: "Dune",
			wantTags:  []string{"a", "b"},
			wantBody:  "Body.",
		},
		{
			name:     "no frontmatter",
			input:    "Just a body.",
			wantTags: []string{},
			wantBody: "Just a body.",
		},
		{
			name:     "empty frontmatter",
			input:    "---\n---\nBody.",
			wantTags: []string{},
			wantBody: "Body.",
		},
		{
			name:     "unterminated frontmatter",
			input:    "---\ntitle: Dune\nBody.",
			wantTags: []string{},
			wantBody: "---\ntitle: Dune\nBody.",
		},
		{
			name:      "windows line endings",
			input:     "---\r\ntitle: Dune\r\n---\r\nBody.",
			wantTitle: "Dune",
			wantTags:  []string{},
			wantBody:  "Body.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			note, err := ParseMarkdown([]byte(tt.input))
			require.NoError(t, err)

			assert.Equal(t, tt.wantTitle, note.Frontmatter.GetString("title"))
			tags, _ := note.Frontmatter.Get("tags")
			assert.Equal(t, tt.wantTags, TagsFromAny(tags))
			assert.Equal(t, tt.wantBody, note.Body)
		})
	}
}

func TestParseMarkdown_InvalidYAML(t *testing.T) {
	_, err := ParseMarkdown([]byte("---\ntitle: [unclosed\n---\nbody"))
	require.Error(t, err)
}

func TestFrontmatter_SetKeepsKeysSorted(t *testing.T) {
	fm := NewFrontmatter()
	fm.Set("shelf", "read")
	fm.Set("author", "Frank Herbert")
	fm.Set("isbn13", "9780441013593")
	fm.Set("author", "F. Herbert")

	assert.Equal(t, []string{"author", "isbn13", "shelf"}, fm.Keys())
	assert.Equal(t, "F. Herbert", fm.GetString("author"))

	fm.Set("pages", 412)
	assert.Empty(t, fm.GetString("pages"))
	val, ok := fm.Get("pages")
	assert.True(t, ok)
	assert.Equal(t, 412, val)
}

func TestNoteBuild(t *testing.T) {
	fm := NewFrontmatterWithTitle("Dune")
	fm.Set("pages", 412)
	tags := NewTagSet()
	tags.Add("goodreads/read")
	tags.Add("read")
	ApplyTagSet(fm, tags)

	out, err := BuildNoteMarkdown(fm, "\n  body  \n")
	require.NoError(t, err)

	assert.Equal(t, "---\npages: 412\ntags: [goodreads/read, read]\ntitle: Dune\n---\nbody\n", string(out))
}

func TestNoteBuild_NoFrontmatter(t *testing.T) {
	note := &Note{Frontmatter: NewFrontmatter(), Body: "body"}
	out, err := note.Build()
	require.NoError(t, err)
	assert.Equal(t, "body", string(out))
}

func TestRoundTrip(t *testing.T) {
	fm := NewFrontmatterWithTitle("Dune")
	fm.Set("content_digest", "0123abcd")
	out, err := BuildNoteMarkdown(fm, "body")
	require.NoError(t, err)

	note, err := ParseMarkdown(out)
	require.NoError(t, err)
	assert.Equal(t, "Dune", note.Frontmatter.GetString("title"))
	assert.Equal(t, "0123abcd", note.Frontmatter.GetString("content_digest"))
	assert.Equal(t, "body\n", note.Body)
}
