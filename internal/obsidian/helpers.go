package obsidian

import "strings"

// NewFrontmatterWithTitle returns a Frontmatter with its title set.
func NewFrontmatterWithTitle(title string) *Frontmatter {
	fm := NewFrontmatter()
	fm.Set("title", title)
	return fm
}

// ApplyTagSet stores the sorted tags under "tags".
func ApplyTagSet(fm *Frontmatter, tags *TagSet) {
	fm.Set("tags", tags.GetSorted())
}

// BuildNoteMarkdown renders fm and the trimmed body, ending with a newline.
func BuildNoteMarkdown(fm *Frontmatter, body string) ([]byte, error) {
	note := &Note{
		Frontmatter: fm,
		Body:        strings.TrimSpace(body) + "\n",
	}
	return note.Build()
}
