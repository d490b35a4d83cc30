package obsidian

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Note is a markdown document with YAML frontmatter.
type Note struct {
	Frontmatter *Frontmatter
	Body        string
}

// Frontmatter holds note metadata. Keys are kept sorted so output is deterministic.
type Frontmatter struct {
	fields map[string]any
	keys   []string
}

// NewFrontmatter creates an empty Frontmatter.
func NewFrontmatter() *Frontmatter {
	return &Frontmatter{fields: make(map[string]any)}
}

// ParseMarkdown splits content into frontmatter and body. A document
// without a complete frontmatter block is all body.
func ParseMarkdown(content []byte) (*Note, error) {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")

	if !strings.HasPrefix(text, "---\n") {
		return &Note{Frontmatter: NewFrontmatter(), Body: text}, nil
	}

	rest := text[len("---\n"):]
	var header, body string
	switch {
	case strings.HasPrefix(rest, "---\n"):
		body = rest[len("---\n"):]
	default:
		end := strings.Index(rest, "\n---\n")
		if end == -1 {
			return &Note{Frontmatter: NewFrontmatter(), Body: text}, nil
		}
		header = rest[:end]
		body = rest[end+len("\n---\n"):]
	}

	var data map[string]any
	if err := yaml.Unmarshal([]byte(header), &data); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	fm := NewFrontmatter()
	for key, value := range data {
		fm.Set(key, value)
	}

	return &Note{Frontmatter: fm, Body: strings.TrimPrefix(body, "\n")}, nil
}

// Build renders the note. Frontmatter is omitted when empty.
func (n *Note) Build() ([]byte, error) {
	var buf bytes.Buffer

	if n.Frontmatter != nil && len(n.Frontmatter.keys) > 0 {
		header, err := yaml.Marshal(n.Frontmatter)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal frontmatter: %w", err)
		}
		buf.WriteString("---\n")
		buf.Write(header)
		buf.WriteString("---\n")
	}

	buf.WriteString(n.Body)
	return buf.Bytes(), nil
}

// Get returns the value stored under key.
func (f *Frontmatter) Get(key string) (any, bool) {
	val, ok := f.fields[key]
	return val, ok
}

// Set stores value under key.
func (f *Frontmatter) Set(key string, value any) {
	if _, exists := f.fields[key]; !exists {
		f.keys = append(f.keys, key)
		sort.Strings(f.keys)
	}
	f.fields[key] = value
}

// GetString returns the string stored under key, or "" for missing and non-string values.
func (f *Frontmatter) GetString(key string) string {
	str, _ := f.fields[key].(string)
	return str
}

// Keys returns a copy of the sorted keys.
func (f *Frontmatter) Keys() []string {
	return append([]string(nil), f.keys...)
}

// MarshalYAML writes keys in sorted order with tags as a flow sequence.
func (f *Frontmatter) MarshalYAML() (any, error) {
	node := &yaml.Node{
		Kind:    yaml.MappingNode,
		Content: make([]*yaml.Node, 0, len(f.keys)*2),
	}

	for _, key := range f.keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}

		valueNode := &yaml.Node{}
		if key == "tags" {
			valueNode.Kind = yaml.SequenceNode
			valueNode.Style = yaml.FlowStyle
			for _, tag := range TagsFromAny(f.fields[key]) {
				valueNode.Content = append(valueNode.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: tag})
			}
		} else if err := valueNode.Encode(f.fields[key]); err != nil {
			return nil, err
		}

		node.Content = append(node.Content, keyNode, valueNode)
	}

	return node, nil
}
