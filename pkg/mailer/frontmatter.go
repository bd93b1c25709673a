package mailer

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Template is a parsed catalog entry.
type Template struct {
	Metadata map[string]any
	Body     string
}

// Subject returns the Subject frontmatter key, if any.
func (t *Template) Subject() string {
	s, _ := t.Metadata["Subject"].(string)
	return s
}

var fence = []byte("---")

// ParseTemplate splits optional YAML frontmatter from a markdown body.
// Content without a leading --- fence is all body.
func ParseTemplate(content []byte) (*Template, error) {
	if !bytes.HasPrefix(content, fence) {
		return &Template{Metadata: map[string]any{}, Body: string(content)}, nil
	}

	rest := bytes.TrimLeft(content[len(fence):], "\r\n")
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: empty after opening fence", ErrInvalidFrontmatter)
	}

	end := bytes.Index(rest, fence)
	if end == -1 {
		return nil, fmt.Errorf("%w: closing fence not found", ErrInvalidFrontmatter)
	}

	head := rest[:end]
	body := rest[end+len(fence):]
	body = bytes.TrimPrefix(body, []byte("\r"))
	body = bytes.TrimPrefix(body, []byte("\n"))

	meta := map[string]any{}
	if len(bytes.TrimSpace(head)) > 0 {
		if err := yaml.Unmarshal(head, &meta); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}
	return &Template{Metadata: meta, Body: string(body)}, nil
}
