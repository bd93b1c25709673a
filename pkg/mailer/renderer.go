package mailer

import (
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Message is a rendered template.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer turns catalog templates into messages.
type Renderer struct {
	fs     fs.FS
	md     goldmark.Markdown
	cache  map[string]*Template
	layout string
	mu     sync.RWMutex
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithLayout wraps rendered HTML in the named layout file. The layout's
// {{content}} placeholder receives the body; the other placeholders are
// filled from the render vars.
func WithLayout(name string) RendererOption {
	return func(r *Renderer) {
		r.layout = name
	}
}

// NewRenderer creates a renderer reading templates from fsys.
func NewRenderer(fsys fs.FS, opts ...RendererOption) *Renderer {
	r := &Renderer{
		fs:    fsys,
		cache: make(map[string]*Template),
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render renders the named template. Markdown is converted first and the
// placeholders are substituted afterwards, so values are inserted verbatim.
func (r *Renderer) Render(name string, vars Vars) (*Message, error) {
	tmpl, err := r.template(name)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(tmpl.Body), &buf); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
	}

	subject := Substitute(tmpl.Subject(), vars...)
	body := Substitute(buf.String(), vars...)

	if r.layout != "" {
		layout, err := fs.ReadFile(r.fs, r.layout)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLayoutNotFound, r.layout, err)
		}
		page := Substitute(string(layout), append(Vars{{Key: "subject", Value: subject}}, vars...)...)
		body = Substitute(page, Var{Key: "content", Value: body})
	}

	return &Message{
		Subject: subject,
		HTML:    body,
		Text:    Substitute(tmpl.Body, vars...),
	}, nil
}

func (r *Renderer) template(name string) (*Template, error) {
	r.mu.RLock()
	t, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	content, err := fs.ReadFile(r.fs, path.Clean(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, name, err)
	}
	t, err = ParseTemplate(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
	}

	r.mu.Lock()
	r.cache[name] = t
	r.mu.Unlock()
	return t, nil
}
