package cache

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

// TemplateSource loads stored templates. queue.Store satisfies it.
type TemplateSource interface {
	Template(ctx context.Context, id string) (*queue.Template, error)
}

// Templates serves templates from a cache and loads misses from src.
// Lookup failures are not cached, so a template saved later is picked up on
// the next call.
type Templates struct {
	src   TemplateSource
	cache Cache[queue.Template]
	group singleflight.Group
}

// NewTemplates wraps src with c.
func NewTemplates(src TemplateSource, c Cache[queue.Template]) *Templates {
	return &Templates{src: src, cache: c}
}

// Template returns the template with id.
func (t *Templates) Template(ctx context.Context, id string) (*queue.Template, error) {
	if v, err := t.cache.Get(ctx, id); err == nil {
		return &v, nil
	}

	v, err, _ := t.group.Do(id, func() (any, error) {
		tmpl, err := t.src.Template(ctx, id)
		if err != nil {
			return nil, err
		}
		_ = t.cache.Set(ctx, id, *tmpl)
		return *tmpl, nil
	})
	if err != nil {
		return nil, err
	}
	tmpl := v.(queue.Template)
	return &tmpl, nil
}

// Invalidate drops id so the next lookup reads the source.
func (t *Templates) Invalidate(ctx context.Context, id string) error {
	if err := t.cache.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
