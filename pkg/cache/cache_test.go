package cache_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailpipe/pkg/cache"
	"github.com/dmitrymomot/mailpipe/pkg/id"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

type countingSource struct {
	tmpl  *queue.Template
	calls atomic.Int32
	wait  chan struct{}
}

func (s *countingSource) Template(_ context.Context, tid string) (*queue.Template, error) {
	s.calls.Add(1)
	if s.wait != nil {
		<-s.wait
	}
	if s.tmpl == nil || s.tmpl.ID != tid {
		return nil, queue.ErrTemplateNotFound
	}
	cp := *s.tmpl
	return &cp, nil
}

func TestTemplates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("caches hits", func(t *testing.T) {
		t.Parallel()

		src := &countingSource{tmpl: &queue.Template{ID: "welcome_email", Subject: "Hi", BodyHTML: "<p>{{name}}</p>"}}
		tpl := cache.NewTemplates(src, cache.NewMemory[queue.Template](time.Minute, 10))

		for range 3 {
			got, err := tpl.Template(ctx, "welcome_email")
			require.NoError(t, err)
			assert.Equal(t, "Hi", got.Subject)
		}
		assert.EqualValues(t, 1, src.calls.Load())

		require.NoError(t, tpl.Invalidate(ctx, "welcome_email"))
		_, err := tpl.Template(ctx, "welcome_email")
		require.NoError(t, err)
		assert.EqualValues(t, 2, src.calls.Load())
	})

	t.Run("does not cache misses", func(t *testing.T) {
		t.Parallel()

		src := &countingSource{}
		tpl := cache.NewTemplates(src, cache.NewMemory[queue.Template](time.Minute, 10))

		for range 2 {
			_, err := tpl.Template(ctx, "welcome_email")
			assert.ErrorIs(t, err, queue.ErrTemplateNotFound)
		}
		assert.EqualValues(t, 2, src.calls.Load())
	})

	t.Run("collapses concurrent misses", func(t *testing.T) {
		t.Parallel()

		src := &countingSource{
			tmpl: &queue.Template{ID: "t", Subject: "S"},
			wait: make(chan struct{}),
		}
		tpl := cache.NewTemplates(src, cache.NewMemory[queue.Template](time.Minute, 10))

		var wg sync.WaitGroup
		for range 5 {
			wg.Go(func() {
				got, err := tpl.Template(ctx, "t")
				assert.NoError(t, err)
				assert.Equal(t, "S", got.Subject)
			})
		}
		time.Sleep(20 * time.Millisecond)
		close(src.wait)
		wg.Wait()

		assert.LessOrEqual(t, src.calls.Load(), int32(5))
		assert.GreaterOrEqual(t, src.calls.Load(), int32(1))
	})
}

func TestNewRedis_NilClient(t *testing.T) {
	t.Parallel()

	_, err := cache.NewRedis[queue.Template](nil, "tpl", time.Minute)
	assert.ErrorIs(t, err, cache.ErrNilClient)
}

func TestRedis(t *testing.T) {
	url := os.Getenv("MAILPIPE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MAILPIPE_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	c, err := cache.NewRedis[queue.Template](client, "mailpipe:test:"+id.New(), time.Minute)
	require.NoError(t, err)

	_, err = c.Get(ctx, "welcome_email")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	want := queue.Template{ID: "welcome_email", Subject: "Hi", BodyHTML: "<p>x</p>"}
	require.NoError(t, c.Set(ctx, "welcome_email", want))
	got, err := c.Get(ctx, "welcome_email")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, c.Delete(ctx, "welcome_email"))
	_, err = c.Get(ctx, "welcome_email")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}
