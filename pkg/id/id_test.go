package id_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailpipe/pkg/id"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("length and alphabet", func(t *testing.T) {
		t.Parallel()

		v := id.New()
		assert.Len(t, v, id.ULIDLen)
		require.Regexp(t, regexp.MustCompile(`^[0-9A-HJ-NP-TV-Z]+$`), v)
	})

	t.Run("unique", func(t *testing.T) {
		t.Parallel()

		seen := make(map[string]struct{}, 1000)
		for range 1000 {
			v := id.New()
			_, dup := seen[v]
			require.False(t, dup, "duplicate id %s", v)
			seen[v] = struct{}{}
		}
	})
}

func TestNewAt_SortsByTime(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := id.NewAt(base)
	b := id.NewAt(base.Add(time.Millisecond))
	c := id.NewAt(base.Add(time.Hour))

	assert.Less(t, a, b)
	assert.Less(t, b, c)
	assert.Equal(t, a[:10], id.NewAt(base)[:10])
}

func TestToken(t *testing.T) {
	t.Parallel()

	a, b := id.Token(), id.Token()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
