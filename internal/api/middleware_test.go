package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestLimiterStore_Sweep(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &limiterStore{rps: rate.Limit(1), burst: 1, now: func() time.Time { return now }}

	a := s.get("10.0.0.1")
	assert.Same(t, a, s.get("10.0.0.1"))

	now = now.Add(30 * time.Minute)
	s.get("10.0.0.2")

	now = now.Add(45 * time.Minute)
	s.sweep(time.Hour)

	_, ok := s.limiters.Load("10.0.0.1")
	assert.False(t, ok)
	_, ok = s.limiters.Load("10.0.0.2")
	assert.True(t, ok)
}
