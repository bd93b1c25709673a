package segment_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailpipe/pkg/segment"
)

func directory(n int, plan func(i int) string) *segment.MemDirectory {
	members := make([]segment.Member, n)
	for i := range members {
		members[i] = segment.Member{
			ID:    fmt.Sprintf("u%05d", i),
			Email: fmt.Sprintf("u%05d@example.com", i),
			Name:  fmt.Sprintf("User %d", i),
			Plan:  plan(i),
		}
	}
	return segment.NewMemDirectory(members...)
}

func byThirds(i int) string {
	switch i % 3 {
	case 0:
		return segment.PlanFree
	case 1:
		return segment.PlanPro
	default:
		return segment.PlanProPlus
	}
}

func TestResolve_Policy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, err := segment.NewResolver(directory(10_000, byThirds))
	require.NoError(t, err)

	tests := []struct {
		segment string
		want    int
	}{
		{segment: segment.AllUsers, want: 500},
		{segment: "", want: 100},
		{segment: "vip_users", want: 100},
		{segment: segment.FreeUsers, want: 3334},
		{segment: segment.ProUsers, want: 6666},
	}

	for _, tt := range tests {
		t.Run("segment "+tt.segment, func(t *testing.T) {
			t.Parallel()

			members, err := r.Resolve(ctx, tt.segment)
			require.NoError(t, err)
			assert.Len(t, members, tt.want)
		})
	}
}

func TestResolve_PlanFilterAndOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, err := segment.NewResolver(directory(30, byThirds))
	require.NoError(t, err)

	pro, err := r.Resolve(ctx, segment.ProUsers)
	require.NoError(t, err)
	for i, m := range pro {
		assert.Contains(t, []string{segment.PlanPro, segment.PlanProPlus}, m.Plan)
		if i > 0 {
			assert.Less(t, pro[i-1].ID, m.ID)
		}
	}

	free, err := r.Resolve(ctx, segment.FreeUsers)
	require.NoError(t, err)
	for _, m := range free {
		assert.Equal(t, segment.PlanFree, m.Plan)
	}
}

func TestResolve_KeepsMembersWithoutEmail(t *testing.T) {
	t.Parallel()

	r, err := segment.NewResolver(segment.NewMemDirectory(
		segment.Member{ID: "a", Email: "a@x.com"},
		segment.Member{ID: "b"},
	))
	require.NoError(t, err)

	members, err := r.Resolve(context.Background(), segment.AllUsers)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestSizeAndPage_WalkPastCap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, err := segment.NewResolver(directory(1234, func(int) string { return segment.PlanFree }))
	require.NoError(t, err)

	size, err := r.Size(ctx, segment.AllUsers)
	require.NoError(t, err)
	assert.Equal(t, 1234, size)

	first, err := r.Resolve(ctx, segment.AllUsers)
	require.NoError(t, err)

	seen := len(first)
	cursor := first[len(first)-1].ID
	for {
		page, err := r.Page(ctx, segment.AllUsers, cursor, 400)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		assert.Greater(t, page[0].ID, cursor)
		seen += len(page)
		cursor = page[len(page)-1].ID
	}
	assert.Equal(t, size, seen)
}

type failingDirectory struct{}

func (failingDirectory) QueryUsers(context.Context, segment.Filter) ([]segment.Member, error) {
	return nil, errors.New("down")
}

func (failingDirectory) CountUsers(context.Context, segment.Filter) (int, error) {
	return 0, errors.New("down")
}

func TestResolver_Errors(t *testing.T) {
	t.Parallel()

	_, err := segment.NewResolver(nil)
	require.ErrorIs(t, err, segment.ErrNilDirectory)

	r, err := segment.NewResolver(failingDirectory{})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), segment.ProUsers)
	require.ErrorIs(t, err, segment.ErrQueryUsers)

	_, err = r.Size(context.Background(), segment.ProUsers)
	require.ErrorIs(t, err, segment.ErrCountUsers)
}

func TestFilterFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, segment.Filter{Limit: 500}, segment.FilterFor(segment.AllUsers))
	assert.Equal(t, segment.Filter{Limit: 100}, segment.FilterFor("unknown"))
	assert.Equal(t, []string{"pro", "pro_plus"}, segment.FilterFor(segment.ProUsers).Plans)
	assert.Zero(t, segment.FilterFor(segment.ProUsers).Limit)
}
