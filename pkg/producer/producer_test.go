package producer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailpipe/pkg/producer"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
	"github.com/dmitrymomot/mailpipe/pkg/queue/memstore"
	"github.com/dmitrymomot/mailpipe/pkg/segment"
)

// recordingStore records the size of every CreateItems call and can fail
// after a number of successful calls.
type recordingStore struct {
	queue.Store
	mu        sync.Mutex
	batches   []int
	failAfter int
}

func (s *recordingStore) CreateItems(ctx context.Context, items []*queue.Item) error {
	s.mu.Lock()
	if s.failAfter > 0 && len(s.batches) == s.failAfter {
		s.mu.Unlock()
		return errors.New("store unavailable")
	}
	s.batches = append(s.batches, len(items))
	s.mu.Unlock()
	return s.Store.CreateItems(ctx, items)
}

func members(n int, noEmail func(i int) bool) []segment.Member {
	out := make([]segment.Member, n)
	for i := range out {
		out[i] = segment.Member{ID: fmt.Sprintf("u%05d", i), Name: fmt.Sprintf("User %d", i), Plan: segment.PlanFree}
		if noEmail == nil || !noEmail(i) {
			out[i].Email = fmt.Sprintf("u%05d@example.com", i)
		}
	}
	return out
}

func newItems(n int) []*queue.Item {
	items := make([]*queue.Item, n)
	for i := range items {
		items[i] = &queue.Item{ID: fmt.Sprintf("i%05d", i), To: "a@x.com", Status: queue.StatusPending, Priority: queue.PriorityBulk}
	}
	return items
}

func TestPersonalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Hi Ann, you are a@x.com",
		producer.Personalize("Hi {{name}}, you are {{email}}", "Ann", "a@x.com", producer.CampaignFallbackName))
	assert.Equal(t, "Hi Friend, you are a@x.com",
		producer.Personalize("Hi {{name}}, you are {{email}}", "", "a@x.com", producer.CampaignFallbackName))
	assert.Equal(t, "Hi Creator {{plan}}",
		producer.Personalize("Hi {{name}} {{plan}}", "", "a@x.com", producer.WelcomeFallbackName))
}

func TestBuildCampaignItems(t *testing.T) {
	t.Parallel()

	ms := []segment.Member{
		{ID: "1", Email: "a@x.com", Name: "Ann"},
		{ID: "2", Name: "No Mail"},
		{ID: "3", Email: "c@x.com"},
	}
	items := producer.BuildCampaignItems("camp", "News", "<p>Hi {{name}} ({{email}})</p>", ms)

	require.Len(t, items, 2)
	assert.Equal(t, "<p>Hi Ann (a@x.com)</p>", items[0].HTML)
	assert.Equal(t, "<p>Hi Friend (c@x.com)</p>", items[1].HTML)
	for _, it := range items {
		assert.Equal(t, "News", it.Subject)
		assert.Equal(t, queue.PriorityBulk, it.Priority)
		assert.Equal(t, queue.StatusPending, it.Status)
		assert.Zero(t, it.RetryCount)
		assert.Equal(t, "camp", it.CampaignID)
		require.NoError(t, it.Validate())
	}
}

func TestEnqueuer_Chunks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		chunk int
		items int
		want  []int
	}{
		{name: "default", chunk: 0, items: 1000, want: []int{400, 400, 200}},
		{name: "exact multiple", chunk: 0, items: 800, want: []int{400, 400}},
		{name: "at limit falls back", chunk: queue.MaxBatchWrite, items: 500, want: []int{400, 100}},
		{name: "custom", chunk: 150, items: 320, want: []int{150, 150, 20}},
		{name: "empty", chunk: 0, items: 0, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &recordingStore{Store: memstore.New()}
			enq, err := producer.NewEnqueuer(store, producer.WithChunkSize(tt.chunk))
			require.NoError(t, err)

			n, err := enq.Enqueue(context.Background(), newItems(tt.items))
			require.NoError(t, err)
			assert.Equal(t, tt.items, n)
			assert.Equal(t, tt.want, store.batches)
		})
	}
}

func TestEnqueuer_PartialFailure(t *testing.T) {
	t.Parallel()

	store := &recordingStore{Store: memstore.New(), failAfter: 1}
	enq, err := producer.NewEnqueuer(store)
	require.NoError(t, err)

	n, err := enq.Enqueue(context.Background(), newItems(900))
	require.ErrorIs(t, err, producer.ErrEnqueue)
	assert.Equal(t, 400, n)
}

func newCampaigns(t *testing.T, dir *segment.MemDirectory, opts ...producer.Option) (*producer.Campaigns, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	resolver, err := segment.NewResolver(dir)
	require.NoError(t, err)
	c, err := producer.NewCampaigns(store, resolver, opts...)
	require.NoError(t, err)
	return c, store
}

func TestCampaigns_Create_AllUsersCap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := segment.NewMemDirectory(members(10_000, func(i int) bool { return i%10 == 0 })...)
	c, store := newCampaigns(t, dir)

	res, err := c.Create(ctx, producer.CampaignRequest{
		Name: "Launch", Subject: "Big news", Segment: segment.AllUsers, Content: "<p>Hi {{name}}</p>", CreatedBy: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, 450, res.UsersQueued)
	assert.Equal(t, 9500, res.Deferred)
	assert.False(t, res.FanoutScheduled)

	camp, err := store.GetCampaign(ctx, res.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 500, camp.Stats.Total)
	assert.Equal(t, 450, camp.Stats.Queued)
	assert.Equal(t, queue.CampaignSending, camp.Status)
	assert.Equal(t, "admin", camp.CreatedBy)

	items := store.Items()
	require.Len(t, items, 450)
	for _, it := range items {
		assert.Equal(t, res.CampaignID, it.CampaignID)
		assert.Equal(t, queue.PriorityBulk, it.Priority)
	}
}

func TestCampaigns_Create_Validation(t *testing.T) {
	t.Parallel()

	c, store := newCampaigns(t, segment.NewMemDirectory(members(5, nil)...))

	for name, req := range map[string]producer.CampaignRequest{
		"no name":    {Subject: "s", Content: "c"},
		"no subject": {Name: "n", Content: "c"},
		"no content": {Name: "n", Subject: "s"},
	} {
		_, err := c.Create(context.Background(), req)
		assert.ErrorIs(t, err, producer.ErrValidation, name)
	}
	assert.Empty(t, store.Items())
}

func TestCampaigns_Create_NoReachableRecipients(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, store := newCampaigns(t, segment.NewMemDirectory(members(3, func(int) bool { return true })...))

	res, err := c.Create(ctx, producer.CampaignRequest{Name: "n", Subject: "s", Content: "c", Segment: segment.FreeUsers})
	require.NoError(t, err)
	assert.Zero(t, res.UsersQueued)

	camp, err := store.GetCampaign(ctx, res.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 3, camp.Stats.Total)
	assert.Equal(t, queue.CampaignCompleted, camp.Status)
}

type fanoutRecorder struct {
	mu      sync.Mutex
	cursors []producer.FanoutCursor
}

func (f *fanoutRecorder) ScheduleFanout(_ context.Context, cur producer.FanoutCursor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cur)
	return nil
}

func TestCampaigns_ResumableFanout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fanout := &fanoutRecorder{}
	c, store := newCampaigns(t, segment.NewMemDirectory(members(1234, nil)...), producer.WithFanout(fanout))

	res, err := c.Create(ctx, producer.CampaignRequest{Name: "n", Subject: "s", Content: "c", Segment: segment.AllUsers})
	require.NoError(t, err)
	assert.Equal(t, 500, res.UsersQueued)
	assert.Equal(t, 734, res.Deferred)
	require.True(t, res.FanoutScheduled)
	require.Len(t, fanout.cursors, 1)
	assert.Equal(t, "u00499", fanout.cursors[0].After)

	cur := &fanout.cursors[0]
	pages := 0
	for cur != nil {
		next, n, err := c.Continue(ctx, *cur)
		require.NoError(t, err)
		assert.Positive(t, n)
		cur = next
		pages++
	}
	assert.Equal(t, 2, pages)

	camp, err := store.GetCampaign(ctx, res.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 1234, camp.Stats.Total)
	assert.Equal(t, 1234, camp.Stats.Queued)
	assert.Len(t, store.Items(), 1234)

	_, _, err = c.Continue(ctx, producer.FanoutCursor{})
	require.ErrorIs(t, err, producer.ErrFanoutCursor)
}

func TestNewCampaigns_RequiresDependencies(t *testing.T) {
	t.Parallel()

	resolver, err := segment.NewResolver(segment.NewMemDirectory())
	require.NoError(t, err)

	_, err = producer.NewCampaigns(nil, resolver)
	require.ErrorIs(t, err, producer.ErrNilStore)
	_, err = producer.NewCampaigns(memstore.New(), nil)
	require.ErrorIs(t, err, producer.ErrNilResolver)
}
