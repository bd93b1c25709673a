package memstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailpipe/pkg/queue"
	"github.com/dmitrymomot/mailpipe/pkg/queue/memstore"
)

func newItem(id string, priority int) *queue.Item {
	return &queue.Item{
		ID:       id,
		To:       id + "@example.com",
		Subject:  "hello",
		HTML:     "<p>hello</p>",
		Status:   queue.StatusPending,
		Priority: priority,
	}
}

func TestCreateItems_AssignsMonotonicTimestamps(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := memstore.New(memstore.WithClock(func() time.Time { return fixed }))

	items := []*queue.Item{newItem("a", 5), newItem("b", 5), newItem("c", 5)}
	require.NoError(t, s.CreateItems(context.Background(), items))

	assert.True(t, items[0].CreatedAt.Before(items[1].CreatedAt))
	assert.True(t, items[1].CreatedAt.Before(items[2].CreatedAt))
	assert.Less(t, items[0].Seq, items[1].Seq)
}

func TestCreateItems_IsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memstore.New()

	require.NoError(t, s.CreateItems(ctx, []*queue.Item{newItem("a", 5)}))

	err := s.CreateItems(ctx, []*queue.Item{newItem("b", 5), newItem("a", 5)})
	require.ErrorIs(t, err, queue.ErrDuplicateID)

	_, err = s.GetItem(ctx, "b")
	require.ErrorIs(t, err, queue.ErrNotFound)
}

func TestCreateItems_RejectsOversizedBatch(t *testing.T) {
	t.Parallel()

	items := make([]*queue.Item, queue.MaxBatchWrite+1)
	for i := range items {
		items[i] = newItem(fmt.Sprintf("i%03d", i), 5)
	}

	err := memstore.New().CreateItems(context.Background(), items)
	require.ErrorIs(t, err, queue.ErrBatchTooLarge)
}

func TestClaim_OrderLimitAndDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	s := memstore.New()

	later := now.Add(5 * time.Minute)
	deferred := newItem("deferred", 1)
	require.NoError(t, s.CreateItems(ctx, []*queue.Item{newItem("bulk", 5), newItem("tx", 1)}))
	require.NoError(t, s.CreateItems(ctx, []*queue.Item{deferred}))

	// Push the deferred item's retry time into the future via a retry commit.
	claimed, err := s.Claim(ctx, queue.ClaimParams{Now: now, LeaseUntil: now.Add(time.Minute), Token: "t0", Limit: 3})
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	var rs []queue.Resolution
	for _, it := range claimed {
		r := queue.Resolution{ItemID: it.ID, LeaseToken: "t0", Outcome: queue.OutcomeRetry, RetryCount: 1, LastError: "x"}
		if it.ID == "deferred" {
			r.NextRetryAt = &later
		}
		rs = append(rs, r)
	}
	_, err = s.Commit(ctx, queue.TickCommit{Resolutions: rs})
	require.NoError(t, err)

	claimed, err = s.Claim(ctx, queue.ClaimParams{Now: now, LeaseUntil: now.Add(time.Minute), Token: "t1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "tx", claimed[0].ID)
	assert.Equal(t, "bulk", claimed[1].ID)
	for _, it := range claimed {
		assert.Equal(t, queue.StatusInProgress, it.Status)
		assert.Equal(t, "t1", it.LeaseToken)
	}

	claimed, err = s.Claim(ctx, queue.ClaimParams{Now: later, LeaseUntil: later.Add(time.Minute), Token: "t2", Limit: 10})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "deferred", claimed[0].ID)
}

func TestReleaseExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	s := memstore.New()
	require.NoError(t, s.CreateItems(ctx, []*queue.Item{newItem("a", 5)}))

	_, err := s.Claim(ctx, queue.ClaimParams{Now: now, LeaseUntil: now.Add(time.Minute), Token: "t", Limit: 1})
	require.NoError(t, err)

	n, err := s.ReleaseExpired(ctx, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.ReleaseExpired(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	it, err := s.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, it.Status)
	assert.Zero(t, it.RetryCount)
	assert.Empty(t, it.LeaseToken)

	// The stale holder can no longer resolve the item.
	res, err := s.Commit(ctx, queue.TickCommit{Resolutions: []queue.Resolution{
		{ItemID: "a", LeaseToken: "t", Outcome: queue.OutcomeSent, Log: &queue.EmailLog{ID: "l", EmailID: "a"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 1, res.Stale)

	logs, err := s.ListLogs(ctx, queue.LogFilter{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestCommit_CampaignCountersAndCompletion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	s := memstore.New()

	require.NoError(t, s.CreateCampaign(ctx, &queue.Campaign{
		ID:     "camp",
		Status: queue.CampaignSending,
		Stats:  queue.CampaignStats{Total: 3, Queued: 2},
	}))

	a, b := newItem("a", 5), newItem("b", 5)
	a.CampaignID, b.CampaignID = "camp", "camp"
	require.NoError(t, s.CreateItems(ctx, []*queue.Item{a, b}))

	_, err := s.Claim(ctx, queue.ClaimParams{Now: now, LeaseUntil: now.Add(time.Minute), Token: "t", Limit: 2})
	require.NoError(t, err)

	res, err := s.Commit(ctx, queue.TickCommit{Resolutions: []queue.Resolution{
		{ItemID: "a", LeaseToken: "t", CampaignID: "camp", Outcome: queue.OutcomeSent, SentAt: &now, MessageID: "m1"},
		{ItemID: "b", LeaseToken: "t", CampaignID: "camp", Outcome: queue.OutcomeFailed, RetryCount: 3, LastError: "boom"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, []string{"camp"}, res.Completed)

	camp, err := s.GetCampaign(ctx, "camp")
	require.NoError(t, err)
	assert.Equal(t, 1, camp.Stats.Sent)
	assert.Equal(t, 1, camp.Stats.Failed)
	assert.Equal(t, queue.CampaignCompleted, camp.Status)

	sent, err := s.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusSent, sent.Status)
	assert.Equal(t, "m1", sent.MessageID)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[queue.StatusSent])
	assert.Equal(t, 1, counts[queue.StatusFailed])
}

func TestAddCampaignRecipients(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateCampaign(ctx, &queue.Campaign{ID: "c", Status: queue.CampaignCompleted}))

	require.NoError(t, s.AddCampaignRecipients(ctx, "c", 10, 8))
	camp, err := s.GetCampaign(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 10, camp.Stats.Total)
	assert.Equal(t, 8, camp.Stats.Queued)
	assert.Equal(t, queue.CampaignSending, camp.Status)

	require.NoError(t, s.AddCampaignRecipients(ctx, "c", 0, -8))
	camp, err = s.GetCampaign(ctx, "c")
	require.NoError(t, err)
	assert.Zero(t, camp.Stats.Queued)
	assert.Equal(t, queue.CampaignCompleted, camp.Status)

	require.ErrorIs(t, s.AddCampaignRecipients(ctx, "missing", 1, 1), queue.ErrCampaignNotFound)
}

func TestSaveReply(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memstore.New()
	r := &queue.Reply{ID: "r1", From: "a@x.com", Status: queue.ReplyStatusUnread}

	require.NoError(t, s.SaveReply(ctx, r))
	require.ErrorIs(t, s.SaveReply(ctx, r), queue.ErrDuplicateID)
	assert.Len(t, s.Replies(), 1)

	got, err := s.GetReply(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.From)

	_, err = s.GetReply(ctx, "r2")
	require.ErrorIs(t, err, queue.ErrNotFound)
}

func TestTemplates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memstore.New()

	_, err := s.Template(ctx, "welcome-email")
	require.ErrorIs(t, err, queue.ErrTemplateNotFound)

	require.NoError(t, s.SaveTemplate(ctx, &queue.Template{ID: "welcome-email", Subject: "v1"}))
	require.NoError(t, s.SaveTemplate(ctx, &queue.Template{ID: "welcome-email", Subject: "v2", BodyHTML: "<p>{{name}}</p>"}))

	got, err := s.Template(ctx, "welcome-email")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Subject)
}
