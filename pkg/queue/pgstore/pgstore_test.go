package pgstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailpipe/pkg/id"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
	"github.com/dmitrymomot/mailpipe/pkg/queue/pgstore"
)

// openStore connects to MAILPIPE_TEST_DATABASE_URL and applies the schema.
// Rows are keyed by fresh ULIDs so tests can share one database.
func openStore(t *testing.T) *pgstore.Store {
	t.Helper()

	dsn := os.Getenv("MAILPIPE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MAILPIPE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pgstore.Migrate(ctx, pool, "mailpipe_test_migrations", nil))
	return pgstore.New(pool)
}

func newItem(priority int) *queue.Item {
	itemID := id.New()
	return &queue.Item{
		ID:       itemID,
		To:       itemID + "@example.com",
		Subject:  "hello",
		HTML:     "<p>hello</p>",
		Status:   queue.StatusPending,
		Priority: priority,
		Metadata: map[string]string{"trigger": "test"},
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	items := []*queue.Item{newItem(queue.PriorityBulk), newItem(queue.PriorityBulk)}
	require.NoError(t, s.CreateItems(ctx, items))
	assert.Less(t, items[0].Seq, items[1].Seq)
	assert.False(t, items[0].CreatedAt.IsZero())

	got, err := s.GetItem(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, got.Status)
	assert.Equal(t, "test", got.Metadata["trigger"])

	err = s.CreateItems(ctx, []*queue.Item{newItem(queue.PriorityBulk), {
		ID: items[0].ID, To: "dup@example.com", Status: queue.StatusPending, Priority: queue.PriorityBulk,
	}})
	require.ErrorIs(t, err, queue.ErrDuplicateID)

	_, err = s.GetItem(ctx, "missing-"+id.New())
	require.ErrorIs(t, err, queue.ErrNotFound)
}

func TestStore_ClaimCommitCampaign(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	camp := &queue.Campaign{
		ID:           id.New(),
		Name:         "launch",
		Subject:      "hi",
		TemplateHTML: "<p>hi</p>",
		Status:       queue.CampaignSending,
		Stats:        queue.CampaignStats{Total: 2, Queued: 2},
	}
	require.NoError(t, s.CreateCampaign(ctx, camp))

	// Priority 0 and a date far in the past put these ahead of rows left by other tests.
	a, b := newItem(0), newItem(0)
	a.CampaignID, b.CampaignID = camp.ID, camp.ID
	a.CreatedAt = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	b.CreatedAt = a.CreatedAt.Add(time.Second)
	require.NoError(t, s.CreateItems(ctx, []*queue.Item{a, b}))

	now := time.Now()
	token := id.New()
	claimed, err := s.Claim(ctx, queue.ClaimParams{Now: now, LeaseUntil: now.Add(time.Minute), Token: token, Limit: 2})
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, a.ID, claimed[0].ID)
	assert.Equal(t, queue.StatusInProgress, claimed[0].Status)

	res, err := s.Commit(ctx, queue.TickCommit{Resolutions: []queue.Resolution{
		{
			ItemID: a.ID, LeaseToken: token, CampaignID: camp.ID, Outcome: queue.OutcomeSent,
			SentAt: &now, MessageID: "m-1",
			Log: &queue.EmailLog{ID: id.New(), EmailID: a.ID, To: a.To, Subject: a.Subject, Status: queue.LogSent, CampaignID: camp.ID},
		},
		{
			ItemID: b.ID, LeaseToken: token, CampaignID: camp.ID, Outcome: queue.OutcomeFailed,
			RetryCount: queue.MaxRetries, LastError: "boom",
			Log: &queue.EmailLog{ID: id.New(), EmailID: b.ID, To: b.To, Subject: b.Subject, Status: queue.LogFailed, Error: "boom", CampaignID: camp.ID},
		},
		{ItemID: a.ID, LeaseToken: token, Outcome: queue.OutcomeSent},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Stale)
	assert.Equal(t, []string{camp.ID}, res.Completed)

	got, err := s.GetCampaign(ctx, camp.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.CampaignCompleted, got.Status)
	assert.Equal(t, 1, got.Stats.Sent)
	assert.Equal(t, 1, got.Stats.Failed)

	logs, err := s.ListLogs(ctx, queue.LogFilter{CampaignID: camp.ID})
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	failed, err := s.GetItem(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, failed.Status)
	assert.Equal(t, queue.MaxRetries, failed.RetryCount)
	assert.Empty(t, failed.LeaseToken)
}

func TestStore_ReleaseExpired(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	it := newItem(queue.PriorityTransactional)
	it.CreatedAt = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateItems(ctx, []*queue.Item{it}))

	now := time.Now()
	_, err := s.Claim(ctx, queue.ClaimParams{Now: now, LeaseUntil: now.Add(-time.Second), Token: id.New(), Limit: 1})
	require.NoError(t, err)

	n, err := s.ReleaseExpired(ctx, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	got, err := s.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, got.Status, fmt.Sprintf("item %s", it.ID))
}

func TestStore_RepliesAndTemplates(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	r := &queue.Reply{
		ID:         id.New(),
		From:       "a@x.com",
		Subject:    "question",
		Body:       "hello",
		RawID:      "42",
		Status:     queue.ReplyStatusUnread,
		ReceivedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.SaveReply(ctx, r))
	require.ErrorIs(t, s.SaveReply(ctx, r), queue.ErrDuplicateID)

	got, err := s.GetReply(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "question", got.Subject)
	assert.True(t, r.ReceivedAt.Equal(got.ReceivedAt))

	tmplID := "welcome-" + id.New()
	_, err = s.Template(ctx, tmplID)
	require.ErrorIs(t, err, queue.ErrTemplateNotFound)

	require.NoError(t, s.SaveTemplate(ctx, &queue.Template{ID: tmplID, Subject: "v1"}))
	require.NoError(t, s.SaveTemplate(ctx, &queue.Template{ID: tmplID, Subject: "v2", BodyHTML: "<p>{{name}}</p>"}))

	tmpl, err := s.Template(ctx, tmplID)
	require.NoError(t, err)
	assert.Equal(t, "v2", tmpl.Subject)
	assert.Equal(t, "<p>{{name}}</p>", tmpl.BodyHTML)
}
