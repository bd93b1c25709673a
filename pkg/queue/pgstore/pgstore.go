// Package pgstore implements queue.Store on PostgreSQL with pgx.
//
// Claims use FOR UPDATE SKIP LOCKED so concurrent workers never claim the same
// row; every tick commit runs in one transaction and only touches rows still
// held under the committing worker's lease token.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/mailpipe/pkg/db"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

// Migrations holds the queue schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"

// Migrate applies the queue schema to the pool's database.
func Migrate(ctx context.Context, pool *pgxpool.Pool, table string, log *slog.Logger) error {
	return db.Migrate(ctx, pool, Migrations, MigrationsDir, table, log)
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL queue.Store.
type Store struct {
	db DB
}

// New creates a store over the given pool.
func New(conn DB) *Store {
	return &Store{db: conn}
}

var _ queue.Store = (*Store)(nil)

const itemColumns = `id, seq, to_address, subject, html, text_body, status, priority, created_at,
	retry_count, last_error, next_retry_at, sent_at, message_id, response, campaign_id,
	metadata, lease_token, lease_until`

const (
	insertItemSQL = `
INSERT INTO email_queue (id, to_address, subject, html, text_body, status, priority, created_at, retry_count, campaign_id, metadata)
VALUES ($1, $2, $3, $4, $5, 'pending', $6, COALESCE($7, clock_timestamp()), 0, $8, $9)
RETURNING seq, created_at`

	claimSQL = `
WITH due AS (
	SELECT id FROM email_queue
	WHERE status = 'pending'
	  AND (next_retry_at IS NULL OR next_retry_at <= $1)
	ORDER BY priority, created_at, seq
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
UPDATE email_queue q
SET status = 'in_progress', lease_token = $3, lease_until = $4
FROM due
WHERE q.id = due.id
RETURNING q.id, q.seq, q.to_address, q.subject, q.html, q.text_body, q.status, q.priority, q.created_at,
	q.retry_count, q.last_error, q.next_retry_at, q.sent_at, q.message_id, q.response, q.campaign_id,
	q.metadata, q.lease_token, q.lease_until`

	releaseExpiredSQL = `
UPDATE email_queue
SET status = 'pending', lease_token = NULL, lease_until = NULL
WHERE status = 'in_progress' AND lease_until <= $1`

	resolveSentSQL = `
UPDATE email_queue
SET status = 'sent', sent_at = $3, message_id = $4, response = $5, last_error = '',
	next_retry_at = NULL, lease_token = NULL, lease_until = NULL
WHERE id = $1 AND status = 'in_progress' AND lease_token = $2`

	resolveRetrySQL = `
UPDATE email_queue
SET status = 'pending', retry_count = GREATEST(retry_count, $3), last_error = $4,
	next_retry_at = $5, lease_token = NULL, lease_until = NULL
WHERE id = $1 AND status = 'in_progress' AND lease_token = $2`

	resolveFailedSQL = `
UPDATE email_queue
SET status = 'failed', retry_count = GREATEST(retry_count, $3), last_error = $4,
	lease_token = NULL, lease_until = NULL
WHERE id = $1 AND status = 'in_progress' AND lease_token = $2`

	insertLogSQL = `
INSERT INTO email_logs (id, email_id, to_address, subject, status, error, campaign_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, clock_timestamp()))`

	bumpCampaignSQL = `
UPDATE email_campaigns
SET stats_sent = stats_sent + $2, stats_failed = stats_failed + $3
WHERE id = $1`

	completeCampaignsSQL = `
UPDATE email_campaigns
SET status = 'completed'
WHERE id = ANY($1::text[]) AND status = 'sending' AND stats_sent + stats_failed >= stats_queued
RETURNING id`

	campaignColumns = `id, name, subject, segment, template_html, status, created_by, created_at,
	stats_total, stats_queued, stats_sent, stats_failed, stats_opened`
)

// CreateItems implements queue.Store.
func (s *Store) CreateItems(ctx context.Context, items []*queue.Item) error {
	if len(items) == 0 {
		return nil
	}
	if len(items) > queue.MaxBatchWrite {
		return fmt.Errorf("%w: %d > %d", queue.ErrBatchTooLarge, len(items), queue.MaxBatchWrite)
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
	}

	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, it := range items {
			metadata := it.Metadata
			if metadata == nil {
				metadata = map[string]string{}
			}
			batch.Queue(insertItemSQL,
				it.ID, it.To, it.Subject, it.HTML, it.Text, it.Priority,
				nullTime(it.CreatedAt), nullString(it.CampaignID), metadata,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for _, it := range items {
			if err := br.QueryRow().Scan(&it.Seq, &it.CreatedAt); err != nil {
				_ = br.Close()
				return mapErr(err, "item "+it.ID)
			}
		}
		return br.Close()
	})
	if err != nil {
		return fmt.Errorf("pgstore: create items: %w", err)
	}
	return nil
}

// GetItem implements queue.Store.
func (s *Store) GetItem(ctx context.Context, id string) (*queue.Item, error) {
	row := s.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM email_queue WHERE id = $1`, id)
	it, err := scanItem(row)
	if err != nil {
		return nil, mapErr(err, "item "+id)
	}
	return it, nil
}

// CreateCampaign implements queue.Store.
func (s *Store) CreateCampaign(ctx context.Context, c *queue.Campaign) error {
	err := s.db.QueryRow(ctx, `
INSERT INTO email_campaigns (id, name, subject, segment, template_html, status, created_by, created_at,
	stats_total, stats_queued, stats_sent, stats_failed, stats_opened)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, clock_timestamp()), $9, $10, $11, $12, $13)
RETURNING created_at`,
		c.ID, c.Name, c.Subject, c.Segment, c.TemplateHTML, string(c.Status), c.CreatedBy, nullTime(c.CreatedAt),
		c.Stats.Total, c.Stats.Queued, c.Stats.Sent, c.Stats.Failed, c.Stats.Opened,
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: create campaign: %w", mapErr(err, "campaign "+c.ID))
	}
	return nil
}

// GetCampaign implements queue.Store.
func (s *Store) GetCampaign(ctx context.Context, id string) (*queue.Campaign, error) {
	var (
		c      queue.Campaign
		status string
	)
	err := s.db.QueryRow(ctx, `SELECT `+campaignColumns+` FROM email_campaigns WHERE id = $1`, id).Scan(
		&c.ID, &c.Name, &c.Subject, &c.Segment, &c.TemplateHTML, &status, &c.CreatedBy, &c.CreatedAt,
		&c.Stats.Total, &c.Stats.Queued, &c.Stats.Sent, &c.Stats.Failed, &c.Stats.Opened,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", queue.ErrCampaignNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get campaign: %w", err)
	}
	c.Status = queue.CampaignStatus(status)
	return &c, nil
}

// AddCampaignRecipients implements queue.Store.
func (s *Store) AddCampaignRecipients(ctx context.Context, id string, total, queued int) error {
	tag, err := s.db.Exec(ctx, `
UPDATE email_campaigns
SET stats_total = stats_total + $2,
	stats_queued = GREATEST(stats_queued + $3::int, 0),
	status = CASE
		WHEN $3::int > 0 THEN 'sending'
		WHEN status = 'sending' AND stats_sent + stats_failed >= GREATEST(stats_queued + $3::int, 0) THEN 'completed'
		ELSE status
	END
WHERE id = $1`, id, total, queued)
	if err != nil {
		return fmt.Errorf("pgstore: add campaign recipients: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", queue.ErrCampaignNotFound, id)
	}
	return nil
}

// Claim implements queue.Store.
func (s *Store) Claim(ctx context.Context, p queue.ClaimParams) ([]*queue.Item, error) {
	if p.Limit <= 0 {
		return nil, nil
	}

	var items []*queue.Item
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, claimSQL, p.Now, p.Limit, p.Token, p.LeaseUntil)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			it, err := scanItem(rows)
			if err != nil {
				return err
			}
			items = append(items, it)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: claim: %w", err)
	}

	// UPDATE ... RETURNING does not preserve the CTE order.
	queue.SortForDispatch(items)
	return items, nil
}

// ReleaseExpired implements queue.Store.
func (s *Store) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, releaseExpiredSQL, now)
	if err != nil {
		return 0, fmt.Errorf("pgstore: release expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type campaignDelta struct {
	sent, failed int
}

// Commit implements queue.Store.
func (s *Store) Commit(ctx context.Context, c queue.TickCommit) (queue.CommitResult, error) {
	var res queue.CommitResult
	if len(c.Resolutions) == 0 {
		return res, nil
	}

	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		res = queue.CommitResult{}
		deltas := make(map[string]*campaignDelta)

		for _, r := range c.Resolutions {
			tag, err := resolve(ctx, tx, r)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", r.ItemID, err)
			}
			if tag.RowsAffected() == 0 {
				res.Stale++
				continue
			}
			res.Applied++

			if r.Log != nil {
				l := r.Log
				if _, err := tx.Exec(ctx, insertLogSQL,
					l.ID, l.EmailID, l.To, l.Subject, string(l.Status), l.Error,
					nullString(l.CampaignID), nullTime(l.Timestamp),
				); err != nil {
					return fmt.Errorf("append log %s: %w", l.ID, err)
				}
			}

			if r.CampaignID == "" || r.Outcome == queue.OutcomeRetry {
				continue
			}
			d, ok := deltas[r.CampaignID]
			if !ok {
				d = &campaignDelta{}
				deltas[r.CampaignID] = d
			}
			if r.Outcome == queue.OutcomeSent {
				d.sent++
			} else {
				d.failed++
			}
		}

		if len(deltas) == 0 {
			return nil
		}

		ids := slices.Sorted(maps.Keys(deltas))
		for _, id := range ids {
			d := deltas[id]
			if _, err := tx.Exec(ctx, bumpCampaignSQL, id, d.sent, d.failed); err != nil {
				return fmt.Errorf("bump campaign %s: %w", id, err)
			}
		}

		rows, err := tx.Query(ctx, completeCampaignsSQL, ids)
		if err != nil {
			return fmt.Errorf("complete campaigns: %w", err)
		}
		completed, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("complete campaigns: %w", err)
		}
		slices.Sort(completed)
		res.Completed = completed
		return nil
	})
	if err != nil {
		return queue.CommitResult{}, fmt.Errorf("pgstore: commit: %w", err)
	}
	return res, nil
}

func resolve(ctx context.Context, tx pgx.Tx, r queue.Resolution) (pgconn.CommandTag, error) {
	switch r.Outcome {
	case queue.OutcomeSent:
		return tx.Exec(ctx, resolveSentSQL, r.ItemID, r.LeaseToken, r.SentAt, r.MessageID, r.Response)
	case queue.OutcomeRetry:
		return tx.Exec(ctx, resolveRetrySQL, r.ItemID, r.LeaseToken, r.RetryCount, r.LastError, r.NextRetryAt)
	case queue.OutcomeFailed:
		return tx.Exec(ctx, resolveFailedSQL, r.ItemID, r.LeaseToken, r.RetryCount, r.LastError)
	default:
		return pgconn.CommandTag{}, fmt.Errorf("unknown outcome %q", r.Outcome)
	}
}

// ListLogs implements queue.Store.
func (s *Store) ListLogs(ctx context.Context, f queue.LogFilter) ([]*queue.EmailLog, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, email_id, to_address, subject, status, error, COALESCE(campaign_id, ''), created_at
FROM email_logs
WHERE ($1::text = '' OR email_id = $1::text) AND ($2::text = '' OR campaign_id = $2::text)
ORDER BY created_at, id
LIMIT NULLIF($3::int, 0)`, f.EmailID, f.CampaignID, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list logs: %w", err)
	}

	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*queue.EmailLog, error) {
		var (
			l      queue.EmailLog
			status string
		)
		if err := row.Scan(&l.ID, &l.EmailID, &l.To, &l.Subject, &status, &l.Error, &l.CampaignID, &l.Timestamp); err != nil {
			return nil, err
		}
		l.Status = queue.LogStatus(status)
		return &l, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: list logs: %w", err)
	}
	return logs, nil
}

// CountByStatus implements queue.Store.
func (s *Store) CountByStatus(ctx context.Context) (map[queue.Status]int, error) {
	rows, err := s.db.Query(ctx, `SELECT status, count(*) FROM email_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[queue.Status]int, 4)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("pgstore: count by status: %w", err)
		}
		counts[queue.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: count by status: %w", err)
	}
	return counts, nil
}

// SaveReply implements queue.Store.
func (s *Store) SaveReply(ctx context.Context, r *queue.Reply) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO email_replies (id, from_address, subject, body, raw_id, status, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.From, r.Subject, r.Body, r.RawID, r.Status, r.ReceivedAt)
	if err != nil {
		return fmt.Errorf("pgstore: save reply: %w", mapErr(err, "reply "+r.ID))
	}
	return nil
}

// GetReply implements queue.Store.
func (s *Store) GetReply(ctx context.Context, id string) (*queue.Reply, error) {
	var r queue.Reply
	err := s.db.QueryRow(ctx, `
SELECT id, from_address, subject, body, raw_id, status, received_at
FROM email_replies WHERE id = $1`, id).Scan(
		&r.ID, &r.From, &r.Subject, &r.Body, &r.RawID, &r.Status, &r.ReceivedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("pgstore: get reply: %w", mapErr(err, "reply "+id))
	}
	return &r, nil
}

// Template implements queue.Store.
func (s *Store) Template(ctx context.Context, id string) (*queue.Template, error) {
	t := queue.Template{ID: id}
	err := s.db.QueryRow(ctx, `SELECT subject, body_html FROM email_templates WHERE id = $1`, id).
		Scan(&t.Subject, &t.BodyHTML)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", queue.ErrTemplateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get template: %w", err)
	}
	return &t, nil
}

// SaveTemplate implements queue.Store.
func (s *Store) SaveTemplate(ctx context.Context, t *queue.Template) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO email_templates (id, subject, body_html)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET subject = EXCLUDED.subject, body_html = EXCLUDED.body_html, updated_at = clock_timestamp()`,
		t.ID, t.Subject, t.BodyHTML)
	if err != nil {
		return fmt.Errorf("pgstore: save template: %w", err)
	}
	return nil
}

func scanItem(row pgx.Row) (*queue.Item, error) {
	var (
		it                     queue.Item
		status                 string
		campaignID, leaseToken *string
		metadata               map[string]string
	)
	err := row.Scan(
		&it.ID, &it.Seq, &it.To, &it.Subject, &it.HTML, &it.Text, &status, &it.Priority, &it.CreatedAt,
		&it.RetryCount, &it.LastError, &it.NextRetryAt, &it.SentAt, &it.MessageID, &it.Response, &campaignID,
		&metadata, &leaseToken, &it.LeaseUntil,
	)
	if err != nil {
		return nil, err
	}
	it.Status = queue.Status(status)
	if campaignID != nil {
		it.CampaignID = *campaignID
	}
	if leaseToken != nil {
		it.LeaseToken = *leaseToken
	}
	if len(metadata) > 0 {
		it.Metadata = metadata
	}
	return &it, nil
}

func mapErr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", queue.ErrNotFound, what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.Join(fmt.Errorf("%w: %s", queue.ErrDuplicateID, what), err)
	}
	return err
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
