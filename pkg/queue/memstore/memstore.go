// Package memstore is an in-process queue.Store.
// It holds the reference semantics for the queue contract and backs tests and
// local development; every method runs under one mutex so each call is atomic.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

// Store is a mutex-guarded in-memory queue.Store.
type Store struct {
	clock     func() time.Time
	items     map[string]*queue.Item
	campaigns map[string]*queue.Campaign
	replies   map[string]*queue.Reply
	templates map[string]*queue.Template
	lastAt    time.Time
	logs      []*queue.EmailLog
	seq       int64
	mu        sync.Mutex
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the time source used for server timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.clock = fn
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:     time.Now,
		items:     make(map[string]*queue.Item),
		campaigns: make(map[string]*queue.Campaign),
		replies:   make(map[string]*queue.Reply),
		templates: make(map[string]*queue.Template),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ queue.Store = (*Store)(nil)

// CreateItems implements queue.Store.
func (s *Store) CreateItems(_ context.Context, items []*queue.Item) error {
	if len(items) > queue.MaxBatchWrite {
		return fmt.Errorf("%w: %d > %d", queue.ErrBatchTooLarge, len(items), queue.MaxBatchWrite)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
		if _, ok := s.items[it.ID]; ok {
			return fmt.Errorf("%w: %s", queue.ErrDuplicateID, it.ID)
		}
		if _, ok := seen[it.ID]; ok {
			return fmt.Errorf("%w: %s", queue.ErrDuplicateID, it.ID)
		}
		seen[it.ID] = struct{}{}
	}

	for _, it := range items {
		s.seq++
		it.Seq = s.seq
		if it.CreatedAt.IsZero() {
			it.CreatedAt = s.stamp()
		}
		s.items[it.ID] = it.Clone()
	}
	return nil
}

// stamp returns a timestamp strictly after the previous one. Caller holds mu.
func (s *Store) stamp() time.Time {
	now := s.clock()
	if !now.After(s.lastAt) {
		now = s.lastAt.Add(time.Nanosecond)
	}
	s.lastAt = now
	return now
}

// GetItem implements queue.Store.
func (s *Store) GetItem(_ context.Context, id string) (*queue.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: item %s", queue.ErrNotFound, id)
	}
	return it.Clone(), nil
}

// CreateCampaign implements queue.Store.
func (s *Store) CreateCampaign(_ context.Context, c *queue.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[c.ID]; ok {
		return fmt.Errorf("%w: campaign %s", queue.ErrDuplicateID, c.ID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock()
	}
	cp := *c
	s.campaigns[c.ID] = &cp
	return nil
}

// GetCampaign implements queue.Store.
func (s *Store) GetCampaign(_ context.Context, id string) (*queue.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrCampaignNotFound, id)
	}
	cp := *c
	return &cp, nil
}

// AddCampaignRecipients implements queue.Store.
func (s *Store) AddCampaignRecipients(_ context.Context, id string, total, queued int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return fmt.Errorf("%w: %s", queue.ErrCampaignNotFound, id)
	}
	c.Stats.Total += total
	c.Stats.Queued = max(c.Stats.Queued+queued, 0)
	switch {
	case queued > 0:
		c.Status = queue.CampaignSending
	case c.Status == queue.CampaignSending && c.Stats.Done():
		c.Status = queue.CampaignCompleted
	}
	return nil
}

// Claim implements queue.Store.
func (s *Store) Claim(_ context.Context, p queue.ClaimParams) ([]*queue.Item, error) {
	if p.Limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*queue.Item, 0, p.Limit)
	for _, it := range s.items {
		if it.Due(p.Now) {
			due = append(due, it)
		}
	}
	queue.SortForDispatch(due)
	if len(due) > p.Limit {
		due = due[:p.Limit]
	}

	out := make([]*queue.Item, 0, len(due))
	for _, it := range due {
		until := p.LeaseUntil
		it.Status = queue.StatusInProgress
		it.LeaseToken = p.Token
		it.LeaseUntil = &until
		out = append(out, it.Clone())
	}
	return out, nil
}

// ReleaseExpired implements queue.Store.
func (s *Store) ReleaseExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, it := range s.items {
		if it.Status != queue.StatusInProgress || it.LeaseUntil == nil || it.LeaseUntil.After(now) {
			continue
		}
		it.Status = queue.StatusPending
		it.LeaseToken = ""
		it.LeaseUntil = nil
		n++
	}
	return n, nil
}

// Commit implements queue.Store.
func (s *Store) Commit(_ context.Context, c queue.TickCommit) (queue.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res queue.CommitResult
	touched := make(map[string]struct{})

	for _, r := range c.Resolutions {
		it, ok := s.items[r.ItemID]
		if !ok || it.Status != queue.StatusInProgress || it.LeaseToken != r.LeaseToken {
			res.Stale++
			continue
		}

		it.Status = r.Outcome.Status()
		it.RetryCount = max(it.RetryCount, r.RetryCount)
		it.LastError = r.LastError
		it.LeaseToken = ""
		it.LeaseUntil = nil
		switch r.Outcome {
		case queue.OutcomeSent:
			it.SentAt = r.SentAt
			it.MessageID = r.MessageID
			it.Response = r.Response
			it.NextRetryAt = nil
		case queue.OutcomeRetry:
			it.NextRetryAt = r.NextRetryAt
		}

		if r.Log != nil {
			entry := *r.Log
			s.logs = append(s.logs, &entry)
		}

		if r.CampaignID != "" && r.Outcome != queue.OutcomeRetry {
			if camp, ok := s.campaigns[r.CampaignID]; ok {
				if r.Outcome == queue.OutcomeSent {
					camp.Stats.Sent++
				} else {
					camp.Stats.Failed++
				}
				touched[camp.ID] = struct{}{}
			}
		}
		res.Applied++
	}

	for _, id := range slices.Sorted(maps.Keys(touched)) {
		camp := s.campaigns[id]
		if camp.Status == queue.CampaignSending && camp.Stats.Done() {
			camp.Status = queue.CampaignCompleted
			res.Completed = append(res.Completed, id)
		}
	}
	return res, nil
}

// ListLogs implements queue.Store. Entries are returned in append order.
func (s *Store) ListLogs(_ context.Context, f queue.LogFilter) ([]*queue.EmailLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*queue.EmailLog
	for _, e := range s.logs {
		if !f.Match(e) {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// CountByStatus implements queue.Store.
func (s *Store) CountByStatus(_ context.Context) (map[queue.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[queue.Status]int, 4)
	for _, it := range s.items {
		counts[it.Status]++
	}
	return counts, nil
}

// SaveReply implements queue.Store.
func (s *Store) SaveReply(_ context.Context, r *queue.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.replies[r.ID]; ok {
		return fmt.Errorf("%w: reply %s", queue.ErrDuplicateID, r.ID)
	}
	cp := *r
	s.replies[r.ID] = &cp
	return nil
}

// GetReply implements queue.Store.
func (s *Store) GetReply(_ context.Context, id string) (*queue.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.replies[id]
	if !ok {
		return nil, fmt.Errorf("%w: reply %s", queue.ErrNotFound, id)
	}
	cp := *r
	return &cp, nil
}

// Template implements queue.Store.
func (s *Store) Template(_ context.Context, id string) (*queue.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrTemplateNotFound, id)
	}
	cp := *t
	return &cp, nil
}

// SaveTemplate implements queue.Store. It replaces any template with the same id.
func (s *Store) SaveTemplate(_ context.Context, t *queue.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.templates[t.ID] = &cp
	return nil
}

// Items returns a snapshot of every item in dispatch order.
func (s *Store) Items() []*queue.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*queue.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.Clone())
	}
	queue.SortForDispatch(out)
	return out
}

// Replies returns a snapshot of synced replies ordered by receipt time.
func (s *Store) Replies() []*queue.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*queue.Reply, 0, len(s.replies))
	for _, r := range s.replies {
		cp := *r
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *queue.Reply) int {
		return a.ReceivedAt.Compare(b.ReceivedAt)
	})
	return out
}
