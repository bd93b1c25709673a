package segment

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/dmitrymomot/mailpipe/pkg/logger"
)

// Segment names.
const (
	ProUsers  = "pro_users"
	FreeUsers = "free_users"
	AllUsers  = "all_users"
)

// Safety caps.
const (
	AllUsersCap = 500
	DefaultCap  = 100
)

// Plans.
const (
	PlanFree    = "free"
	PlanPro     = "pro"
	PlanProPlus = "pro_plus"
)

// Member is one entry of the user directory.
// Email may be empty; the resolver keeps such members and callers skip them.
type Member struct {
	ID    string
	Email string
	Name  string
	Plan  string
}

// Filter selects directory members. Zero Limit means no limit.
// After restricts the result to members whose id sorts after it.
type Filter struct {
	After string
	Plans []string
	Limit int
}

// Directory is the user directory collaborator.
// QueryUsers returns members ordered by id.
type Directory interface {
	QueryUsers(ctx context.Context, f Filter) ([]Member, error)
	CountUsers(ctx context.Context, f Filter) (int, error)
}

// FilterFor returns the directory filter for a segment, caps included.
func FilterFor(segment string) Filter {
	switch segment {
	case ProUsers:
		return Filter{Plans: []string{PlanPro, PlanProPlus}}
	case FreeUsers:
		return Filter{Plans: []string{PlanFree}}
	case AllUsers:
		return Filter{Limit: AllUsersCap}
	default:
		return Filter{Limit: DefaultCap}
	}
}

// Resolver applies the segment policy to a Directory.
type Resolver struct {
	dir    Directory
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a resolver over dir.
func NewResolver(dir Directory, opts ...Option) (*Resolver, error) {
	if dir == nil {
		return nil, ErrNilDirectory
	}
	r := &Resolver{dir: dir, logger: logger.NewNope()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the members a segment targets, capped per policy.
func (r *Resolver) Resolve(ctx context.Context, segment string) ([]Member, error) {
	f := FilterFor(segment)
	members, err := r.dir.QueryUsers(ctx, f)
	if err != nil {
		return nil, errors.Join(ErrQueryUsers, err)
	}
	if f.Limit > 0 && len(members) > f.Limit {
		members = members[:f.Limit]
	}
	r.logger.DebugContext(ctx, "segment resolved",
		slog.String("segment", segment),
		slog.Int("members", len(members)),
	)
	return members, nil
}

// Size counts every member matching the segment's plan filter, ignoring caps.
func (r *Resolver) Size(ctx context.Context, segment string) (int, error) {
	f := FilterFor(segment)
	f.Limit = 0
	n, err := r.dir.CountUsers(ctx, f)
	if err != nil {
		return 0, errors.Join(ErrCountUsers, err)
	}
	return n, nil
}

// Page returns up to limit members of the segment with ids after the cursor,
// ignoring caps. An empty result means the segment is exhausted.
func (r *Resolver) Page(ctx context.Context, segment, after string, limit int) ([]Member, error) {
	f := FilterFor(segment)
	f.After = after
	f.Limit = limit
	members, err := r.dir.QueryUsers(ctx, f)
	if err != nil {
		return nil, errors.Join(ErrQueryUsers, err)
	}
	return members, nil
}

// Match reports whether m passes f's plan and cursor conditions.
func (f Filter) Match(m Member) bool {
	if f.After != "" && m.ID <= f.After {
		return false
	}
	return len(f.Plans) == 0 || slices.Contains(f.Plans, m.Plan)
}
