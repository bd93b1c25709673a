package producer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

// Enqueuer writes items to the store in sub-limit chunks.
type Enqueuer struct {
	store  queue.Store
	logger *slog.Logger
	chunk  int
}

// NewEnqueuer creates an enqueuer. Only WithChunkSize and WithLogger apply.
func NewEnqueuer(store queue.Store, opts ...Option) (*Enqueuer, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	o := buildOptions(opts)
	return &Enqueuer{store: store, logger: o.logger, chunk: o.chunkSize}, nil
}

// ChunkSize returns the configured items per write.
func (e *Enqueuer) ChunkSize() int {
	return e.chunk
}

// Enqueue writes items chunk by chunk and returns how many were written.
// Each chunk is atomic; on error the earlier chunks stay written.
func (e *Enqueuer) Enqueue(ctx context.Context, items []*queue.Item) (int, error) {
	written := 0
	for start := 0; start < len(items); start += e.chunk {
		end := min(start+e.chunk, len(items))
		if err := e.store.CreateItems(ctx, items[start:end]); err != nil {
			e.logger.ErrorContext(ctx, "enqueue chunk failed",
				slog.Int("written", written),
				slog.Int("remaining", len(items)-written),
				slog.String("error", err.Error()),
			)
			return written, errors.Join(ErrEnqueue, err)
		}
		written = end
	}
	return written, nil
}
