package persistence

import (
	"context"
	"time"

	"github.com/skobkin/picodbg/internal/transport"
)

// QueuedGrantStore reads and saves grants directly but pushes usage updates
// through the writer queue so opening a port never waits on disk.
type QueuedGrantStore struct {
	repo   *GrantRepo
	writer *WriterQueue
}

func NewQueuedGrantStore(repo *GrantRepo, writer *WriterQueue) *QueuedGrantStore {
	return &QueuedGrantStore{repo: repo, writer: writer}
}

func (s *QueuedGrantStore) ListGrants(ctx context.Context) ([]transport.Grant, error) {
	return s.repo.ListGrants(ctx)
}

func (s *QueuedGrantStore) SaveGrant(ctx context.Context, g transport.Grant) error {
	return s.repo.SaveGrant(ctx, g)
}

func (s *QueuedGrantStore) TouchGrant(_ context.Context, portName string, at time.Time) error {
	s.writer.Enqueue("touch_grant", func(ctx context.Context) error {
		return s.repo.TouchGrant(ctx, portName, at)
	})

	return nil
}

var _ transport.GrantStore = (*QueuedGrantStore)(nil)
var _ transport.GrantStore = (*GrantRepo)(nil)
