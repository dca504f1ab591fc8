package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/gazette/pkg/async"
)

// QueuedNotifier hands messages to a worker pool and returns as soon as
// they are queued. Delivery failures surface only in the pool's log.
type QueuedNotifier struct {
	next Notifier
	pool *async.WorkerPool
}

// NewQueuedNotifier wraps next so that sends run on pool
func NewQueuedNotifier(next Notifier, pool *async.WorkerPool) *QueuedNotifier {
	return &QueuedNotifier{next: next, pool: pool}
}

// Send queues msg. The receipt carries the assigned message ID; it never
// has a preview URL since delivery has not happened yet.
func (q *QueuedNotifier) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	err := q.pool.Submit(func(ctx context.Context) error {
		if _, err := q.next.Send(ctx, msg); err != nil {
			return fmt.Errorf("failed to deliver message %s: %w", msg.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to queue email: %w", err)
	}
	return &Receipt{MessageID: msg.ID}, nil
}
