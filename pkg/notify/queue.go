package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"codeberg.org/miketth/micboard/pkg/micboard"
)

const (
	DefaultQueueSize = 16
	deliveryTimeout  = 5 * time.Second
)

// Queue hands notifications to another Notifier on its own goroutine, so
// callers never wait for the desktop. When the queue is full new messages are
// dropped.
type Queue struct {
	next     micboard.Notifier
	log      *zap.SugaredLogger
	messages chan string
}

func NewQueue(next micboard.Notifier, size int, log *zap.SugaredLogger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		next:     next,
		log:      log,
		messages: make(chan string, size),
	}
}

func (q *Queue) Notify(_ context.Context, message string) error {
	select {
	case q.messages <- message:
	default:
		q.log.Warnw("notification queue full, dropping", "message", message)
	}
	return nil
}

// Run delivers queued notifications until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-q.messages:
			q.deliver(ctx, message)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, message string) {
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	if err := q.next.Notify(ctx, message); err != nil {
		q.log.Warnw("deliver notification", "message", message, "error", err)
	}
}
