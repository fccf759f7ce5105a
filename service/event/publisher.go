package event

import (
	"context"
	"sync/atomic"

	"github.com/viant/spawner/internal/clock"
	"github.com/viant/spawner/service/messaging"
)

// Publisher writes events of type T. Events are enqueued only while a
// listener consumes them, so publishing never fills an unread queue.
type Publisher[T any] struct {
	queue     messaging.Queue[Event[T]]
	listening atomic.Bool
	service   *Service
}

func NewPublisher[T any](queue messaging.Queue[Event[T]]) *Publisher[T] {
	return &Publisher[T]{queue: queue}
}

// Publish stamps and enqueues event to the typed queue and, when a catch-all
// listener is set, to the catch-all queue.
func (p *Publisher[T]) Publish(ctx context.Context, event *Event[T]) error {
	event.CreatedAt = clock.Now()
	if s := p.service; s != nil && s.anyListening.Load() {
		if err := s.publisher.queue.Publish(ctx, &Event[any]{
			Context:   event.Context,
			CreatedAt: event.CreatedAt,
			Metadata:  event.Metadata,
			Data:      event.Data,
		}); err != nil {
			return err
		}
	}
	if !p.listening.Load() {
		return nil
	}
	return p.queue.Publish(ctx, event)
}

func (p *Publisher[T]) Consume(ctx context.Context) (*Event[T], error) {
	msg, err := p.queue.Consume(ctx)
	if err != nil || msg == nil {
		return nil, err
	}
	if err = msg.Ack(); err != nil {
		return nil, err
	}
	return msg.T(), nil
}
