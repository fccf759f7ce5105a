package event

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/viant/spawner/service/messaging"
)

// Listener runs handler for every event consumed from a publisher.
type Listener[T any] struct {
	publisher *Publisher[T]
	handler   func(*Event[T])
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewListener[T any](publisher *Publisher[T], handler func(*Event[T])) *Listener[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener[T]{
		publisher: publisher,
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Stop cancels consumption and waits for the running handler to return.
func (l *Listener[T]) Stop() {
	l.cancel()
	l.wg.Wait()
}

// Drain waits for consumption to end on a closed queue.
func (l *Listener[T]) Drain() {
	l.wg.Wait()
	l.cancel()
}

func (l *Listener[T]) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			event, err := l.publisher.Consume(l.ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, messaging.ErrClosed) {
					return
				}
				log.Printf("event: consume failed: %v", err)
				continue
			}
			if event != nil {
				l.handler(event)
			}
		}
	}()
}
