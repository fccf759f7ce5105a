package event

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/viant/spawner/service/messaging"
	"github.com/viant/spawner/service/messaging/memory"
)

type Service struct {
	publisher       *Publisher[any]
	listener        *Listener[any]
	anyListening    atomic.Bool
	typedPublishers map[reflect.Type]any
	typedListeners  map[reflect.Type]stopper
	queues          []func() error
	mux             sync.RWMutex
	newQueueConfig  func(name string) memory.Config
}

type stopper interface {
	Stop()
	Drain()
}

// SetListener replaces the catch-all listener receiving every event.
func (s *Service) SetListener(handler func(*Event[any])) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.listener != nil {
		s.listener.Stop()
	}
	s.listener = NewListener[any](s.publisher, handler)
	s.listener.Start()
	s.anyListening.Store(true)
}

// Close closes every queue and waits for listeners to drain them.
func (s *Service) Close() {
	s.mux.Lock()
	s.anyListening.Store(false)
	queues := s.queues
	s.queues = nil
	listeners := make([]stopper, 0, len(s.typedListeners)+1)
	if s.listener != nil {
		listeners = append(listeners, s.listener)
	}
	for _, listener := range s.typedListeners {
		listeners = append(listeners, listener)
	}
	s.mux.Unlock()
	for _, closeQueue := range queues {
		_ = closeQueue()
	}
	for _, listener := range listeners {
		listener.Drain()
	}
}

func New(opts ...Option) *Service {
	ret := &Service{
		typedPublishers: make(map[reflect.Type]any),
		typedListeners:  make(map[reflect.Type]stopper),
		newQueueConfig:  func(string) memory.Config { return memory.DefaultConfig() },
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.publisher = NewPublisher[any](QueueOf[Event[any]](ret, "any"))
	return ret
}

// QueueOf creates a queue registered for closing with the service.
func QueueOf[T any](s *Service, name string) messaging.Queue[T] {
	queue := memory.NewQueue[T](s.newQueueConfig(name))
	s.queues = append(s.queues, queue.Close)
	return queue
}

func keyOf[T any]() reflect.Type {
	var t T
	rType := reflect.TypeOf(t)
	if rType != nil && rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	return rType
}

// SetListenerOf replaces the listener of events carrying T.
func SetListenerOf[T any](s *Service, handler func(*Event[T])) {
	publisher := PublisherOf[T](s)
	key := keyOf[T]()
	s.mux.Lock()
	defer s.mux.Unlock()
	if prev, ok := s.typedListeners[key]; ok {
		prev.Stop()
	}
	listener := NewListener[T](publisher, handler)
	s.typedListeners[key] = listener
	listener.Start()
	publisher.listening.Store(true)
}

// PublisherOf returns the publisher for events carrying T.
func PublisherOf[T any](s *Service) *Publisher[T] {
	key := keyOf[T]()
	s.mux.RLock()
	ret, ok := s.typedPublishers[key]
	s.mux.RUnlock()
	if ok {
		return ret.(*Publisher[T])
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if ret, ok = s.typedPublishers[key]; ok {
		return ret.(*Publisher[T])
	}
	publisher := NewPublisher[T](QueueOf[Event[T]](s, key.String()))
	publisher.service = s
	s.typedPublishers[key] = publisher
	return publisher
}

// Publish sends data as an event of type T.
func Publish[T any](ctx context.Context, s *Service, eventContext *Context, data T) error {
	return PublisherOf[T](s).Publish(ctx, NewEvent(eventContext, data))
}
