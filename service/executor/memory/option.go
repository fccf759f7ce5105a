package memory

import (
	"github.com/viant/spawner/service/executor"
	"github.com/viant/spawner/service/messaging"
)

// Option customises the executor.
type Option func(*Service)

// WithHandler sets the task handler.
func WithHandler(handler Handler) Option {
	return func(s *Service) {
		s.handler = handler
	}
}

// WithWorkers sets the number of worker goroutines
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.config.WorkerCount = count
	}
}

// WithConfig sets the executor configuration
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithMessageQueue sets the inbound submission queue
func WithMessageQueue(queue messaging.Queue[executor.Submission]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithListener registers a completion listener.
func WithListener(listener executor.CompletionListener) Option {
	return func(s *Service) {
		s.listeners = append(s.listeners, listener)
	}
}
