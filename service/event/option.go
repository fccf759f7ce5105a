package event

import "github.com/viant/spawner/service/messaging/memory"

type Option func(s *Service)

// WithQueueConfig sets the memory queue configuration per event type name.
func WithQueueConfig(newConfig func(name string) memory.Config) Option {
	return func(s *Service) {
		s.newQueueConfig = newConfig
	}
}
