package dispatch

import (
	"context"

	"github.com/viant/spawner/service/aggregation"
	"github.com/viant/spawner/service/dependency"
	"github.com/viant/spawner/service/executor"
	"github.com/viant/spawner/service/registry"
)

// Option customises the dispatch coordinator.
type Option func(*Service)

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

func WithRegistry(registry registry.Registry) Option {
	return func(s *Service) {
		s.registry = registry
	}
}

func WithExecutor(executor executor.Executor) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithResolver sets the dependency resolver; by default one is built from the
// registry and executor.
func WithResolver(resolver *dependency.Service) Option {
	return func(s *Service) {
		s.resolver = resolver
	}
}

func WithAggregation(aggregation *aggregation.Service) Option {
	return func(s *Service) {
		s.aggregation = aggregation
	}
}

// WithPool registers per-pool settings.
func WithPool(name string, pool *Pool) Option {
	return func(s *Service) {
		s.pools[name] = pool
	}
}

// WithSettled sets a callback invoked once a submitted task is registered and
// collected, or its dispatch failed after submission.
func WithSettled(fn func(ctx context.Context, owner, taskID string)) Option {
	return func(s *Service) {
		s.settled = fn
	}
}
