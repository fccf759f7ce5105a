// Package admission implements the spawn quota check performed before any
// dispatch: a maximum spawn depth and a maximum number of active children per
// parent context.
package admission

import (
	"context"
	"fmt"

	"github.com/viant/spawner/model/errs"
	"github.com/viant/spawner/service/registry"
)

// Config holds spawn quotas.
type Config struct {
	MaxSpawnDepth       int `json:"maxSpawnDepth" yaml:"maxSpawnDepth"`
	MaxChildrenPerAgent int `json:"maxChildrenPerAgent" yaml:"maxChildrenPerAgent"`
}

// DefaultConfig returns the default quotas.
func DefaultConfig() Config {
	return Config{MaxSpawnDepth: 1, MaxChildrenPerAgent: 5}
}

// Service checks quotas against registry state. The checks are advisory:
// two concurrent admissions for the same parent may both pass.
type Service struct {
	config   Config
	registry registry.Registry
}

// Admit returns nil when parentKey may spawn requested more tasks, or an
// ADMISSION_DENIED error.
func (s *Service) Admit(ctx context.Context, parentKey string, requested int) error {
	depth, err := s.registry.GetCurrentDepth(ctx, parentKey)
	if err != nil {
		return fmt.Errorf("failed to read depth of %v: %w", parentKey, err)
	}
	if depth >= s.config.MaxSpawnDepth {
		return errs.New(errs.AdmissionDenied, "spawn depth %d reached maximum %d", depth, s.config.MaxSpawnDepth)
	}
	active, err := s.registry.CountActiveChildren(ctx, parentKey)
	if err != nil {
		return fmt.Errorf("failed to count children of %v: %w", parentKey, err)
	}
	if active+requested > s.config.MaxChildrenPerAgent {
		return errs.New(errs.AdmissionDenied, "%d active children plus %d requested exceeds maximum %d", active, requested, s.config.MaxChildrenPerAgent)
	}
	return nil
}

// MaxDepth returns the configured depth limit.
func (s *Service) MaxDepth() int { return s.config.MaxSpawnDepth }

// New creates an admission controller.
func New(registry registry.Registry, config Config) *Service {
	return &Service{registry: registry, config: config}
}
