// Package dependency resolves a reference to a prior task and blocks until
// that task reaches a terminal state.
package dependency

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/viant/spawner/model/errs"
	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/service/executor"
	"github.com/viant/spawner/service/registry"
)

// Resolution is the outcome of resolving a dependency reference.
type Resolution struct {
	TaskID        string
	ChildIdentity string
	Completed     bool
	Outcome       task.Outcome
	// Result is the dependency's most recent assistant output, when requested
	// and available.
	Result string
}

// Config bounds history fetches.
type Config struct {
	HistoryLimit int
	CallTimeout  time.Duration
}

// DefaultConfig returns default resolver settings.
func DefaultConfig() Config {
	return Config{HistoryLimit: 10, CallTimeout: 10 * time.Second}
}

// Service resolves dependencies against the registry.
type Service struct {
	config   Config
	registry registry.Registry
	executor executor.Executor
}

// Resolve looks ref up by id or label, waits for it to finish and fails with
// DEPENDENCY_FAILED unless it succeeded. When includeResult is set the last
// assistant output is fetched from the executor; history failures are logged
// and leave Result empty.
func (s *Service) Resolve(ctx context.Context, ref string, includeResult bool) (*Resolution, error) {
	status, err := s.registry.GetTaskStatus(ctx, ref)
	if err != nil {
		return nil, errs.Wrap(errs.DependencyNotFound, err, "failed to look up dependency %v", ref)
	}
	if status == nil || !status.Exists {
		return nil, errs.New(errs.DependencyNotFound, "dependency %v not found", ref)
	}
	if !status.Completed {
		if status, err = s.registry.WaitForCompletion(ctx, status.TaskID); err != nil {
			return nil, errs.Wrap(errs.DependencyFailed, err, "failed waiting for dependency %v", ref)
		}
	}
	resolution := &Resolution{
		TaskID:        status.TaskID,
		ChildIdentity: status.Identity,
		Completed:     status.Completed,
		Outcome:       status.Outcome,
	}
	if status.Outcome.IsFailure() {
		message := status.Error
		if message == "" {
			message = string(status.Outcome)
		}
		return resolution, errs.New(errs.DependencyFailed, "dependency %v failed: %v", ref, message)
	}
	if includeResult && status.Identity != "" {
		resolution.Result = s.lastOutput(ctx, status.Identity)
	}
	return resolution, nil
}

func (s *Service) lastOutput(ctx context.Context, identity string) string {
	callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	defer cancel()
	history, err := s.executor.FetchRecentHistory(callCtx, identity, s.config.HistoryLimit)
	if err != nil {
		log.Printf("dependency: failed to fetch history of %v: %v", identity, err)
		return ""
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == executor.RoleAssistant {
			return history[i].Content
		}
	}
	return ""
}

// WithResult prefixes taskText with a dependency result.
func WithResult(result, taskText string) string {
	if result == "" {
		return taskText
	}
	return fmt.Sprintf("[Previous step result]:\n%s\n\n[Current task]:\n%s", result, taskText)
}

// New creates a resolver.
func New(registry registry.Registry, executor executor.Executor, config Config) *Service {
	return &Service{registry: registry, executor: executor, config: config}
}
