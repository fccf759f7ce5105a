// Package aggregation collects spawned task results into named variables of
// their owner and merges them once every member reported.
//
// Groups live in an arena keyed by (owner, variable) and stay there until the
// owner calls Clear. Each group has its own lock so that groups of different
// owners, or different variables, never block each other.
package aggregation

import (
	"context"
	"sort"
	"sync"

	"github.com/viant/spawner/internal/clock"
	"github.com/viant/spawner/internal/idgen"
	"github.com/viant/spawner/model/errs"
	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/service/sandbox"
	"github.com/viant/spawner/tracing"
)

// Config controls merge evaluation and completion delivery.
type Config struct {
	// QueueBuffer is the per-owner completion queue size.
	QueueBuffer int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{QueueBuffer: 100}
}

// Service is the aggregation engine.
type Service struct {
	config    Config
	evaluator sandbox.Evaluator

	mu     sync.RWMutex
	owners map[string]map[string]*group

	router
}

// New creates an aggregation engine. The evaluator serves the custom
// strategy; with none, custom merges yield an error value.
func New(config Config, evaluator sandbox.Evaluator) *Service {
	s := &Service{
		config:    config,
		evaluator: evaluator,
		owners:    map[string]map[string]*group{},
	}
	s.router.init(s)
	return s
}

// CreateGroup creates the group (owner, variable), replacing any existing
// one. Unknown strategies default to concat.
func (s *Service) CreateGroup(owner, variable, strategy, customFunction string) (*Group, error) {
	if !IsValidVariable(variable) {
		return nil, errs.New(errs.ValidationError, "variable %q must start with %q", variable, VariablePrefix)
	}
	g := s.newGroup(owner, variable, strategy, customFunction)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownerGroups(owner)[variable] = g
	return g.snapshot(), nil
}

// Join returns the open group (owner, variable), creating it when missing.
// A complete group is replaced so that a new collection round can start.
func (s *Service) Join(owner, variable, strategy, customFunction string) (*Group, error) {
	if !IsValidVariable(variable) {
		return nil, errs.New(errs.ValidationError, "variable %q must start with %q", variable, VariablePrefix)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := s.ownerGroups(owner)
	if g, ok := groups[variable]; ok && !g.isComplete() {
		return g.snapshot(), nil
	}
	g := s.newGroup(owner, variable, strategy, customFunction)
	groups[variable] = g
	return g.snapshot(), nil
}

func (s *Service) newGroup(owner, variable, strategy, customFunction string) *group {
	parsed, _ := ParseStrategy(strategy)
	return newGroup(Group{
		ID:             idgen.New(),
		Owner:          owner,
		Variable:       variable,
		Strategy:       parsed,
		CustomFunction: customFunction,
		Status:         StatusPending,
		CreatedAt:      clock.Now(),
	})
}

// ownerGroups returns the owner's group map; callers hold s.mu for writing.
func (s *Service) ownerGroups(owner string) map[string]*group {
	groups, ok := s.owners[owner]
	if !ok {
		groups = map[string]*group{}
		s.owners[owner] = groups
	}
	return groups
}

func (s *Service) lookup(owner, variable string) (*group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.owners[owner][variable]
	return g, ok
}

// groups returns the owner's groups ordered by variable name.
func (s *Service) groups(owner string) []*group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	variables := make([]string, 0, len(s.owners[owner]))
	for variable := range s.owners[owner] {
		variables = append(variables, variable)
	}
	sort.Strings(variables)
	ret := make([]*group, 0, len(variables))
	for _, variable := range variables {
		ret = append(ret, s.owners[owner][variable])
	}
	return ret
}

// AddMember registers taskID as a pending member of (owner, variable). A task
// may belong to one group per owner only.
func (s *Service) AddMember(owner, variable, taskID string) error {
	g, ok := s.lookup(owner, variable)
	if !ok {
		return errs.New(errs.ValidationError, "group %v not found", variable)
	}
	for _, candidate := range s.groups(owner) {
		if candidate != g && candidate.hasMember(taskID) {
			return errs.New(errs.ValidationError, "task %v already belongs to another group", taskID)
		}
	}
	return g.addMember(taskID)
}

// RecordResult stores result in (owner, variable). Duplicate results for a
// task and results arriving after completion are ignored. It reports whether
// this call completed the group.
func (s *Service) RecordResult(owner, variable string, result TaskResult) (bool, error) {
	g, ok := s.lookup(owner, variable)
	if !ok {
		return false, errs.New(errs.ValidationError, "group %v not found", variable)
	}
	return g.record(result), nil
}

// RouteCompletion records a terminal task event in the first owner group
// listing taskID as a member. It returns the variable it was routed to.
func (s *Service) RouteCompletion(owner, taskID, identity string, outcome task.Outcome, output *string, errorMessage string) (string, bool) {
	for _, g := range s.groups(owner) {
		if !g.hasMember(taskID) {
			continue
		}
		g.record(TaskResult{
			TaskID:      taskID,
			Identity:    identity,
			Outcome:     OutcomeOf(outcome),
			Output:      output,
			Error:       errorMessage,
			CompletedAt: clock.Now(),
		})
		return g.snapshot().Variable, true
	}
	return "", false
}

// Group returns a snapshot of (owner, variable).
func (s *Service) Group(owner, variable string) (*Group, bool) {
	g, ok := s.lookup(owner, variable)
	if !ok {
		return nil, false
	}
	return g.snapshot(), true
}

// Compute merges (owner, variable). It returns false unless the group exists
// and is complete.
func (s *Service) Compute(ctx context.Context, owner, variable string) (*AggregatedValue, bool) {
	g, ok := s.lookup(owner, variable)
	if !ok {
		return nil, false
	}
	snapshot := g.snapshot()
	if snapshot.Status != StatusComplete {
		return nil, false
	}
	ctx, span := tracing.StartSpan(ctx, "aggregation.Compute", "INTERNAL")
	span.WithAttributes(map[string]string{"variable": variable, "strategy": string(snapshot.Strategy)})
	defer tracing.EndSpan(span, nil)
	return s.compute(ctx, snapshot), true
}

// QueryAll computes every complete group of owner.
func (s *Service) QueryAll(ctx context.Context, owner string) map[string]*AggregatedValue {
	ret := map[string]*AggregatedValue{}
	for _, g := range s.groups(owner) {
		snapshot := g.snapshot()
		if snapshot.Status != StatusComplete {
			continue
		}
		ret[snapshot.Variable] = s.compute(ctx, snapshot)
	}
	return ret
}

// ListPending returns owner groups that are not complete yet.
func (s *Service) ListPending(owner string) map[string]*Group {
	ret := map[string]*Group{}
	for _, g := range s.groups(owner) {
		snapshot := g.snapshot()
		if snapshot.Status == StatusComplete {
			continue
		}
		ret[snapshot.Variable] = snapshot
	}
	return ret
}

// Wait blocks until (owner, variable) completes, then computes it.
func (s *Service) Wait(ctx context.Context, owner, variable string) (*AggregatedValue, error) {
	g, ok := s.lookup(owner, variable)
	if !ok {
		return nil, errs.New(errs.ValidationError, "group %v not found", variable)
	}
	select {
	case <-g.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.compute(ctx, g.snapshot()), nil
}

// Clear removes every group of owner and stops its completion queue.
func (s *Service) Clear(owner string) {
	s.mu.Lock()
	delete(s.owners, owner)
	s.mu.Unlock()
	s.router.stop(owner)
}

// Close stops all completion queues.
func (s *Service) Close() {
	s.router.close()
}

func (s *Service) compute(ctx context.Context, snapshot *Group) *AggregatedValue {
	ret := &AggregatedValue{
		Variable: snapshot.Variable,
		Strategy: snapshot.Strategy,
		Count:    len(snapshot.Results),
	}
	if snapshot.CompletedAt != nil {
		ret.CompletedAt = *snapshot.CompletedAt
	}
	var successful []TaskResult
	for _, result := range snapshot.Results {
		if result.Outcome == OutcomeSuccess {
			successful = append(successful, result)
			continue
		}
		message := result.Error
		if message == "" {
			message = "Unknown error"
		}
		ret.Errors = append(ret.Errors, message)
	}
	ret.Value = s.merge(ctx, snapshot.Strategy, snapshot.CustomFunction, successful)
	return ret
}
