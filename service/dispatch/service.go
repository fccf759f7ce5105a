// Package dispatch implements the retry-and-dispatch coordinator: it runs the
// setup and submission sequence of a single task inside a bounded retry loop.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/viant/spawner/internal/clock"
	"github.com/viant/spawner/internal/idgen"
	"github.com/viant/spawner/model/errs"
	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/policy"
	"github.com/viant/spawner/service/aggregation"
	"github.com/viant/spawner/service/dependency"
	"github.com/viant/spawner/service/executor"
	"github.com/viant/spawner/service/registry"
	"github.com/viant/spawner/tracing"
)

// DepthParameter is the execution parameter carrying the child's spawn depth.
const DepthParameter = "spawnDepth"

// Config holds dispatch settings.
type Config struct {
	// CallTimeout bounds each patch and submit call.
	CallTimeout time.Duration
	// DefaultDelay and DefaultBackoff fill retry policies that omit them.
	DefaultDelay   time.Duration
	DefaultBackoff task.Backoff
	// DefaultPool is the caller pool when neither the request nor the caller
	// key names one.
	DefaultPool string
	MaxDepth    int
}

// DefaultConfig returns the default dispatch settings.
func DefaultConfig() Config {
	return Config{
		CallTimeout:    10 * time.Second,
		DefaultDelay:   time.Second,
		DefaultBackoff: task.BackoffExponential,
		DefaultPool:    "main",
		MaxDepth:       1,
	}
}

// Pool describes per-pool settings: which pools its callers may target and
// the execution parameters applied to its tasks.
type Pool struct {
	Policy     *policy.Policy
	Parameters map[string]interface{}
}

// Service is the dispatch coordinator.
type Service struct {
	config      Config
	registry    registry.Registry
	executor    executor.Executor
	resolver    *dependency.Service
	aggregation *aggregation.Service
	pools       map[string]*Pool
	settled     func(ctx context.Context, owner, taskID string)
}

// Spawn dispatches request, retrying failed attempts per its retry policy.
// Forbidden results and errors not matching the retry patterns end the loop
// immediately; otherwise the last attempt's result stands.
func (s *Service) Spawn(ctx context.Context, request *task.SpawnRequest) *task.SpawnResult {
	retry := s.retryPolicy(request.Retry)
	delays := newBackOff(retry)
	started := clock.Now()
	for attempt := 0; ; attempt++ {
		result := s.attempt(ctx, request, attempt)
		result.Attempts = attempt + 1
		if result.Accepted() || attempt >= retry.RetryCount {
			return result
		}
		if result.Status == task.StatusForbidden || !retry.IsRetryable(result.Error) {
			return result
		}
		delay := delays.NextBackOff()
		if delay == backoff.Stop {
			return result
		}
		if retry.MaxRetryTime > 0 {
			elapsed := clock.Since(started)
			if elapsed >= retry.MaxRetryTime {
				return result
			}
			if remaining := retry.MaxRetryTime - elapsed; delay > remaining {
				delay = remaining
			}
		}
		if err := clock.Sleep(ctx, delay); err != nil {
			return result
		}
	}
}

func (s *Service) attempt(ctx context.Context, request *task.SpawnRequest, attempt int) *task.SpawnResult {
	ctx, span := tracing.StartSpan(ctx, "dispatch.attempt", "CLIENT")
	span.WithAttributes(map[string]string{"caller": request.Caller.Key, "attempt": tracing.Attempt(attempt)})
	result := s.Once(ctx, request)
	var err error
	if !result.Accepted() {
		err = fmt.Errorf("%v", result.Error)
	}
	tracing.EndSpan(span, err)
	return result
}

// retryPolicy returns a copy of policy with defaults applied; nil means a
// single attempt.
func (s *Service) retryPolicy(policy *task.RetryPolicy) *task.RetryPolicy {
	ret := &task.RetryPolicy{}
	if policy != nil {
		*ret = *policy
	}
	if ret.RetryCount < 0 {
		ret.RetryCount = 0
	}
	if ret.BaseDelay <= 0 {
		ret.BaseDelay = s.config.DefaultDelay
	}
	if ret.Backoff == "" {
		ret.Backoff = s.config.DefaultBackoff
	}
	return ret
}

// Once runs a single dispatch attempt: dependency resolution, permission
// check, identity allocation, parameter patching, submission, registration,
// shared context and aggregation membership. Any failure stops the sequence;
// the result carries whatever identity was already allocated.
func (s *Service) Once(ctx context.Context, request *task.SpawnRequest) *task.SpawnResult {
	text := request.Task
	if ref := request.Dependency(); ref != "" {
		resolution, err := s.resolver.Resolve(ctx, ref, request.IncludeDependencyResult)
		if err != nil {
			return task.Failure(err, "", "")
		}
		if request.IncludeDependencyResult {
			text = dependency.WithResult(resolution.Result, text)
		}
	}

	callerPool := s.callerPool(request.Caller)
	targetPool := strings.TrimSpace(request.Pool)
	if targetPool == "" {
		targetPool = callerPool
	}
	if !strings.EqualFold(targetPool, callerPool) {
		if !s.policyFor(ctx, callerPool).IsAllowed(callerPool, targetPool) {
			return task.Failure(errs.New(errs.PermissionDenied, "pool %v is not allowed to spawn into %v", callerPool, targetPool), "", "")
		}
	}

	identity := idgen.TaskIdentity(targetPool, request.Namespace)
	callerDepth, err := s.registry.GetCurrentDepth(ctx, request.Caller.Key)
	if err != nil {
		return task.Failure(errs.Wrap(errs.DispatchFailed, err, "failed to read caller depth"), identity, "")
	}
	depth := callerDepth + 1

	applied, err := s.patch(ctx, identity, depth, targetPool, request.Parameters)
	if err != nil {
		result := task.Failure(err, identity, "")
		result.ParametersApplied = applied
		return result
	}

	shared, err := s.sharedContext(ctx, request)
	if err != nil {
		return task.Failure(errs.Wrap(errs.DispatchFailed, err, "failed to load parent shared context"), identity, "")
	}

	token := idgen.New()
	submission := &executor.Submission{
		Identity:      identity,
		ParentKey:     request.Caller.Key,
		Token:         token,
		Label:         request.Label,
		Message:       childMessage(text, depth, s.config.MaxDepth),
		Depth:         depth,
		MaxDepth:      s.config.MaxDepth,
		Cleanup:       request.EffectiveCleanup(),
		Timeout:       request.Timeout,
		SharedContext: shared,
	}
	submitCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	taskID, err := s.executor.Submit(submitCtx, submission)
	cancel()
	if err != nil {
		return task.Failure(errs.Wrap(errs.DispatchFailed, err, "failed to submit task"), identity, "")
	}
	if taskID == "" {
		taskID = token
	}
	if s.settled != nil {
		defer s.settled(ctx, request.Caller.Key, taskID)
	}

	err = s.registry.RegisterTask(ctx, &registry.TaskMetadata{
		TaskID:    taskID,
		Identity:  identity,
		ParentKey: request.Caller.Key,
		Label:     request.Label,
		Task:      request.Task,
		Pool:      targetPool,
		Depth:     depth,
		Cleanup:   request.EffectiveCleanup(),
		CreatedAt: clock.Now(),
	})
	if err != nil {
		return task.Failure(errs.Wrap(errs.DispatchFailed, err, "failed to register task"), identity, taskID)
	}
	if len(shared) > 0 {
		if err = s.registry.StoreSharedContext(ctx, taskID, shared); err != nil {
			return task.Failure(errs.Wrap(errs.DispatchFailed, err, "failed to store shared context"), identity, taskID)
		}
	}
	s.collect(request, taskID)
	return &task.SpawnResult{Status: task.StatusAccepted, TaskID: taskID, Identity: identity, ParametersApplied: applied}
}

// patch applies the depth, the pool's parameters and the request overrides,
// one bounded call per key. It returns the override keys applied.
func (s *Service) patch(ctx context.Context, identity string, depth int, pool string, overrides map[string]interface{}) ([]string, error) {
	if err := s.patchOne(ctx, identity, map[string]interface{}{DepthParameter: depth}); err != nil {
		return nil, errs.Wrap(errs.DispatchFailed, err, "failed to set %v", DepthParameter)
	}
	if p, ok := s.pools[pool]; ok {
		for _, key := range sortedKeys(p.Parameters) {
			if _, overridden := overrides[key]; overridden {
				continue
			}
			if err := s.patchOne(ctx, identity, map[string]interface{}{key: p.Parameters[key]}); err != nil {
				return nil, errs.Wrap(errs.DispatchFailed, err, "failed to apply pool parameter %v", key)
			}
		}
	}
	var applied []string
	for _, key := range sortedKeys(overrides) {
		if err := s.patchOne(ctx, identity, map[string]interface{}{key: overrides[key]}); err != nil {
			return applied, errs.Wrap(errs.DispatchFailed, err, "failed to apply parameter %v", key)
		}
		applied = append(applied, key)
	}
	return applied, nil
}

func (s *Service) patchOne(ctx context.Context, identity string, patch map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	defer cancel()
	return s.executor.PatchParameters(ctx, identity, patch)
}

// sharedContext overlays the request's shared context on the parent's.
func (s *Service) sharedContext(ctx context.Context, request *task.SpawnRequest) (map[string]interface{}, error) {
	parent, err := s.registry.GetParentSharedContext(ctx, request.Caller.Key)
	if err != nil {
		return nil, err
	}
	if len(parent) == 0 && len(request.SharedContext) == 0 {
		return nil, nil
	}
	ret := make(map[string]interface{}, len(parent)+len(request.SharedContext))
	for k, v := range parent {
		ret[k] = v
	}
	for k, v := range request.SharedContext {
		ret[k] = v
	}
	return ret, nil
}

// collect adds taskID to the requested aggregation group. Invalid variable
// names skip collection.
func (s *Service) collect(request *task.SpawnRequest, taskID string) {
	spec := request.Aggregation
	if spec == nil || s.aggregation == nil || spec.CollectInto == "" {
		return
	}
	owner := request.Caller.Key
	if _, err := s.aggregation.Join(owner, spec.CollectInto, spec.MergeStrategy, spec.CustomFunction); err != nil {
		log.Printf("dispatch: skipping aggregation of %v: %v", taskID, err)
		return
	}
	if err := s.aggregation.AddMember(owner, spec.CollectInto, taskID); err != nil {
		log.Printf("dispatch: failed to collect %v into %v: %v", taskID, spec.CollectInto, err)
	}
}

func (s *Service) callerPool(caller task.Caller) string {
	if pool := strings.TrimSpace(caller.Pool); pool != "" {
		return pool
	}
	if pool := idgen.PoolOf(caller.Key); pool != "" {
		return pool
	}
	return s.config.DefaultPool
}

func (s *Service) policyFor(ctx context.Context, pool string) *policy.Policy {
	if p := policy.FromContext(ctx); p != nil {
		return p
	}
	if p, ok := s.pools[pool]; ok {
		return p.Policy
	}
	return nil
}

func childMessage(text string, depth, maxDepth int) string {
	return fmt.Sprintf("[Child Context] Running as a spawned task (depth %d/%d). Results are delivered to the requester; do not poll for status.\n\n[Task]: %s", depth, maxDepth, text)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// New creates a dispatch coordinator.
func New(options ...Option) (*Service, error) {
	s := &Service{config: DefaultConfig(), pools: map[string]*Pool{}}
	for _, opt := range options {
		opt(s)
	}
	if s.registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if s.executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if s.resolver == nil {
		s.resolver = dependency.New(s.registry, s.executor, dependency.DefaultConfig())
	}
	return s, nil
}
