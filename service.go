package spawner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/viant/spawner/internal/clock"

	"github.com/viant/spawner/model/errs"
	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/service/admission"
	"github.com/viant/spawner/service/aggregation"
	"github.com/viant/spawner/service/batch"
	"github.com/viant/spawner/service/dependency"
	"github.com/viant/spawner/service/dispatch"
	"github.com/viant/spawner/service/event"
	"github.com/viant/spawner/service/executor"
	emem "github.com/viant/spawner/service/executor/memory"
	"github.com/viant/spawner/service/registry"
	rmem "github.com/viant/spawner/service/registry/memory"
	"github.com/viant/spawner/service/sandbox"
	"github.com/viant/spawner/tracing"
)

// Service is the caller-facing façade of the engine.
type Service struct {
	config      *Config
	registry    registry.Registry
	executor    executor.Executor
	handler     emem.Handler
	local       *emem.Service
	evaluator   sandbox.Evaluator
	admission   *admission.Service
	dispatcher  *dispatch.Service
	batch       *batch.Service
	aggregation *aggregation.Service
	tracker     *tracker
	events      *event.Service
	listener    func(*event.Event[any])
	tracing     bool
}

// Spawn admits and dispatches a single task, retrying per request.Retry.
func (s *Service) Spawn(ctx context.Context, request *task.SpawnRequest) *task.SpawnResult {
	if err := validate(request); err != nil {
		return task.Failure(err, "", "")
	}
	ctx, span := tracing.StartSpan(ctx, "spawner.Spawn", "INTERNAL")
	span.WithAttributes(map[string]string{"caller": request.Caller.Key, "pool": request.Pool, "label": request.Label})
	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr) }()

	owner := request.Caller.Key
	started := clock.Now()
	if err := s.admission.Admit(ctx, owner, 1); err != nil {
		spanErr = err
		result := task.Failure(err, "", "")
		s.publish(ctx, owner, "Spawn", started, result)
		return result
	}
	result := s.dispatcher.Spawn(ctx, request)
	if !result.Accepted() {
		spanErr = fmt.Errorf("%v", result.Error)
	}
	span.WithInt("attempts", result.Attempts)
	s.publish(ctx, owner, "Spawn", started, result)
	return result
}

// SpawnBatch admits the whole batch and dispatches it, see batch.Service.
func (s *Service) SpawnBatch(ctx context.Context, caller task.Caller, tasks []*batch.Task, wait batch.Wait, options *batch.Options) *batch.Result {
	if options != nil && options.Aggregation != nil {
		if err := validateAggregation(options.Aggregation); err != nil {
			return &batch.Result{Status: task.StatusError, Error: err.Error(), Code: errs.ValidationError, Wait: wait.String()}
		}
	}
	started := clock.Now()
	result := s.batch.SpawnBatch(ctx, caller, tasks, wait, options)
	for _, record := range result.Records {
		if record.Status == batch.RecordSkipped {
			continue
		}
		spawnResult := &task.SpawnResult{Status: task.StatusAccepted, TaskID: record.TaskID, Identity: record.Identity}
		if record.Status != batch.RecordAccepted {
			spawnResult = &task.SpawnResult{Status: task.StatusError, Identity: record.Identity, Error: record.Error, Code: record.Code}
		}
		s.publish(ctx, caller.Key, "SpawnBatch", started, spawnResult)
	}
	return result
}

// SpawnMany spawns template once per text with at most concurrent
// dispatches in flight.
func (s *Service) SpawnMany(ctx context.Context, template *task.SpawnRequest, texts []string, concurrent int) *batch.ManyResult {
	if template != nil {
		if err := validateAggregation(template.Aggregation); err != nil {
			return &batch.ManyResult{Status: string(task.StatusError), Error: err.Error(), Code: errs.ValidationError}
		}
	}
	started := clock.Now()
	result := s.batch.Many(ctx, template, texts, concurrent)
	for _, spawnResult := range result.Results {
		s.publish(ctx, template.Caller.Key, "SpawnMany", started, spawnResult)
	}
	return result
}

// publish emits a spawned or rejected event for result.
func (s *Service) publish(ctx context.Context, owner, method string, started time.Time, result *task.SpawnResult) {
	if result == nil {
		return
	}
	eventType := event.TaskSpawned
	if !result.Accepted() {
		eventType = event.TaskRejected
	}
	eventContext := &event.Context{
		ParentKey:   owner,
		TaskID:      result.TaskID,
		Identity:    result.Identity,
		EventType:   eventType,
		Service:     "spawner",
		Method:      method,
		TimeTakenMs: int(clock.Since(started).Milliseconds()),
	}
	if err := event.Publish(context.WithoutCancel(ctx), s.events, eventContext, *result); err != nil {
		log.Printf("spawner: failed to publish %v event: %v", eventType, err)
	}
}

// GetAggregated returns the computed value of variable once its group is
// complete.
func (s *Service) GetAggregated(ctx context.Context, parentKey, variable string) (*aggregation.AggregatedValue, bool) {
	return s.aggregation.Compute(ctx, parentKey, variable)
}

// WaitAggregated blocks until variable is complete or ctx is done.
func (s *Service) WaitAggregated(ctx context.Context, parentKey, variable string) (*aggregation.AggregatedValue, error) {
	return s.aggregation.Wait(ctx, parentKey, variable)
}

// GetAllAggregated returns every complete variable of parentKey.
func (s *Service) GetAllAggregated(ctx context.Context, parentKey string) map[string]*aggregation.AggregatedValue {
	return s.aggregation.QueryAll(ctx, parentKey)
}

// GetPending returns the pending or partial groups of parentKey.
func (s *Service) GetPending(parentKey string) map[string]*aggregation.Group {
	return s.aggregation.ListPending(parentKey)
}

// Clear drops every aggregation group and parked completion of parentKey.
func (s *Service) Clear(parentKey string) {
	s.tracker.drop(parentKey)
	s.aggregation.Clear(parentKey)
}

// Registry returns the task registry.
func (s *Service) Registry() registry.Registry {
	return s.registry
}

// Start launches the in-process executor, if one was built.
func (s *Service) Start(ctx context.Context) error {
	if s.local == nil {
		return nil
	}
	return s.local.Start(ctx)
}

// Shutdown drains the in-process executor and stops completion routing.
func (s *Service) Shutdown(ctx context.Context) error {
	var err error
	if s.local != nil {
		err = s.local.Shutdown(ctx)
	}
	s.aggregation.Close()
	s.events.Close()
	if s.tracing {
		if tErr := tracing.Shutdown(ctx); tErr != nil && err == nil {
			err = tErr
		}
	}
	return err
}

func validate(request *task.SpawnRequest) error {
	if request == nil {
		return errs.New(errs.ValidationError, "request was nil")
	}
	if strings.TrimSpace(request.Task) == "" {
		return errs.New(errs.ValidationError, "task text was empty")
	}
	if strings.TrimSpace(request.Caller.Key) == "" {
		return errs.New(errs.ValidationError, "caller key was empty")
	}
	return validateAggregation(request.Aggregation)
}

func validateAggregation(spec *task.AggregationSpec) error {
	if spec == nil || spec.CollectInto == "" {
		return nil
	}
	if !aggregation.IsValidVariable(spec.CollectInto) {
		return errs.New(errs.ValidationError, "collectInto %q must start with %v", spec.CollectInto, aggregation.VariablePrefix)
	}
	return nil
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if s.registry == nil {
		s.registry = rmem.New()
	}
	if s.executor == nil {
		if s.handler == nil {
			return fmt.Errorf("executor or handler is required")
		}
		local, err := emem.New(emem.WithHandler(s.handler), emem.WithConfig(s.config.executorConfig()))
		if err != nil {
			return err
		}
		local.AddListener(func(ctx context.Context, completion *task.Completion) {
			_ = s.HandleCompletion(ctx, completion)
		})
		s.local = local
		s.executor = local
	}
	if s.evaluator == nil {
		s.evaluator = sandbox.New(s.config.sandboxConfig())
	}
	s.aggregation = aggregation.New(s.config.aggregationConfig(), s.evaluator)
	s.admission = admission.New(s.registry, s.config.Admission)
	s.tracker = newTracker(s)
	s.events = event.New()
	if s.listener != nil {
		s.events.SetListener(s.listener)
	}

	dispatchOptions := []dispatch.Option{
		dispatch.WithConfig(s.config.dispatchConfig()),
		dispatch.WithRegistry(s.registry),
		dispatch.WithExecutor(s.executor),
		dispatch.WithResolver(dependency.New(s.registry, s.executor, s.config.dependencyConfig())),
		dispatch.WithAggregation(s.aggregation),
		dispatch.WithSettled(s.tracker.settle),
	}
	for name, pool := range s.config.pools() {
		dispatchOptions = append(dispatchOptions, dispatch.WithPool(name, pool))
	}
	var err error
	if s.dispatcher, err = dispatch.New(dispatchOptions...); err != nil {
		return err
	}
	s.batch = batch.New(s.admission, s.dispatcher, s.registry, s.config.batchConfig())
	return nil
}

// New creates a Service. Either WithExecutor or WithHandler is required.
func New(options ...Option) (*Service, error) {
	ret := &Service{}
	if err := ret.init(options); err != nil {
		return nil, err
	}
	return ret, nil
}
