// Package batch implements the parallel batch coordinator: it fans a set of
// tasks out to the dispatcher, orders dependency-gated tasks after the tasks
// they reference and shapes the combined result per a wait strategy.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/spawner/internal/clock"
	"github.com/viant/spawner/model/errs"
	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/progress"
	"github.com/viant/spawner/service/admission"
	"github.com/viant/spawner/service/registry"
	"github.com/viant/spawner/tracing"
	"golang.org/x/sync/errgroup"
)

// Dispatcher runs spawn requests; Once is a single attempt, Spawn applies the
// request retry policy.
type Dispatcher interface {
	Once(ctx context.Context, request *task.SpawnRequest) *task.SpawnResult
	Spawn(ctx context.Context, request *task.SpawnRequest) *task.SpawnResult
}

// Config holds batch settings.
type Config struct {
	// DependencyRecheck is the delay before the single recheck of an
	// unspawned dependency.
	DependencyRecheck time.Duration
}

// DefaultConfig returns default batch settings.
func DefaultConfig() Config {
	return Config{DependencyRecheck: 500 * time.Millisecond}
}

// Service is the batch coordinator.
type Service struct {
	config     Config
	admission  *admission.Service
	dispatcher Dispatcher
	registry   registry.Registry
}

// run tracks spawned labels and task ids of one batch.
type run struct {
	mu      sync.Mutex
	records []*Record
	labels  map[string]int
	spawned map[string]bool
}

func (r *run) set(ctx context.Context, record *Record) {
	r.mu.Lock()
	r.records[record.Index] = record
	if record.Status == RecordAccepted {
		r.spawned[record.Label] = true
		r.spawned[record.TaskID] = true
	}
	r.mu.Unlock()
	delta := progress.Delta{Pending: -1}
	switch record.Status {
	case RecordAccepted:
		delta.Accepted = 1
	case RecordSkipped:
		delta.Skipped = 1
	default:
		delta.Failed = 1
	}
	progress.UpdateCtx(ctx, delta)
}

func (r *run) isSpawned(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawned[ref]
}

func (r *run) accepted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, record := range r.records {
		if record != nil && record.Status == RecordAccepted {
			count++
		}
	}
	return count
}

func (r *run) record(index int) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[index]
}

// SpawnBatch admits the whole batch, dispatches independent tasks
// concurrently and then dependent tasks one by one in listing order. A single
// task failure never aborts the batch.
func (s *Service) SpawnBatch(ctx context.Context, caller task.Caller, tasks []*Task, wait Wait, options *Options) *Result {
	if options == nil {
		options = &Options{}
	}
	started := clock.Now()
	ctx, span := tracing.StartSpan(ctx, "batch.SpawnBatch", "INTERNAL")
	span.WithAttributes(map[string]string{"caller": caller.Key, "wait": wait.String()}).WithInt("tasks", len(tasks))
	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr) }()

	if len(tasks) == 0 {
		spanErr = errs.New(errs.ValidationError, "batch has no tasks")
		return rejected(spanErr, wait)
	}
	labels, err := assignLabels(tasks)
	if err != nil {
		spanErr = err
		return rejected(err, wait)
	}
	if err = s.admission.Admit(ctx, caller.Key, len(tasks)); err != nil {
		spanErr = err
		return rejected(err, wait)
	}

	progress.UpdateCtx(ctx, progress.Delta{Total: len(tasks), Pending: len(tasks)})
	state := &run{records: make([]*Record, len(tasks)), labels: map[string]int{}, spawned: map[string]bool{}}
	for i, label := range labels {
		state.labels[label] = i
	}

	var independent, dependent []int
	for i, t := range tasks {
		if t.ChainAfter == "" {
			independent = append(independent, i)
			continue
		}
		dependent = append(dependent, i)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	if options.Concurrency > 0 {
		group.SetLimit(options.Concurrency)
	}
	for _, index := range independent {
		index := index
		group.Go(func() error {
			state.set(groupCtx, s.dispatch(groupCtx, caller, tasks[index], index, labels[index], options))
			return nil
		})
	}
	_ = group.Wait()

	target := wait.target(len(tasks))
	for _, index := range dependent {
		if options.ShortCircuit && state.accepted() >= target {
			state.set(ctx, &Record{Index: index, Label: labels[index], Task: tasks[index].Task, Status: RecordSkipped, Error: "wait condition already met"})
			continue
		}
		state.set(ctx, s.dispatchDependent(ctx, caller, tasks, index, labels, state, options))
	}

	for i := range tasks {
		if state.record(i) == nil {
			state.set(ctx, &Record{Index: i, Label: labels[i], Task: tasks[i].Task, Status: RecordError, Error: "task was not processed"})
		}
	}

	result := &Result{
		Status:       task.StatusAccepted,
		Wait:         wait.String(),
		TasksSpawned: state.accepted(),
		Records:      state.records,
		Duration:     clock.Since(started),
	}
	result.Results = project(state.records, wait, options)
	span.WithInt("accepted", result.TasksSpawned)
	return result
}

func (s *Service) dispatchDependent(ctx context.Context, caller task.Caller, tasks []*Task, index int, labels []string, state *run, options *Options) *Record {
	t := tasks[index]
	ref := t.ChainAfter
	failed := func(message string) *Record {
		return &Record{Index: index, Label: labels[index], Task: t.Task, Status: RecordError, Error: message, Code: errs.DependencyNotFound}
	}

	depIndex, inBatch := state.labels[ref]
	if !inBatch {
		status, err := s.registry.GetTaskStatus(ctx, ref)
		if err != nil || status == nil || !status.Exists {
			return failed(fmt.Sprintf("chainAfter reference %q not found", ref))
		}
		return s.dispatch(ctx, caller, t, index, labels[index], options)
	}

	if options.SkipOnDependencyError {
		if dep := state.record(depIndex); dep != nil && dep.Status == RecordError {
			return &Record{Index: index, Label: labels[index], Task: t.Task, Status: RecordSkipped, Error: fmt.Sprintf("skipped due to failed dependency: %v", ref)}
		}
	}
	if !state.isSpawned(ref) {
		if err := clock.Sleep(ctx, s.config.DependencyRecheck); err != nil {
			return failed(err.Error())
		}
		if !state.isSpawned(ref) {
			record := failed(fmt.Sprintf("chainAfter dependency %q was not spawned", ref))
			record.Code = errs.DependencyFailed
			return record
		}
	}
	return s.dispatch(ctx, caller, t, index, labels[index], options)
}

func (s *Service) dispatch(ctx context.Context, caller task.Caller, t *Task, index int, label string, options *Options) *Record {
	started := clock.Now()
	namespace := t.Namespace
	if namespace == "" {
		namespace = options.Namespace
	}
	aggregationSpec := t.Aggregation
	if aggregationSpec == nil {
		aggregationSpec = options.Aggregation
	}
	result := s.dispatcher.Once(ctx, &task.SpawnRequest{
		Caller:        caller,
		Task:          t.Task,
		Label:         label,
		Pool:          t.Pool,
		Parameters:    t.Parameters,
		Cleanup:       t.Cleanup,
		Timeout:       t.Timeout,
		Namespace:     namespace,
		Aggregation:   aggregationSpec,
		SharedContext: t.SharedContext,
	})
	record := &Record{
		Index:    index,
		Label:    label,
		Task:     t.Task,
		Identity: result.Identity,
		TaskID:   result.TaskID,
		Duration: clock.Since(started),
	}
	if result.Accepted() {
		record.Status = RecordAccepted
		return record
	}
	record.Status = RecordError
	record.Error = result.Error
	record.Code = result.Code
	return record
}

// assignLabels returns effective labels, defaulting to parallel-<index>, and
// rejects duplicates.
func assignLabels(tasks []*Task) ([]string, error) {
	labels := make([]string, len(tasks))
	seen := map[string]bool{}
	for i, t := range tasks {
		if t == nil {
			return nil, errs.New(errs.ValidationError, "task %d is empty", i)
		}
		label := t.Label
		if label == "" {
			label = defaultLabel(i)
		}
		if seen[label] {
			return nil, errs.New(errs.ValidationError, "duplicate task label %q", label)
		}
		seen[label] = true
		labels[i] = label
	}
	return labels, nil
}

// New creates a batch coordinator.
func New(admission *admission.Service, dispatcher Dispatcher, registry registry.Registry, config Config) *Service {
	return &Service{admission: admission, dispatcher: dispatcher, registry: registry, config: config}
}
