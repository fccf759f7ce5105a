package spawner

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/viant/spawner/internal/clock"
	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/service/event"
)

// completer is implemented by registries tracking completion state locally.
type completer interface {
	Complete(ctx context.Context, taskID string, outcome task.Outcome, errorMessage string) error
}

// HandleCompletion records a terminal event reported by the executor. The
// registry entry is completed right away when known. Aggregation delivery of
// a task whose dispatch has not settled yet (registration and group
// membership) is parked and replayed once that task settles.
func (s *Service) HandleCompletion(ctx context.Context, completion *task.Completion) error {
	if completion == nil || completion.TaskID == "" {
		return fmt.Errorf("completion task id was empty")
	}
	if completion.At.IsZero() {
		completion.At = clock.Now()
	}
	eventContext := &event.Context{
		ParentKey: completion.ParentKey,
		TaskID:    completion.TaskID,
		Identity:  completion.Identity,
		EventType: event.TaskCompleted,
		Service:   "spawner",
		Method:    "HandleCompletion",
	}
	if err := event.Publish(context.WithoutCancel(ctx), s.events, eventContext, *completion); err != nil {
		log.Printf("spawner: failed to publish completion of %v: %v", completion.TaskID, err)
	}
	pending := &parked{completion: completion}
	pending.registered = s.complete(ctx, completion)
	if s.tracker.park(pending) {
		return nil
	}
	if !pending.registered {
		s.complete(ctx, completion)
	}
	return s.aggregation.Deliver(ctx, completion)
}

// complete marks the registry entry terminal; it returns false when the task
// is not registered yet.
func (s *Service) complete(ctx context.Context, completion *task.Completion) bool {
	c, ok := s.registry.(completer)
	if !ok {
		return true
	}
	status, err := s.registry.GetTaskStatus(ctx, completion.TaskID)
	if err != nil || status == nil || !status.Exists {
		return false
	}
	if err = c.Complete(ctx, completion.TaskID, completion.Outcome, completion.Error); err != nil {
		log.Printf("spawner: failed to complete %v: %v", completion.TaskID, err)
	}
	return true
}

type parked struct {
	completion *task.Completion
	registered bool
}

// tracker parks completions of tasks whose dispatch has not settled.
type tracker struct {
	service *Service
	mu      sync.Mutex
	settled map[string]string
	parked  map[string]*parked
}

// settle marks taskID dispatched and replays its parked completion, if any.
func (t *tracker) settle(ctx context.Context, owner, taskID string) {
	t.mu.Lock()
	item, ok := t.parked[taskID]
	if !ok {
		t.settled[taskID] = owner
		t.mu.Unlock()
		return
	}
	delete(t.parked, taskID)
	t.mu.Unlock()
	ctx = context.WithoutCancel(ctx)
	if !item.registered && !t.service.complete(ctx, item.completion) {
		log.Printf("spawner: completion of unknown task %v", taskID)
	}
	if err := t.service.aggregation.Deliver(ctx, item.completion); err != nil {
		log.Printf("spawner: failed to deliver %v: %v", taskID, err)
	}
}

// park holds item until its task settles. A settled task is released, as
// each task completes once.
func (t *tracker) park(item *parked) bool {
	taskID := item.completion.TaskID
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.settled[taskID]; ok {
		delete(t.settled, taskID)
		return false
	}
	t.parked[taskID] = item
	return true
}

// drop forgets the settled and parked tasks of owner.
func (t *tracker) drop(owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for taskID, settledBy := range t.settled {
		if settledBy == owner {
			delete(t.settled, taskID)
		}
	}
	for taskID, item := range t.parked {
		if item.completion.ParentKey == owner {
			delete(t.parked, taskID)
		}
	}
}

func newTracker(service *Service) *tracker {
	return &tracker{service: service, settled: map[string]string{}, parked: map[string]*parked{}}
}
