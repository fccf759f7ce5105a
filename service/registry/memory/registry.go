// Package memory provides a process-lifetime Registry backed by the generic
// in-memory DAO store.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/spawner/internal/clock"
	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/service/dao"
	"github.com/viant/spawner/service/dao/store"
	"github.com/viant/spawner/service/registry"
)

type record struct {
	registry.TaskMetadata
	Completed     bool
	Outcome       task.Outcome
	Error         string
	CompletedAt   time.Time
	SharedContext map[string]interface{}
	done          chan struct{}
}

func (r *record) status() *registry.TaskStatus {
	return &registry.TaskStatus{
		Exists:    true,
		TaskID:    r.TaskID,
		Identity:  r.Identity,
		Label:     r.Label,
		Completed: r.Completed,
		Outcome:   r.Outcome,
		Error:     r.Error,
	}
}

// Registry is an in-memory registry.Registry. Records are kept in a
// dao.Service; a single mutex serialises state transitions of a record.
type Registry struct {
	tasks  dao.Service[string, record]
	mu     sync.Mutex
	depths map[string]int
}

// New creates an empty registry.
func New() *Registry {
	tasks := store.NewMemoryStore[string, record](func(r *record) string { return r.TaskID }).
		WithField(func(r *record, name string) (string, bool) {
			switch name {
			case "parentKey":
				return r.ParentKey, true
			case "label":
				return r.Label, true
			case "identity":
				return r.Identity, true
			}
			return "", false
		})
	return &Registry{tasks: tasks, depths: map[string]int{}}
}

// SetDepth records the depth of a root context that was not spawned through
// this registry.
func (r *Registry) SetDepth(key string, depth int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depths[key] = depth
}

func (r *Registry) RegisterTask(ctx context.Context, meta *registry.TaskMetadata) error {
	if meta == nil || meta.TaskID == "" {
		return dao.ErrInvalidID
	}
	rec := &record{TaskMetadata: *meta, done: make(chan struct{})}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = clock.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks.Save(ctx, rec)
}

func (r *Registry) lookup(ctx context.Context, ref string) (*record, error) {
	rec, err := r.tasks.Load(ctx, ref)
	if err == nil {
		return rec, nil
	}
	if err != dao.ErrNotFound {
		return nil, err
	}
	byLabel, err := r.tasks.List(ctx, dao.NewParameter("label", ref))
	if err != nil {
		return nil, err
	}
	var latest *record
	for _, candidate := range byLabel {
		if latest == nil || candidate.CreatedAt.After(latest.CreatedAt) {
			latest = candidate
		}
	}
	return latest, nil
}

func (r *Registry) GetTaskStatus(ctx context.Context, ref string) (*registry.TaskStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &registry.TaskStatus{}, nil
	}
	return rec.status(), nil
}

func (r *Registry) WaitForCompletion(ctx context.Context, taskID string) (*registry.TaskStatus, error) {
	r.mu.Lock()
	rec, err := r.lookup(ctx, taskID)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &registry.TaskStatus{}, nil
	}
	select {
	case <-rec.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return rec.status(), nil
}

// Complete marks a task terminal and wakes its waiters. Completing an
// already-terminal task is a no-op.
func (r *Registry) Complete(ctx context.Context, taskID string, outcome task.Outcome, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.tasks.Load(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to complete task %v: %w", taskID, err)
	}
	if rec.Completed {
		return nil
	}
	rec.Completed = true
	rec.Outcome = outcome
	rec.Error = errorMessage
	rec.CompletedAt = clock.Now()
	close(rec.done)
	return nil
}

func (r *Registry) CountActiveChildren(ctx context.Context, parentKey string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	children, err := r.tasks.List(ctx, dao.NewParameter("parentKey", parentKey))
	if err != nil {
		return 0, err
	}
	count := 0
	for _, child := range children {
		if !child.Completed {
			count++
		}
	}
	return count, nil
}

// GetCurrentDepth returns the depth of the context keyed by parentKey: the
// depth of the spawned task with that identity, else an explicitly set depth,
// else 0.
func (r *Registry) GetCurrentDepth(ctx context.Context, parentKey string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.byIdentity(ctx, parentKey)
	if err != nil {
		return 0, err
	}
	if rec != nil {
		return rec.Depth, nil
	}
	return r.depths[parentKey], nil
}

func (r *Registry) byIdentity(ctx context.Context, identity string) (*record, error) {
	items, err := r.tasks.List(ctx, dao.NewParameter("identity", identity))
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func (r *Registry) StoreSharedContext(ctx context.Context, taskID string, values map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.tasks.Load(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to store shared context for %v: %w", taskID, err)
	}
	rec.SharedContext = copyMap(values)
	return nil
}

func (r *Registry) GetParentSharedContext(ctx context.Context, parentKey string) (map[string]interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.byIdentity(ctx, parentKey)
	if err != nil || rec == nil {
		return nil, err
	}
	return copyMap(rec.SharedContext), nil
}

func copyMap(values map[string]interface{}) map[string]interface{} {
	if len(values) == 0 {
		return nil
	}
	ret := make(map[string]interface{}, len(values))
	for k, v := range values {
		ret[k] = v
	}
	return ret
}

var _ registry.Registry = (*Registry)(nil)
