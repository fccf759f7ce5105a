// Package registry defines the task registry collaborator: the shared
// bookkeeping store that answers depth, concurrency and status questions for
// spawned tasks.
package registry

import (
	"context"
	"time"

	"github.com/viant/spawner/model/task"
)

// TaskMetadata is the bookkeeping recorded for every accepted spawn.
type TaskMetadata struct {
	TaskID    string       `json:"taskId"`
	Identity  string       `json:"identity"`
	ParentKey string       `json:"parentKey"`
	Label     string       `json:"label,omitempty"`
	Task      string       `json:"task"`
	Pool      string       `json:"pool"`
	Depth     int          `json:"depth"`
	Cleanup   task.Cleanup `json:"cleanup,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// TaskStatus describes a registered task as seen by status queries.
type TaskStatus struct {
	Exists    bool         `json:"exists"`
	TaskID    string       `json:"taskId,omitempty"`
	Identity  string       `json:"identity,omitempty"`
	Label     string       `json:"label,omitempty"`
	Completed bool         `json:"completed"`
	Outcome   task.Outcome `json:"outcome,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Registry is consumed by the admission controller, the dispatch coordinator
// and the dependency resolver.
type Registry interface {
	RegisterTask(ctx context.Context, meta *TaskMetadata) error

	// GetTaskStatus resolves ref by task id first, then by label. A missing
	// task is reported with Exists=false and no error.
	GetTaskStatus(ctx context.Context, ref string) (*TaskStatus, error)

	// WaitForCompletion blocks until the task reaches a terminal state or ctx
	// is done.
	WaitForCompletion(ctx context.Context, taskID string) (*TaskStatus, error)

	CountActiveChildren(ctx context.Context, parentKey string) (int, error)

	GetCurrentDepth(ctx context.Context, parentKey string) (int, error)

	StoreSharedContext(ctx context.Context, taskID string, values map[string]interface{}) error

	// GetParentSharedContext returns the shared context stored for the task
	// whose identity is parentKey, or nil.
	GetParentSharedContext(ctx context.Context, parentKey string) (map[string]interface{}, error)
}
