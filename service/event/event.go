// Package event publishes task lifecycle events to typed and catch-all
// listeners over in-memory messaging queues.
package event

import (
	"time"

	"github.com/viant/spawner/internal/clock"
)

// Type names a lifecycle event.
type Type string

const (
	TaskSpawned   Type = "spawned"
	TaskRejected  Type = "rejected"
	TaskCompleted Type = "completed"
)

type Context struct {
	ParentKey   string `json:"parentKey"`
	TaskID      string `json:"taskId,omitempty"`
	Identity    string `json:"identity,omitempty"`
	EventType   Type   `json:"eventType"`
	Service     string `json:"service"`
	Method      string `json:"method"`
	TimeTakenMs int    `json:"timeTakenMs"`
}

type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata"`
	Data      T                      `json:"data"`
}

func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: clock.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}
