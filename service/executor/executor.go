// Package executor defines the executor collaborator: the component that
// actually performs a spawned task and later reports its terminal outcome.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/viant/spawner/model/task"
)

var (
	ErrSessionNotFound = errors.New("executor: session not found")
	ErrInvalidIdentity = errors.New("executor: invalid identity")
)

// Role of a history exchange entry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Submission is the payload handed to the executor for one task.
type Submission struct {
	Identity  string        `json:"identity"`
	ParentKey string        `json:"parentKey"`
	Token     string        `json:"token"`
	Label     string        `json:"label,omitempty"`
	Message   string        `json:"message"`
	Depth     int           `json:"depth"`
	MaxDepth  int           `json:"maxDepth"`
	Cleanup   task.Cleanup  `json:"cleanup,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	// SharedContext is the merged context propagated from the parent.
	SharedContext map[string]interface{} `json:"sharedContext,omitempty"`
}

// Exchange is one entry of a task session history.
type Exchange struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Executor is consumed by the dispatch coordinator and dependency resolver.
type Executor interface {
	// Submit enqueues the task and returns its id. An empty id means the
	// caller should use the submission token.
	Submit(ctx context.Context, submission *Submission) (string, error)

	// PatchParameters applies a partial update to the execution parameters of
	// the session keyed by identity.
	PatchParameters(ctx context.Context, identity string, patch map[string]interface{}) error

	// FetchRecentHistory returns up to limit most recent exchanges, oldest first.
	FetchRecentHistory(ctx context.Context, identity string, limit int) ([]Exchange, error)
}

// CompletionListener receives terminal task events.
type CompletionListener func(ctx context.Context, completion *task.Completion)
