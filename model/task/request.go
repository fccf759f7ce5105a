package task

import (
	"strings"
	"time"
)

// Cleanup controls what the executor does with a task session once the task
// has finished.
type Cleanup string

const (
	CleanupKeep   Cleanup = "keep"
	CleanupDelete Cleanup = "delete"
)

// Caller identifies the supervising context issuing a spawn.
type Caller struct {
	// Key is the parent context key; it owns spawned tasks and aggregation groups.
	Key string `json:"key" yaml:"key"`
	// Pool is the caller's own pool identity. When empty it is derived from Key.
	Pool string `json:"pool,omitempty" yaml:"pool,omitempty"`
}

// AggregationSpec asks for the spawned task's result to be collected into a
// named variable of the caller.
type AggregationSpec struct {
	CollectInto    string `json:"collectInto" yaml:"collectInto"`
	MergeStrategy  string `json:"mergeStrategy,omitempty" yaml:"mergeStrategy,omitempty"`
	CustomFunction string `json:"customFunction,omitempty" yaml:"customFunction,omitempty"`
}

// SpawnRequest describes a single task to spawn.
type SpawnRequest struct {
	Caller Caller `json:"caller" yaml:"caller"`
	Task   string `json:"task" yaml:"task"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
	// Pool is the target pool; empty means the caller's own pool.
	Pool string `json:"pool,omitempty" yaml:"pool,omitempty"`
	// Parameters are execution-parameter overrides patched onto the task
	// identity before submission, one patch call per key.
	Parameters map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Cleanup    Cleanup                `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`
	Timeout    time.Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Namespace adds a shared suffix to the minted identity.
	Namespace   string           `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Aggregation *AggregationSpec `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
	Retry       *RetryPolicy     `json:"retry,omitempty" yaml:"retry,omitempty"`
	// ChainAfter references a prior task (id or label) that must complete
	// successfully first. DependsOn is an alias; ChainAfter wins.
	ChainAfter              string `json:"chainAfter,omitempty" yaml:"chainAfter,omitempty"`
	DependsOn               string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	IncludeDependencyResult bool   `json:"includeDependencyResult,omitempty" yaml:"includeDependencyResult,omitempty"`
	// SharedContext overlays the parent's stored shared context.
	SharedContext map[string]interface{} `json:"sharedContext,omitempty" yaml:"sharedContext,omitempty"`
}

// Dependency returns the effective dependency reference.
func (r *SpawnRequest) Dependency() string {
	if ref := strings.TrimSpace(r.ChainAfter); ref != "" {
		return ref
	}
	return strings.TrimSpace(r.DependsOn)
}

// EffectiveCleanup normalises Cleanup, defaulting to keep.
func (r *SpawnRequest) EffectiveCleanup() Cleanup {
	if r.Cleanup == CleanupDelete {
		return CleanupDelete
	}
	return CleanupKeep
}

// Clone returns a shallow copy with its own maps.
func (r *SpawnRequest) Clone() *SpawnRequest {
	ret := *r
	if r.Parameters != nil {
		ret.Parameters = make(map[string]interface{}, len(r.Parameters))
		for k, v := range r.Parameters {
			ret.Parameters[k] = v
		}
	}
	if r.SharedContext != nil {
		ret.SharedContext = make(map[string]interface{}, len(r.SharedContext))
		for k, v := range r.SharedContext {
			ret.SharedContext[k] = v
		}
	}
	return &ret
}
