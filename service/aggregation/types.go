package aggregation

import (
	"strings"
	"time"

	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/model/value"
)

// VariablePrefix must start every collection variable name.
const VariablePrefix = "$"

// Strategy names a merge algorithm.
type Strategy string

const (
	StrategyConcat Strategy = "concat"
	StrategyJSON   Strategy = "json"
	StrategyMerge  Strategy = "merge"
	StrategyFirst  Strategy = "first"
	StrategyLast   Strategy = "last"
	StrategyCustom Strategy = "custom"

	DefaultStrategy = StrategyConcat
)

// ParseStrategy returns the strategy named by name, or ok=false.
func ParseStrategy(name string) (Strategy, bool) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case StrategyConcat, StrategyJSON, StrategyMerge, StrategyFirst, StrategyLast, StrategyCustom:
		return s, true
	}
	return DefaultStrategy, false
}

// IsValidVariable reports whether name is a usable collection variable.
func IsValidVariable(name string) bool {
	return len(name) > len(VariablePrefix) && strings.HasPrefix(name, VariablePrefix)
}

// Status of a group; transitions are pending -> partial -> complete only.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPartial  Status = "partial"
	StatusComplete Status = "complete"
)

// Outcome of a recorded task result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
)

// OutcomeOf maps an executor outcome to a result outcome.
func OutcomeOf(o task.Outcome) Outcome {
	switch o {
	case task.OutcomeOK:
		return OutcomeSuccess
	case task.OutcomeTimeout:
		return OutcomeTimeout
	}
	return OutcomeError
}

// TaskResult is one member's terminal result. It is immutable once recorded.
type TaskResult struct {
	TaskID      string    `json:"taskId"`
	Identity    string    `json:"identity,omitempty"`
	Outcome     Outcome   `json:"outcome"`
	Output      *string   `json:"output,omitempty"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// Group is a snapshot of an aggregation group.
type Group struct {
	ID             string       `json:"id"`
	Owner          string       `json:"owner"`
	Variable       string       `json:"variable"`
	Strategy       Strategy     `json:"strategy"`
	CustomFunction string       `json:"customFunction,omitempty"`
	Members        []string     `json:"members"`
	Results        []TaskResult `json:"results"`
	Status         Status       `json:"status"`
	CreatedAt      time.Time    `json:"createdAt"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
}

// AggregatedValue is the computed value of a complete group.
type AggregatedValue struct {
	Variable    string      `json:"variable"`
	Strategy    Strategy    `json:"strategy"`
	Value       value.Value `json:"value"`
	Errors      []string    `json:"errors,omitempty"`
	CompletedAt time.Time   `json:"completedAt"`
	// Count is the total number of results, failures included.
	Count int `json:"count"`
}
