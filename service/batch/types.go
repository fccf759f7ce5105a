package batch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/viant/spawner/model/errs"
	"github.com/viant/spawner/model/task"
)

// WaitMode selects how the batch result is shaped.
type WaitMode string

const (
	WaitAll  WaitMode = "all"
	WaitAny  WaitMode = "any"
	WaitRace WaitMode = "race"
	WaitN    WaitMode = "n"
)

// Wait is a batch wait strategy; N is set for WaitN only.
type Wait struct {
	Mode WaitMode
	N    int
}

func (w Wait) String() string {
	if w.Mode == WaitN {
		return strconv.Itoa(w.N)
	}
	if w.Mode == "" {
		return string(WaitAll)
	}
	return string(w.Mode)
}

// ParseWait parses "all", "any", "race" or a positive integer. Empty means all.
func ParseWait(text string) (Wait, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	switch WaitMode(text) {
	case "", WaitAll:
		return Wait{Mode: WaitAll}, nil
	case WaitAny, WaitRace:
		return Wait{Mode: WaitMode(text)}, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil || n <= 0 {
		return Wait{}, errs.New(errs.ValidationError, "invalid wait strategy %q", text)
	}
	return Wait{Mode: WaitN, N: n}, nil
}

// target returns how many accepted dispatches satisfy w for total tasks.
func (w Wait) target(total int) int {
	switch w.Mode {
	case WaitAny, WaitRace:
		return 1
	case WaitN:
		if w.N < total {
			return w.N
		}
	}
	return total
}

// AggregateMode selects the projection of per-task records.
type AggregateMode string

const (
	AggregateAll     AggregateMode = "all"
	AggregateFirst   AggregateMode = "first"
	AggregateLast    AggregateMode = "last"
	AggregateSummary AggregateMode = "summary"
	AggregateErrors  AggregateMode = "errors"
)

// Task is one member of a batch.
type Task struct {
	// Label is unique within the batch; it defaults to parallel-<index>.
	Label      string                 `json:"label,omitempty" yaml:"label,omitempty"`
	Task       string                 `json:"task" yaml:"task"`
	Pool       string                 `json:"pool,omitempty" yaml:"pool,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	// Namespace overrides the batch namespace for this task.
	Namespace string        `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Cleanup   task.Cleanup  `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// ChainAfter references an in-batch label or an external task id.
	ChainAfter    string                 `json:"chainAfter,omitempty" yaml:"chainAfter,omitempty"`
	SharedContext map[string]interface{} `json:"sharedContext,omitempty" yaml:"sharedContext,omitempty"`
	// Aggregation overrides the batch aggregation target for this task.
	Aggregation *task.AggregationSpec `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
}

// Options tune a batch.
type Options struct {
	Namespace             string
	Aggregate             AggregateMode
	IncludeMetadata       bool
	SkipOnDependencyError bool
	// ShortCircuit stops dispatching dependent tasks once the wait target is
	// met by accepted dispatches; skipped tasks are marked as such.
	ShortCircuit bool
	// Concurrency bounds the independent fan-out; zero means unbounded.
	Concurrency int
	// Aggregation collects every task of the batch into one variable.
	Aggregation *task.AggregationSpec
}

// RecordStatus is the per-task batch status.
type RecordStatus string

const (
	RecordAccepted RecordStatus = "accepted"
	RecordError    RecordStatus = "error"
	RecordSkipped  RecordStatus = "skipped"
)

// Record is the outcome of one batch task.
type Record struct {
	Index    int           `json:"index"`
	Label    string        `json:"label"`
	Task     string        `json:"task"`
	Status   RecordStatus  `json:"status"`
	Identity string        `json:"identity,omitempty"`
	TaskID   string        `json:"taskId,omitempty"`
	Error    string        `json:"error,omitempty"`
	Code     errs.Code     `json:"code,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result is the bare projection of a record: its task id, or nil.
func (r *Record) Result() interface{} {
	if r == nil || r.TaskID == "" {
		return nil
	}
	return r.TaskID
}

func (r *Record) slim() *SlimRecord {
	return &SlimRecord{Index: r.Index, Status: r.Status, Result: r.Result(), Error: r.Error}
}

// SlimRecord is the summary projection of a record.
type SlimRecord struct {
	Index  int          `json:"index"`
	Status RecordStatus `json:"status"`
	Result interface{}  `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Summary is the summary projection of a batch.
type Summary struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Errors     int         `json:"errors"`
	Results    interface{} `json:"results"`
}

// Result is the batch outcome. Status is accepted unless admission or
// validation rejected the whole batch.
type Result struct {
	Status       task.Status   `json:"status"`
	Error        string        `json:"error,omitempty"`
	Code         errs.Code     `json:"code,omitempty"`
	Wait         string        `json:"waitStrategy"`
	TasksSpawned int           `json:"tasksSpawned"`
	Results      interface{}   `json:"results,omitempty"`
	Records      []*Record     `json:"records,omitempty"`
	Duration     time.Duration `json:"totalDuration"`
}

func rejected(err error, wait Wait) *Result {
	failure := task.Failure(err, "", "")
	return &Result{Status: failure.Status, Error: failure.Error, Code: failure.Code, Wait: wait.String()}
}

func defaultLabel(index int) string {
	return fmt.Sprintf("parallel-%d", index)
}
