package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/spawner/internal/clock"
	"github.com/viant/spawner/model/errs"
	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/progress"
	"github.com/viant/spawner/service/admission"
	"github.com/viant/spawner/service/registry"
	"github.com/viant/spawner/service/registry/memory"
)

// stubDispatcher accepts every task except those whose text contains "fail".
type stubDispatcher struct {
	mu      sync.Mutex
	once    []*task.SpawnRequest
	spawned []*task.SpawnRequest
}

func (d *stubDispatcher) dispatch(request *task.SpawnRequest) *task.SpawnResult {
	if strings.Contains(request.Task, "fail") {
		return task.Failure(errors.New("submit failed: "+request.Task), "id-"+request.Label, "")
	}
	return &task.SpawnResult{Status: task.StatusAccepted, TaskID: "task-" + request.Label, Identity: "id-" + request.Label}
}

func (d *stubDispatcher) Once(_ context.Context, request *task.SpawnRequest) *task.SpawnResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.once = append(d.once, request)
	return d.dispatch(request)
}

func (d *stubDispatcher) Spawn(_ context.Context, request *task.SpawnRequest) *task.SpawnResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spawned = append(d.spawned, request)
	return d.dispatch(request)
}

func (d *stubDispatcher) labels() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ret []string
	for _, request := range d.once {
		ret = append(ret, request.Label)
	}
	return ret
}

func noSleep(t *testing.T) *[]time.Duration {
	var delays []time.Duration
	prev := clock.SleepFunc
	clock.SleepFunc = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	t.Cleanup(func() { clock.SleepFunc = prev })
	return &delays
}

func newTestService(maxChildren int) (*Service, *stubDispatcher, *memory.Registry) {
	reg := memory.New()
	dispatcher := &stubDispatcher{}
	controller := admission.New(reg, admission.Config{MaxSpawnDepth: 1, MaxChildrenPerAgent: maxChildren})
	return New(controller, dispatcher, reg, DefaultConfig()), dispatcher, reg
}

var caller = task.Caller{Key: "agent:main:main", Pool: "main"}

func TestService_SpawnBatch(t *testing.T) {
	testCases := []struct {
		description   string
		tasks         []*Task
		options       *Options
		expectStatus  []RecordStatus
		expectErrors  []string
		expectSpawned int
	}{
		{
			description:   "independent tasks",
			tasks:         []*Task{{Task: "a"}, {Task: "b"}, {Task: "c"}},
			expectStatus:  []RecordStatus{RecordAccepted, RecordAccepted, RecordAccepted},
			expectErrors:  []string{"", "", ""},
			expectSpawned: 3,
		},
		{
			description:   "partial failure does not abort batch",
			tasks:         []*Task{{Task: "a"}, {Task: "fail b"}, {Task: "c"}},
			expectStatus:  []RecordStatus{RecordAccepted, RecordError, RecordAccepted},
			expectErrors:  []string{"", "submit failed: fail b", ""},
			expectSpawned: 2,
		},
		{
			description:   "in-batch dependency",
			tasks:         []*Task{{Label: "fetch", Task: "fetch"}, {Label: "sum", Task: "sum", ChainAfter: "fetch"}},
			expectStatus:  []RecordStatus{RecordAccepted, RecordAccepted},
			expectErrors:  []string{"", ""},
			expectSpawned: 2,
		},
		{
			description:   "missing reference",
			tasks:         []*Task{{Task: "a"}, {Task: "b", ChainAfter: "nowhere"}},
			expectStatus:  []RecordStatus{RecordAccepted, RecordError},
			expectErrors:  []string{"", `chainAfter reference "nowhere" not found`},
			expectSpawned: 1,
		},
		{
			description:  "dependency not spawned",
			tasks:        []*Task{{Label: "x", Task: "fail x"}, {Task: "y", ChainAfter: "x"}},
			expectStatus: []RecordStatus{RecordError, RecordError},
			expectErrors: []string{"submit failed: fail x", `chainAfter dependency "x" was not spawned`},
		},
		{
			description:  "skip on dependency error",
			tasks:        []*Task{{Label: "x", Task: "fail x"}, {Task: "y", ChainAfter: "x"}},
			options:      &Options{SkipOnDependencyError: true},
			expectStatus: []RecordStatus{RecordError, RecordSkipped},
			expectErrors: []string{"submit failed: fail x", "skipped due to failed dependency: x"},
		},
		{
			description: "dependency chain in listing order",
			tasks: []*Task{
				{Label: "one", Task: "one"},
				{Label: "two", Task: "two", ChainAfter: "one"},
				{Label: "three", Task: "three", ChainAfter: "two"},
			},
			expectStatus:  []RecordStatus{RecordAccepted, RecordAccepted, RecordAccepted},
			expectErrors:  []string{"", "", ""},
			expectSpawned: 3,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			noSleep(t)
			srv, _, _ := newTestService(5)
			result := srv.SpawnBatch(context.Background(), caller, testCase.tasks, Wait{Mode: WaitAll}, testCase.options)
			require.Equal(t, task.StatusAccepted, result.Status, result.Error)
			require.Len(t, result.Records, len(testCase.tasks))
			for i, record := range result.Records {
				assert.Equal(t, i, record.Index)
				assert.Equal(t, testCase.expectStatus[i], record.Status, record.Label)
				assert.Equal(t, testCase.expectErrors[i], record.Error, record.Label)
			}
			assert.Equal(t, testCase.expectSpawned, result.TasksSpawned)
		})
	}
}

func TestService_SpawnBatchRecheck(t *testing.T) {
	delays := noSleep(t)
	srv, _, _ := newTestService(5)
	result := srv.SpawnBatch(context.Background(), caller, []*Task{{Label: "x", Task: "fail"}, {Task: "y", ChainAfter: "x"}}, Wait{}, nil)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, *delays)
	assert.Equal(t, errs.DependencyFailed, result.Records[1].Code)
}

func TestService_SpawnBatchDependentOrder(t *testing.T) {
	noSleep(t)
	srv, dispatcher, _ := newTestService(5)
	srv.SpawnBatch(context.Background(), caller, []*Task{
		{Label: "b", Task: "b", ChainAfter: "a"},
		{Label: "a", Task: "a"},
		{Label: "c", Task: "c", ChainAfter: "b"},
	}, Wait{}, nil)
	labels := dispatcher.labels()
	require.Len(t, labels, 3)
	assert.Equal(t, []string{"a", "b", "c"}, labels)
	for _, request := range dispatcher.once {
		assert.Empty(t, request.ChainAfter)
	}
}

func TestService_SpawnBatchExternalReference(t *testing.T) {
	noSleep(t)
	srv, _, reg := newTestService(5)
	require.NoError(t, reg.RegisterTask(context.Background(), &registry.TaskMetadata{TaskID: "ext-1", Identity: "agent:x", ParentKey: "agent:other"}))
	result := srv.SpawnBatch(context.Background(), caller, []*Task{{Task: "next", ChainAfter: "ext-1"}}, Wait{}, nil)
	assert.Equal(t, RecordAccepted, result.Records[0].Status)
}

func TestService_SpawnBatchRejected(t *testing.T) {
	testCases := []struct {
		description  string
		tasks        []*Task
		expectCode   errs.Code
		expectStatus task.Status
	}{
		{
			description:  "exceeds quota",
			tasks:        []*Task{{Task: "a"}, {Task: "b"}, {Task: "c"}},
			expectCode:   errs.AdmissionDenied,
			expectStatus: task.StatusForbidden,
		},
		{
			description:  "duplicate labels",
			tasks:        []*Task{{Label: "x", Task: "a"}, {Label: "x", Task: "b"}},
			expectCode:   errs.ValidationError,
			expectStatus: task.StatusError,
		},
		{
			description:  "empty batch",
			expectCode:   errs.ValidationError,
			expectStatus: task.StatusError,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			srv, dispatcher, _ := newTestService(2)
			result := srv.SpawnBatch(context.Background(), caller, testCase.tasks, Wait{}, nil)
			assert.Equal(t, testCase.expectStatus, result.Status)
			assert.Equal(t, testCase.expectCode, result.Code)
			assert.Empty(t, dispatcher.labels())
		})
	}
}

func TestService_SpawnBatchDefaults(t *testing.T) {
	srv, dispatcher, _ := newTestService(5)
	spec := &task.AggregationSpec{CollectInto: "$all"}
	srv.SpawnBatch(context.Background(), caller, []*Task{{Task: "a"}, {Task: "b", Namespace: "own"}}, Wait{}, &Options{Namespace: "team", Aggregation: spec})
	byLabel := map[string]*task.SpawnRequest{}
	for _, request := range dispatcher.once {
		byLabel[request.Label] = request
	}
	require.Len(t, byLabel, 2)
	assert.Equal(t, "team", byLabel["parallel-0"].Namespace)
	assert.Equal(t, "own", byLabel["parallel-1"].Namespace)
	assert.Equal(t, spec, byLabel["parallel-0"].Aggregation)
}

func TestService_SpawnBatchShortCircuit(t *testing.T) {
	noSleep(t)
	srv, dispatcher, _ := newTestService(5)
	result := srv.SpawnBatch(context.Background(), caller, []*Task{
		{Label: "a", Task: "a"},
		{Label: "b", Task: "b", ChainAfter: "a"},
	}, Wait{Mode: WaitAny}, &Options{ShortCircuit: true})
	assert.Equal(t, RecordSkipped, result.Records[1].Status)
	assert.Equal(t, []string{"a"}, dispatcher.labels())
	assert.Equal(t, "task-a", result.Results)
}

func TestService_Many(t *testing.T) {
	srv, dispatcher, _ := newTestService(5)
	result := srv.Many(context.Background(), &task.SpawnRequest{Caller: caller, Label: "worker"}, []string{"a", "fail b", "c"}, 2)
	assert.Equal(t, ManyPartial, result.Status)
	assert.Equal(t, 2, result.Accepted)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 3)
	assert.Equal(t, "task-worker-1", result.Results[0].TaskID)
	assert.Equal(t, "task-worker-3", result.Results[2].TaskID)
	assert.Len(t, dispatcher.spawned, 3)

	denied := srv.Many(context.Background(), &task.SpawnRequest{Caller: caller}, Repeat("x", 6), 0)
	assert.Equal(t, string(task.StatusForbidden), denied.Status)
	assert.Equal(t, errs.AdmissionDenied, denied.Code)
}

func TestService_SpawnBatchProgress(t *testing.T) {
	noSleep(t)
	srv, _, _ := newTestService(5)
	ctx, tracker := progress.WithNewTracker(context.Background(), caller.Key, nil)
	srv.SpawnBatch(ctx, caller, []*Task{
		{Label: "a", Task: "a"},
		{Label: "b", Task: "fail b"},
		{Label: "c", Task: "c", ChainAfter: "b"},
	}, Wait{}, &Options{SkipOnDependencyError: true})
	snapshot := tracker.Snapshot()
	assert.Equal(t, 3, snapshot.TotalTasks)
	assert.Equal(t, 1, snapshot.AcceptedTasks)
	assert.Equal(t, 1, snapshot.FailedTasks)
	assert.Equal(t, 1, snapshot.SkippedTasks)
	assert.True(t, snapshot.Done())
}

func TestProject(t *testing.T) {
	accepted := &Record{Index: 0, Label: "a", Status: RecordAccepted, TaskID: "task-a"}
	failed := &Record{Index: 1, Label: "b", Status: RecordError, Error: "boom", Code: errs.DispatchFailed}
	skipped := &Record{Index: 2, Label: "c", Status: RecordSkipped, Error: "dependency failed"}
	last := &Record{Index: 3, Label: "d", Status: RecordAccepted, TaskID: "task-d"}
	records := []*Record{accepted, failed, skipped, last}

	testCases := []struct {
		name     string
		records  []*Record
		wait     Wait
		options  *Options
		expected interface{}
	}{
		{
			name:     "all",
			records:  records,
			options:  &Options{},
			expected: []interface{}{"task-a", nil, nil, "task-d"},
		},
		{
			name:     "all with metadata",
			records:  records,
			options:  &Options{IncludeMetadata: true},
			expected: records,
		},
		{
			name:     "first",
			records:  records,
			options:  &Options{Aggregate: AggregateFirst},
			expected: "task-a",
		},
		{
			name:     "first with metadata",
			records:  records,
			options:  &Options{Aggregate: AggregateFirst, IncludeMetadata: true},
			expected: accepted,
		},
		{
			name:     "first of none",
			options:  &Options{Aggregate: AggregateFirst},
			expected: nil,
		},
		{
			name:     "last",
			records:  records,
			options:  &Options{Aggregate: AggregateLast},
			expected: "task-d",
		},
		{
			name:     "last with metadata",
			records:  records,
			options:  &Options{Aggregate: AggregateLast, IncludeMetadata: true},
			expected: last,
		},
		{
			name:     "errors",
			records:  records,
			options:  &Options{Aggregate: AggregateErrors},
			expected: []string{"boom"},
		},
		{
			name:     "errors with metadata",
			records:  records,
			options:  &Options{Aggregate: AggregateErrors, IncludeMetadata: true},
			expected: []*Record{failed},
		},
		{
			name:    "summary counts skipped as successful",
			records: records,
			options: &Options{Aggregate: AggregateSummary},
			expected: &Summary{Total: 4, Successful: 3, Errors: 1, Results: []*SlimRecord{
				{Index: 0, Status: RecordAccepted, Result: "task-a"},
				{Index: 1, Status: RecordError, Error: "boom"},
				{Index: 2, Status: RecordSkipped, Error: "dependency failed"},
				{Index: 3, Status: RecordAccepted, Result: "task-d"},
			}},
		},
		{
			name:     "summary with metadata",
			records:  records,
			options:  &Options{Aggregate: AggregateSummary, IncludeMetadata: true},
			expected: &Summary{Total: 4, Successful: 3, Errors: 1, Results: records},
		},
		{
			name:     "any forces first",
			records:  records,
			wait:     Wait{Mode: WaitAny},
			options:  &Options{Aggregate: AggregateSummary},
			expected: "task-a",
		},
		{
			name:     "race forces first",
			records:  records,
			wait:     Wait{Mode: WaitRace},
			options:  &Options{Aggregate: AggregateLast, IncludeMetadata: true},
			expected: accepted,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := project(tc.records, tc.wait, tc.options)
			assert.EqualValues(t, tc.expected, actual)
		})
	}
}
