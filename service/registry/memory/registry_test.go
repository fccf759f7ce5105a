package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/service/registry"
)

func TestRegistry_Status(t *testing.T) {
	ctx := context.Background()
	r := New()
	require.NoError(t, r.RegisterTask(ctx, &registry.TaskMetadata{TaskID: "t1", Identity: "pool:main:task:1", ParentKey: "root", Label: "research", Depth: 1}))
	require.NoError(t, r.RegisterTask(ctx, &registry.TaskMetadata{TaskID: "t2", Identity: "pool:main:task:2", ParentKey: "root", Depth: 1}))
	assert.Error(t, r.RegisterTask(ctx, &registry.TaskMetadata{}))

	testCases := []struct {
		name     string
		ref      string
		exists   bool
		expectID string
	}{
		{name: "by id", ref: "t2", exists: true, expectID: "t2"},
		{name: "by label", ref: "research", exists: true, expectID: "t1"},
		{name: "missing", ref: "nope"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, err := r.GetTaskStatus(ctx, tc.ref)
			require.NoError(t, err)
			assert.Equal(t, tc.exists, status.Exists)
			assert.Equal(t, tc.expectID, status.TaskID)
		})
	}

	active, err := r.CountActiveChildren(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 2, active)

	require.NoError(t, r.Complete(ctx, "t1", task.OutcomeOK, ""))
	active, err = r.CountActiveChildren(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestRegistry_Depth(t *testing.T) {
	ctx := context.Background()
	r := New()
	depth, err := r.GetCurrentDepth(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	r.SetDepth("root", 2)
	depth, _ = r.GetCurrentDepth(ctx, "root")
	assert.Equal(t, 2, depth)

	require.NoError(t, r.RegisterTask(ctx, &registry.TaskMetadata{TaskID: "t1", Identity: "child", ParentKey: "root", Depth: 3}))
	depth, _ = r.GetCurrentDepth(ctx, "child")
	assert.Equal(t, 3, depth)
}

func TestRegistry_WaitForCompletion(t *testing.T) {
	ctx := context.Background()
	r := New()
	require.NoError(t, r.RegisterTask(ctx, &registry.TaskMetadata{TaskID: "t1", Identity: "child", ParentKey: "root"}))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = r.Complete(ctx, "t1", task.OutcomeError, "boom")
	}()
	status, err := r.WaitForCompletion(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, status.Completed)
	assert.Equal(t, task.OutcomeError, status.Outcome)
	assert.Equal(t, "boom", status.Error)

	require.NoError(t, r.Complete(ctx, "t1", task.OutcomeOK, ""))
	status, _ = r.GetTaskStatus(ctx, "t1")
	assert.Equal(t, task.OutcomeError, status.Outcome)

	require.NoError(t, r.RegisterTask(ctx, &registry.TaskMetadata{TaskID: "t2", Identity: "other"}))
	cancelled, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = r.WaitForCompletion(cancelled, "t2")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistry_SharedContext(t *testing.T) {
	ctx := context.Background()
	r := New()
	require.NoError(t, r.RegisterTask(ctx, &registry.TaskMetadata{TaskID: "t1", Identity: "child"}))
	require.NoError(t, r.StoreSharedContext(ctx, "t1", map[string]interface{}{"topic": "go"}))

	values, err := r.GetParentSharedContext(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"topic": "go"}, values)

	values, err = r.GetParentSharedContext(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, values)

	assert.Error(t, r.StoreSharedContext(ctx, "missing", map[string]interface{}{"a": 1}))
}
