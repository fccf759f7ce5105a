package dependency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/spawner/model/errs"
	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/service/executor"
	"github.com/viant/spawner/service/registry"
	"github.com/viant/spawner/service/registry/memory"
)

type historyStub struct {
	history []executor.Exchange
	err     error
}

func (h *historyStub) Submit(context.Context, *executor.Submission) (string, error) { return "", nil }
func (h *historyStub) PatchParameters(context.Context, string, map[string]interface{}) error {
	return nil
}
func (h *historyStub) FetchRecentHistory(context.Context, string, int) ([]executor.Exchange, error) {
	return h.history, h.err
}

func TestService_Resolve(t *testing.T) {
	ctx := context.Background()
	reg := memory.New()
	require.NoError(t, reg.RegisterTask(ctx, &registry.TaskMetadata{TaskID: "a", Identity: "id-a", Label: "research"}))
	require.NoError(t, reg.RegisterTask(ctx, &registry.TaskMetadata{TaskID: "b", Identity: "id-b"}))
	require.NoError(t, reg.RegisterTask(ctx, &registry.TaskMetadata{TaskID: "c", Identity: "id-c"}))
	require.NoError(t, reg.Complete(ctx, "a", task.OutcomeOK, ""))
	require.NoError(t, reg.Complete(ctx, "b", task.OutcomeError, "model crashed"))
	require.NoError(t, reg.Complete(ctx, "c", task.OutcomeTimeout, ""))

	stub := &historyStub{history: []executor.Exchange{
		{Role: executor.RoleUser, Content: "q"},
		{Role: executor.RoleAssistant, Content: "first"},
		{Role: executor.RoleAssistant, Content: "final answer"},
		{Role: executor.RoleUser, Content: "follow-up"},
	}}
	srv := New(reg, stub, DefaultConfig())

	testCases := []struct {
		name          string
		ref           string
		includeResult bool
		code          errs.Code
		result        string
		errContains   string
	}{
		{name: "by label with result", ref: "research", includeResult: true, result: "final answer"},
		{name: "by id without result", ref: "a"},
		{name: "missing", ref: "zzz", code: errs.DependencyNotFound},
		{name: "failed", ref: "b", code: errs.DependencyFailed, errContains: "model crashed"},
		{name: "timed out", ref: "c", code: errs.DependencyFailed, errContains: "timeout"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resolution, err := srv.Resolve(ctx, tc.ref, tc.includeResult)
			if tc.code != "" {
				require.Error(t, err)
				assert.Equal(t, tc.code, errs.CodeOf(err))
				if tc.errContains != "" {
					assert.Contains(t, err.Error(), tc.errContains)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a", resolution.TaskID)
			assert.Equal(t, "id-a", resolution.ChildIdentity)
			assert.Equal(t, tc.result, resolution.Result)
		})
	}
}

func TestService_ResolveWaits(t *testing.T) {
	ctx := context.Background()
	reg := memory.New()
	require.NoError(t, reg.RegisterTask(ctx, &registry.TaskMetadata{TaskID: "a", Identity: "id-a"}))
	srv := New(reg, &historyStub{err: errors.New("history down")}, DefaultConfig())

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = reg.Complete(ctx, "a", task.OutcomeOK, "")
	}()
	resolution, err := srv.Resolve(ctx, "a", true)
	require.NoError(t, err)
	assert.True(t, resolution.Completed)
	assert.Empty(t, resolution.Result)
}

func TestWithResult(t *testing.T) {
	assert.Equal(t, "task", WithResult("", "task"))
	assert.Equal(t, "[Previous step result]:\nout\n\n[Current task]:\ntask", WithResult("out", "task"))
}
