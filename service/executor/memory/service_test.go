package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/service/executor"
)

type collector struct {
	mu     sync.Mutex
	events map[string]*task.Completion
}

func (c *collector) listen(_ context.Context, completion *task.Completion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[completion.TaskID] = completion
}

func (c *collector) get(id string) *task.Completion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[id]
}

func TestService_Execute(t *testing.T) {
	events := &collector{events: map[string]*task.Completion{}}
	handler := func(ctx context.Context, submission *executor.Submission, parameters map[string]interface{}) (string, error) {
		switch {
		case strings.HasPrefix(submission.Message, "fail"):
			return "", errors.New("model unavailable")
		case strings.HasPrefix(submission.Message, "slow"):
			<-ctx.Done()
			return "", ctx.Err()
		}
		model, _ := parameters["model"].(string)
		return strings.ToUpper(submission.Message) + ":" + model, nil
	}
	srv, err := New(WithHandler(handler), WithWorkers(2), WithListener(events.listen))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, srv.Start(ctx))
	defer func() { _ = srv.Shutdown(ctx) }()

	require.NoError(t, srv.PatchParameters(ctx, "ok-1", map[string]interface{}{"model": "small"}))

	testCases := []struct {
		name     string
		sub      *executor.Submission
		outcome  task.Outcome
		output   string
		errorMsg string
	}{
		{name: "ok", sub: &executor.Submission{Identity: "ok-1", ParentKey: "root", Message: "hello"}, outcome: task.OutcomeOK, output: "HELLO:small"},
		{name: "error", sub: &executor.Submission{Identity: "err-1", ParentKey: "root", Message: "fail now"}, outcome: task.OutcomeError, errorMsg: "model unavailable"},
		{name: "timeout", sub: &executor.Submission{Identity: "slow-1", ParentKey: "root", Message: "slow", Timeout: 20 * time.Millisecond}, outcome: task.OutcomeTimeout},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := srv.Submit(ctx, tc.sub)
			require.NoError(t, err)
			require.NotEmpty(t, id)
			require.Eventually(t, func() bool { return events.get(id) != nil }, 2*time.Second, 5*time.Millisecond)
			actual := events.get(id)
			assert.Equal(t, tc.outcome, actual.Outcome)
			assert.Equal(t, "root", actual.ParentKey)
			if tc.output != "" {
				require.NotNil(t, actual.Output)
				assert.Equal(t, tc.output, *actual.Output)
			}
			if tc.errorMsg != "" {
				assert.Equal(t, tc.errorMsg, actual.Error)
			}
		})
	}

	history, err := srv.FetchRecentHistory(ctx, "ok-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, executor.RoleUser, history[0].Role)
	assert.Equal(t, executor.RoleAssistant, history[1].Role)
	assert.Equal(t, "HELLO:small", history[1].Content)

	history, err = srv.FetchRecentHistory(ctx, "ok-1", 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestService_CleanupDelete(t *testing.T) {
	done := make(chan struct{})
	srv, err := New(
		WithHandler(func(ctx context.Context, submission *executor.Submission, _ map[string]interface{}) (string, error) {
			return "ok", nil
		}),
		WithListener(func(context.Context, *task.Completion) { close(done) }),
	)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, srv.Start(ctx))
	defer func() { _ = srv.Shutdown(ctx) }()

	_, err = srv.Submit(ctx, &executor.Submission{Identity: "tmp", Message: "x", Cleanup: task.CleanupDelete})
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("completion not delivered")
	}
	_, err = srv.FetchRecentHistory(ctx, "tmp", 10)
	assert.ErrorIs(t, err, executor.ErrSessionNotFound)
}

func TestService_Validation(t *testing.T) {
	_, err := New()
	assert.Error(t, err)

	srv, err := New(WithHandler(func(context.Context, *executor.Submission, map[string]interface{}) (string, error) { return "", nil }))
	require.NoError(t, err)
	_, err = srv.Submit(context.Background(), &executor.Submission{})
	assert.ErrorIs(t, err, executor.ErrInvalidIdentity)
	assert.ErrorIs(t, srv.PatchParameters(context.Background(), "", nil), executor.ErrInvalidIdentity)
}
