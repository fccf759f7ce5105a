package progress

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress_Update(t *testing.T) {
	var observed []Progress
	ctx, tr := WithNewTracker(context.Background(), "agent:main:main", func(p Progress) {
		observed = append(observed, p)
	})
	UpdateCtx(ctx, Delta{Total: 3, Pending: 3})
	UpdateCtx(ctx, Delta{Accepted: 1, Pending: -1})
	UpdateCtx(ctx, Delta{Failed: 1, Pending: -1})
	UpdateCtx(ctx, Delta{Skipped: 1, Pending: -1})

	snapshot, ok := GetSnapshot(ctx)
	require.True(t, ok)
	assert.Equal(t, 3, snapshot.TotalTasks)
	assert.Equal(t, 1, snapshot.AcceptedTasks)
	assert.Equal(t, 1, snapshot.FailedTasks)
	assert.Equal(t, 1, snapshot.SkippedTasks)
	assert.True(t, snapshot.Done())
	assert.Len(t, observed, 4)
	assert.False(t, observed[0].Done())
	assert.Equal(t, "agent:main:main", tr.Snapshot().Caller)
}

func TestProgress_Concurrent(t *testing.T) {
	ctx, tr := WithNewTracker(context.Background(), "x", nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			UpdateCtx(ctx, Delta{Accepted: 1})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, tr.Snapshot().AcceptedTasks)
}

func TestProgress_NoTracker(t *testing.T) {
	UpdateCtx(context.Background(), Delta{Total: 1})
	_, ok := GetSnapshot(context.Background())
	assert.False(t, ok)
	var p *Progress
	p.Update(Delta{Total: 1})
	assert.Equal(t, Progress{}, p.Snapshot())
}
