package event

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spawned struct {
	TaskID string
}

type completed struct {
	TaskID string
}

func TestService_Listeners(t *testing.T) {
	srv := New()
	var mu sync.Mutex
	var all []Type
	var typed []string
	srv.SetListener(func(e *Event[any]) {
		mu.Lock()
		defer mu.Unlock()
		all = append(all, e.Context.EventType)
	})
	SetListenerOf[spawned](srv, func(e *Event[spawned]) {
		mu.Lock()
		defer mu.Unlock()
		typed = append(typed, e.Data.TaskID)
	})

	ctx := context.Background()
	require.NoError(t, Publish(ctx, srv, &Context{EventType: TaskSpawned}, spawned{TaskID: "t1"}))
	require.NoError(t, Publish(ctx, srv, &Context{EventType: TaskCompleted}, completed{TaskID: "t1"}))
	require.NoError(t, Publish(ctx, srv, &Context{EventType: TaskSpawned}, spawned{TaskID: "t2"}))
	srv.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"t1", "t2"}, typed)
	assert.Equal(t, []Type{TaskSpawned, TaskCompleted, TaskSpawned}, all)
}

func TestService_NoListener(t *testing.T) {
	srv := New()
	defer srv.Close()
	for i := 0; i < 500; i++ {
		require.NoError(t, Publish(context.Background(), srv, &Context{EventType: TaskSpawned}, spawned{TaskID: "x"}))
	}
	assert.NotNil(t, PublisherOf[spawned](srv))
}
