package aggregation

import (
	"sync"

	"github.com/viant/spawner/internal/clock"
	"github.com/viant/spawner/model/errs"
)

// group guards one Group's state; independent groups never share a lock.
type group struct {
	mu       sync.Mutex
	state    Group
	members  map[string]bool
	received map[string]bool
	done     chan struct{}
}

func newGroup(state Group) *group {
	return &group{
		state:    state,
		members:  map[string]bool{},
		received: map[string]bool{},
		done:     make(chan struct{}),
	}
}

func (g *group) hasMember(taskID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.members[taskID]
}

func (g *group) isComplete() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Status == StatusComplete
}

func (g *group) addMember(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Status == StatusComplete {
		return errs.New(errs.ValidationError, "group %v is already complete", g.state.Variable)
	}
	if g.members[taskID] {
		return errs.New(errs.ValidationError, "task %v is already a member of %v", taskID, g.state.Variable)
	}
	g.members[taskID] = true
	g.state.Members = append(g.state.Members, taskID)
	if g.state.Status == StatusPending {
		g.state.Status = StatusPartial
	}
	return nil
}

// record appends result unless the group is complete or the task already
// reported; it returns true when this call completed the group.
func (g *group) record(result TaskResult) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Status == StatusComplete || g.received[result.TaskID] {
		return false
	}
	if result.CompletedAt.IsZero() {
		result.CompletedAt = clock.Now()
	}
	g.received[result.TaskID] = true
	g.state.Results = append(g.state.Results, result)
	if g.state.Status == StatusPending {
		g.state.Status = StatusPartial
	}
	if len(g.state.Results) < len(g.state.Members) {
		return false
	}
	completedAt := clock.Now()
	g.state.Status = StatusComplete
	g.state.CompletedAt = &completedAt
	close(g.done)
	return true
}

func (g *group) snapshot() *Group {
	g.mu.Lock()
	defer g.mu.Unlock()
	ret := g.state
	ret.Members = append([]string(nil), g.state.Members...)
	ret.Results = append([]TaskResult(nil), g.state.Results...)
	if g.state.CompletedAt != nil {
		completedAt := *g.state.CompletedAt
		ret.CompletedAt = &completedAt
	}
	return &ret
}
