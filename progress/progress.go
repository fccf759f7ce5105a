package progress

import (
	"context"
	"sync"
	"time"

	"github.com/viant/spawner/internal/clock"
)

// Delta is an incremental counter change; fields may be negative.
type Delta struct {
	Total    int
	Accepted int
	Failed   int
	Skipped  int
	Pending  int
}

// Progress keeps dispatch counters of one batch. It is safe for concurrent
// use.
type Progress struct {
	Caller    string
	StartedAt time.Time

	TotalTasks    int
	AcceptedTasks int
	FailedTasks   int
	SkippedTasks  int
	PendingTasks  int

	sync.Mutex
	onChange func(Progress)
}

// Update applies d. The onChange callback, if any, receives a copy outside
// the critical section.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.Lock()
	p.TotalTasks += d.Total
	p.AcceptedTasks += d.Accepted
	p.FailedTasks += d.Failed
	p.SkippedTasks += d.Skipped
	p.PendingTasks += d.Pending
	snapshot := p.copy()
	cb := p.onChange
	p.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the counters.
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.Lock()
	defer p.Unlock()
	return p.copy()
}

func (p *Progress) copy() Progress {
	return Progress{
		Caller:        p.Caller,
		StartedAt:     p.StartedAt,
		TotalTasks:    p.TotalTasks,
		AcceptedTasks: p.AcceptedTasks,
		FailedTasks:   p.FailedTasks,
		SkippedTasks:  p.SkippedTasks,
		PendingTasks:  p.PendingTasks,
	}
}

// Done reports whether every task has been dispatched, failed or skipped.
func (p Progress) Done() bool {
	return p.TotalTasks > 0 && p.PendingTasks == 0
}

// OnChange replaces the update callback; nil disables it.
func (p *Progress) OnChange(cb func(Progress)) {
	if p == nil {
		return
	}
	p.Lock()
	p.onChange = cb
	p.Unlock()
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithNewTracker embeds a new tracker for caller in a derived context.
func WithNewTracker(ctx context.Context, caller string, onChange func(Progress)) (context.Context, *Progress) {
	if ctx == nil {
		ctx = context.Background()
	}
	tr := &Progress{Caller: caller, StartedAt: clock.Now(), onChange: onChange}
	return context.WithValue(ctx, trackerKey, tr), tr
}

// FromContext extracts the tracker from ctx.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// GetSnapshot combines FromContext and Snapshot.
func GetSnapshot(ctx context.Context) (Progress, bool) {
	if tr, ok := FromContext(ctx); ok {
		return tr.Snapshot(), true
	}
	return Progress{}, false
}

// UpdateCtx applies d to the tracker carried by ctx, if any.
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
