package aggregation

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/service/messaging"
	"github.com/viant/spawner/service/messaging/memory"
)

// router feeds completion events through one queue per owner, consumed by a
// dedicated goroutine, so executor callbacks never re-enter caller code and
// events of one owner are recorded in arrival order.
type router struct {
	engine *Service
	mu     sync.Mutex
	queues map[string]*ownerQueue
	wg     sync.WaitGroup
}

type ownerQueue struct {
	queue   *memory.Queue[task.Completion]
	cancel  context.CancelFunc
	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

func (q *ownerQueue) add() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 {
		q.idle = make(chan struct{})
	}
	q.pending++
}

func (q *ownerQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 {
		return
	}
	q.pending--
	if q.pending == 0 {
		close(q.idle)
		q.idle = nil
	}
}

// release drops the pending count of a stopped queue.
func (q *ownerQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = 0
	if q.idle != nil {
		close(q.idle)
		q.idle = nil
	}
}

// idled returns a channel closed once nothing is pending, or nil when idle.
func (q *ownerQueue) idled() chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.idle
}

func (r *router) init(engine *Service) {
	r.engine = engine
	r.queues = map[string]*ownerQueue{}
}

// Deliver enqueues a completion for its owner (ParentKey).
func (r *router) Deliver(ctx context.Context, completion *task.Completion) error {
	if completion == nil {
		return nil
	}
	q := r.queueFor(completion.ParentKey)
	q.add()
	if err := q.queue.Publish(ctx, completion); err != nil {
		q.done()
		return err
	}
	return nil
}

// flush blocks until every completion delivered for owner so far has been
// routed or the owner's queue was stopped.
func (r *router) flush(ctx context.Context, owner string) error {
	r.mu.Lock()
	q, ok := r.queues[owner]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	idle := q.idled()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *router) queueFor(owner string) *ownerQueue {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.queues[owner]; ok {
		return q
	}
	config := memory.DefaultConfig()
	config.QueueBuffer = r.engine.config.QueueBuffer
	config.MaxRetries = 0
	config.DeadLetter = false
	ctx, cancel := context.WithCancel(context.Background())
	q := &ownerQueue{queue: memory.NewQueue[task.Completion](config), cancel: cancel}
	r.queues[owner] = q
	r.wg.Add(1)
	go r.consume(ctx, owner, q)
	return q
}

func (r *router) consume(ctx context.Context, owner string, q *ownerQueue) {
	defer r.wg.Done()
	for {
		msg, err := q.queue.Consume(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, messaging.ErrClosed) {
				log.Printf("aggregation: completion queue of %v failed: %v", owner, err)
			}
			return
		}
		c := msg.T()
		r.engine.RouteCompletion(owner, c.TaskID, c.Identity, c.Outcome, c.Output, c.Error)
		_ = msg.Ack()
		q.done()
	}
}

func (r *router) stop(owner string) {
	r.mu.Lock()
	q, ok := r.queues[owner]
	delete(r.queues, owner)
	r.mu.Unlock()
	if ok {
		_ = q.queue.Close()
		q.cancel()
		q.release()
	}
}

func (r *router) close() {
	r.mu.Lock()
	queues := r.queues
	r.queues = map[string]*ownerQueue{}
	r.mu.Unlock()
	for _, q := range queues {
		_ = q.queue.Close()
	}
	r.wg.Wait()
	for _, q := range queues {
		q.cancel()
		q.release()
	}
}
