// Package memory provides an in-process Executor: submissions are queued on
// an in-memory messaging queue and run by a pool of workers calling a
// user-supplied Handler.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/viant/spawner/internal/clock"
	"github.com/viant/spawner/internal/idgen"
	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/service/dao"
	"github.com/viant/spawner/service/dao/store"
	"github.com/viant/spawner/service/executor"
	"github.com/viant/spawner/service/messaging"
	mqueue "github.com/viant/spawner/service/messaging/memory"
)

// Handler performs a submitted task and returns its output.
type Handler func(ctx context.Context, submission *executor.Submission, parameters map[string]interface{}) (string, error)

// Config represents executor configuration
type Config struct {
	// WorkerCount is the number of workers running tasks
	WorkerCount int
	// QueueBuffer is the inbound submission buffer size
	QueueBuffer int
	// DefaultTimeout applies when a submission carries none; zero means no limit
	DefaultTimeout time.Duration
}

// DefaultConfig returns the default executor configuration
func DefaultConfig() Config {
	return Config{WorkerCount: 5, QueueBuffer: 100}
}

type session struct {
	Identity   string
	Parameters map[string]interface{}
	History    []executor.Exchange
}

// Service is the in-memory executor.
type Service struct {
	config    Config
	handler   Handler
	queue     messaging.Queue[executor.Submission]
	sessions  dao.Service[string, session]
	mu        sync.Mutex
	listeners []executor.CompletionListener

	workerWg sync.WaitGroup
	cancel   context.CancelFunc
	started  bool
}

// New creates an executor; a Handler is required.
func New(options ...Option) (*Service, error) {
	s := &Service{config: DefaultConfig()}
	for _, opt := range options {
		opt(s)
	}
	if s.handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if s.queue == nil {
		s.queue = mqueue.NewQueue[executor.Submission](mqueue.Config{QueueBuffer: s.config.QueueBuffer})
	}
	if s.sessions == nil {
		s.sessions = store.NewMemoryStore[string, session](func(s *session) string { return s.Identity })
	}
	return s, nil
}

// AddListener registers a completion listener.
func (s *Service) AddListener(listener executor.CompletionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Start launches the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	workerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for i := 0; i < s.config.WorkerCount; i++ {
		s.workerWg.Add(1)
		go s.run(workerCtx, i)
	}
	return nil
}

// Shutdown closes the inbound queue and waits for workers to drain it.
func (s *Service) Shutdown(ctx context.Context) error {
	_ = s.queue.Close()
	done := make(chan struct{})
	go func() {
		s.workerWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *Service) run(ctx context.Context, id int) {
	defer s.workerWg.Done()
	for {
		msg, err := s.queue.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, messaging.ErrClosed) {
				return
			}
			log.Printf("executor: worker %d: consume failed: %v", id, err)
			if clock.Sleep(ctx, 100*time.Millisecond) != nil {
				return
			}
			continue
		}
		s.execute(ctx, msg.T())
		if err = msg.Ack(); err != nil {
			log.Printf("executor: worker %d: ack failed: %v", id, err)
		}
	}
}

func (s *Service) execute(ctx context.Context, submission *executor.Submission) {
	timeout := submission.Timeout
	if timeout == 0 {
		timeout = s.config.DefaultTimeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	parameters := s.parameters(ctx, submission.Identity)
	s.appendHistory(ctx, submission.Identity, executor.RoleUser, submission.Message)

	completion := &task.Completion{
		ParentKey: submission.ParentKey,
		TaskID:    submission.Token,
		Identity:  submission.Identity,
	}
	output, err := s.invoke(runCtx, submission, parameters)
	switch {
	case err == nil:
		completion.Outcome = task.OutcomeOK
		completion.Output = &output
		s.appendHistory(ctx, submission.Identity, executor.RoleAssistant, output)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded):
		completion.Outcome = task.OutcomeTimeout
		completion.Error = fmt.Sprintf("task timed out after %s", timeout)
	default:
		completion.Outcome = task.OutcomeError
		completion.Error = err.Error()
	}
	completion.At = clock.Now()

	if submission.Cleanup == task.CleanupDelete {
		_ = s.sessions.Delete(ctx, submission.Identity)
	}
	s.notify(ctx, completion)
}

// invoke runs the handler, honouring runCtx cancellation even when the
// handler ignores it.
func (s *Service) invoke(runCtx context.Context, submission *executor.Submission, parameters map[string]interface{}) (string, error) {
	type outcome struct {
		output string
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		output, err := s.handler(runCtx, submission, parameters)
		ch <- outcome{output: output, err: err}
	}()
	select {
	case ret := <-ch:
		return ret.output, ret.err
	case <-runCtx.Done():
		return "", runCtx.Err()
	}
}

func (s *Service) notify(ctx context.Context, completion *task.Completion) {
	s.mu.Lock()
	listeners := append([]executor.CompletionListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, listener := range listeners {
		listener(ctx, completion)
	}
}

// Submit queues submission and returns the token as task id.
func (s *Service) Submit(ctx context.Context, submission *executor.Submission) (string, error) {
	if submission == nil || submission.Identity == "" {
		return "", executor.ErrInvalidIdentity
	}
	if submission.Token == "" {
		submission.Token = idgen.New()
	}
	if err := s.queue.Publish(ctx, submission); err != nil {
		return "", fmt.Errorf("failed to submit %v: %w", submission.Identity, err)
	}
	return submission.Token, nil
}

func (s *Service) PatchParameters(ctx context.Context, identity string, patch map[string]interface{}) error {
	if identity == "" {
		return executor.ErrInvalidIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(ctx, identity)
	for k, v := range patch {
		sess.Parameters[k] = v
	}
	return s.sessions.Save(ctx, sess)
}

func (s *Service) FetchRecentHistory(ctx context.Context, identity string, limit int) ([]executor.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.sessions.Load(ctx, identity)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, executor.ErrSessionNotFound
		}
		return nil, err
	}
	history := sess.History
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return append([]executor.Exchange(nil), history...), nil
}

func (s *Service) parameters(ctx context.Context, identity string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(ctx, identity)
	ret := make(map[string]interface{}, len(sess.Parameters))
	for k, v := range sess.Parameters {
		ret[k] = v
	}
	return ret
}

func (s *Service) appendHistory(ctx context.Context, identity, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(ctx, identity)
	sess.History = append(sess.History, executor.Exchange{Role: role, Content: content, At: clock.Now()})
	_ = s.sessions.Save(ctx, sess)
}

// session loads or creates the session; callers hold s.mu.
func (s *Service) session(ctx context.Context, identity string) *session {
	sess, err := s.sessions.Load(ctx, identity)
	if err == nil {
		return sess
	}
	sess = &session{Identity: identity, Parameters: map[string]interface{}{}}
	_ = s.sessions.Save(ctx, sess)
	return sess
}

var _ executor.Executor = (*Service)(nil)
