package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/spawner/model/errs"
	"github.com/viant/spawner/model/task"
	"golang.org/x/sync/errgroup"
)

// ManyResult is the outcome of Many.
type ManyResult struct {
	// Status is accepted when every task was accepted, partial otherwise.
	Status   string              `json:"status"`
	Error    string              `json:"error,omitempty"`
	Code     errs.Code           `json:"code,omitempty"`
	Results  []*task.SpawnResult `json:"results,omitempty"`
	Accepted int                 `json:"accepted"`
	Failed   int                 `json:"failed"`
}

const (
	ManyAccepted = "accepted"
	ManyPartial  = "partial"
)

// Many spawns template once per text through the retry coordinator with at
// most concurrent dispatches in flight. A non empty Label on template is
// suffixed with -<n> (1-based) per task.
func (s *Service) Many(ctx context.Context, template *task.SpawnRequest, texts []string, concurrent int) *ManyResult {
	if template == nil || len(texts) == 0 {
		return &ManyResult{Status: string(task.StatusError), Error: "no tasks to spawn", Code: errs.ValidationError}
	}
	if err := s.admission.Admit(ctx, template.Caller.Key, len(texts)); err != nil {
		failure := task.Failure(err, "", "")
		return &ManyResult{Status: string(failure.Status), Error: failure.Error, Code: failure.Code}
	}
	results := make([]*task.SpawnResult, len(texts))
	group, groupCtx := errgroup.WithContext(ctx)
	if concurrent > 0 {
		group.SetLimit(concurrent)
	}
	var mu sync.Mutex
	ret := &ManyResult{Results: results}
	for i, text := range texts {
		i, text := i, text
		group.Go(func() error {
			request := template.Clone()
			request.Task = text
			if template.Label != "" {
				request.Label = fmt.Sprintf("%v-%d", template.Label, i+1)
			}
			result := s.dispatcher.Spawn(groupCtx, request)
			mu.Lock()
			defer mu.Unlock()
			results[i] = result
			if result.Accepted() {
				ret.Accepted++
			} else {
				ret.Failed++
			}
			return nil
		})
	}
	_ = group.Wait()
	ret.Status = ManyAccepted
	if ret.Failed > 0 {
		ret.Status = ManyPartial
	}
	return ret
}

// Repeat returns text repeated count times.
func Repeat(text string, count int) []string {
	if count <= 0 {
		return nil
	}
	ret := make([]string, count)
	for i := range ret {
		ret[i] = text
	}
	return ret
}
