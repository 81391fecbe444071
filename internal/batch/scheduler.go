// Package batch runs many extraction tasks under a bounded worker pool
// and collects one outcome per task.
package batch

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/grixate/zipex/internal/extract"
)

const defaultMaxConcurrent = 4

// Outcome is the terminal result of one task.
type Outcome struct {
	TaskID  string
	Status  extract.Status
	Success bool
	Err     error
}

type Options struct {
	MaxConcurrent int
	Logger        *log.Logger
	OnProgress    extract.ProgressFunc
}

// Runner dispatches tasks to engines with bounded parallelism. Tasks
// share no mutable state; aggregation happens only in the result map.
type Runner struct {
	opts Options

	mu      sync.Mutex
	engines map[string]*extract.Engine
}

func NewRunner(opts Options) *Runner {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	return &Runner{
		opts:    opts,
		engines: map[string]*extract.Engine{},
	}
}

// Run blocks until every task reaches a terminal state and returns the
// outcome map keyed by task id, complete regardless of completion order.
// A panic inside one task is recorded as that task's failure and does
// not affect siblings.
func (r *Runner) Run(ctx context.Context, tasks []*extract.Task) map[string]Outcome {
	results := make(map[string]Outcome, len(tasks))
	var resultsMu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.opts.MaxConcurrent)

	for _, task := range tasks {
		task := task
		engine := extract.NewEngine(r.opts.Logger)
		r.register(task.ID, engine)

		g.Go(func() error {
			var err error
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						err = fmt.Errorf("extraction panic: %v", rec)
						task.Status = extract.StatusFailed
						task.Err = err
					}
				}()
				err = engine.Extract(ctx, task, r.opts.OnProgress)
			}()

			resultsMu.Lock()
			results[task.ID] = Outcome{
				TaskID:  task.ID,
				Status:  task.Status,
				Success: task.Status == extract.StatusCompleted,
				Err:     err,
			}
			resultsMu.Unlock()
			r.unregister(task.ID)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// PauseAll suspends every running engine at its next member boundary.
func (r *Runner) PauseAll() {
	r.each(func(e *extract.Engine) { e.RequestPause() })
}

// ResumeAll lifts a batch-wide pause.
func (r *Runner) ResumeAll() {
	r.each(func(e *extract.Engine) { e.RequestResume() })
}

// CancelAll cancels every running engine cooperatively.
func (r *Runner) CancelAll() {
	r.each(func(e *extract.Engine) { e.RequestCancel() })
}

func (r *Runner) register(id string, e *extract.Engine) {
	r.mu.Lock()
	r.engines[id] = e
	r.mu.Unlock()
}

func (r *Runner) unregister(id string) {
	r.mu.Lock()
	delete(r.engines, id)
	r.mu.Unlock()
}

func (r *Runner) each(fn func(*extract.Engine)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.engines {
		fn(e)
	}
}
