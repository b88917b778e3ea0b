package checker

import (
	"context"
	"sync"

	"giftcheck/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Control token states. Workers consume the token at exactly one checkpoint,
// immediately before starting a unit of work.
const (
	stateRunning = iota
	statePaused
	stateCancelled
)

// controlToken is the shared pause/resume/cancel switch for one batch run.
type controlToken struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state int
}

func newControlToken() *controlToken {
	t := &controlToken{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// next blocks while the run is paused and reports whether the worker may
// start another unit of work. A false return means the run was cancelled.
func (t *controlToken) next() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.state == statePaused {
		t.cond.Wait()
	}
	return t.state == stateRunning
}

func (t *controlToken) set(state int) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
	t.cond.Broadcast()
}

// Progress is emitted after every completed unit of work.
type Progress struct {
	Completed int
	Total     int
	Label     string
}

// BatchOptions configures one batch run. Callbacks may be invoked
// concurrently from multiple workers; no lock is held while they run.
type BatchOptions struct {
	Concurrency int
	OnResult    func(*model.AnalysisResult)
	OnProgress  func(Progress)
}

// BatchRun is a live batch analysis. Each run owns its counters and result
// collection; nothing is shared across runs.
type BatchRun struct {
	ID    string
	total int
	ctrl  *controlToken
	wg    sync.WaitGroup

	mu        sync.Mutex
	results   []*model.AnalysisResult
	completed int
}

// Pause stops workers from starting new units of work. In-flight requests
// finish; a worker that already passed the checkpoint completes one more
// unit at most.
func (b *BatchRun) Pause() {
	b.ctrl.set(statePaused)
	log.Info().Str("batch_id", b.ID).Msg("Batch paused")
}

// Resume wakes paused workers.
func (b *BatchRun) Resume() {
	b.ctrl.set(stateRunning)
	log.Info().Str("batch_id", b.ID).Msg("Batch resumed")
}

// Cancel drops all unstarted work. Results already produced are preserved.
func (b *BatchRun) Cancel() {
	b.ctrl.set(stateCancelled)
	log.Info().Str("batch_id", b.ID).Msg("Batch cancelled")
}

// Wait blocks until every worker has exited and returns the results
// produced so far, in completion order.
func (b *BatchRun) Wait() []*model.AnalysisResult {
	b.wg.Wait()
	return b.Results()
}

// Results returns a snapshot of the results produced so far.
func (b *BatchRun) Results() []*model.AnalysisResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*model.AnalysisResult, len(b.results))
	copy(out, b.results)
	return out
}

// Completed returns the number of finished units of work.
func (b *BatchRun) Completed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

func (b *BatchRun) record(res *model.AnalysisResult, opts *BatchOptions) {
	b.mu.Lock()
	b.results = append(b.results, res)
	b.completed++
	completed := b.completed
	b.mu.Unlock()

	if opts.OnResult != nil {
		opts.OnResult(res)
	}
	if opts.OnProgress != nil {
		opts.OnProgress(Progress{Completed: completed, Total: b.total, Label: res.StatusLabel()})
	}
}

// StartBatch dispatches the links to a bounded worker pool and returns the
// live run. Results stream through the callbacks as they complete;
// completion order depends on network latency, not input order.
func (c *Checker) StartBatch(ctx context.Context, urls []string, opts BatchOptions) *BatchRun {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = c.cfg.DefaultConcurrency
	}
	if concurrency > c.cfg.MaxConcurrency {
		concurrency = c.cfg.MaxConcurrency
	}
	if concurrency > len(urls) && len(urls) > 0 {
		concurrency = len(urls)
	}

	run := &BatchRun{
		ID:    uuid.NewString(),
		total: len(urls),
		ctrl:  newControlToken(),
	}

	jobs := make(chan string, len(urls))
	for _, u := range urls {
		jobs <- u
	}
	close(jobs)

	log.Info().
		Str("batch_id", run.ID).
		Int("total", run.total).
		Int("concurrency", concurrency).
		Msg("Batch started")

	for i := 0; i < concurrency; i++ {
		run.wg.Add(1)
		go func() {
			defer run.wg.Done()
			for u := range jobs {
				if ctx.Err() != nil {
					run.ctrl.set(stateCancelled)
					return
				}
				if !run.ctrl.next() {
					return
				}
				run.record(c.analyze(ctx, u), &opts)
			}
		}()
	}

	return run
}

// AnalyzeBatch runs a batch to completion and returns all results. Suitable
// for synchronous callers that do not need pause/resume control.
func (c *Checker) AnalyzeBatch(ctx context.Context, urls []string, concurrency int, onResult func(*model.AnalysisResult)) []*model.AnalysisResult {
	run := c.StartBatch(ctx, urls, BatchOptions{Concurrency: concurrency, OnResult: onResult})
	return run.Wait()
}
