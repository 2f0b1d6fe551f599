// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tubescribe/tubescribe/internal/log"
	"github.com/tubescribe/tubescribe/internal/metrics"
)

// evictAfter is how long a terminal job stays queryable.
const evictAfter = 24 * time.Hour

// RunFunc drives one job through the pipeline stages. Returning nil
// completes the job, ErrSkipped marks it skipped, anything else fails it.
type RunFunc func(ctx context.Context, job Job, rep Reporter) error

// Engine owns the job table and the single worker goroutine.
type Engine struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	ch     chan string
	closed bool

	run    RunFunc
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine starts the worker. queueDepth bounds how many jobs can wait.
func NewEngine(run RunFunc, queueDepth int) *Engine {
	if queueDepth < 1 {
		queueDepth = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		jobs:   make(map[string]*Job),
		ch:     make(chan string, queueDepth),
		run:    run,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go e.worker(ctx)
	return e
}

// Enqueue creates a pending job unless a non-terminal job for the
// identifier already exists (then it returns false and changes nothing).
// A terminal job for the same identifier is replaced.
func (e *Engine) Enqueue(videoID string, opts Options) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	e.evictLocked()

	if j, ok := e.jobs[videoID]; ok && !j.State.Terminal() {
		return false
	}

	job := &Job{
		VideoID:   videoID,
		Title:     opts.Title,
		Channel:   opts.Channel,
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
	}

	select {
	case e.ch <- videoID:
	default:
		// Queue full; refuse rather than block the caller.
		logger := log.WithComponent("jobs")
		logger.Warn().
			Str("video_id", videoID).
			Msg("job queue full, enqueue refused")
		return false
	}

	e.jobs[videoID] = job
	metrics.RecordJobTransition(string(StatePending))
	metrics.JobsPending.Inc()
	return true
}

// ShouldSkip reports whether a non-terminal job exists for the
// identifier.
func (e *Engine) ShouldSkip(videoID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	j, ok := e.jobs[videoID]
	return ok && !j.State.Terminal()
}

// Status returns a snapshot of the job for an identifier.
func (e *Engine) Status(videoID string) (Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.evictLocked()
	j, ok := e.jobs[videoID]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Close stops the worker, marks still-pending jobs failed with reason
// shutdown, and waits for the in-flight job to finish. Idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	close(e.ch)
	e.mu.Unlock()

	e.cancel()
	<-e.done
}

func (e *Engine) worker(ctx context.Context) {
	defer close(e.done)

	logger := log.WithComponent("jobs")

	for videoID := range e.ch {
		metrics.JobsPending.Dec()

		e.mu.Lock()
		job, ok := e.jobs[videoID]
		if !ok {
			e.mu.Unlock()
			continue
		}

		if ctx.Err() != nil {
			e.finishLocked(job, StateFailed, "shutdown")
			e.mu.Unlock()
			continue
		}

		now := time.Now().UTC()
		job.StartedAt = &now
		snapshot := *job
		e.mu.Unlock()

		err := e.runOne(ctx, snapshot)

		e.mu.Lock()
		switch {
		case err == nil:
			e.finishLocked(job, StateCompleted, "")
		case isSkip(err):
			e.finishLocked(job, StateSkipped, "")
		default:
			e.finishLocked(job, StateFailed, err.Error())
			logger.Error().
				Str("video_id", videoID).
				Str("error", err.Error()).
				Msg("job failed")
		}
		e.mu.Unlock()
	}

	// Engine closed: everything still queued in the map as pending is
	// marked failed.
	e.mu.Lock()
	for _, job := range e.jobs {
		if job.State == StatePending {
			e.finishLocked(job, StateFailed, "shutdown")
			metrics.JobsPending.Dec()
		}
	}
	e.mu.Unlock()
}

// runOne executes the run function with panic recovery; a panicking job
// must never kill the worker.
func (e *Engine) runOne(ctx context.Context, snapshot Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger := log.WithComponent("jobs")
			logger.Error().
				Str("video_id", snapshot.VideoID).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("job panicked")
			err = fmt.Errorf("internal: job panicked: %v", r)
		}
	}()

	rep := &reporter{engine: e, videoID: snapshot.VideoID}
	return e.run(log.ContextWithVideoID(ctx, snapshot.VideoID), snapshot, rep)
}

// finishLocked records a terminal state. Caller holds e.mu.
func (e *Engine) finishLocked(job *Job, s State, errMsg string) {
	now := time.Now().UTC()
	job.State = s
	job.LastError = errMsg
	job.FinishedAt = &now
	metrics.RecordJobTransition(string(s))
}

// evictLocked drops terminal jobs older than evictAfter. Caller holds
// e.mu.
func (e *Engine) evictLocked() {
	cutoff := time.Now().UTC().Add(-evictAfter)
	for id, j := range e.jobs {
		if j.State.Terminal() && j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(e.jobs, id)
		}
	}
}

func isSkip(err error) bool {
	return errors.Is(err, ErrSkipped)
}

// reporter publishes progress for one job.
type reporter struct {
	engine  *Engine
	videoID string
}

func (r *reporter) SetState(s State) {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()

	if job, ok := r.engine.jobs[r.videoID]; ok && !job.State.Terminal() {
		job.State = s
		metrics.RecordJobTransition(string(s))
	}
}

func (r *reporter) SetNoteURL(url string) {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()

	if job, ok := r.engine.jobs[r.videoID]; ok {
		job.NoteURL = url
	}
}

func (r *reporter) SetAttempts(n int) {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()

	if job, ok := r.engine.jobs[r.videoID]; ok {
		job.Attempts = n
	}
}
