// Package scheduler admits inbound work and serializes it per conversation
// thread. Exactly one job per thread is ever running; later submissions queue
// in FIFO order behind it. Jobs for different threads run fully concurrently,
// one goroutine per active thread. That is acceptable because thread count
// equals folder count, a small operator-controlled number.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tanuki/pkg/event"
)

// ErrCancelled completes handles whose job never ran because the thread's
// queue was cleared by a cancellation.
var ErrCancelled = errors.New("job cancelled")

// Job is one unit of scheduled work for a thread.
type Job struct {
	ID          string
	Thread      event.ThreadID
	Prompt      string
	Resume      *event.ResumeToken
	Engine      string
	SubmittedAt time.Time
}

// RunResult is what a completed run hands back for bookkeeping: the final
// answer, the continuation token, and whether the run was cut short.
type RunResult struct {
	Answer    string
	Resume    *event.ResumeToken
	Truncated bool
}

// RunFunc executes one job to completion. The context is cancelled when the
// thread is cancelled; implementations signal the engine process and return
// once it has exited.
type RunFunc func(ctx context.Context, job Job) (RunResult, error)

// Handle tracks one submitted job. Done is closed when the job completes, is
// cancelled out of the queue, or fails.
type Handle struct {
	Job Job

	done   chan struct{}
	result RunResult
	err    error
}

// Done returns a channel closed when the job has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the run result and error. Valid only after Done is closed.
func (h *Handle) Result() (RunResult, error) { return h.result, h.err }

func (h *Handle) complete(res RunResult, err error) {
	h.result = res
	h.err = err
	close(h.done)
}

// threadState is the per-thread record. Owned exclusively by the Scheduler;
// one instance per ThreadID, created lazily on first submit.
type threadState struct {
	queue      []*Handle
	active     *Handle
	cancel     context.CancelFunc
	cancelling bool
}

// Scheduler serializes jobs per thread.
type Scheduler struct {
	run    RunFunc
	logger *slog.Logger

	mu      sync.Mutex
	threads map[event.ThreadID]*threadState
	wg      sync.WaitGroup
}

// New creates a Scheduler executing jobs with run.
func New(run RunFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		run:     run,
		logger:  logger,
		threads: make(map[event.ThreadID]*threadState),
	}
}

// Submit admits a job. If the job's thread is idle it starts running
// immediately; otherwise the job queues behind the thread's current work.
func (s *Scheduler) Submit(job Job) *Handle {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	h := &Handle{Job: job, done: make(chan struct{})}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.threads[job.Thread]
	if ts == nil {
		ts = &threadState{}
		s.threads[job.Thread] = ts
	}

	if ts.active != nil || ts.cancelling {
		ts.queue = append(ts.queue, h)
		s.logger.Debug("scheduler: queued", "job", job.ID, "thread", job.Thread, "depth", len(ts.queue))
		return h
	}

	ts.active = h
	s.wg.Add(1)
	go s.runThread(job.Thread)
	return h
}

// Cancel requests cancellation of the thread's running job and clears its
// pending queue. A user cancelling mid-run almost always wants to stop the
// whole pending burst, so queued jobs are dropped rather than started.
// Returns false if the thread is idle.
func (s *Scheduler) Cancel(thread event.ThreadID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.threads[thread]
	if ts == nil || ts.active == nil {
		return false
	}
	ts.cancelling = true
	if ts.cancel != nil {
		ts.cancel()
	}
	s.dropQueueLocked(thread, ts)
	return true
}

// Busy reports whether the thread currently has a running job.
func (s *Scheduler) Busy(thread event.ThreadID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.threads[thread]
	return ts != nil && ts.active != nil
}

// Wait blocks until all running jobs have finished. Pending queues are not
// drained; callers cancel threads first during shutdown.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// runThread drains the thread's queue, one job at a time, until it empties.
func (s *Scheduler) runThread(thread event.ThreadID) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		ts := s.threads[thread]
		h := ts.active
		if ts.cancelling {
			// Cancel landed before this job's cancel func was installed,
			// either right after Submit or between dequeued jobs. The job
			// never runs.
			ts.cancelling = false
			h.complete(RunResult{}, ErrCancelled)
			if len(ts.queue) == 0 {
				ts.active = nil
				ts.cancel = nil
				s.mu.Unlock()
				return
			}
			ts.active = ts.queue[0]
			ts.queue = ts.queue[1:]
			s.mu.Unlock()
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		ts.cancel = cancel
		s.mu.Unlock()

		res, err := s.run(ctx, h.Job)
		cancel()

		s.mu.Lock()
		ts.cancel = nil
		h.complete(res, err)
		if ts.cancelling {
			s.dropQueueLocked(thread, ts)
			ts.cancelling = false
		}
		if len(ts.queue) == 0 {
			ts.active = nil
			ts.cancel = nil
			s.mu.Unlock()
			return
		}
		ts.active = ts.queue[0]
		ts.queue = ts.queue[1:]
		s.mu.Unlock()
	}
}

// dropQueueLocked completes every queued handle with ErrCancelled.
// Caller holds s.mu.
func (s *Scheduler) dropQueueLocked(thread event.ThreadID, ts *threadState) {
	for _, h := range ts.queue {
		h.complete(RunResult{}, ErrCancelled)
	}
	if len(ts.queue) > 0 {
		s.logger.Debug("scheduler: queue cleared", "thread", thread, "dropped", len(ts.queue))
	}
	ts.queue = nil
}
