// Package ralph drives repeated agent invocations against a single thread
// until the agent reports the task done or an iteration cap is reached. Each
// iteration resumes the previous one's session, so the agent keeps its
// context across runs.
package ralph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tanuki/pkg/event"
	"tanuki/pkg/scheduler"
)

// Outcome is the terminal state of a loop.
type Outcome string

// Loop outcomes.
const (
	OutcomeSatisfied Outcome = "satisfied" // the agent reported the task done
	OutcomeExhausted Outcome = "exhausted" // iteration cap reached
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed" // an iteration's engine run errored
)

// DefaultMaxIterations caps a loop when the command gives no explicit limit.
const DefaultMaxIterations = 3

// completionMarker is the self-assessment marker the default predicate looks
// for in the agent's final answer. The loop prompt instructs the agent to
// emit it when the task is genuinely complete.
const completionMarker = "RALPH_DONE"

// Predicate decides whether a final answer signals satisfaction. It is
// pluggable because marker heuristics are policy, not protocol.
type Predicate func(answer string) bool

// MarkerPredicate returns a Predicate matching marker case-insensitively.
func MarkerPredicate(marker string) Predicate {
	upper := strings.ToUpper(marker)
	return func(answer string) bool {
		return strings.Contains(strings.ToUpper(answer), upper)
	}
}

// DefaultPredicate matches the built-in completion marker.
func DefaultPredicate() Predicate { return MarkerPredicate(completionMarker) }

// Submit hands one job to the scheduler. Wired to Scheduler.Submit.
type Submit func(job scheduler.Job) *scheduler.Handle

// Config describes one loop.
type Config struct {
	Thread        event.ThreadID
	Engine        string
	Prompt        string
	MaxIterations int
	Satisfied     Predicate
	Submit        Submit
	NewJob        func(iteration int, resume *event.ResumeToken) scheduler.Job
	Logger        *slog.Logger
}

// Result is the loop's terminal report.
type Result struct {
	Outcome    Outcome
	Iterations int
	LastResume *event.ResumeToken
	Err        error
}

// Run drives the loop to a terminal state. Cancellation of ctx between
// iterations suppresses further submissions; mid-run cancellation is the
// scheduler's job and surfaces here as the iteration's error. Iteration
// failures are terminal, not retried: rerunning a failed agent run would
// compound whatever side effects it already had.
func Run(ctx context.Context, cfg Config) Result {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Satisfied == nil {
		cfg.Satisfied = DefaultPredicate()
	}

	var lastResume *event.ResumeToken
	for iteration := 1; iteration <= cfg.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return Result{Outcome: OutcomeCancelled, Iterations: iteration - 1, LastResume: lastResume}
		}

		job := cfg.NewJob(iteration, lastResume)
		logger.Info("ralph: iteration", "thread", cfg.Thread, "n", iteration, "max", cfg.MaxIterations)
		handle := cfg.Submit(job)

		select {
		case <-handle.Done():
		case <-ctx.Done():
			// Let the in-flight run finish under the scheduler's control; the
			// loop itself stops here.
			<-handle.Done()
			return Result{Outcome: OutcomeCancelled, Iterations: iteration - 1, LastResume: lastResume}
		}

		res, err := handle.Result()
		if err != nil {
			if ctx.Err() != nil {
				return Result{Outcome: OutcomeCancelled, Iterations: iteration - 1, LastResume: lastResume}
			}
			return Result{
				Outcome:    OutcomeFailed,
				Iterations: iteration,
				LastResume: lastResume,
				Err:        fmt.Errorf("iteration %d: %w", iteration, err),
			}
		}
		if res.Resume != nil {
			lastResume = res.Resume
		}
		if cfg.Satisfied(res.Answer) {
			return Result{Outcome: OutcomeSatisfied, Iterations: iteration, LastResume: lastResume}
		}
	}
	return Result{Outcome: OutcomeExhausted, Iterations: cfg.MaxIterations, LastResume: lastResume}
}

// IterationPrompt builds the prompt for one iteration. The first iteration
// carries the task and the completion protocol; later ones ask the agent to
// keep going against its resumed session.
func IterationPrompt(task string, iteration int) string {
	if iteration == 1 {
		return fmt.Sprintf(
			"%s\n\nWork on this task. When it is fully complete, include the word %s in your final answer. If more work remains, describe what is left.",
			task, completionMarker)
	}
	return fmt.Sprintf(
		"Continue the task. If it is now fully complete, include the word %s in your final answer.",
		completionMarker)
}
