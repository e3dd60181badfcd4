// Package engine defines the runner interface implemented by each agent CLI
// backend and the explicit registry that maps engine identifiers to runners.
// Backends are registered at process start; there is no discovery mechanism.
package engine

import (
	"context"
	"fmt"

	"tanuki/pkg/event"
)

// RunRequest describes one engine invocation.
type RunRequest struct {
	Prompt string
	Dir    string // working directory for the process
	Thread event.ThreadID
	Resume *event.ResumeToken

	// Settings is the engine's opaque config blob from the workspace config,
	// passed through unopened. Runners that understand it may read extra
	// arguments or environment from it.
	Settings map[string]any
}

// Run is one in-flight engine invocation. Events delivers the normalized
// event stream and closes when the process output ends; Wait reports the
// process exit status and must be called after Events is drained.
type Run struct {
	Events <-chan event.Event
	wait   func() error
}

// NewRun builds a Run from an event channel and a wait function. Exposed for
// engine implementations and tests.
func NewRun(events <-chan event.Event, wait func() error) *Run {
	return &Run{Events: events, wait: wait}
}

// Wait blocks until the engine process has exited and returns its error.
func (r *Run) Wait() error {
	if r.wait == nil {
		return nil
	}
	return r.wait()
}

// Runner is one engine backend. Implementations spawn the engine CLI, decode
// its streaming output, and know the engine's resume-token text format.
type Runner interface {
	// ID returns the engine identifier (e.g. "claude").
	ID() string

	// Start launches the engine process for the request and begins streaming
	// events. The context cancels the process.
	Start(ctx context.Context, req RunRequest) (*Run, error)

	// FormatResume renders the engine's resume line for a token, e.g.
	// "`claude --resume abc`".
	FormatResume(token event.ResumeToken) (string, error)

	// ExtractResume finds the engine's resume line in free text. The last
	// match wins. Returns nil if none.
	ExtractResume(text string) *event.ResumeToken
}

// UnknownEngineError reports a lookup for an engine id that was never
// registered.
type UnknownEngineError struct {
	ID        string
	Available []string
}

func (e *UnknownEngineError) Error() string {
	return fmt.Sprintf("unknown engine %q (available: %v)", e.ID, e.Available)
}

// EngineProcessError reports an engine process that failed to spawn or exited
// non-zero.
type EngineProcessError struct {
	Engine string
	Err    error
}

func (e *EngineProcessError) Error() string {
	return fmt.Sprintf("engine %s process: %v", e.Engine, e.Err)
}

func (e *EngineProcessError) Unwrap() error { return e.Err }
