// Package event defines the normalized event model shared by every engine
// backend. An engine run produces a totally ordered stream: exactly one
// Started first, zero or more Actions, exactly one Completed last. The
// Translator enforces that shape regardless of what the underlying process
// actually emitted.
package event

// ThreadID identifies one conversation surface (one folder/topic in the chat
// platform). IDs are minted when a folder is registered with the workspace and
// are never reused, even if a folder name is.
type ThreadID string

// General is the reserved thread for the workspace-level conversation that is
// not bound to any folder.
const General ThreadID = "general"

// ResumeToken is an opaque continuation handle scoped to an engine and thread.
// Raw is the engine's own session identifier; Engine and Thread record where
// the token may legitimately be used.
type ResumeToken struct {
	Engine string
	Thread ThreadID
	Raw    string
}

// Kind discriminates event variants.
type Kind int

// Event kinds.
const (
	KindStarted Kind = iota
	KindAction
	KindCompleted
)

// Phase is the lifecycle phase of a single action.
type Phase string

// Action phases. For one action ID the phases arrive in the order
// started, updated*, completed.
const (
	PhaseStarted   Phase = "started"
	PhaseUpdated   Phase = "updated"
	PhaseCompleted Phase = "completed"
)

// Event is the common interface for the three run event variants.
type Event interface {
	EventKind() Kind
}

// Started signals that a run began. Resume may be nil if the engine has not
// yet produced a session identifier.
type Started struct {
	Resume *ResumeToken
}

// EventKind implements Event.
func (Started) EventKind() Kind { return KindStarted }

// Action represents a tool invocation, shell command, or file change. The same
// ID ties together the started/updated/completed phases of one action.
type Action struct {
	ID     string
	Type   string // e.g. "tool", "command", "file_change", "todo"
	Phase  Phase
	Detail string
	OK     *bool // set on completed phase when the engine reports success/failure
}

// EventKind implements Event.
func (Action) EventKind() Kind { return KindAction }

// Completed signals that a run finished. Truncated is set when the event was
// synthesized because the process stream ended without a terminal record, or
// when the run failed.
type Completed struct {
	Answer    string
	Resume    *ResumeToken
	Truncated bool
}

// EventKind implements Event.
func (Completed) EventKind() Kind { return KindCompleted }
