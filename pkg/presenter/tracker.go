// Package presenter consumes one run's normalized event stream and produces a
// throttled series of render operations: at most one post, then coalesced
// edits, ending with a final render that always carries the encoded resume
// token.
package presenter

import (
	"sort"

	"tanuki/pkg/event"
)

// ActionState is the rendered state of one action.
type ActionState struct {
	Action    event.Action
	Completed bool
	OK        *bool
	firstSeen int
	lastSeen  int
}

// Snapshot is an immutable view of run progress, ready for rendering.
type Snapshot struct {
	Engine      string
	Actions     []ActionState // ordered by first appearance
	ActionCount int
	Resume      *event.ResumeToken
}

// Tracker reduces run events into progress snapshots. Events are folded by
// action ID so rapid phase updates coalesce into the latest state.
type Tracker struct {
	engine  string
	resume  *event.ResumeToken
	actions map[string]*ActionState
	count   int
	seq     int
}

// NewTracker creates a Tracker for a run on the named engine.
func NewTracker(engine string) *Tracker {
	return &Tracker{engine: engine, actions: make(map[string]*ActionState)}
}

// Note folds one event into the tracker. It reports whether the event changed
// visible state (an unchanged snapshot is not worth an edit).
func (t *Tracker) Note(ev event.Event) bool {
	switch e := ev.(type) {
	case event.Started:
		if e.Resume != nil {
			t.resume = e.Resume
		}
		return true
	case event.Action:
		t.seq++
		st := t.actions[e.ID]
		if st == nil {
			st = &ActionState{firstSeen: t.seq}
			t.actions[e.ID] = st
			t.count++
		}
		// Merge rather than replace: completion records often carry only the
		// id and outcome, so an empty Type or Detail keeps the started
		// phase's value.
		prev := st.Action
		st.Action = e
		if e.Type == "" {
			st.Action.Type = prev.Type
		}
		if e.Detail == "" {
			st.Action.Detail = prev.Detail
		}
		st.Completed = e.Phase == event.PhaseCompleted
		if e.OK != nil {
			st.OK = e.OK
		}
		st.lastSeen = t.seq
		return true
	case event.Completed:
		if e.Resume != nil {
			t.resume = e.Resume
		}
		return true
	default:
		return false
	}
}

// Resume returns the most recent resume token seen, if any.
func (t *Tracker) Resume() *event.ResumeToken { return t.resume }

// Snapshot returns the current progress state with actions ordered by first
// appearance.
func (t *Tracker) Snapshot() Snapshot {
	actions := make([]ActionState, 0, len(t.actions))
	for _, st := range t.actions {
		actions = append(actions, *st)
	}
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].firstSeen < actions[j].firstSeen
	})
	return Snapshot{
		Engine:      t.engine,
		Actions:     actions,
		ActionCount: t.count,
		Resume:      t.resume,
	}
}
