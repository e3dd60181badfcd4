package event

import (
	"bufio"
	"context"
	"io"
	"log/slog"
)

// maxLineBytes bounds a single raw output line. Agent CLIs can emit very large
// JSON records when tool results are inlined.
const maxLineBytes = 4 * 1024 * 1024

// LineDecoder converts one raw output line into zero or more events. Each
// engine backend supplies its own decoder. A nil error with no events means
// the line carried nothing of interest; a non-nil error marks the line as
// malformed and it is skipped.
type LineDecoder interface {
	DecodeLine(line []byte) ([]Event, error)
}

// Translator normalizes one engine process invocation's raw line stream into
// the ordered event shape documented on this package. It is single-use: one
// Translator per run.
type Translator struct {
	decoder LineDecoder
	logger  *slog.Logger

	started     bool
	completed   bool
	openActions map[string]bool
	lastResume  *ResumeToken
}

// NewTranslator returns a Translator that decodes lines with decoder and
// reports translation warnings to logger.
func NewTranslator(decoder LineDecoder, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		decoder:     decoder,
		logger:      logger,
		openActions: make(map[string]bool),
	}
}

// Translate reads raw lines from r until EOF or context cancellation, sending
// normalized events to out. It closes out before returning. The last event
// sent is always a Completed: if the stream ends without one, a synthetic
// Completed with Truncated set is emitted, carrying the last seen resume
// token if any.
func (t *Translator) Translate(ctx context.Context, r io.Reader, out chan<- Event) {
	defer close(out)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		events, err := t.decoder.DecodeLine(line)
		if err != nil {
			t.logger.Warn("translate: skipping malformed line", "err", err)
			continue
		}
		for _, ev := range events {
			for _, normalized := range t.normalize(ev) {
				if !send(ctx, out, normalized) {
					return
				}
			}
		}
		if t.completed {
			// Terminal event seen. Keep reading to EOF so the process is
			// never blocked writing to a full pipe.
			for scanner.Scan() {
			}
			break
		}
	}
	if err := scanner.Err(); err != nil {
		t.logger.Warn("translate: line stream error", "err", err)
	}

	if !t.completed {
		if !t.started {
			if !send(ctx, out, Started{}) {
				return
			}
		}
		send(ctx, out, Completed{Resume: t.lastResume, Truncated: true})
	}
}

// normalize applies the ordering invariants to one decoded event, returning
// the events to emit in order.
func (t *Translator) normalize(ev Event) []Event {
	switch e := ev.(type) {
	case Started:
		if t.started {
			// Duplicate Started: keep the token, drop the event.
			if e.Resume != nil {
				t.lastResume = e.Resume
			}
			t.logger.Warn("translate: duplicate started event dropped")
			return nil
		}
		t.started = true
		if e.Resume != nil {
			t.lastResume = e.Resume
		}
		return []Event{e}

	case Action:
		out := make([]Event, 0, 2)
		if !t.started {
			t.started = true
			out = append(out, Started{})
		}
		if e.ID == "" {
			t.logger.Warn("translate: action without id dropped", "type", e.Type)
			return out
		}
		switch e.Phase {
		case PhaseStarted:
			t.openActions[e.ID] = true
		case PhaseUpdated:
			if !t.openActions[e.ID] {
				t.openActions[e.ID] = true
				out = append(out, Action{ID: e.ID, Type: e.Type, Phase: PhaseStarted, Detail: e.Detail})
			}
		case PhaseCompleted:
			if !t.openActions[e.ID] {
				// Completion for an action we never saw begin: coerce into a
				// synthetic started+completed pair so consumers always see a
				// start before an end.
				out = append(out, Action{ID: e.ID, Type: e.Type, Phase: PhaseStarted, Detail: e.Detail})
			}
			delete(t.openActions, e.ID)
		}
		return append(out, e)

	case Completed:
		out := make([]Event, 0, 2)
		if !t.started {
			t.started = true
			out = append(out, Started{})
		}
		t.completed = true
		if e.Resume == nil {
			e.Resume = t.lastResume
		} else {
			t.lastResume = e.Resume
		}
		return append(out, e)

	default:
		t.logger.Warn("translate: unknown event variant dropped")
		return nil
	}
}

// send delivers ev to out unless ctx is cancelled first.
func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
