package codex

import (
	"encoding/json"
	"fmt"
	"strings"

	"tanuki/pkg/event"
)

// streamRecord is the envelope for one codex jsonl record.
type streamRecord struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
	Item *item `json:"item"`
}

// item is one work item inside a turn.
type item struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Command  string `json:"command"`
	Text     string `json:"text"`
	ExitCode *int   `json:"exit_code"`
	Changes  []struct {
		Path string `json:"path"`
		Kind string `json:"kind"`
	} `json:"changes"`
	Items []struct {
		Text      string `json:"text"`
		Completed bool   `json:"completed"`
	} `json:"items"`
}

// streamDecoder decodes codex jsonl into run events. It carries per-run state:
// the thread id from thread.started and the latest agent message, which
// becomes the answer at turn.completed.
type streamDecoder struct {
	thread     event.ThreadID
	resume     *event.ResumeToken
	lastAnswer string
}

// DecodeLine implements event.LineDecoder.
func (d *streamDecoder) DecodeLine(line []byte) ([]event.Event, error) {
	var rec streamRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, fmt.Errorf("decode codex record: %w", err)
	}

	switch rec.Type {
	case "thread.started":
		if rec.ThreadID != "" {
			d.resume = &event.ResumeToken{Engine: EngineID, Thread: d.thread, Raw: rec.ThreadID}
		}
		return []event.Event{event.Started{Resume: d.resume}}, nil

	case "item.started", "item.updated", "item.completed":
		return d.decodeItem(rec.Type, rec.Item), nil

	case "turn.completed":
		return []event.Event{event.Completed{Answer: d.lastAnswer, Resume: d.resume}}, nil

	case "turn.failed":
		answer := d.lastAnswer
		if rec.Error != nil && rec.Error.Message != "" {
			answer = rec.Error.Message
		}
		return []event.Event{event.Completed{Answer: answer, Resume: d.resume, Truncated: true}}, nil

	case "error":
		return []event.Event{event.Completed{Answer: rec.Message, Resume: d.resume, Truncated: true}}, nil

	default:
		// turn.started and token counts carry nothing to render.
		return nil, nil
	}
}

// decodeItem maps one item record to an action event.
func (d *streamDecoder) decodeItem(recType string, it *item) []event.Event {
	if it == nil {
		return nil
	}
	phase := event.PhaseStarted
	switch recType {
	case "item.updated":
		phase = event.PhaseUpdated
	case "item.completed":
		phase = event.PhaseCompleted
	}

	switch it.Type {
	case "command_execution":
		action := event.Action{ID: it.ID, Type: "command", Phase: phase, Detail: it.Command}
		if phase == event.PhaseCompleted && it.ExitCode != nil {
			ok := *it.ExitCode == 0
			action.OK = &ok
		}
		return []event.Event{action}

	case "agent_message":
		if phase == event.PhaseCompleted && it.Text != "" {
			d.lastAnswer = it.Text
		}
		return nil

	case "file_change":
		paths := make([]string, 0, len(it.Changes))
		for _, ch := range it.Changes {
			paths = append(paths, ch.Path)
		}
		return []event.Event{event.Action{
			ID:     it.ID,
			Type:   "file_change",
			Phase:  phase,
			Detail: joinPaths(paths),
		}}

	case "todo_list":
		done := 0
		for _, td := range it.Items {
			if td.Completed {
				done++
			}
		}
		return []event.Event{event.Action{
			ID:     it.ID,
			Type:   "todo",
			Phase:  phase,
			Detail: fmt.Sprintf("todos %d/%d", done, len(it.Items)),
		}}

	default:
		return nil
	}
}

// joinPaths renders file-change paths compactly.
func joinPaths(paths []string) string {
	return strings.Join(paths, ", ")
}
