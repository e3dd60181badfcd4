package claude

import (
	"encoding/json"
	"fmt"

	"tanuki/pkg/event"
)

// rawMessage is the envelope for initial type discrimination.
type rawMessage struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
}

// assistantMessage carries content blocks from the model.
type assistantMessage struct {
	Message struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
}

// contentBlock is one element of an assistant or user message. Tool calls and
// tool results both travel as blocks.
type contentBlock struct {
	Type      string          `json:"type"`
	Name      string          `json:"name,omitempty"`
	ID        string          `json:"id,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// resultMessage is the terminal stream-json record.
type resultMessage struct {
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
	IsError   bool   `json:"is_error"`
}

// streamDecoder decodes claude stream-json lines into run events.
type streamDecoder struct {
	thread event.ThreadID
}

// DecodeLine implements event.LineDecoder.
func (d *streamDecoder) DecodeLine(line []byte) ([]event.Event, error) {
	var raw rawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("decode stream-json envelope: %w", err)
	}

	switch raw.Type {
	case "system":
		if raw.Subtype != "init" {
			return nil, nil
		}
		return []event.Event{event.Started{Resume: d.token(raw.SessionID)}}, nil

	case "assistant":
		var msg assistantMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("decode assistant message: %w", err)
		}
		var events []event.Event
		for _, block := range msg.Message.Content {
			if block.Type != "tool_use" {
				continue
			}
			events = append(events, event.Action{
				ID:     block.ID,
				Type:   "tool",
				Phase:  event.PhaseStarted,
				Detail: toolDetail(block),
			})
		}
		return events, nil

	case "user":
		// Tool results echo back as user messages.
		var msg assistantMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("decode tool result: %w", err)
		}
		var events []event.Event
		for _, block := range msg.Message.Content {
			if block.Type != "tool_result" || block.ToolUseID == "" {
				continue
			}
			ok := !block.IsError
			events = append(events, event.Action{
				ID:    block.ToolUseID,
				Type:  "tool",
				Phase: event.PhaseCompleted,
				OK:    &ok,
			})
		}
		return events, nil

	case "result":
		var msg resultMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("decode result message: %w", err)
		}
		return []event.Event{event.Completed{
			Answer:    msg.Result,
			Resume:    d.token(msg.SessionID),
			Truncated: msg.IsError,
		}}, nil

	default:
		// stream_event deltas and control traffic carry nothing we render.
		return nil, nil
	}
}

func (d *streamDecoder) token(sessionID string) *event.ResumeToken {
	if sessionID == "" {
		return nil
	}
	return &event.ResumeToken{Engine: EngineID, Thread: d.thread, Raw: sessionID}
}

// toolDetail summarizes a tool_use block for progress display.
func toolDetail(block contentBlock) string {
	var input map[string]any
	if err := json.Unmarshal(block.Input, &input); err == nil {
		for _, key := range []string{"file_path", "path", "command", "pattern", "url"} {
			if v, ok := input[key].(string); ok && v != "" {
				return fmt.Sprintf("%s %s", block.Name, v)
			}
		}
	}
	return block.Name
}
