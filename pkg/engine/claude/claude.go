// Package claude implements the engine runner for the Claude Code CLI,
// decoding its stream-json output format.
package claude

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"tanuki/pkg/engine"
	"tanuki/pkg/event"
)

// EngineID is the registry identifier for this backend.
const EngineID = "claude"

// defaultBinary is the CLI binary name; overridable via the "binary" setting.
const defaultBinary = "claude"

// resumeRe matches the claude resume line, optionally backtick-wrapped.
var resumeRe = regexp.MustCompile("`?claude --resume ([A-Za-z0-9_-]+)`?")

// Runner runs `claude -p` with stream-json output.
type Runner struct {
	spawner engine.Spawner
	logger  *slog.Logger
}

// New creates the claude runner. A nil spawner uses os/exec.
func New(spawner engine.Spawner, logger *slog.Logger) *Runner {
	if spawner == nil {
		spawner = engine.ExecSpawner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{spawner: spawner, logger: logger}
}

// ID implements engine.Runner.
func (r *Runner) ID() string { return EngineID }

// Start implements engine.Runner.
func (r *Runner) Start(ctx context.Context, req engine.RunRequest) (*engine.Run, error) {
	args := []string{"-p", req.Prompt, "--output-format", "stream-json", "--verbose"}
	if req.Resume != nil {
		args = append(args, "--resume", req.Resume.Raw)
	}
	binary := defaultBinary
	if b, ok := req.Settings["binary"].(string); ok && b != "" {
		binary = b
	}
	if extra, ok := req.Settings["args"].([]any); ok {
		for _, a := range extra {
			if s, ok := a.(string); ok {
				args = append(args, s)
			}
		}
	}
	decoder := &streamDecoder{thread: req.Thread}
	return engine.StartStream(ctx, r.spawner, r.logger, EngineID, req.Dir, binary, args, "", decoder)
}

// FormatResume implements engine.Runner.
func (r *Runner) FormatResume(token event.ResumeToken) (string, error) {
	if token.Engine != EngineID {
		return "", fmt.Errorf("resume token is for engine %q, not %q", token.Engine, EngineID)
	}
	return fmt.Sprintf("`claude --resume %s`", token.Raw), nil
}

// ExtractResume implements engine.Runner. The last match wins so that a
// message quoting older tokens still resolves to the newest one.
func (r *Runner) ExtractResume(text string) *event.ResumeToken {
	matches := resumeRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	return &event.ResumeToken{Engine: EngineID, Raw: matches[len(matches)-1][1]}
}
