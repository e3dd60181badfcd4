// Package codex implements the engine runner for the Codex CLI, decoding its
// `codex exec --json` event stream.
package codex

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"tanuki/pkg/engine"
	"tanuki/pkg/event"
)

// EngineID is the registry identifier for this backend.
const EngineID = "codex"

const defaultBinary = "codex"

// resumeRe matches the codex resume line, optionally backtick-wrapped.
var resumeRe = regexp.MustCompile("`?codex resume ([A-Za-z0-9_-]+)`?")

// Runner runs `codex exec --json` with the prompt on stdin.
type Runner struct {
	spawner engine.Spawner
	logger  *slog.Logger
}

// New creates the codex runner. A nil spawner uses os/exec.
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

// Start implements engine.Runner. The prompt travels on stdin ("-" arg) so
// multi-line prompts survive shell-free exec.
func (r *Runner) Start(ctx context.Context, req engine.RunRequest) (*engine.Run, error) {
	args := []string{"exec", "--json"}
	if req.Resume != nil {
		args = append(args, "resume", req.Resume.Raw)
	}
	args = append(args, "-")

	binary := defaultBinary
	if b, ok := req.Settings["binary"].(string); ok && b != "" {
		binary = b
	}
	decoder := &streamDecoder{thread: req.Thread}
	return engine.StartStream(ctx, r.spawner, r.logger, EngineID, req.Dir, binary, args, req.Prompt, decoder)
}

// FormatResume implements engine.Runner.
func (r *Runner) FormatResume(token event.ResumeToken) (string, error) {
	if token.Engine != EngineID {
		return "", fmt.Errorf("resume token is for engine %q, not %q", token.Engine, EngineID)
	}
	return fmt.Sprintf("`codex resume %s`", token.Raw), nil
}

// ExtractResume implements engine.Runner.
func (r *Runner) ExtractResume(text string) *event.ResumeToken {
	matches := resumeRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	return &event.ResumeToken{Engine: EngineID, Raw: matches[len(matches)-1][1]}
}
