// Package command implements engine runners declared in configuration rather
// than code: any CLI that accepts a prompt and prints an answer can be wired
// in as an engine via an engines.yaml entry. Command engines run whole-shot
// (no streaming): one Started, one Completed.
package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"tanuki/pkg/engine"
	"tanuki/pkg/event"
)

// Definition declares one command-backed engine.
type Definition struct {
	ID     string   `yaml:"id"`
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args"` // "{prompt}" and "{token}" placeholders are substituted

	// ResumeArgs replaces Args when resuming a session. Empty means the
	// engine does not support resumption.
	ResumeArgs []string `yaml:"resume_args"`

	// ResumeFormat renders the resume line, e.g. "mytool continue %s".
	ResumeFormat string `yaml:"resume_format"`

	// ResumePattern is a regexp with one capture group that extracts the
	// session token from the command's output (and from message text).
	// Defaults to a pattern derived from ResumeFormat.
	ResumePattern string `yaml:"resume_pattern"`
}

// Runner adapts one Definition to engine.Runner.
type Runner struct {
	def      Definition
	resumeRe *regexp.Regexp
	spawner  engine.Spawner
	logger   *slog.Logger
}

// New validates def and creates its runner. A nil spawner uses os/exec.
func New(def Definition, spawner engine.Spawner, logger *slog.Logger) (*Runner, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("command engine: missing id")
	}
	if def.Binary == "" {
		return nil, fmt.Errorf("command engine %s: missing binary", def.ID)
	}
	if spawner == nil {
		spawner = engine.ExecSpawner{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{def: def, spawner: spawner, logger: logger}
	pattern := def.ResumePattern
	if pattern == "" && def.ResumeFormat != "" {
		pattern = "`?" + strings.Replace(regexp.QuoteMeta(def.ResumeFormat), "%s", `([A-Za-z0-9_-]+)`, 1) + "`?"
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("command engine %s: resume pattern: %w", def.ID, err)
		}
		r.resumeRe = re
	}
	return r, nil
}

// ID implements engine.Runner.
func (r *Runner) ID() string { return r.def.ID }

// Start implements engine.Runner.
func (r *Runner) Start(ctx context.Context, req engine.RunRequest) (*engine.Run, error) {
	argv := r.def.Args
	if req.Resume != nil && len(r.def.ResumeArgs) > 0 {
		argv = r.def.ResumeArgs
	}

	args := make([]string, 0, len(argv))
	promptPlaced := false
	token := ""
	if req.Resume != nil {
		token = req.Resume.Raw
	}
	for _, a := range argv {
		if strings.Contains(a, "{prompt}") {
			promptPlaced = true
		}
		a = strings.ReplaceAll(a, "{prompt}", req.Prompt)
		a = strings.ReplaceAll(a, "{token}", token)
		args = append(args, a)
	}
	stdin := ""
	if !promptPlaced {
		stdin = req.Prompt
	}

	proc, err := r.spawner.Spawn(ctx, req.Dir, r.def.Binary, args, stdin)
	if err != nil {
		return nil, &engine.EngineProcessError{Engine: r.def.ID, Err: err}
	}

	events := make(chan event.Event, 2)
	go func() {
		defer close(events)
		events <- event.Started{Resume: req.Resume}

		data, readErr := io.ReadAll(proc.Stdout())
		answer := strings.TrimSpace(string(data))
		resume := req.Resume
		if found := r.extractFromOutput(answer, req.Thread); found != nil {
			resume = found
		}
		events <- event.Completed{Answer: answer, Resume: resume, Truncated: readErr != nil}
	}()

	wait := func() error {
		if err := proc.Wait(); err != nil {
			return &engine.EngineProcessError{Engine: r.def.ID, Err: err}
		}
		return nil
	}
	return engine.NewRun(events, wait), nil
}

func (r *Runner) extractFromOutput(output string, thread event.ThreadID) *event.ResumeToken {
	if r.resumeRe == nil {
		return nil
	}
	matches := r.resumeRe.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return nil
	}
	return &event.ResumeToken{Engine: r.def.ID, Thread: thread, Raw: matches[len(matches)-1][1]}
}

// FormatResume implements engine.Runner.
func (r *Runner) FormatResume(token event.ResumeToken) (string, error) {
	if token.Engine != r.def.ID {
		return "", fmt.Errorf("resume token is for engine %q, not %q", token.Engine, r.def.ID)
	}
	if r.def.ResumeFormat == "" {
		return "", fmt.Errorf("engine %s does not support resumption", r.def.ID)
	}
	return "`" + fmt.Sprintf(r.def.ResumeFormat, token.Raw) + "`", nil
}

// ExtractResume implements engine.Runner.
func (r *Runner) ExtractResume(text string) *event.ResumeToken {
	token := r.extractFromOutput(text, "")
	if token == nil {
		return nil
	}
	token.Thread = ""
	return token
}
