package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"tanuki/pkg/event"
)

// Process abstracts a running engine subprocess.
type Process interface {
	Stdout() io.Reader
	Wait() error
}

// Spawner abstracts engine CLI invocation so runners can be tested without
// real binaries.
type Spawner interface {
	Spawn(ctx context.Context, dir, name string, args []string, stdin string) (Process, error)
}

// ExecSpawner is the production Spawner backed by os/exec.
type ExecSpawner struct{}

// Spawn starts the named binary with args in dir. A non-empty stdin is fed to
// the process.
func (ExecSpawner) Spawn(ctx context.Context, dir, name string, args []string, stdin string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	return &cmdProcess{cmd: cmd, stdout: stdout}, nil
}

// cmdProcess wraps *exec.Cmd to implement Process.
type cmdProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
}

func (p *cmdProcess) Stdout() io.Reader { return p.stdout }

func (p *cmdProcess) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("process wait: %w", err)
	}
	return nil
}

// StartStream spawns an engine process and pumps its line output through a
// Translator, producing a Run. Shared by the claude and codex runners.
func StartStream(ctx context.Context, spawner Spawner, logger *slog.Logger, engineID, dir, name string, args []string, stdin string, decoder event.LineDecoder) (*Run, error) {
	proc, err := spawner.Spawn(ctx, dir, name, args, stdin)
	if err != nil {
		return nil, &EngineProcessError{Engine: engineID, Err: err}
	}

	events := make(chan event.Event, 64)
	translator := event.NewTranslator(decoder, logger)
	go translator.Translate(ctx, proc.Stdout(), events)

	wait := func() error {
		if err := proc.Wait(); err != nil {
			return &EngineProcessError{Engine: engineID, Err: err}
		}
		return nil
	}
	return NewRun(events, wait), nil
}
