package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tanuki/pkg/event"
	"tanuki/pkg/ralph"
	"tanuki/pkg/router"
	"tanuki/pkg/scheduler"
	"tanuki/pkg/transport"
)

const helpText = `Commands:
/help — this message
/status — running tasks per folder
/new — forget this topic's session and start fresh
/cancel — stop the running task and clear its queue
/ralph <task> [--max-iterations N] — loop the agent on a task until done
/engines — list available engines
/<engine> <prompt> — run one prompt on that engine, e.g. /codex fix the tests`

// handleCommand dispatches one slash command.
func (b *Bridge) handleCommand(ctx context.Context, u transport.Update, cmd *router.Command) {
	thread, _ := b.threadFor(u.TopicID)

	switch cmd.Name {
	case "help", "start":
		b.post(ctx, u.TopicID, helpText)

	case "status":
		b.post(ctx, u.TopicID, b.statusText(ctx))

	case "new":
		if err := b.store.ClearToken(ctx, thread); err != nil {
			b.post(ctx, u.TopicID, fmt.Sprintf("⚠️ %v", err))
			return
		}
		b.post(ctx, u.TopicID, "🆕 session cleared; the next message starts fresh")

	case "cancel":
		loop := b.loops.Cancel(thread)
		run := b.sched.Cancel(thread)
		switch {
		case loop:
			b.post(ctx, u.TopicID, "🛑 loop cancelled")
		case run:
			b.post(ctx, u.TopicID, "🛑 cancelling; queued messages dropped")
		default:
			b.post(ctx, u.TopicID, "nothing is running here")
		}

	case "ralph":
		b.startRalph(ctx, u.TopicID, thread, cmd.Args)

	case "engines":
		cfg := b.config()
		ids := b.registry.IDs()
		lines := make([]string, len(ids))
		for i, id := range ids {
			marker := ""
			if id == cfg.DefaultEngine {
				marker = " (default)"
			}
			lines[i] = "• " + id + marker
		}
		b.post(ctx, u.TopicID, "Engines:\n"+strings.Join(lines, "\n"))

	default:
		// A command named after a registered engine pins that engine for one
		// job: "/codex fix the tests".
		if runner, err := b.registry.Get(cmd.Name); err == nil {
			b.submitPinned(ctx, u, thread, runner.ID(), cmd.Args)
			return
		}
		b.post(ctx, u.TopicID, fmt.Sprintf("unknown command /%s; try /help", cmd.Name))
	}
}

// submitPinned runs one prompt on an explicitly chosen engine. A stored
// session is only resumed when it belongs to that engine.
func (b *Bridge) submitPinned(ctx context.Context, u transport.Update, thread event.ThreadID, engineID, prompt string) {
	if prompt == "" {
		b.post(ctx, u.TopicID, fmt.Sprintf("usage: /%s <prompt>", engineID))
		return
	}
	token, err := b.store.LastToken(ctx, thread)
	if err != nil {
		b.logger.Warn("bridge: token lookup failed", "thread", thread, "error", err)
	}
	if token != nil && token.Engine != "" && token.Engine != engineID {
		token = nil
	}
	if b.sched.Busy(thread) {
		b.post(ctx, u.TopicID, "⏳ queued behind the current task")
	}
	b.sched.Submit(scheduler.Job{
		Thread: thread,
		Prompt: prompt,
		Resume: token,
		Engine: engineID,
	})
}

// statusText summarizes running work across all threads.
func (b *Bridge) statusText(ctx context.Context) string {
	cfg := b.config()
	var lines []string
	for i := range cfg.Folders {
		f := &cfg.Folders[i]
		state := "idle"
		if b.loops.Active(f.ThreadID()) {
			state = "looping"
		} else if b.sched.Busy(f.ThreadID()) {
			state = "running"
		}
		lines = append(lines, fmt.Sprintf("• %s: %s", f.Name, state))
	}
	general := "idle"
	if b.sched.Busy(event.General) {
		general = "running"
	}
	lines = append(lines, "• general: "+general)

	if active, err := b.store.ActiveRuns(ctx); err == nil && len(active) > 0 {
		lines = append(lines, fmt.Sprintf("%d run(s) in flight", len(active)))
	}
	return strings.Join(lines, "\n")
}

// startRalph parses and launches an iterative loop on the topic's thread.
func (b *Bridge) startRalph(ctx context.Context, topicID int64, thread event.ThreadID, args string) {
	cfg := b.config()
	if !cfg.Ralph.Enabled {
		b.post(ctx, topicID, "loops are disabled in the config")
		return
	}
	req, err := ralph.ParseRequest(args, cfg.Ralph.MaxIterations)
	if err != nil {
		b.post(ctx, topicID, fmt.Sprintf("⚠️ %v", err))
		return
	}

	engineID := cfg.EngineFor(thread)
	loopCfg := ralph.Config{
		Thread:        thread,
		Engine:        engineID,
		Prompt:        req.Task,
		MaxIterations: req.MaxIterations,
		Submit:        b.sched.Submit,
		Logger:        b.logger,
		NewJob: func(iteration int, resume *event.ResumeToken) scheduler.Job {
			return scheduler.Job{
				Thread: thread,
				Engine: engineID,
				Prompt: ralph.IterationPrompt(req.Task, iteration),
				Resume: resume,
			}
		},
	}

	err = b.loops.Start(b.runCtx, loopCfg, func(res ralph.Result) {
		b.post(b.runCtx, topicID, loopOutcomeText(res))
	})
	if err != nil {
		var active *ralph.ActiveLoopError
		if errors.As(err, &active) {
			b.post(ctx, topicID, "a loop is already running here; /cancel it first")
			return
		}
		b.post(ctx, topicID, fmt.Sprintf("⚠️ %v", err))
		return
	}
	b.post(ctx, topicID, fmt.Sprintf("🔁 loop started (up to %d iterations)", req.MaxIterations))
}

func loopOutcomeText(res ralph.Result) string {
	switch res.Outcome {
	case ralph.OutcomeSatisfied:
		return fmt.Sprintf("🔁 loop done after %d iteration(s)", res.Iterations)
	case ralph.OutcomeExhausted:
		return fmt.Sprintf("🔁 loop stopped: %d iteration(s) used without completion", res.Iterations)
	case ralph.OutcomeCancelled:
		return fmt.Sprintf("🔁 loop cancelled after %d iteration(s)", res.Iterations)
	default:
		return fmt.Sprintf("🔁 loop failed on iteration %d: %v", res.Iterations, res.Err)
	}
}
