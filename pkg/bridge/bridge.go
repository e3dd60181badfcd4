// Package bridge wires the chat transport to the engine runtime: inbound
// messages are debounced, routed to a thread, scheduled, executed against an
// engine backend, and rendered back as progress plus a final reply.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tanuki/pkg/engine"
	"tanuki/pkg/event"
	"tanuki/pkg/presenter"
	"tanuki/pkg/ralph"
	"tanuki/pkg/router"
	"tanuki/pkg/runlog"
	"tanuki/pkg/scheduler"
	"tanuki/pkg/transport"
	"tanuki/pkg/workspace"
)

// Bridge is the long-running runtime connecting one chat group to the
// engine backends.
type Bridge struct {
	transport transport.Transport
	registry  *engine.Registry
	router    *router.Router
	store     *runlog.Store
	logger    *slog.Logger

	sched    *scheduler.Scheduler
	loops    *ralph.Manager
	debounce *debouncer

	cfgMu sync.RWMutex
	cfg   *workspace.Config

	runCtx context.Context
}

// New assembles a Bridge. The registry must already hold the engine backends
// and have its default set from the config.
func New(cfg *workspace.Config, tr transport.Transport, reg *engine.Registry, store *runlog.Store, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		transport: tr,
		registry:  reg,
		router:    router.New(reg),
		store:     store,
		logger:    logger,
		loops:     ralph.NewManager(),
		cfg:       cfg,
	}
	b.sched = scheduler.New(b.runJob, logger)
	b.debounce = newDebouncer(cfg.Debounce(), b.handleMessage)
	return b
}

// config returns the current config snapshot.
func (b *Bridge) config() *workspace.Config {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.cfg
}

// SetConfig swaps in a reloaded config. In-flight runs keep the folder
// mapping they started with; new messages see the new one.
func (b *Bridge) SetConfig(cfg *workspace.Config) {
	b.cfgMu.Lock()
	b.cfg = cfg
	b.cfgMu.Unlock()
	b.logger.Info("bridge: config updated", "folders", len(cfg.Folders))
}

// Run consumes the transport's update stream until ctx is cancelled, then
// waits for in-flight runs to finish.
func (b *Bridge) Run(ctx context.Context) error {
	b.runCtx = ctx
	b.postStartup(ctx)

	updates := b.transport.Updates(ctx)
	for u := range updates {
		if cmd := router.ParseCommand(u.Text); cmd != nil {
			// Pending fragments must land before the command acts on them.
			b.debounce.Flush(u.TopicID)
			b.handleCommand(ctx, u, cmd)
			continue
		}
		b.debounce.Add(u)
	}

	b.sched.Wait()
	return ctx.Err()
}

func (b *Bridge) postStartup(ctx context.Context) {
	cfg := b.config()
	var sb strings.Builder
	fmt.Fprintf(&sb, "🦝 tanuki online: engine %s", cfg.DefaultEngine)
	if len(cfg.Folders) > 0 {
		names := make([]string, len(cfg.Folders))
		for i, f := range cfg.Folders {
			names[i] = f.Name
		}
		fmt.Fprintf(&sb, ", folders %s", strings.Join(names, ", "))
	}
	if _, err := b.transport.Post(ctx, 0, sb.String()); err != nil {
		b.logger.Warn("bridge: startup post failed", "error", err)
	}
}

// threadFor maps a chat topic to its conversation thread and working
// directory. Unmapped topics and the general timeline share the reserved
// general thread, which runs without a project directory.
func (b *Bridge) threadFor(topicID int64) (event.ThreadID, string) {
	if f := b.config().FolderForTopic(topicID); f != nil {
		return f.ThreadID(), f.Path
	}
	return event.General, ""
}

// handleMessage is the debouncer's emit callback: one coalesced prompt.
func (b *Bridge) handleMessage(u transport.Update, text string) {
	ctx := b.runCtx
	thread, _ := b.threadFor(u.TopicID)
	cfg := b.config()

	res, err := b.router.Resolve(text, u.ReplyToText, thread)
	if err != nil {
		var cross *router.CrossThreadTokenError
		if errors.As(err, &cross) {
			b.post(ctx, u.TopicID, fmt.Sprintf(
				"⚠️ that token belongs to thread %s; use it from its own topic", cross.TokenThread))
			return
		}
		b.post(ctx, u.TopicID, fmt.Sprintf("⚠️ %v", err))
		return
	}

	token := res.Token
	if token == nil {
		// No explicit token: continue the thread's last session, if any.
		token, err = b.store.LastToken(ctx, thread)
		if err != nil {
			b.logger.Warn("bridge: token lookup failed", "thread", thread, "error", err)
		}
	}

	engineID := cfg.EngineFor(thread)
	if token != nil && token.Engine != "" {
		engineID = token.Engine
	}

	if b.sched.Busy(thread) {
		b.post(ctx, u.TopicID, "⏳ queued behind the current task")
	}
	b.sched.Submit(scheduler.Job{
		Thread: thread,
		Prompt: text,
		Resume: token,
		Engine: engineID,
	})
}

// runJob executes one scheduled job end to end. It is the scheduler's
// RunFunc, so it runs on the thread's own goroutine.
func (b *Bridge) runJob(ctx context.Context, job scheduler.Job) (scheduler.RunResult, error) {
	cfg := b.config()
	topicID := int64(0)
	dir := ""
	if f := cfg.FolderForThread(job.Thread); f != nil {
		topicID = f.TopicID
		dir = f.Path
	}

	runner, err := b.registry.Get(job.Engine)
	if err != nil {
		b.post(ctx, topicID, fmt.Sprintf("⚠️ %v", err))
		return scheduler.RunResult{}, err
	}

	runID, err := b.store.RecordStart(ctx, job.Thread, runner.ID(), job.Prompt)
	if err != nil {
		b.logger.Warn("bridge: run not recorded", "error", err)
	}

	run, err := runner.Start(ctx, engine.RunRequest{
		Prompt:   job.Prompt,
		Dir:      dir,
		Thread:   job.Thread,
		Resume:   job.Resume,
		Settings: cfg.EngineSettings(runner.ID()),
	})
	if err != nil {
		b.post(ctx, topicID, fmt.Sprintf("⚠️ %s failed to start: %v", runner.ID(), err))
		b.finishRun(runID, "", nil, true, err)
		return scheduler.RunResult{}, err
	}

	pres := presenter.New(b.sinkFor(topicID), b.logger)
	pres.OnToken = func(token event.ResumeToken) {
		// Persist early so a reply to the progress message already resolves.
		if err := b.store.SaveToken(b.runCtx, token); err != nil {
			b.logger.Warn("bridge: token not saved", "error", err)
		}
	}

	formatResume := func(token event.ResumeToken) string {
		line, ferr := runner.FormatResume(token)
		if ferr != nil {
			return ""
		}
		return line
	}
	presented, perr := pres.Present(ctx, runner.ID(), formatResume, run.Events)

	waitErr := run.Wait()
	if waitErr != nil && ctx.Err() == nil {
		b.post(b.runCtx, topicID, fmt.Sprintf("⚠️ %s exited abnormally: %v", runner.ID(), waitErr))
	}

	b.finishRun(runID, presented.Answer, presented.Resume, presented.Truncated, waitErr)
	if perr != nil {
		b.logger.Warn("bridge: render incomplete", "thread", job.Thread, "error", perr)
	}
	return scheduler.RunResult{
		Answer:    presented.Answer,
		Resume:    presented.Resume,
		Truncated: presented.Truncated,
	}, waitErr
}

func (b *Bridge) finishRun(runID int64, answer string, resume *event.ResumeToken, truncated bool, runErr error) {
	if runID == 0 {
		return
	}
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	if err := b.store.RecordFinish(b.runCtx, runID, answer, resume, truncated, errText); err != nil {
		b.logger.Warn("bridge: run finish not recorded", "error", err)
	}
}

// post sends a plain notice, logging failures.
func (b *Bridge) post(ctx context.Context, topicID int64, text string) {
	if _, err := b.transport.Post(ctx, topicID, text); err != nil {
		b.logger.Warn("bridge: post failed", "topic", topicID, "error", err)
	}
}

// sinkFor binds the transport to one topic for the presenter.
func (b *Bridge) sinkFor(topicID int64) presenter.Sink {
	return topicSink{t: b.transport, topicID: topicID}
}

type topicSink struct {
	t       transport.Transport
	topicID int64
}

func (s topicSink) Post(ctx context.Context, text string) (transport.MessageRef, error) {
	return s.t.Post(ctx, s.topicID, text)
}

func (s topicSink) Edit(ctx context.Context, ref transport.MessageRef, text string) error {
	return s.t.Edit(ctx, ref, text)
}
