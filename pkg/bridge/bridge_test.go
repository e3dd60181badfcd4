package bridge

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"tanuki/pkg/engine"
	"tanuki/pkg/event"
	"tanuki/pkg/runlog"
	"tanuki/pkg/transport"
	"tanuki/pkg/workspace"
)

type postCall struct {
	topic int64
	text  string
	id    int64
}

type editCall struct {
	ref  transport.MessageRef
	text string
}

// fakeTransport feeds updates from a channel and records posts and edits.
type fakeTransport struct {
	updates chan transport.Update

	mu     sync.Mutex
	posts  []postCall
	edits  []editCall
	nextID int64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{updates: make(chan transport.Update, 16)}
}

func (f *fakeTransport) Updates(ctx context.Context) <-chan transport.Update {
	out := make(chan transport.Update)
	go func() {
		defer close(out)
		for {
			select {
			case u, ok := <-f.updates:
				if !ok {
					return
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (f *fakeTransport) Post(_ context.Context, topicID int64, text string) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.posts = append(f.posts, postCall{topic: topicID, text: text, id: f.nextID})
	return transport.MessageRef{ChatID: -1, MessageID: f.nextID}, nil
}

func (f *fakeTransport) Edit(_ context.Context, ref transport.MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editCall{ref: ref, text: text})
	return nil
}

// findText returns the first post or edit containing substr.
func (f *fakeTransport) findText(substr string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.posts {
		if strings.Contains(p.text, substr) {
			return p.text, true
		}
	}
	for _, e := range f.edits {
		if strings.Contains(e.text, substr) {
			return e.text, true
		}
	}
	return "", false
}

func (f *fakeTransport) waitText(t *testing.T, substr string) string {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		if text, ok := f.findText(substr); ok {
			return text
		}
		select {
		case <-deadline:
			t.Fatalf("no post or edit containing %q", substr)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// fakeRunner answers each invocation from a script keyed by invocation
// number, emitting a Started with a fresh session token and a Completed.
type fakeRunner struct {
	id      string
	answers map[int]string

	mu   sync.Mutex
	reqs []engine.RunRequest
}

func (r *fakeRunner) ID() string { return r.id }

func (r *fakeRunner) Start(_ context.Context, req engine.RunRequest) (*engine.Run, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	n := len(r.reqs)
	r.mu.Unlock()

	answer := r.answers[n]
	if answer == "" {
		answer = fmt.Sprintf("answer %d", n)
	}
	token := &event.ResumeToken{Engine: r.id, Thread: req.Thread, Raw: fmt.Sprintf("sess_%d", n)}
	events := make(chan event.Event, 2)
	events <- event.Started{Resume: token}
	events <- event.Completed{Answer: answer, Resume: token}
	close(events)
	return engine.NewRun(events, func() error { return nil }), nil
}

func (r *fakeRunner) FormatResume(token event.ResumeToken) (string, error) {
	return fmt.Sprintf("`%s --resume %s`", r.id, token.Raw), nil
}

var fakeResumeRe = regexp.MustCompile("`?fake --resume ([A-Za-z0-9_]+)`?")

func (r *fakeRunner) ExtractResume(text string) *event.ResumeToken {
	m := fakeResumeRe.FindAllStringSubmatch(text, -1)
	if len(m) == 0 {
		return nil
	}
	return &event.ResumeToken{Engine: r.id, Raw: m[len(m)-1][1]}
}

func (r *fakeRunner) requests() []engine.RunRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.RunRequest, len(r.reqs))
	copy(out, r.reqs)
	return out
}

type testBridge struct {
	bridge *Bridge
	ft     *fakeTransport
	runner *fakeRunner
	alt    *fakeRunner
	cfg    *workspace.Config
	store  *runlog.Store
	dir    string
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	dir := t.TempDir()

	cfg := workspace.Default()
	cfg.DefaultEngine = "fake"
	cfg.DebounceMs = 100
	if _, err := cfg.AddFolder("api", dir, 17); err != nil {
		t.Fatalf("AddFolder: %v", err)
	}

	runner := &fakeRunner{id: "fake", answers: make(map[int]string)}
	alt := &fakeRunner{id: "alt", answers: make(map[int]string)}
	reg := engine.NewRegistry()
	reg.Register(runner)
	reg.Register(alt)

	store, err := runlog.Open(filepath.Join(dir, "runlog.db"))
	if err != nil {
		t.Fatalf("runlog.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ft := newFakeTransport()
	b := New(cfg, ft, reg, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("bridge did not shut down")
		}
	})

	return &testBridge{bridge: b, ft: ft, runner: runner, alt: alt, cfg: cfg, store: store, dir: dir}
}

func (tb *testBridge) send(u transport.Update) { tb.ft.updates <- u }

func TestMessageRunsAndRendersToken(t *testing.T) {
	tb := newTestBridge(t)
	tb.ft.waitText(t, "tanuki online")

	tb.send(transport.Update{TopicID: 17, MessageID: 1, Text: "fix the tests"})

	final := tb.ft.waitText(t, "answer 1")
	if !strings.Contains(final, "✅ done") {
		t.Errorf("final render missing status: %q", final)
	}
	if !strings.Contains(final, "`fake --resume sess_1`") {
		t.Errorf("final render missing resume line: %q", final)
	}
	thread := tb.cfg.FolderByName("api").ThreadID()
	if !strings.Contains(final, fmt.Sprintf("`thread:%s:sess_1`", thread)) {
		t.Errorf("final render missing scoped token: %q", final)
	}

	reqs := tb.runner.requests()
	if len(reqs) != 1 {
		t.Fatalf("runner invoked %d times", len(reqs))
	}
	if reqs[0].Dir != tb.dir || reqs[0].Thread != thread {
		t.Errorf("request = %+v", reqs[0])
	}
	if reqs[0].Resume != nil {
		t.Errorf("first run should start fresh, got resume %+v", reqs[0].Resume)
	}
}

func TestSecondMessageResumesStoredSession(t *testing.T) {
	tb := newTestBridge(t)

	tb.send(transport.Update{TopicID: 17, MessageID: 1, Text: "start here"})
	tb.ft.waitText(t, "answer 1")

	tb.send(transport.Update{TopicID: 17, MessageID: 2, Text: "keep going"})
	tb.ft.waitText(t, "answer 2")

	reqs := tb.runner.requests()
	if len(reqs) != 2 {
		t.Fatalf("runner invoked %d times", len(reqs))
	}
	if reqs[1].Resume == nil || reqs[1].Resume.Raw != "sess_1" {
		t.Errorf("second run resume = %+v, want sess_1", reqs[1].Resume)
	}
}

func TestNewCommandClearsSession(t *testing.T) {
	tb := newTestBridge(t)

	tb.send(transport.Update{TopicID: 17, MessageID: 1, Text: "start"})
	tb.ft.waitText(t, "answer 1")

	tb.send(transport.Update{TopicID: 17, MessageID: 2, Text: "/new"})
	tb.ft.waitText(t, "session cleared")

	tb.send(transport.Update{TopicID: 17, MessageID: 3, Text: "again"})
	tb.ft.waitText(t, "answer 2")

	reqs := tb.runner.requests()
	if reqs[1].Resume != nil {
		t.Errorf("run after /new carried resume %+v", reqs[1].Resume)
	}
}

func TestReplyTokenOverridesStoredSession(t *testing.T) {
	tb := newTestBridge(t)

	tb.send(transport.Update{TopicID: 17, MessageID: 1, Text: "start"})
	tb.ft.waitText(t, "answer 1")

	// Reply to an old message carrying a different session's resume line.
	tb.send(transport.Update{
		TopicID:     17,
		MessageID:   2,
		Text:        "pick this one up",
		ReplyToID:   1,
		ReplyToText: "use `fake --resume old_77` later",
	})
	tb.ft.waitText(t, "answer 2")

	reqs := tb.runner.requests()
	if reqs[1].Resume == nil || reqs[1].Resume.Raw != "old_77" {
		t.Errorf("second run resume = %+v, want old_77 from reply", reqs[1].Resume)
	}
}

func TestCrossThreadTokenRejected(t *testing.T) {
	tb := newTestBridge(t)
	tb.ft.waitText(t, "tanuki online")

	tb.send(transport.Update{TopicID: 17, MessageID: 1, Text: "continue `thread:other:abc123`"})
	warn := tb.ft.waitText(t, "belongs to thread other")
	if !strings.Contains(warn, "⚠️") {
		t.Errorf("warning text = %q", warn)
	}
	if len(tb.runner.requests()) != 0 {
		t.Error("cross-thread token still started a run")
	}
}

func TestDebounceMergesFragments(t *testing.T) {
	tb := newTestBridge(t)
	tb.ft.waitText(t, "tanuki online")

	tb.send(transport.Update{TopicID: 17, MessageID: 1, Text: "first part"})
	tb.send(transport.Update{TopicID: 17, MessageID: 2, Text: "second part"})

	tb.ft.waitText(t, "answer 1")
	reqs := tb.runner.requests()
	if len(reqs) != 1 {
		t.Fatalf("fragments started %d runs, want 1", len(reqs))
	}
	if reqs[0].Prompt != "first part\nsecond part" {
		t.Errorf("merged prompt = %q", reqs[0].Prompt)
	}
}

func TestCancelWithNothingRunning(t *testing.T) {
	tb := newTestBridge(t)
	tb.send(transport.Update{TopicID: 17, MessageID: 1, Text: "/cancel"})
	tb.ft.waitText(t, "nothing is running here")
}

func TestUnknownCommand(t *testing.T) {
	tb := newTestBridge(t)
	tb.send(transport.Update{TopicID: 17, MessageID: 1, Text: "/frobnicate"})
	tb.ft.waitText(t, "unknown command /frobnicate")
}

func TestHelpAndEngines(t *testing.T) {
	tb := newTestBridge(t)
	tb.send(transport.Update{TopicID: 0, MessageID: 1, Text: "/help"})
	tb.ft.waitText(t, "/ralph <task>")

	tb.send(transport.Update{TopicID: 0, MessageID: 2, Text: "/engines"})
	list := tb.ft.waitText(t, "• fake")
	if !strings.Contains(list, "(default)") {
		t.Errorf("engine list missing default marker: %q", list)
	}
}

func TestEngineCommandPinsEngine(t *testing.T) {
	tb := newTestBridge(t)
	tb.ft.waitText(t, "tanuki online")

	// Establish a stored session on the default engine first.
	tb.send(transport.Update{TopicID: 17, MessageID: 1, Text: "set things up"})
	tb.ft.waitText(t, "answer 1")

	tb.alt.answers[1] = "pinned answer"
	tb.send(transport.Update{TopicID: 17, MessageID: 2, Text: "/alt review the diff"})
	tb.ft.waitText(t, "pinned answer")

	reqs := tb.alt.requests()
	if len(reqs) != 1 {
		t.Fatalf("alt runs = %d, want 1", len(reqs))
	}
	if reqs[0].Prompt != "review the diff" {
		t.Errorf("prompt = %q, want command stripped", reqs[0].Prompt)
	}
	if reqs[0].Resume != nil {
		t.Errorf("resume = %+v, want fresh run when the stored session is another engine's", reqs[0].Resume)
	}
	if got := len(tb.runner.requests()); got != 1 {
		t.Errorf("default engine runs = %d, want 1", got)
	}
}

func TestEngineCommandWithoutPrompt(t *testing.T) {
	tb := newTestBridge(t)
	tb.ft.waitText(t, "tanuki online")

	tb.send(transport.Update{TopicID: 17, MessageID: 1, Text: "/alt"})
	tb.ft.waitText(t, "usage: /alt <prompt>")
	if len(tb.alt.requests()) != 0 {
		t.Error("bare engine command started a run")
	}
}

func TestRalphLoopRunsToSatisfaction(t *testing.T) {
	tb := newTestBridge(t)
	tb.runner.answers[1] = "still broken"
	tb.runner.answers[2] = "fixed it, RALPH_DONE"

	tb.send(transport.Update{TopicID: 17, MessageID: 1, Text: "/ralph make the build green --max-iterations 4"})
	tb.ft.waitText(t, "loop started (up to 4 iterations)")
	tb.ft.waitText(t, "loop done after 2 iteration(s)")

	reqs := tb.runner.requests()
	if len(reqs) != 2 {
		t.Fatalf("loop ran %d iterations, want 2", len(reqs))
	}
	if !strings.Contains(reqs[0].Prompt, "make the build green") {
		t.Errorf("first iteration prompt = %q", reqs[0].Prompt)
	}
	if reqs[1].Resume == nil || reqs[1].Resume.Raw != "sess_1" {
		t.Errorf("second iteration resume = %+v", reqs[1].Resume)
	}
}

func TestGeneralTopicRunsOnGeneralThread(t *testing.T) {
	tb := newTestBridge(t)
	tb.send(transport.Update{TopicID: 0, MessageID: 1, Text: "what is in this repo"})
	tb.ft.waitText(t, "answer 1")

	reqs := tb.runner.requests()
	if reqs[0].Thread != event.General {
		t.Errorf("thread = %s, want general", reqs[0].Thread)
	}
	if reqs[0].Dir != "" {
		t.Errorf("general run dir = %q, want empty", reqs[0].Dir)
	}
}

func TestConfigReloadChangesMapping(t *testing.T) {
	tb := newTestBridge(t)
	tb.ft.waitText(t, "tanuki online")

	next := workspace.Default()
	next.DefaultEngine = "fake"
	next.DebounceMs = 100
	dir2 := t.TempDir()
	if _, err := next.AddFolder("web", dir2, 18); err != nil {
		t.Fatalf("AddFolder: %v", err)
	}
	tb.bridge.SetConfig(next)

	tb.send(transport.Update{TopicID: 18, MessageID: 1, Text: "hello new folder"})
	tb.ft.waitText(t, "answer 1")

	reqs := tb.runner.requests()
	if reqs[0].Dir != dir2 {
		t.Errorf("run dir = %q, want reloaded folder %q", reqs[0].Dir, dir2)
	}
}
