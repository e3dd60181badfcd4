package runlog

import (
	"context"
	"path/filepath"
	"testing"

	"tanuki/pkg/event"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runlog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.RecordStart(ctx, "t42", "claude", "fix the tests")
	if err != nil {
		t.Fatalf("RecordStart: %v", err)
	}

	active, err := s.ActiveRuns(ctx)
	if err != nil {
		t.Fatalf("ActiveRuns: %v", err)
	}
	if len(active) != 1 || active[0].ID != id || active[0].Engine != "claude" {
		t.Fatalf("ActiveRuns = %+v", active)
	}

	token := &event.ResumeToken{Engine: "claude", Thread: "t42", Raw: "abc123"}
	if err := s.RecordFinish(ctx, id, "all green", token, false, ""); err != nil {
		t.Fatalf("RecordFinish: %v", err)
	}

	runs, err := s.RecentRuns(ctx, "t42", 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("RecentRuns returned %d rows", len(runs))
	}
	r := runs[0]
	if r.Status != StatusDone || r.Answer != "all green" || r.Resume != "abc123" {
		t.Errorf("run = %+v", r)
	}
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		t.Errorf("timestamps not recorded: %+v", r)
	}

	active, _ = s.ActiveRuns(ctx)
	if len(active) != 0 {
		t.Errorf("finished run still active: %+v", active)
	}
}

func TestRecordFinishStatuses(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	truncID, _ := s.RecordStart(ctx, "t1", "codex", "p")
	if err := s.RecordFinish(ctx, truncID, "partial", nil, true, ""); err != nil {
		t.Fatalf("RecordFinish truncated: %v", err)
	}
	failID, _ := s.RecordStart(ctx, "t1", "codex", "p")
	if err := s.RecordFinish(ctx, failID, "", nil, true, "exit status 1"); err != nil {
		t.Fatalf("RecordFinish failed: %v", err)
	}

	runs, err := s.RecentRuns(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs", len(runs))
	}
	// Newest first.
	if runs[0].Status != StatusFailed || runs[0].Answer != "exit status 1" {
		t.Errorf("failed run = %+v", runs[0])
	}
	if runs[1].Status != StatusTruncated || !runs[1].Truncated {
		t.Errorf("truncated run = %+v", runs[1])
	}
}

func TestTokenUpsert(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	got, err := s.LastToken(ctx, "t42")
	if err != nil {
		t.Fatalf("LastToken empty: %v", err)
	}
	if got != nil {
		t.Fatalf("LastToken on fresh db = %+v", got)
	}

	if err := s.SaveToken(ctx, event.ResumeToken{Engine: "claude", Thread: "t42", Raw: "first"}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if err := s.SaveToken(ctx, event.ResumeToken{Engine: "codex", Thread: "t42", Raw: "second"}); err != nil {
		t.Fatalf("SaveToken upsert: %v", err)
	}

	got, err = s.LastToken(ctx, "t42")
	if err != nil {
		t.Fatalf("LastToken: %v", err)
	}
	if got == nil || got.Engine != "codex" || got.Raw != "second" {
		t.Errorf("LastToken = %+v, want latest upsert", got)
	}

	if err := s.ClearToken(ctx, "t42"); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	got, err = s.LastToken(ctx, "t42")
	if err != nil {
		t.Fatalf("LastToken after clear: %v", err)
	}
	if got != nil {
		t.Errorf("LastToken after clear = %+v, want nil", got)
	}
}

func TestTokenGeneralAlias(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.SaveToken(ctx, event.ResumeToken{Engine: "claude", Raw: "g1"}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	got, err := s.LastToken(ctx, "")
	if err != nil {
		t.Fatalf("LastToken: %v", err)
	}
	if got == nil || got.Thread != event.General || got.Raw != "g1" {
		t.Errorf("LastToken(\"\") = %+v, want general thread", got)
	}
}

func TestRecentRunsAcrossThreads(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	a, _ := s.RecordStart(ctx, "ta", "claude", "one")
	b, _ := s.RecordStart(ctx, "tb", "claude", "two")
	_ = s.RecordFinish(ctx, a, "x", nil, false, "")
	_ = s.RecordFinish(ctx, b, "y", nil, false, "")

	all, err := s.RecentRuns(ctx, "", 10)
	if err != nil {
		t.Fatalf("RecentRuns all: %v", err)
	}
	if len(all) != 2 || all[0].Thread != "tb" {
		t.Errorf("all runs = %+v", all)
	}

	only, err := s.RecentRuns(ctx, "ta", 10)
	if err != nil {
		t.Fatalf("RecentRuns ta: %v", err)
	}
	if len(only) != 1 || only[0].Prompt != "one" {
		t.Errorf("ta runs = %+v", only)
	}
}
