package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCLI executes the root command with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func testPaths(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "tanuki.toml"), filepath.Join(dir, "runlog.db")
}

func TestInitWritesConfig(t *testing.T) {
	configPath, _ := testPaths(t)

	out, err := runCLI(t, "init", "--config", configPath)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "wrote "+configPath) {
		t.Errorf("init output = %q", out)
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("config not written: %v", err)
	}

	if _, err := runCLI(t, "init", "--config", configPath); err == nil {
		t.Error("second init should refuse to overwrite")
	}
}

func TestFoldersAddListRemove(t *testing.T) {
	configPath, _ := testPaths(t)
	projDir := t.TempDir()

	if _, err := runCLI(t, "init", "--config", configPath); err != nil {
		t.Fatalf("init: %v", err)
	}
	out, err := runCLI(t, "folders", "add", "api", projDir, "--topic", "17", "--config", configPath)
	if err != nil {
		t.Fatalf("folders add: %v", err)
	}
	if !strings.Contains(out, "added api") {
		t.Errorf("add output = %q", out)
	}

	out, err = runCLI(t, "folders", "list", "--config", configPath)
	if err != nil {
		t.Fatalf("folders list: %v", err)
	}
	if !strings.Contains(out, "api") || !strings.Contains(out, "topic=17") {
		t.Errorf("list output = %q", out)
	}

	if _, err := runCLI(t, "folders", "remove", "api", "--config", configPath); err != nil {
		t.Fatalf("folders remove: %v", err)
	}
	out, _ = runCLI(t, "folders", "list", "--config", configPath)
	if !strings.Contains(out, "no folders configured") {
		t.Errorf("list after remove = %q", out)
	}

	if _, err := runCLI(t, "folders", "remove", "ghost", "--config", configPath); err == nil {
		t.Error("removing a missing folder should fail")
	}
}

func TestEnginesListsBuiltins(t *testing.T) {
	configPath, _ := testPaths(t)
	if _, err := runCLI(t, "init", "--config", configPath); err != nil {
		t.Fatalf("init: %v", err)
	}

	out, err := runCLI(t, "engines", "--config", configPath)
	if err != nil {
		t.Fatalf("engines: %v", err)
	}
	if !strings.Contains(out, "claude (default)") {
		t.Errorf("engines output missing default claude: %q", out)
	}
	if !strings.Contains(out, "codex") {
		t.Errorf("engines output missing codex: %q", out)
	}
}

func TestEnginesIncludesCommandDefinitions(t *testing.T) {
	configPath, _ := testPaths(t)
	if _, err := runCLI(t, "init", "--config", configPath); err != nil {
		t.Fatalf("init: %v", err)
	}
	enginesYAML := filepath.Join(filepath.Dir(configPath), "engines.yaml")
	body := `
engines:
  - id: aider
    binary: aider
    args: ["--message", "{prompt}"]
`
	if err := os.WriteFile(enginesYAML, []byte(body), 0o644); err != nil {
		t.Fatalf("write engines.yaml: %v", err)
	}

	out, err := runCLI(t, "engines", "--config", configPath)
	if err != nil {
		t.Fatalf("engines: %v", err)
	}
	if !strings.Contains(out, "aider") {
		t.Errorf("engines output missing command engine: %q", out)
	}
}

func TestTokenWithNoSession(t *testing.T) {
	configPath, dbPath := testPaths(t)
	if _, err := runCLI(t, "init", "--config", configPath); err != nil {
		t.Fatalf("init: %v", err)
	}

	out, err := runCLI(t, "token", "--config", configPath, "--db", dbPath)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if !strings.Contains(out, "no stored session") {
		t.Errorf("token output = %q", out)
	}
}

func TestRunsEmpty(t *testing.T) {
	configPath, dbPath := testPaths(t)
	if _, err := runCLI(t, "init", "--config", configPath); err != nil {
		t.Fatalf("init: %v", err)
	}

	out, err := runCLI(t, "runs", "--config", configPath, "--db", dbPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "no runs recorded") {
		t.Errorf("runs output = %q", out)
	}
}

func TestStartRequiresCredentials(t *testing.T) {
	configPath, dbPath := testPaths(t)
	if _, err := runCLI(t, "init", "--config", configPath); err != nil {
		t.Fatalf("init: %v", err)
	}

	_, err := runCLI(t, "start", "--config", configPath, "--db", dbPath)
	if err == nil || !strings.Contains(err.Error(), "telegram.token") {
		t.Errorf("start err = %v, want credentials error", err)
	}
}

func TestLoadConfigMissingFileHint(t *testing.T) {
	configPath, _ := testPaths(t)
	_, err := runCLI(t, "folders", "list", "--config", configPath)
	if err == nil || !strings.Contains(err.Error(), "tanuki init") {
		t.Errorf("err = %v, want init hint", err)
	}
}
