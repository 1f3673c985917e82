package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(wd, "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("VOICE_LOG_PATH", "/tmp/voxmcp-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/voxmcp-env-log" {
		t.Errorf("got %q, want /tmp/voxmcp-env-log", got)
	}
}

func TestResolveDirFlagBeatsEnv(t *testing.T) {
	t.Setenv("VOICE_LOG_PATH", "/tmp/from-env")
	got, err := ResolveDir("/tmp/from-flag")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/from-flag" {
		t.Errorf("got %q, want /tmp/from-flag", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("VOICE_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Error("expected non-empty default directory")
	}
}

func TestInitCreatesDiagnosticsFile(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(Options{File: true}); err != nil {
		t.Fatal(err)
	}
	Info("hello")

	data, err := os.ReadFile(filepath.Join(tmp, diagFileName))
	if err != nil {
		t.Fatalf("%s not created: %v", diagFileName, err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("diagnostics log missing message, got: %q", data)
	}
}

func TestInitWithoutFileTouchesNoDisk(t *testing.T) {
	tmp := setupLogDir(t)
	var console bytes.Buffer

	if err := Init(Options{Console: &console}); err != nil {
		t.Fatal(err)
	}
	Warn("console only")

	if _, err := os.Stat(filepath.Join(tmp, diagFileName)); !os.IsNotExist(err) {
		t.Errorf("diagnostics file should not exist, stat err = %v", err)
	}
	if !strings.Contains(console.String(), "console only") {
		t.Errorf("console output = %q", console.String())
	}
}

func TestInitLevelFilters(t *testing.T) {
	setupLogDir(t)
	var console bytes.Buffer

	if err := Init(Options{Level: "warn", Console: &console}); err != nil {
		t.Fatal(err)
	}
	Info("quiet")
	Error("loud")

	out := console.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("info message leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("error message missing: %q", out)
	}
}

func TestInitRejectsBadLevel(t *testing.T) {
	setupLogDir(t)
	if err := Init(Options{Level: "shouty"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestStructuredEvents(t *testing.T) {
	setupLogDir(t)
	var console bytes.Buffer

	if err := Init(Options{Level: "debug", Console: &console}); err != nil {
		t.Fatal(err)
	}
	SessionStart("abc", "mic", 30000, 2000, true)
	SessionState("abc", "recording", "finalizing")
	SessionEnd("abc", "completed", "silence", 3*time.Second, 0, nil)
	Artifact("/tmp/x.wav", "raw", errors.New("disk full"))
	RPC("tools/call", 7, time.Millisecond, nil)

	out := console.String()
	for _, want := range []string{"session_start", "session_state", "session_end", "debug_artifact", "disk full", "rpc_request"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestNoopBeforeInit(t *testing.T) {
	Close()
	// Must not panic.
	Info("dropped")
	SessionEnd("x", "failed", "manual", 0, 0, errors.New("boom"))
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(Options{File: true}); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
