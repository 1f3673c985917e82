package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"voxmcp/audio"
	"voxmcp/config"
	"voxmcp/session"
	"voxmcp/transcriber"
)

var mono16k = audio.Format{SampleRate: 16000, Channels: 1}

// speechWAV writes ms of tone followed by silence.
func speechWAV(t *testing.T, dir string, ms, silenceMs int) string {
	t.Helper()
	n, gap := 16*ms, 16*silenceMs
	samples := make([]float32, n+gap)
	for i := range n {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*330*float64(i)/16000))
	}
	path := filepath.Join(dir, "speech.wav")
	if err := audio.WriteWAV(path, samples, mono16k); err != nil {
		t.Fatal(err)
	}
	return path
}

func fakeEngineConfig(t *testing.T, dir, text string) string {
	t.Helper()
	path := filepath.Join(dir, "voxmcp.yaml")
	body := fmt.Sprintf("engine:\n  engine: fake\n  fake_text: %q\nlog:\n  level: error\n", text)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runArgs(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("VOICE_LOG_PATH", t.TempDir())
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := runArgs(t, "", "--version")
	if code != exitOK || !strings.HasPrefix(out, "voxmcp ") {
		t.Errorf("code=%d out=%q", code, out)
	}
}

func TestConfigErrorsExit2(t *testing.T) {
	dir := t.TempDir()
	for _, tt := range []struct {
		name string
		env  string
		args []string
	}{
		{"no model", "", nil},
		{"missing model", "", []string{filepath.Join(dir, "nope.bin")}},
		{"unknown flag", "", []string{"--frobnicate"}},
		{"bad timeout", "", []string{"--engine", "fake", "--timeout-ms", "0"}},
		{"bad debug env", "maybe", []string{"--engine", "fake"}},
		{"bad debug format", "", []string{"--engine", "fake", "--debug-format", "ogg"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				t.Setenv("VOICE_DEBUG", tt.env)
			}
			code, out, _ := runArgs(t, "", tt.args...)
			if code != exitConfig {
				t.Errorf("exit %d, want %d", code, exitConfig)
			}
			if out != "" {
				t.Errorf("stdout = %q, want nothing", out)
			}
		})
	}
}

func TestFileTranscription(t *testing.T) {
	dir := t.TempDir()
	wav := speechWAV(t, dir, 300, 0)
	code, out, errOut := runArgs(t, "", "--config", fakeEngineConfig(t, dir, "book a table"), "--file", wav)
	if code != exitOK {
		t.Fatalf("exit %d\n%s", code, errOut)
	}
	if out != "book a table\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestFileTranscriptionMissing(t *testing.T) {
	dir := t.TempDir()
	code, out, errOut := runArgs(t, "", "--config", fakeEngineConfig(t, dir, "x"), "--file", filepath.Join(dir, "gone.wav"))
	if code != exitFailure || out != "" {
		t.Errorf("code=%d out=%q", code, out)
	}
	if !strings.Contains(errOut, "FileNotFound") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestSimulatedListen(t *testing.T) {
	dir := t.TempDir()
	wav := speechWAV(t, dir, 300, 100)
	debugDir := filepath.Join(dir, "debug")
	code, out, errOut := runArgs(t, "",
		"--config", fakeEngineConfig(t, dir, "find flights to Berlin"),
		"--simulate", wav,
		"--timeout-ms", "5000", "--silence-timeout-ms", "400",
		"--debug", "--debug-dir", debugDir)
	if code != exitOK {
		t.Fatalf("exit %d\n%s", code, errOut)
	}
	if out != "find flights to Berlin\n" {
		t.Errorf("stdout = %q", out)
	}
	entries, err := os.ReadDir(debugDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("debug files = %d, want raw and processed", len(entries))
	}
}

func TestMCPServerOverStdio(t *testing.T) {
	dir := t.TempDir()
	wav := speechWAV(t, dir, 300, 0)
	stdin := strings.Join([]string{
		`{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"transcribe_file","arguments":{"file_path":%q}}}`, wav),
	}, "\n") + "\n"

	code, out, errOut := runArgs(t, stdin,
		"--mcp-server", filepath.Join(dir, "unused.bin"),
		"--config", fakeEngineConfig(t, dir, "over stdio"),
		"--simulate", wav)
	if code != exitOK {
		t.Fatalf("exit %d\n%s", code, errOut)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d response lines, want 2:\n%s", len(lines), out)
	}
	byID := map[float64]map[string]any{}
	for _, l := range lines {
		var m map[string]any
		if err := json.Unmarshal([]byte(l), &m); err != nil {
			t.Fatalf("stdout is not pure JSON-RPC: %q", l)
		}
		byID[m["id"].(float64)] = m
	}
	sc := byID[1]["result"].(map[string]any)["structuredContent"].(map[string]any)
	if sc["success"] != true || sc["transcript"] != "over stdio" {
		t.Errorf("structuredContent = %v", sc)
	}
}

func TestExitCode(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{config.ErrConfig, exitConfig},
		{session.ErrSessionBusy, exitBusy},
		{session.ErrCancelled, 130},
		{context.Canceled, 130},
		{fmt.Errorf("%w: boom", transcriber.ErrTranscriptionFailed), exitFailure},
		{audio.ErrDeviceUnavailable, exitFailure},
		{errors.New("other"), exitFailure},
	} {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestStatusModel(t *testing.T) {
	var stops, cancels int
	cfg := session.DefaultConfig()
	m := tea.Model(newTUIModel(cfg, "fake", func() { stops++ }, func() { cancels++ }))

	m, _ = m.Update(eventMsg(session.Event{State: session.Recording, Elapsed: 1500 * time.Millisecond, SilenceElapsed: 200 * time.Millisecond, LevelDB: -12}))
	view := m.View()
	for _, want := range []string{"REC", " 1.5s / 30s", "-12 dB", "silence 0.2s / 2.0s", "enter stop"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if stops != 1 {
		t.Errorf("stop called %d times, want 1", stops)
	}
	if !strings.Contains(m.View(), "stopping") {
		t.Error("view does not show stopping")
	}

	m, _ = m.Update(eventMsg(session.Event{State: session.Finalizing, Elapsed: 2 * time.Second, LevelDB: audio.MinDB}))
	if !strings.Contains(m.View(), "transcribing") {
		t.Errorf("finalizing view:\n%s", m.View())
	}

	m, cmd := m.Update(resultMsg(session.Result{State: session.Completed, Reason: session.StopManual, Recorded: 2 * time.Second, Text: "hi"}))
	if cmd == nil {
		t.Fatal("result should quit the program")
	}
	if !strings.Contains(m.View(), "done") {
		t.Errorf("result view:\n%s", m.View())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cancels != 1 {
		t.Errorf("cancel called %d times", cancels)
	}
}

func TestStatusModelLevelRelease(t *testing.T) {
	m := newTUIModel(session.DefaultConfig(), "fake", func() {}, func() {})
	next, _ := m.Update(eventMsg(session.Event{State: session.Recording, LevelDB: -6}))
	next, _ = next.Update(eventMsg(session.Event{State: session.Recording, LevelDB: -60}))
	level := next.(tuiModel).levelDB
	if level >= -6 || level <= -60 {
		t.Errorf("level %.1f should decay between -6 and -60", level)
	}
	// State changes carry MinDB and leave the meter alone.
	after, _ := next.Update(eventMsg(session.Event{State: session.Recording, LevelDB: audio.MinDB}))
	if after.(tuiModel).levelDB != level {
		t.Error("state change moved the meter")
	}
}
