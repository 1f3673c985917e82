package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"voxmcp/audio"
	"voxmcp/log"
)

const defaultWhisperBin = "whisper-cli"

// Whisper runs a whisper.cpp command-line binary against a temporary WAV
// file holding the buffer.
type Whisper struct {
	bin   string
	model string
	lang  string
	accel Accelerator
}

func NewWhisper(bin, model, lang string, accel Accelerator) (*Whisper, error) {
	if bin == "" {
		bin = defaultWhisperBin
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("whisper binary %q not found: %w", bin, err)
	}
	if model == "" {
		return nil, fmt.Errorf("whisper engine needs a model path")
	}
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("whisper model: %w", err)
	}
	if accel == nil {
		accel = autoAccel{}
	}
	return &Whisper{bin: path, model: model, lang: lang, accel: accel}, nil
}

func (w *Whisper) Name() string { return EngineWhisper }

func (w *Whisper) Close() error { return nil }

func (w *Whisper) args(wavPath string) []string {
	args := []string{"-m", w.model, "-f", wavPath, "-nt", "-np"}
	if w.lang != "" {
		args = append(args, "-l", w.lang)
	}
	return append(args, w.accel.Args()...)
}

func (w *Whisper) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if sampleRate != audio.TargetSampleRate {
		return "", fmt.Errorf("whisper needs %d Hz audio, got %d", audio.TargetSampleRate, sampleRate)
	}
	if len(samples) == 0 {
		return "", nil
	}

	dir, err := os.MkdirTemp("", "voxmcp-whisper-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)
	wavPath := filepath.Join(dir, "input.wav")
	if err := audio.WriteWAV(wavPath, samples, audio.TargetFormat); err != nil {
		return "", fmt.Errorf("writing whisper input: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.bin, w.args(wavPath)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err = cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", fmt.Errorf("whisper (%s): %w: %s", w.accel.Name(), err, lastLine(stderr.String()))
	}
	text := parseWhisperOutput(stdout.String())
	log.Debugf("whisper: %.1fs audio in %dms (%s)", float64(len(samples))/float64(sampleRate), time.Since(start).Milliseconds(), w.accel.Name())
	return text, nil
}

// parseWhisperOutput joins the transcript lines and drops whisper.cpp's
// non-speech markers.
func parseWhisperOutput(out string) string {
	var parts []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		for _, marker := range []string{"[BLANK_AUDIO]", "[SILENCE]", "(silence)"} {
			line = strings.ReplaceAll(line, marker, "")
		}
		line = strings.TrimSpace(line)
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
