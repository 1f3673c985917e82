package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const diagFileName = "diagnostics_log.txt"

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

// Options controls where Init sends log output. Console is usually
// os.Stderr; stdout belongs to the protocol stream and is never used.
type Options struct {
	Level   string
	Console io.Writer
	File    bool
}

type Metrics struct {
	AudioLengthS     float64
	RawSizeKB        float64
	CompressedSizeKB float64
	EncodeTimeMs     float64
	DNSTimeMs        float64
	TLSTimeMs        float64
	TTFBMs           float64
	TotalTimeMs      float64
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absPath(flagPath)
	}

	// Priority 2: VOICE_LOG_PATH environment variable
	if envPath := os.Getenv("VOICE_LOG_PATH"); envPath != "" {
		return absPath(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init(opts Options) error {
	logMu.Lock()
	defer logMu.Unlock()

	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		level = l
	}

	pid = os.Getpid()

	var writers []io.Writer
	if opts.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        opts.Console,
			TimeFormat: "15:04:05",
		})
	}
	if opts.File {
		if err := EnsureDir(); err != nil {
			return err
		}
		f, err := os.OpenFile(filepath.Join(dir, diagFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		diagFile = f
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        f,
			TimeFormat: "2006-01-02 15:04:05",
			NoColor:    true,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	diagLog = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Int("pid", pid).
		Logger()
	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

func Debugf(format string, args ...any) {
	if logReady {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func TranscriptionMetrics(m Metrics, engine, format string, connReused bool) {
	if !logReady {
		return
	}

	connStatus := "new"
	if connReused {
		connStatus = "reused"
	}

	diagLog.Info().
		Str("engine", engine).
		Str("format", format).
		Str("conn", connStatus).
		Float64("audio_s", m.AudioLengthS).
		Float64("raw_kb", m.RawSizeKB).
		Float64("compressed_kb", m.CompressedSizeKB).
		Float64("encode_ms", m.EncodeTimeMs).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Msg("transcription")
}

func Transcription(engine string, audioS float64, took time.Duration, chars int, err error) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if err != nil {
		ev = diagLog.Error().Err(err)
	}
	ev.Str("engine", engine).
		Float64("audio_s", audioS).
		Int64("took_ms", took.Milliseconds()).
		Int("chars", chars).
		Msg("transcription")
}

func SessionStart(id, device string, timeoutMs, silenceTimeoutMs int, autoStop bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("device", device).
		Int("timeout_ms", timeoutMs).
		Int("silence_timeout_ms", silenceTimeoutMs).
		Bool("auto_stop", autoStop).
		Msg("session_start")
}

func SessionState(id, from, to string) {
	if !logReady {
		return
	}
	diagLog.Debug().
		Str("session", id).
		Str("from", from).
		Str("to", to).
		Msg("session_state")
}

func SessionEnd(id, state, reason string, recorded time.Duration, dropped int, err error) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if err != nil {
		ev = diagLog.Warn().Err(err)
	}
	ev.Str("session", id).
		Str("state", state).
		Str("reason", reason).
		Int64("recorded_ms", recorded.Milliseconds()).
		Int("dropped_frames", dropped).
		Msg("session_end")
}

func Artifact(path, tag string, err error) {
	if !logReady {
		return
	}
	if err != nil {
		diagLog.Warn().Err(err).Str("tag", tag).Str("path", path).Msg("debug_artifact")
		return
	}
	diagLog.Debug().Str("tag", tag).Str("path", path).Msg("debug_artifact")
}

func RPC(method string, id any, took time.Duration, err error) {
	if !logReady {
		return
	}
	ev := diagLog.Debug()
	if err != nil {
		ev = diagLog.Warn().Err(err)
	}
	ev.Str("method", method).
		Interface("id", id).
		Int64("took_ms", took.Milliseconds()).
		Msg("rpc_request")
}
