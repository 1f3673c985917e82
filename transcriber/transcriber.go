package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// ErrTranscriptionFailed marks any error returned by an engine. Callers wrap
// engine errors with it; the service keeps running afterwards.
var ErrTranscriptionFailed = errors.New("transcription failed")

const (
	EngineWhisper = "whisper"
	EngineGroq    = "groq"
	EngineOpenAI  = "openai"
	EngineFake    = "fake"
)

// Engine turns a finalized buffer into text. Implementations must honor ctx
// cancellation; a cancelled call returns ctx.Err().
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
	Close() error
}

type Config struct {
	Engine     string `yaml:"engine" validate:"oneof=whisper groq openai fake"`
	ModelPath  string `yaml:"model"`
	WhisperBin string `yaml:"whisper_bin"`
	Accel      string `yaml:"accel" validate:"omitempty,oneof=auto cpu gpu"`
	Language   string `yaml:"language"`
	// FakeText is returned by the fake engine.
	FakeText string `yaml:"fake_text"`

	// Overrides for the HTTP engines, read from the environment when empty.
	APIKey string `yaml:"-"`
	APIURL string `yaml:"-"`
}

// New picks the backend once, at startup.
func New(cfg Config) (Engine, error) {
	switch cfg.Engine {
	case EngineWhisper, "":
		accel, err := NewAccelerator(cfg.Accel)
		if err != nil {
			return nil, err
		}
		return NewWhisper(cfg.WhisperBin, cfg.ModelPath, cfg.Language, accel)
	case EngineGroq:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("GROQ_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("groq engine: GROQ_API_KEY is not set")
		}
		return NewGroq(key, cfg.APIURL, cfg.Language), nil
	case EngineOpenAI:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openai engine: OPENAI_API_KEY is not set")
		}
		return NewOpenAI(key, cfg.APIURL, cfg.Language), nil
	case EngineFake:
		return NewFake(cfg.FakeText, nil), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}
