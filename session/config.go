package session

import (
	"time"

	"voxmcp/archive"
	"voxmcp/audio"
)

const (
	DefaultTimeoutMs        = 30000
	DefaultSilenceTimeoutMs = 2000
)

// Config is copied into a session when it starts and never changes after.
type Config struct {
	TimeoutMs          int            `yaml:"timeout_ms" json:"timeout_ms" validate:"gt=0,lte=600000"`
	SilenceTimeoutMs   int            `yaml:"silence_timeout_ms" json:"silence_timeout_ms" validate:"gt=0,lte=600000"`
	AutoStop           bool           `yaml:"auto_stop" json:"auto_stop"`
	SilenceThresholdDB float64        `yaml:"silence_threshold_db" json:"silence_threshold_db" validate:"gte=-100,lte=0"`
	Device             string         `yaml:"device" json:"device"`
	Debug              archive.Config `yaml:"debug" json:"debug"`
}

func DefaultConfig() Config {
	return Config{
		TimeoutMs:          DefaultTimeoutMs,
		SilenceTimeoutMs:   DefaultSilenceTimeoutMs,
		AutoStop:           true,
		SilenceThresholdDB: audio.DefaultSilenceThresholdDB,
		Debug:              archive.Config{Format: archive.FormatWAV},
	}
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c Config) silenceTimeout() time.Duration {
	return time.Duration(c.SilenceTimeoutMs) * time.Millisecond
}
