// Package archive persists session audio for troubleshooting. Every write is
// best-effort: failures are logged and reported as ErrDebugWrite but never
// change a session's outcome.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"voxmcp/audio"
	"voxmcp/encoder"
	"voxmcp/log"
)

var ErrDebugWrite = errors.New("debug write failed")

const (
	TagRaw       = "raw"
	TagProcessed = "processed"

	FormatWAV  = "wav"
	FormatFLAC = "flac"

	stampLayout = "20060102_150405"
)

// Config selects which buffers are archived. Format applies to the processed
// buffer only; raw audio is always WAV in its native layout.
type Config struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Dir           string `yaml:"dir" json:"dir"`
	SaveRaw       bool   `yaml:"save_raw" json:"save_raw"`
	SaveProcessed bool   `yaml:"save_processed" json:"save_processed"`
	Format        string `yaml:"format" json:"format" validate:"omitempty,oneof=wav flac"`
}

// Active reports whether any file would be written.
func (c Config) Active() bool {
	return c.Enabled && (c.SaveRaw || c.SaveProcessed)
}

// Archiver writes the artifacts of one session. All files share the
// timestamp taken when the archiver was created.
type Archiver struct {
	cfg       Config
	stamp     string
	artifacts []string
}

func New(cfg Config, now time.Time) *Archiver {
	if cfg.Format == "" {
		cfg.Format = FormatWAV
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	return &Archiver{cfg: cfg, stamp: now.Format(stampLayout)}
}

// Name returns the file name used for tag.
func (a *Archiver) Name(tag, ext string) string {
	return fmt.Sprintf("audio_%s_%s.%s", a.stamp, tag, ext)
}

// Artifacts lists the files written so far.
func (a *Archiver) Artifacts() []string {
	return append([]string(nil), a.artifacts...)
}

// SaveRaw archives the unprocessed capture buffer if enabled.
func (a *Archiver) SaveRaw(samples []float32, f audio.Format) error {
	if !a.cfg.Enabled || !a.cfg.SaveRaw {
		return nil
	}
	path := filepath.Join(a.cfg.Dir, a.Name(TagRaw, FormatWAV))
	return a.record(path, TagRaw, func() error {
		return audio.WriteWAV(path, samples, f)
	})
}

// SaveProcessed archives the 16kHz mono buffer if enabled.
func (a *Archiver) SaveProcessed(samples []float32) error {
	if !a.cfg.Enabled || !a.cfg.SaveProcessed {
		return nil
	}
	path := filepath.Join(a.cfg.Dir, a.Name(TagProcessed, a.cfg.Format))
	return a.record(path, TagProcessed, func() error {
		if a.cfg.Format == FormatFLAC {
			return encoder.WriteFLAC(path, audio.ToInt16(samples), audio.TargetSampleRate)
		}
		return audio.WriteWAV(path, samples, audio.TargetFormat)
	})
}

func (a *Archiver) record(path, tag string, write func() error) error {
	err := os.MkdirAll(a.cfg.Dir, 0755)
	if err == nil {
		err = write()
	}
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrDebugWrite, path, err)
		log.Artifact(path, tag, err)
		return err
	}
	a.artifacts = append(a.artifacts, path)
	log.Artifact(path, tag, nil)
	return nil
}
