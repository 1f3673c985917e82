// Package doctor runs non-interactive checks of everything a session needs:
// a capture device that hears something, a working engine and writable
// output directories.
package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"voxmcp/audio"
	"voxmcp/session"
	"voxmcp/transcriber"
)

type Options struct {
	Audio       audio.Context
	Device      string
	Engine      transcriber.Config
	ThresholdDB float64
	// Listen is how long the microphone check records.
	Listen time.Duration
	// WAVFile, when set, is transcribed end to end.
	WAVFile  string
	DebugDir string
	LogDir   string
}

type status int

const (
	pass status = iota
	warn
	fail
)

func (s status) String() string {
	return [...]string{"PASS", "WARN", "FAIL"}[s]
}

type check struct {
	name string
	run  func(ctx context.Context) (status, string)
}

// Run prints one line per check to out and returns 0 when nothing failed.
func Run(ctx context.Context, opts Options, out io.Writer) int {
	if opts.Listen <= 0 {
		opts.Listen = 2 * time.Second
	}
	if opts.ThresholdDB == 0 {
		opts.ThresholdDB = audio.DefaultSilenceThresholdDB
	}

	var engine transcriber.Engine
	checks := []check{
		{"Capture devices", func(context.Context) (status, string) { return checkDevices(opts) }},
		{"Microphone level", func(ctx context.Context) (status, string) { return checkMicrophone(ctx, opts) }},
		{"Transcription engine", func(context.Context) (status, string) {
			e, err := transcriber.New(opts.Engine)
			if err != nil {
				return fail, err.Error()
			}
			engine = e
			return pass, e.Name() + " ready"
		}},
	}
	if opts.WAVFile != "" {
		checks = append(checks, check{"Transcribe " + filepath.Base(opts.WAVFile), func(ctx context.Context) (status, string) {
			if engine == nil {
				return fail, "no engine"
			}
			svc := session.NewService(nil, engine)
			text, err := svc.TranscribeFile(ctx, opts.WAVFile)
			if err != nil {
				return fail, err.Error()
			}
			if strings.TrimSpace(text) == "" {
				return warn, "(no speech detected)"
			}
			return pass, fmt.Sprintf("%q", text)
		}})
	}
	if opts.DebugDir != "" {
		checks = append(checks, check{"Debug directory", func(context.Context) (status, string) { return checkWritable(opts.DebugDir) }})
	}
	if opts.LogDir != "" {
		checks = append(checks, check{"Log directory", func(context.Context) (status, string) { return checkWritable(opts.LogDir) }})
	}
	checks = append(checks, check{"Clipboard (--copy)", func(context.Context) (status, string) {
		if clipboard.Unsupported {
			return warn, "no clipboard utility found; --copy will not work"
		}
		return pass, "available"
	}})

	fmt.Fprintln(out, "voxmcp doctor")
	fmt.Fprintln(out, "=============")
	failed := false
	for i, c := range checks {
		st, msg := c.run(ctx)
		fmt.Fprintf(out, "[%d/%d] %s\n  %s: %s\n", i+1, len(checks), c.name, st, msg)
		if st == fail {
			failed = true
		}
	}
	if engine != nil {
		engine.Close()
	}

	fmt.Fprintln(out)
	if failed {
		fmt.Fprintln(out, "Some checks failed. See details above.")
		return 1
	}
	fmt.Fprintln(out, "All checks passed!")
	return 0
}

func checkDevices(opts Options) (status, string) {
	if opts.Audio == nil {
		return fail, "no audio backend"
	}
	devices, err := opts.Audio.Devices()
	if err != nil {
		return fail, fmt.Sprintf("cannot list devices: %v", err)
	}
	if len(devices) == 0 {
		return fail, "no capture devices found"
	}
	names := make([]string, len(devices))
	bt := false
	for i, d := range devices {
		names[i] = d.Name
		if d.Name == opts.Device && audio.IsBluetooth(d.Name) {
			bt = true
		}
	}
	msg := fmt.Sprintf("%d found: %s", len(devices), strings.Join(names, ", "))
	if bt {
		return warn, msg + " (selected device is Bluetooth; expect reduced quality)"
	}
	return pass, msg
}

// checkMicrophone records for opts.Listen and reports the loudest frame.
func checkMicrophone(ctx context.Context, opts Options) (status, string) {
	if opts.Audio == nil {
		return fail, "no audio backend"
	}
	dev, err := audio.FindDevice(opts.Audio, opts.Device)
	if err != nil {
		return fail, err.Error()
	}
	capture, err := opts.Audio.NewCapture(dev, audio.CaptureConfig{})
	if err != nil {
		return fail, err.Error()
	}
	defer capture.Close()

	levels := make(chan float64, 64)
	capture.SetCallback(func(samples []float32, _ uint32) {
		select {
		case levels <- audio.PeakDB(samples):
		default:
		}
	})
	streamErr := make(chan error, 1)
	capture.SetErrorCallback(func(err error) {
		select {
		case streamErr <- err:
		default:
		}
	})
	if err := capture.Start(); err != nil {
		return fail, err.Error()
	}
	defer capture.Stop()

	peak, frames := audio.MinDB, 0
	deadline := time.After(opts.Listen)
loop:
	for {
		select {
		case <-ctx.Done():
			return fail, ctx.Err().Error()
		case err := <-streamErr:
			return fail, err.Error()
		case <-deadline:
			break loop
		case db := <-levels:
			frames++
			peak = max(peak, db)
		}
	}
	capture.ClearCallback()

	f := capture.Format()
	desc := fmt.Sprintf("%s, %d Hz, %d ch, peak %.1f dBFS", capture.DeviceName(), f.SampleRate, f.Channels, peak)
	switch {
	case frames == 0:
		return fail, desc + ": no audio delivered"
	case peak < opts.ThresholdDB:
		return warn, desc + fmt.Sprintf(": below the %.0f dBFS silence threshold, speak during the check", opts.ThresholdDB)
	}
	return pass, desc
}

func checkWritable(dir string) (status, string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail, err.Error()
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fail, err.Error()
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return pass, dir
}
