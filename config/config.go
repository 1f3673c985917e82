// Package config assembles runtime options from defaults, an optional YAML
// file, the environment and explicitly set flags, in that order.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"voxmcp/archive"
	"voxmcp/session"
	"voxmcp/transcriber"
)

// ErrConfig marks any configuration problem. It is fatal at startup.
var ErrConfig = errors.New("invalid configuration")

const DefaultDebugDir = "debug_audio"

type Options struct {
	Session  session.Config     `yaml:"session"`
	Engine   transcriber.Config `yaml:"engine"`
	Log      LogConfig          `yaml:"log"`
	HTTPAddr string             `yaml:"http_addr" validate:"omitempty,hostname_port"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error disabled"`
	Path  string `yaml:"path"`
	File  bool   `yaml:"file"`
}

func Default() Options {
	s := session.DefaultConfig()
	s.Debug.Dir = DefaultDebugDir
	return Options{
		Session: s,
		Engine:  transcriber.Config{Engine: transcriber.EngineWhisper, Accel: "auto"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Unknown keys are rejected so typos do not silently fall back.
func Load(path string) (Options, error) {
	o := Default()
	if path == "" {
		return o, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil && !errors.Is(err, io.EOF) {
		return o, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}
	return o, nil
}

// ApplyEnv overlays VOICE_DEBUG and VOICE_DEBUG_DIR.
func ApplyEnv(o *Options) error {
	if v, ok := os.LookupEnv("VOICE_DEBUG"); ok && v != "" {
		on, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("%w: VOICE_DEBUG=%q", ErrConfig, v)
		}
		o.Session.Debug.Enabled = on
	}
	if v := os.Getenv("VOICE_DEBUG_DIR"); v != "" {
		o.Session.Debug.Dir = v
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

// Normalize resolves the debug switches. Asking for a save turns debugging
// on; turning debugging on without choosing saves keeps both buffers.
func Normalize(o *Options) {
	d := &o.Session.Debug
	if d.SaveRaw || d.SaveProcessed {
		d.Enabled = true
	} else if d.Enabled {
		d.SaveRaw = true
		d.SaveProcessed = true
	}
	if d.Format == "" {
		d.Format = archive.FormatWAV
	}
	if d.Dir == "" {
		d.Dir = DefaultDebugDir
	}
}

var validate = newValidator()

// newValidator reports fields by their json or yaml key so messages match
// what the user wrote.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "yaml"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

// Validate checks field constraints and that the engine's inputs exist.
func Validate(o Options) error {
	if err := ValidateStruct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if o.Session.AutoStop && o.Session.SilenceTimeoutMs > o.Session.TimeoutMs {
		return fmt.Errorf("%w: silence timeout %dms exceeds timeout %dms", ErrConfig, o.Session.SilenceTimeoutMs, o.Session.TimeoutMs)
	}
	if o.Engine.Engine == transcriber.EngineWhisper || o.Engine.Engine == "" {
		if o.Engine.ModelPath == "" {
			return fmt.Errorf("%w: a whisper model path is required", ErrConfig)
		}
		if _, err := os.Stat(o.Engine.ModelPath); err != nil {
			return fmt.Errorf("%w: model %s: %v", ErrConfig, o.Engine.ModelPath, err)
		}
	}
	return nil
}

// ValidateStruct runs the shared validator over any tagged value, such as
// tool arguments.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, FormatFieldError(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// FormatFieldError renders a validator error as "<field> <problem>".
func FormatFieldError(e validator.FieldError) string {
	field := e.Field()
	switch e.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return field + " must be host:port"
	default:
		return fmt.Sprintf("%s failed validation '%s'", field, e.Tag())
	}
}

// Flags binds the configurable command-line flags. A flag only overrides
// the file and environment when it was given on the command line.
type Flags struct {
	fs         *flag.FlagSet
	v          Options
	noAutoStop bool

	// Path is the --config file.
	Path string
}

func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs, v: Default()}
	s, e := &f.v.Session, &f.v.Engine
	fs.StringVar(&f.Path, "config", "", "YAML configuration file")
	fs.IntVar(&s.TimeoutMs, "timeout-ms", s.TimeoutMs, "Hard recording limit in milliseconds")
	fs.IntVar(&s.SilenceTimeoutMs, "silence-timeout-ms", s.SilenceTimeoutMs, "Stop after this much continuous silence (ms)")
	fs.BoolVar(&f.noAutoStop, "no-auto-stop", false, "Disable silence auto-stop; record until timeout")
	fs.Float64Var(&s.SilenceThresholdDB, "silence-threshold-db", s.SilenceThresholdDB, "Peak level in dBFS below which audio counts as silence")
	fs.StringVar(&s.Device, "device", "", "Use named microphone device")
	fs.BoolVar(&s.Debug.Enabled, "debug", false, "Save session audio for troubleshooting")
	fs.StringVar(&s.Debug.Dir, "debug-dir", s.Debug.Dir, "Directory for debug audio")
	fs.BoolVar(&s.Debug.SaveRaw, "save-raw", false, "Save the raw captured audio")
	fs.BoolVar(&s.Debug.SaveProcessed, "save-processed", false, "Save the processed 16kHz audio")
	fs.StringVar(&s.Debug.Format, "debug-format", archive.FormatWAV, "Processed debug audio format: wav or flac")
	fs.StringVar(&e.Engine, "engine", e.Engine, "Transcription engine: whisper, groq, openai or fake")
	fs.StringVar(&e.Accel, "accel", e.Accel, "whisper acceleration: auto, cpu or gpu")
	fs.StringVar(&e.WhisperBin, "whisper-bin", "", "whisper.cpp CLI binary (default: search PATH)")
	fs.StringVar(&e.Language, "lang", "", "Language code for transcription. Empty = auto-detect")
	fs.StringVar(&f.v.Log.Level, "log-level", f.v.Log.Level, "Log level: debug, info, warn or error")
	fs.StringVar(&f.v.Log.Path, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.StringVar(&f.v.HTTPAddr, "http-addr", "", "Also serve MCP over HTTP on this address")
	return f
}

// Apply copies every flag that was set onto o.
func (f *Flags) Apply(o *Options) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "timeout-ms":
			o.Session.TimeoutMs = f.v.Session.TimeoutMs
		case "silence-timeout-ms":
			o.Session.SilenceTimeoutMs = f.v.Session.SilenceTimeoutMs
		case "no-auto-stop":
			o.Session.AutoStop = !f.noAutoStop
		case "silence-threshold-db":
			o.Session.SilenceThresholdDB = f.v.Session.SilenceThresholdDB
		case "device":
			o.Session.Device = f.v.Session.Device
		case "debug":
			o.Session.Debug.Enabled = f.v.Session.Debug.Enabled
		case "debug-dir":
			o.Session.Debug.Dir = f.v.Session.Debug.Dir
		case "save-raw":
			o.Session.Debug.SaveRaw = f.v.Session.Debug.SaveRaw
		case "save-processed":
			o.Session.Debug.SaveProcessed = f.v.Session.Debug.SaveProcessed
		case "debug-format":
			o.Session.Debug.Format = f.v.Session.Debug.Format
		case "engine":
			o.Engine.Engine = f.v.Engine.Engine
		case "accel":
			o.Engine.Accel = f.v.Engine.Accel
		case "whisper-bin":
			o.Engine.WhisperBin = f.v.Engine.WhisperBin
		case "lang":
			o.Engine.Language = f.v.Engine.Language
		case "log-level":
			o.Log.Level = f.v.Log.Level
		case "logpath":
			o.Log.Path = f.v.Log.Path
		case "http-addr":
			o.HTTPAddr = f.v.HTTPAddr
		}
	})
}

// Resolve runs the whole chain for a parsed flag set: file, env, flags,
// normalization and validation. modelPath, when set, overrides the file.
func (f *Flags) Resolve(modelPath string) (Options, error) {
	o, err := Load(f.Path)
	if err != nil {
		return o, err
	}
	if err := ApplyEnv(&o); err != nil {
		return o, err
	}
	f.Apply(&o)
	if modelPath != "" {
		o.Engine.ModelPath = modelPath
	}
	Normalize(&o)
	return o, Validate(o)
}
