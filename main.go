package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"voxmcp/audio"
	"voxmcp/beep"
	"voxmcp/config"
	"voxmcp/doctor"
	"voxmcp/log"
	"voxmcp/mcp"
	"voxmcp/session"
	"voxmcp/shutdown"
	"voxmcp/transcriber"
)

var version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
	exitBusy    = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type flags struct {
	cfg         *config.Flags
	mcpModel    string
	file        string
	simulate    string
	listDevices bool
	copy        bool
	beep        bool
	tui         bool
	doctor      bool
	version     bool
	profile     string
	logFile     bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, *flag.FlagSet, error) {
	fs := flag.NewFlagSet("voxmcp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &flags{cfg: config.BindFlags(fs)}
	fs.StringVar(&f.mcpModel, "mcp-server", "", "Serve MCP over stdio using this whisper model")
	fs.StringVar(&f.file, "file", "", "Transcribe a WAV file instead of recording")
	fs.StringVar(&f.simulate, "simulate", "", "Replay a WAV file in real time as the microphone")
	fs.BoolVar(&f.listDevices, "list-devices", false, "List capture devices and exit")
	fs.BoolVar(&f.copy, "copy", false, "Copy the transcript to the clipboard")
	fs.BoolVar(&f.beep, "beep", false, "Play start and stop cues")
	fs.BoolVar(&f.tui, "tui", false, "Show a live status view on stderr when it is a terminal")
	fs.BoolVar(&f.doctor, "doctor", false, "Run system diagnostics and exit")
	fs.BoolVar(&f.version, "version", false, "Print version and exit")
	fs.StringVar(&f.profile, "profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	fs.BoolVar(&f.logFile, "logfile", false, "Also write diagnostics_log.txt in the log directory (always on with --mcp-server)")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: voxmcp [flags] <model.bin>\n       voxmcp --mcp-server <model.bin> [flags]\n\n")
		fs.PrintDefaults()
	}
	return f, fs, fs.Parse(args)
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	f, fs, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}
	if f.version {
		fmt.Fprintf(stdout, "voxmcp %s\n", version)
		return exitOK
	}

	serving := f.mcpModel != ""
	modelPath := f.mcpModel
	if modelPath == "" && fs.NArg() > 0 {
		modelPath = fs.Arg(0)
	}

	opts, cfgErr := f.cfg.Resolve(modelPath)
	if f.logFile {
		opts.Log.File = true
	}
	if err := setupLogging(opts.Log, serving, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}
	defer log.Close()

	if f.profile != "" {
		go func() {
			log.Infof("pprof server listening on http://%s/debug/pprof/", f.profile)
			if err := http.ListenAndServe(f.profile, nil); err != nil {
				log.Errorf("pprof server error: %v", err)
			}
		}()
	}

	// Transcribing a file from the command line never touches the microphone.
	var actx audio.Context
	if f.file == "" || serving || f.doctor {
		actx, err = openAudio(f.simulate)
		if err != nil {
			if f.simulate != "" {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return exitConfig
			}
			log.Warnf("audio unavailable: %v", err)
		} else {
			defer actx.Close()
		}
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	switch {
	case f.listDevices:
		return listDevices(actx, stdout, stderr)
	case f.doctor:
		dopts := doctor.Options{
			Audio:       actx,
			Device:      opts.Session.Device,
			Engine:      opts.Engine,
			ThresholdDB: opts.Session.SilenceThresholdDB,
			WAVFile:     f.file,
			LogDir:      log.Dir(),
		}
		if opts.Session.Debug.Active() {
			dopts.DebugDir = opts.Session.Debug.Dir
		}
		return doctor.Run(ctx, dopts, stdout)
	}

	if cfgErr != nil {
		fmt.Fprintf(stderr, "Error: %v\n", cfgErr)
		if !serving && modelPath == "" {
			fs.Usage()
		}
		return exitConfig
	}

	engine, err := transcriber.New(opts.Engine)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v: %v\n", config.ErrConfig, err)
		return exitConfig
	}
	defer engine.Close()

	beep.Enable(f.beep)
	view := newStatusView(f.tui && !serving, stderr)
	svc := session.NewService(actx, engine, session.WithObserver(view.observe))
	log.Infof("voxmcp %s: engine=%s device=%q debug=%v", version, engine.Name(), opts.Session.Device, opts.Session.Debug.Active())

	if serving {
		return serve(ctx, svc, opts, stdin, stdout, stderr)
	}
	cli := &cliRunner{svc: svc, opts: opts, view: view, copy: f.copy, stdout: stdout, stderr: stderr}
	if f.file != "" {
		return cli.transcribeFile(ctx, f.file)
	}
	return cli.listen(ctx)
}

// setupLogging sends logs to stderr and, for the server or on request, to
// the diagnostics file. Crash output goes next to it.
func setupLogging(lc config.LogConfig, serving bool, stderr io.Writer) error {
	dir, err := log.ResolveDir(lc.Path)
	if err != nil {
		return fmt.Errorf("failed to resolve log directory: %w", err)
	}
	log.SetDir(dir)

	file := lc.File || serving
	if file {
		if err := log.EnsureDir(); err != nil {
			fmt.Fprintf(stderr, "Warning: could not create log directory: %v\n", err)
			file = false
		}
	}
	if file {
		crashPath := filepath.Join(log.Dir(), "crash_log.txt")
		if crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
			debug.SetCrashOutput(crashFile, debug.CrashOptions{})
		}
	}
	return log.Init(log.Options{Level: lc.Level, Console: stderr, File: file})
}

func openAudio(simulate string) (audio.Context, error) {
	if simulate != "" {
		fake, err := audio.NewFakeContextFromWAV(simulate, true)
		if err != nil {
			return nil, fmt.Errorf("--simulate: %w", err)
		}
		return fake, nil
	}
	return audio.NewContext()
}

func listDevices(actx audio.Context, stdout, stderr io.Writer) int {
	if actx == nil {
		fmt.Fprintln(stderr, "Error: no audio backend")
		return exitFailure
	}
	devices, err := actx.Devices()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	for _, d := range devices {
		suffix := ""
		if audio.IsBluetooth(d.Name) {
			suffix = " (Bluetooth)"
		}
		fmt.Fprintf(stdout, "%s%s\n", d.Name, suffix)
	}
	return exitOK
}

// serve runs the stdio protocol loop, plus HTTP when configured, until
// stdin closes or a signal arrives.
func serve(ctx context.Context, svc *session.Service, opts config.Options, stdin io.Reader, stdout, stderr io.Writer) int {
	srv := mcp.NewServer(svc, opts.Session, version)

	if opts.HTTPAddr != "" {
		hs := &http.Server{Addr: opts.HTTPAddr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Infof("mcp http listening on %s", opts.HTTPAddr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("mcp http: %v", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			hs.Shutdown(sctx)
		}()
	}

	log.Info("mcp server ready on stdio")
	err := srv.Serve(ctx, stdin, stdout)
	switch {
	case errors.Is(err, context.Canceled):
		log.Info("mcp server interrupted")
		return shutdown.ExitInterrupted
	case err != nil:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}
