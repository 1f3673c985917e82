package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"voxmcp/audio"
	"voxmcp/beep"
	"voxmcp/log"
	"voxmcp/session"
)

type eventMsg session.Event
type resultMsg session.Result

const barWidth = 24

var (
	recStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	busyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

type tuiModel struct {
	cfg      session.Config
	engine   string
	ev       session.Event
	levelDB  float64
	result   *session.Result
	stopping bool
	stop     func()
	cancel   func()
}

func newTUIModel(cfg session.Config, engine string, stop, cancel func()) tuiModel {
	return tuiModel{cfg: cfg, engine: engine, levelDB: audio.MinDB, stop: stop, cancel: cancel}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", " ":
			if !m.stopping && m.result == nil {
				m.stopping = true
				m.stop()
			}
		case "q", "esc", "ctrl+c":
			m.cancel()
		}

	case eventMsg:
		m.ev = session.Event(msg)
		if m.ev.LevelDB > audio.MinDB {
			// Fast attack, slow release.
			if m.ev.LevelDB > m.levelDB {
				m.levelDB = m.ev.LevelDB
			} else {
				m.levelDB = m.levelDB*0.7 + m.ev.LevelDB*0.3
			}
		}

	case resultMsg:
		res := session.Result(msg)
		m.result = &res
		return m, tea.Quit
	}
	return m, nil
}

func (m tuiModel) View() string {
	var b strings.Builder
	if m.result != nil {
		r := m.result
		switch r.State {
		case session.Completed:
			fmt.Fprintf(&b, "%s %.1fs (%s)\n", okStyle.Render("✓ done"), r.Recorded.Seconds(), r.Reason)
			if r.Text == "" {
				b.WriteString(dimStyle.Render("  no speech detected") + "\n")
			}
		case session.Cancelled:
			b.WriteString(busyStyle.Render("■ cancelled") + "\n")
		default:
			fmt.Fprintf(&b, "%s %v\n", errStyle.Render("✗ failed"), r.Err)
		}
		return b.String()
	}

	timeout := time.Duration(m.cfg.TimeoutMs) * time.Millisecond
	switch m.ev.State {
	case session.Finalizing:
		fmt.Fprintf(&b, "%s %.1fs with %s\n", busyStyle.Render("… transcribing"), m.ev.Elapsed.Seconds(), m.engine)
		return b.String()
	case session.Recording:
		fmt.Fprintf(&b, "%s %4.1fs / %.0fs %s\n", recStyle.Render("● REC"),
			m.ev.Elapsed.Seconds(), timeout.Seconds(), bar(frac(m.ev.Elapsed, timeout)))
	default:
		b.WriteString(dimStyle.Render("○ starting") + "\n")
	}

	fmt.Fprintf(&b, "level %4.0f dB %s", m.levelDB, levelStyle.Render(bar(levelFrac(m.levelDB))))
	if m.cfg.AutoStop {
		silence := time.Duration(m.cfg.SilenceTimeoutMs) * time.Millisecond
		fmt.Fprintf(&b, "  silence %.1fs / %.1fs", m.ev.SilenceElapsed.Seconds(), silence.Seconds())
	}
	b.WriteString("\n")

	help := "enter stop · q cancel"
	if m.stopping {
		help = "stopping…"
	}
	b.WriteString(dimStyle.Render(help) + "\n")
	return b.String()
}

func frac(d, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	return min(1, float64(d)/float64(total))
}

// levelFrac maps -60..0 dBFS onto the meter.
func levelFrac(db float64) float64 {
	return max(0, min(1, (db+60)/60))
}

func bar(f float64) string {
	n := int(f*barWidth + 0.5)
	return strings.Repeat("█", n) + strings.Repeat("░", barWidth-n)
}

// statusView fans session events out to the cue player and, on a terminal,
// the live status program. Without a terminal it only plays cues.
type statusView struct {
	out    io.Writer
	prog   *tea.Program
	events chan tea.Msg
	exited chan struct{}
}

func newStatusView(want bool, stderr io.Writer) *statusView {
	v := &statusView{out: stderr}
	if !want {
		return v
	}
	f, ok := stderr.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		log.Debugf("status view disabled: stderr is not a terminal")
		return v
	}
	v.events = make(chan tea.Msg, 64)
	return v
}

func (v *statusView) start(cfg session.Config, engine string, stop, cancel func()) {
	if v.events == nil {
		return
	}
	v.prog = tea.NewProgram(newTUIModel(cfg, engine, stop, cancel), tea.WithOutput(v.out))
	v.exited = make(chan struct{})
	go func() {
		defer close(v.exited)
		if _, err := v.prog.Run(); err != nil {
			log.Errorf("status view: %v", err)
		}
	}()
	go func() {
		for msg := range v.events {
			v.prog.Send(msg)
		}
	}()
}

// observe runs on the session goroutine and never blocks it.
func (v *statusView) observe(ev session.Event) {
	switch ev.State {
	case session.Recording:
		if ev.LevelDB == audio.MinDB && ev.Elapsed == 0 {
			beep.Play(beep.Start)
		}
	case session.Finalizing:
		beep.Play(beep.Stop)
	case session.Failed:
		beep.Play(beep.Error)
	}
	if v.prog == nil {
		return
	}
	select {
	case v.events <- eventMsg(ev):
	default:
	}
}

// finish shows the result and waits for the program to restore the
// terminal.
func (v *statusView) finish(res session.Result) {
	if v.prog == nil {
		return
	}
	v.prog.Send(resultMsg(res))
	<-v.exited
	close(v.events)
}
