// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"spectral/internal/analysis"
	"spectral/internal/transport"
)

const refreshInterval = 100 * time.Millisecond

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7D7D")).Width(14)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0A030")).Bold(true)
)

// Status is the engine state shown in the monitor header.
type Status struct {
	Device          string
	Window          string
	Overlap         float64
	OverflowSamples uint64
	DroppedFrames   uint64
	InputPeak       float32
	Recording       bool
}

// Monitor is a Transport that keeps the latest frame for display. Send runs
// on the publisher goroutine; the bubbletea program reads a copy under mu.
type Monitor struct {
	status func() Status

	mu      sync.Mutex
	latest  transport.Frame
	frames  uint64
	program *tea.Program
}

// NewMonitor returns a monitor. status may be nil.
func NewMonitor(status func() Status) *Monitor {
	if status == nil {
		status = func() Status { return Status{} }
	}
	return &Monitor{status: status}
}

// Send stores frames; anything else is ignored.
func (m *Monitor) Send(data any) error {
	f, ok := data.(*transport.Frame)
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	mag, pan, bands, names := m.latest.MagnitudeDB, m.latest.Pan, m.latest.Bands, m.latest.BandNames
	m.latest = *f
	m.latest.MagnitudeDB = append(mag[:0], f.MagnitudeDB...)
	m.latest.Pan = append(pan[:0], f.Pan...)
	m.latest.Bands = append(bands[:0], f.Bands...)
	// Names change only after a reconfiguration; snapshots share the old slice.
	if !slices.Equal(names, f.BandNames) {
		names = slices.Clone(f.BandNames)
	}
	m.latest.BandNames = names
	m.frames++
	return nil
}

// Close asks a running program to quit.
func (m *Monitor) Close() error {
	m.mu.Lock()
	p := m.program
	m.mu.Unlock()
	if p != nil {
		p.Quit()
	}
	return nil
}

// Run shows the monitor until the user quits or ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	p := tea.NewProgram(newMonitorModel(m), tea.WithAltScreen(), tea.WithContext(ctx))
	m.mu.Lock()
	m.program = p
	m.mu.Unlock()

	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// snapshot is an immutable view for one render.
type snapshot struct {
	frame  transport.Frame
	frames uint64
	status Status
}

func (m *Monitor) snapshot() snapshot {
	m.mu.Lock()
	s := snapshot{frame: *m.latest.Clone(), frames: m.frames}
	m.mu.Unlock()
	s.status = m.status()
	return s
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type monitorModel struct {
	mon      *Monitor
	snap     snapshot
	lastTick time.Time
	lastN    uint64
	fps      float64
	bar      progress.Model
}

func newMonitorModel(mon *Monitor) monitorModel {
	return monitorModel{
		mon: mon,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(40)),
	}
}

func (m monitorModel) Init() tea.Cmd { return tick() }

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"))) {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(60, msg.Width-24))
	case tickMsg:
		now := time.Time(msg)
		m.snap = m.mon.snapshot()
		if !m.lastTick.IsZero() {
			if dt := now.Sub(m.lastTick).Seconds(); dt > 0 {
				m.fps = float64(m.snap.frames-m.lastN) / dt
			}
		}
		m.lastTick, m.lastN = now, m.snap.frames
		return m, tick()
	}
	return m, nil
}

func (m monitorModel) View() string {
	return renderMonitor(m.snap, m.fps, m.bar)
}

// levelFraction maps a dB level onto [0, 1] for the bar display.
func levelFraction(db float64) float64 {
	return max(0, min(1, (db-analysis.FloorDB)/-analysis.FloorDB))
}

func renderMonitor(s snapshot, fps float64, bar progress.Model) string {
	var sb strings.Builder
	f := &s.frame

	sb.WriteString(titleStyle.Render("Spectrum Monitor"))
	sb.WriteString("\n\n")

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(label))
		sb.WriteString(infoStyle.Render(value))
		sb.WriteString("\n")
	}

	mode := "mono"
	if f.Stereo() {
		mode = "stereo"
	}
	row("Device", s.status.Device)
	row("Geometry", fmt.Sprintf("%d-point FFT, %d bins, %.0f Hz, %s", f.FFTSize, f.NumBins(), f.SampleRate, mode))
	row("Window", fmt.Sprintf("%s, %.1f%% overlap", s.status.Window, s.status.Overlap*100))
	row("Frames", fmt.Sprintf("%d (%.1f/s)", s.frames, fps))
	row("Input peak", fmt.Sprintf("%.3f", s.status.InputPeak))

	losses := fmt.Sprintf("%d frames dropped, %d samples overflowed", s.status.DroppedFrames, s.status.OverflowSamples)
	if s.status.DroppedFrames > 0 || s.status.OverflowSamples > 0 {
		losses = warnStyle.Render(losses)
	}
	row("Losses", losses)
	if s.status.Recording {
		row("Recording", warnStyle.Render("●"))
	}

	if f.NumBins() > 0 {
		bin, db := f.Peak()
		peak := fmt.Sprintf("bin %d, %.1f Hz, %.1f dB", bin, f.BinFrequency(bin), db)
		if f.Stereo() {
			peak += fmt.Sprintf(", pan %+.2f", f.Pan[bin])
		}
		row("Peak", highlightStyle.Render(peak))
	}

	if len(f.Bands) > 0 {
		sb.WriteString("\n")
		for i, level := range f.Bands {
			name := ""
			if i < len(f.BandNames) {
				name = f.BandNames[i]
			}
			sb.WriteString(labelStyle.Render(name))
			sb.WriteString(bar.ViewAs(levelFraction(level)))
			sb.WriteString(fmt.Sprintf(" %6.1f dB\n", level))
		}
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("q: Quit"))
	return sb.String()
}

var _ transport.Transport = (*Monitor)(nil)
