package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"ble-proximity.klederson.com/internal/ble"
	"ble-proximity.klederson.com/internal/config"
	"ble-proximity.klederson.com/internal/diag"
	"ble-proximity.klederson.com/internal/signal"
	"ble-proximity.klederson.com/internal/ui"
)

const historyLen = 120

// shared holds state shared between the Bubble Tea model copies and main.go.
// Because Bubble Tea uses value receivers, pointer fields ensure all copies
// see the same underlying data.
type shared struct {
	fw      *Firmware
	diag    *diag.Channel
	history *signal.Ring[float64]
}

// AppModel is the root Bubble Tea model. It only reads the firmware; all
// state changes happen in interrupt handlers.
type AppModel struct {
	width  int
	height int

	source string
	frame  time.Duration
	frozen bool
	halted error

	shared *shared

	// Cached snapshot
	snap       Snapshot
	lastBursts uint64
}

// New creates the terminal model for fw. source names the radio source
// shown in the menu bar.
func New(fw *Firmware, ch *diag.Channel, source string, fps int) AppModel {
	return AppModel{
		source: source,
		frame:  time.Second / time.Duration(max(fps, 1)),
		shared: &shared{
			fw:      fw,
			diag:    ch,
			history: signal.NewRing[float64](historyLen),
		},
	}
}

func (m AppModel) Init() tea.Cmd {
	return m.tickCmd()
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TickMsg:
		if !m.frozen {
			m.snap = m.shared.fw.Snapshot()
			if m.snap.Collector.Bursts != m.lastBursts {
				m.lastBursts = m.snap.Collector.Bursts
				m.shared.history.Push(float64(m.snap.Estimate))
			}
		}
		return m, m.tickCmd()

	case HaltMsg:
		m.halted = msg.Err
		m.snap = m.shared.fw.Snapshot()
		return m, nil
	}

	return m, nil
}

func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "f", "F":
		m.frozen = !m.frozen
	}
	return m, nil
}

func (m AppModel) state() ui.RunState {
	switch {
	case m.halted != nil || m.snap.Halted:
		return ui.StateHalted
	case m.frozen:
		return ui.StateFrozen
	}
	return ui.StateScanning
}

// Status converts the cached snapshot for the ui package.
func (m AppModel) Status() ui.Status {
	s := m.snap
	st := ui.Status{
		Estimate:  s.Estimate,
		RSSI:      signal.EstimateToRSSI(s.Estimate),
		Distance:  signal.EstimateDistance(s.Estimate),
		Frame:     s.Frame,
		Channel:   s.Channel,
		Listening: s.Listening,
		Minima:    s.Minima,
		Samples:   s.Collector.Samples,
		Skipped:   s.Collector.Skipped,
		Bursts:    s.Collector.Bursts,
		Received:  s.Radio.Received,
		Dropped:   s.Radio.Dropped,
		Spurious:  s.Spurious,
	}
	// A hop that is already due wraps to a huge delta until the timer
	// handler runs.
	if d := s.NextHop.Sub(s.Now); d <= ble.DurationFrom(config.UpdateInterval) {
		st.NextHopMs = float64(d) * 1000 / config.TicksPerSecond
	}
	if m.shared.diag != nil {
		st.LogDropped = m.shared.diag.Dropped()
	}
	return st
}

func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing " + config.AppName + "..."
	}

	bodyH := max(m.height-2, 9)
	matrixW := max(m.width/3, 24)
	signalW := max(m.width-matrixW, 30)

	st := m.Status()
	history := make([]float64, 0, m.shared.history.Len())
	for v := range m.shared.history.All() {
		history = append(history, v)
	}

	menuBar := ui.RenderMenuBar(m.width, m.source, m.state())
	matrixPanel := ui.RenderMatrixPanel(matrixW, bodyH, m.snap.Image, m.snap.Frame)
	signalPanel := ui.RenderSignalPanel(st, history, signalW, bodyH)
	statusBar := ui.RenderStatusBar(m.width, m.state(), st)

	return ui.ComposeLayout(menuBar, matrixPanel, signalPanel, statusBar)
}

func (m AppModel) tickCmd() tea.Cmd {
	return tea.Tick(m.frame, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
