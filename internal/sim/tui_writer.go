package sim

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"loadalert-sim/internal/config"
	"loadalert-sim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// readingMsg carries a new reading and the log counters after it was appended.
type readingMsg struct {
	reading   telemetry.Reading
	summary   telemetry.Summary
	threshold float64
}

// adminMsg reports admin UI status.
type adminMsg struct{ active bool }

type setControlsMsg struct{ controls Controls }

// thresholdMsg reports the outcome of a threshold change.
type thresholdMsg struct {
	value float64
	err   error
}

type clearedMsg struct{}

type manualMsg struct{ err error }

const (
	maxLogLines      = 1000
	maxKeptReadings  = 500
	thresholdStep    = 0.5
	sparkHeight      = 2
	fallbackMapPoint = 30
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// TUIWriter renders telemetry using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool

	mu       sync.Mutex
	controls Controls
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
// Quitting the TUI interrupts the process so the simulate command shuts down.
func NewTUIWriter(cfg *config.SimulationConfig) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements TelemetryWriter.
func (w *TUIWriter) Write(r telemetry.Reading) error {
	w.mu.Lock()
	c := w.controls
	w.mu.Unlock()

	msg := readingMsg{reading: r, threshold: math.NaN()}
	if c.Summary != nil {
		msg.summary = c.Summary()
	}
	if c.Threshold != nil {
		msg.threshold = c.Threshold()
	}
	w.program.Send(msg)
	return nil
}

// WriteBatch outputs multiple readings.
func (w *TUIWriter) WriteBatch(rs []telemetry.Reading) error {
	for _, r := range rs {
		_ = w.Write(r)
	}
	return nil
}

// SetControls registers the simulator operations bound to keys.
func (w *TUIWriter) SetControls(c Controls) {
	w.mu.Lock()
	w.controls = c
	w.mu.Unlock()
	w.program.Send(setControlsMsg{controls: c})
}

// SetAdminStatus updates the admin UI indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	cfg          *config.SimulationConfig
	controls     Controls
	table        table.Model
	vp           viewport.Model
	manualInput  textinput.Model
	manualDialog bool
	logs         []string
	readings     []telemetry.Reading
	summary      telemetry.Summary
	threshold    float64
	status       string
	admin        bool
	wrap         bool
	autoscroll   bool
	showMap      bool
	help         bool
	header       string
	headerHeight int
	height       int
}

func newTUIModel(cfg *config.SimulationConfig) tuiModel {
	cols := []table.Column{
		{Title: "Config", Width: 18},
		{Title: "Value", Width: 14},
	}
	rows := []table.Row{
		{"Truck", cfg.TruckID},
		{"Weight Bounds (t)", fmt.Sprintf("%.1f - %.1f", cfg.WeightBounds.Min, cfg.WeightBounds.Max)},
		{"Noise Std", fmt.Sprintf("%.3f", cfg.NoiseStd)},
		{"Jump Probability", fmt.Sprintf("%.2f", cfg.JumpProbability)},
		{"Jump Range (t)", fmt.Sprintf("%.1f - %.1f", cfg.JumpRange.Min, cfg.JumpRange.Max)},
		{"Tick", fmt.Sprintf("%s x %d", cfg.TickInterval, cfg.PointsPerTick)},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	m := tuiModel{
		cfg:        cfg,
		table:      t,
		vp:         viewport.New(0, 0),
		threshold:  cfg.Threshold,
		autoscroll: true,
	}
	m.header = m.renderHeader()
	m.headerHeight = lipgloss.Height(m.header)
	return m
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.vp.Width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width / 2)
		m.refreshHeader()
		m.refreshViewport()
	case tea.KeyMsg:
		return m.handleKey(msg)
	case readingMsg:
		m.readings = append(m.readings, msg.reading)
		if len(m.readings) > maxKeptReadings {
			m.readings = m.readings[len(m.readings)-maxKeptReadings:]
		}
		if msg.summary.Latest != nil {
			m.summary = msg.summary
		} else {
			// no log attached; count what the writer has seen
			m.summary.Total++
			if msg.reading.Alert {
				m.summary.Overloads++
			}
			r := msg.reading
			m.summary.Latest = &r
		}
		if !math.IsNaN(msg.threshold) {
			m.threshold = msg.threshold
		}
		m.logs = append(m.logs, formatReading(msg.reading))
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshHeader()
		m.refreshViewport()
	case thresholdMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("threshold unchanged: %v", msg.err)
		} else {
			m.threshold = msg.value
			m.status = fmt.Sprintf("threshold set to %.2f t", msg.value)
		}
		m.refreshHeader()
	case clearedMsg:
		m.logs = nil
		m.readings = nil
		m.summary = telemetry.Summary{}
		m.status = "log cleared"
		m.refreshHeader()
		m.refreshViewport()
	case manualMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("manual reading rejected: %v", msg.err)
		} else {
			m.status = "manual reading sent"
		}
	case adminMsg:
		m.admin = msg.active
	case setControlsMsg:
		m.controls = msg.controls
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.manualDialog {
		switch msg.Type {
		case tea.KeyEnter:
			m.manualDialog = false
			m.updateViewportHeight()
			weight, lat, lon, err := parseManualInput(m.manualInput.Value())
			if err != nil {
				m.status = fmt.Sprintf("manual reading rejected: %v", err)
				return m, nil
			}
			return m, m.manualCmd(weight, lat, lon)
		case tea.KeyEsc:
			m.manualDialog = false
			m.updateViewportHeight()
			return m, nil
		default:
			var cmd tea.Cmd
			m.manualInput, cmd = m.manualInput.Update(msg)
			return m, cmd
		}
	}
	if m.help {
		switch msg.String() {
		case "?", "h", "esc":
			m.help = false
			m.updateViewportHeight()
		}
		return m, nil
	}
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "w":
		m.wrap = !m.wrap
		m.refreshViewport()
		return m, nil
	case "s":
		m.autoscroll = !m.autoscroll
		if m.autoscroll {
			m.vp.GotoBottom()
		}
		return m, nil
	case "m":
		m.showMap = !m.showMap
		return m, nil
	case "+", "=":
		return m, m.thresholdCmd(thresholdStep)
	case "-":
		return m, m.thresholdCmd(-thresholdStep)
	case "c":
		return m, m.clearCmd()
	case "e":
		m.manualInput = textinput.New()
		m.manualInput.Placeholder = "weight,lat,lon"
		val := fmt.Sprintf("%.3f,%.6f,%.6f", m.cfg.Initial.Weight, m.cfg.Initial.Lat, m.cfg.Initial.Lon)
		if last := m.summary.Latest; last != nil {
			val = fmt.Sprintf("%.3f,%.6f,%.6f", last.Weight, last.Lat, last.Lon)
		}
		m.manualInput.SetValue(val)
		m.manualInput.CursorEnd()
		m.manualInput.Focus()
		m.manualDialog = true
		m.updateViewportHeight()
		return m, nil
	case "h", "?":
		m.help = !m.help
		m.updateViewportHeight()
		return m, nil
	}
	if !m.autoscroll {
		switch msg.String() {
		case "j", "down":
			m.vp.LineDown(1)
		case "k", "up":
			m.vp.LineUp(1)
		case "pgdown", "ctrl+n":
			m.vp.LineDown(10)
		case "pgup", "ctrl+p":
			m.vp.LineUp(10)
		default:
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m tuiModel) thresholdCmd(delta float64) tea.Cmd {
	adjust := m.controls.AdjustThreshold
	if adjust == nil {
		return nil
	}
	return func() tea.Msg {
		v, err := adjust(delta)
		return thresholdMsg{value: v, err: err}
	}
}

func (m tuiModel) clearCmd() tea.Cmd {
	reset := m.controls.Clear
	if reset == nil {
		return nil
	}
	return func() tea.Msg {
		reset()
		return clearedMsg{}
	}
}

func (m tuiModel) manualCmd(weight, lat, lon float64) tea.Cmd {
	manual := m.controls.Manual
	if manual == nil {
		return nil
	}
	return func() tea.Msg {
		return manualMsg{err: manual(weight, lat, lon)}
	}
}

func parseManualInput(val string) (weight, lat, lon float64, err error) {
	parts := strings.Split(val, ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("expected weight,lat,lon")
	}
	nums := make([]float64, 3)
	for i, p := range parts {
		if nums[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
			return 0, 0, 0, err
		}
	}
	return nums[0], nums[1], nums[2], nil
}

func (m *tuiModel) refreshHeader() {
	m.header = m.renderHeader()
	m.headerHeight = lipgloss.Height(m.header)
	m.updateViewportHeight()
}

func (m *tuiModel) updateViewportHeight() {
	bottomHeight := lipgloss.Height(m.renderBottom())
	h := m.height - m.headerHeight - sparkHeight - bottomHeight - 3
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	body := m.vp.View()
	if m.showMap {
		body = m.renderMap(m.vp.Width, m.vp.Height)
	}
	sections := []string{
		m.header,
		divider,
		renderSparkline(m.readings, m.threshold, m.vp.Width),
		divider,
		body,
		divider,
		m.renderBottom(),
	}
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderHeader() string {
	sep := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("│")
	return lipgloss.JoinHorizontal(lipgloss.Top, m.table.View(), sep, m.renderLatest())
}

func (m tuiModel) renderLatest() string {
	var b strings.Builder
	b.WriteString("Latest reading\n")
	last := m.summary.Latest
	if last == nil {
		b.WriteString("waiting for telemetry...\n")
	} else {
		fmt.Fprintf(&b, "Weight:    %.3f t\n", last.Weight)
		fmt.Fprintf(&b, "Location:  %.6f, %.6f\n", last.Lat, last.Lon)
		fmt.Fprintf(&b, "Time:      %s\n", last.Timestamp.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Threshold: %.2f t\n", m.threshold)
	fmt.Fprintf(&b, "Readings:  %d  Overloads: %d\n", m.summary.Total, m.summary.Overloads)
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("OK")
	if last != nil && last.Alert {
		status = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")).Render("OVERLOAD")
	}
	b.WriteString("Status:    " + status)
	return b.String()
}

func (m tuiModel) renderBottom() string {
	indicator := func(on bool) string {
		c := lipgloss.Color("9")
		if on {
			c = lipgloss.Color("10")
		}
		return lipgloss.NewStyle().Foreground(c).Render("●")
	}
	line := fmt.Sprintf("Admin UI %s | Wrap %s | Scroll %s | Map %s | Help %s",
		indicator(m.admin), indicator(m.wrap), indicator(m.autoscroll), indicator(m.showMap), indicator(m.help))
	if m.status != "" {
		line = fmt.Sprintf("%s | %s", line, m.status)
	}
	if m.manualDialog {
		return fmt.Sprintf("Manual reading (weight,lat,lon) - Enter to send, Esc to cancel: %s\n%s", m.manualInput.View(), line)
	}
	return line
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" w  toggle wrap for the reading log",
		" s  toggle auto-scroll",
		" m  toggle map of recent positions",
		" +  raise threshold by 0.5 t",
		" -  lower threshold by 0.5 t",
		" c  clear the reading log",
		" e  send a manual reading (weight,lat,lon)",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}

// renderSparkline draws the most recent weights as one bar per column, overloads in red,
// followed by a caption with the plotted range and threshold.
func renderSparkline(rs []telemetry.Reading, threshold float64, width int) string {
	if len(rs) == 0 || width <= 0 {
		return "Weight: no data\n"
	}
	if len(rs) > width {
		rs = rs[len(rs)-width:]
	}
	lo, hi := threshold, threshold
	for _, r := range rs {
		lo, hi = math.Min(lo, r.Weight), math.Max(hi, r.Weight)
	}
	span := hi - lo
	var b strings.Builder
	for _, r := range rs {
		idx := len(sparkLevels) - 1
		if span > 0 {
			idx = int((r.Weight - lo) / span * float64(len(sparkLevels)-1))
		}
		bar := string(sparkLevels[idx])
		if r.Alert {
			bar = colorRed + bar + colorReset
		}
		b.WriteString(bar)
	}
	fmt.Fprintf(&b, "\nWeight %.2f..%.2f t, threshold %.2f t", lo, hi, threshold)
	return b.String()
}

// renderMap plots the last map_window positions on a grid scaled to their bounding box.
// The newest point is '@', overloads are red 'X', the rest '*'.
func (m tuiModel) renderMap(width, height int) string {
	window := m.cfg.Admin.MapWindow
	if window <= 0 {
		window = fallbackMapPoint
	}
	rs := m.readings
	if len(rs) > window {
		rs = rs[len(rs)-window:]
	}
	if len(rs) == 0 {
		return "No position data"
	}
	height -= 2 // caption and legend
	if width < 1 || height < 1 {
		return "Map: window too small"
	}

	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for _, r := range rs {
		minLat, maxLat = math.Min(minLat, r.Lat), math.Max(maxLat, r.Lat)
		minLon, maxLon = math.Min(minLon, r.Lon), math.Max(maxLon, r.Lon)
	}
	if maxLat-minLat < 1e-6 {
		minLat, maxLat = minLat-0.0005, maxLat+0.0005
	}
	if maxLon-minLon < 1e-6 {
		minLon, maxLon = minLon-0.0005, maxLon+0.0005
	}

	grid := make([][]string, height)
	for i := range grid {
		row := make([]string, width)
		for j := range row {
			row[j] = "."
		}
		grid[i] = row
	}
	for i, r := range rs {
		x := int((r.Lon - minLon) / (maxLon - minLon) * float64(width-1))
		y := int((maxLat - r.Lat) / (maxLat - minLat) * float64(height-1))
		sym := "*"
		switch {
		case r.Alert:
			sym = colorRed + "X" + colorReset
		case i == len(rs)-1:
			sym = colorGreen + "@" + colorReset
		}
		if r.Alert && i == len(rs)-1 {
			sym = colorRed + "@" + colorReset
		}
		grid[y][x] = sym
	}

	var b strings.Builder
	fmt.Fprintf(&b, "last %d points  lat %.6f..%.6f lon %.6f..%.6f N↑\n", len(rs), maxLat, minLat, minLon, maxLon)
	for _, row := range grid {
		b.WriteString(strings.Join(row, ""))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%s@%s=latest *=reading %sX%s=overload", colorGreen, colorReset, colorRed, colorReset)
	return b.String()
}
