// Package app is the scanner's root Bubble Tea model. Its Update loop is
// the single event loop of the scan pipeline: frame batches, key presses,
// transport events and acknowledgments all arrive here as messages.
package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/scanrelay/scanrelay/internal/activation"
	"github.com/scanrelay/scanrelay/internal/client"
	"github.com/scanrelay/scanrelay/internal/dispatch"
	"github.com/scanrelay/scanrelay/internal/frames"
	"github.com/scanrelay/scanrelay/internal/permission"
	"github.com/scanrelay/scanrelay/internal/scan"
	"github.com/scanrelay/scanrelay/internal/theme"
	"github.com/scanrelay/scanrelay/internal/views/debug"
	"github.com/scanrelay/scanrelay/internal/views/flash"
	"github.com/scanrelay/scanrelay/internal/views/help"
	"github.com/scanrelay/scanrelay/internal/views/history"
	"github.com/scanrelay/scanrelay/internal/views/status"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayHistory
	OverlayDebug
	OverlayHelp
)

// Transport is the part of client.Session the model drives.
type Transport interface {
	Connect(ctx context.Context) tea.Cmd
	ReadLoop(ctx context.Context) tea.Cmd
	Status() client.Status
}

// Deps are the collaborators the model is built from. They are constructed
// once by main and shared for the life of the program. History and
// Symbologies are optional; everything else is required.
type Deps struct {
	Transport   Transport
	History     history.Fetcher
	Permissions permission.Gate
	Source      frames.Source
	Symbologies []scan.Symbology
	Dispatcher  *dispatch.Dispatcher
}

func (d Deps) validate() error {
	var missing []string
	if d.Transport == nil {
		missing = append(missing, "Transport")
	}
	if d.Permissions == nil {
		missing = append(missing, "Permissions")
	}
	if d.Source == nil {
		missing = append(missing, "Source")
	}
	if d.Dispatcher == nil {
		missing = append(missing, "Dispatcher")
	}
	if len(missing) > 0 {
		return fmt.Errorf("app: missing deps: %s", strings.Join(missing, ", "))
	}
	return nil
}

// PermissionMsg carries the outcome of the startup permission round.
type PermissionMsg struct{ permission.Result }

// Model is the root Bubble Tea model.
type Model struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc

	controller *activation.Controller

	// Frame subscription. sub increments on every open so batches from an
	// earlier subscription can be told apart and dropped.
	sub          int
	subCancel    context.CancelFunc
	subscription <-chan scan.Batch

	keys    KeyMap
	width   int
	height  int
	overlay Overlay

	statusBar status.Model
	debugLog  debug.Model
	history   history.Model
	flash     flash.Model
	help      *help.Model

	permsKnown bool
	lastScan   *dispatch.AckMsg
	acks       int
	failed     int
}

// New creates the root model. It panics if a required dependency is nil.
func New(deps Deps) Model {
	if err := deps.validate(); err != nil {
		panic(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if len(deps.Symbologies) == 0 {
		deps.Symbologies = scan.DefaultSymbologies
	}
	keys := DefaultKeyMap()
	m := Model{
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
		controller: activation.New(scan.NewGate()),
		keys:       keys,
		statusBar:  status.New(),
		debugLog:   debug.New(),
		history:    history.New(),
		flash:      flash.New(),
		help:       help.New(keys.Bindings()),
	}
	m.statusBar.AckMode = string(deps.Dispatcher.Mode())
	m.syncStatus()
	return m
}

// Init requests permissions and starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.requestPermissions(),
		m.deps.Transport.Connect(m.ctx),
		m.statusBar.Tick(),
	)
}

func (m Model) requestPermissions() tea.Cmd {
	ctx, gate := m.ctx, m.deps.Permissions
	return func() tea.Msg {
		return PermissionMsg{permission.RequestAll(ctx, gate)}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := m.update(msg)
	next.syncStatus()
	return next, cmd
}

func (m Model) update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case PermissionMsg:
		m.permsKnown = true
		m.controller.SetCameraPermission(msg.Camera)
		if msg.Err != nil {
			log.Printf("permission request failed: %v", msg.Err)
			m.debugLog.Record(debug.KindError, "permission request: %v", msg.Err)
		}
		m.debugLog.Record(debug.KindPerm, "camera=%t media=%t", msg.Camera, msg.Media)
		if !msg.Media {
			log.Printf("media permission not granted; continuing without it")
		}
		if !msg.Camera {
			m.closeSubscription()
		}
		return m, nil

	case client.WSConnectedMsg:
		m.debugLog.Record(debug.KindConn, "connected")
		return m, m.deps.Transport.ReadLoop(m.ctx)

	case client.WSDisconnectedMsg:
		if msg.Err != nil {
			m.debugLog.Record(debug.KindConn, "disconnected: %v", msg.Err)
		} else {
			m.debugLog.Record(debug.KindConn, "disconnected")
		}
		return m, tea.Batch(m.deps.Transport.Connect(m.ctx), m.statusBar.Tick())

	case client.WSEventMsg:
		m.debugLog.Record(debug.KindConn, "%s %s", msg.Frame.Type, msg.Frame.Payload)
		return m, m.deps.Transport.ReadLoop(m.ctx)

	case frames.BatchMsg:
		if msg.Sub != m.sub || m.subCancel == nil {
			return m, nil
		}
		next := frames.Next(m.sub, m.subscription)
		accepted, ok := m.controller.Observe(msg.Batch)
		if !ok {
			return m, next
		}
		m.debugLog.Accepted(accepted.Value, string(accepted.Symbology))
		return m, tea.Batch(m.deps.Dispatcher.Dispatch(accepted), next)

	case frames.ClosedMsg:
		if msg.Sub == m.sub && m.subCancel != nil {
			m.debugLog.Record(debug.KindError, "frame source closed")
			m.exitScanner()
		}
		return m, nil

	case dispatch.AckMsg:
		cmd := m.acknowledge(msg)
		return m, cmd

	case flash.FrameMsg:
		var cmd tea.Cmd
		m.flash, cmd = m.flash.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.statusBar, cmd = m.statusBar.Update(msg)
		return m, cmd

	case history.LoadedMsg:
		m.history.SetLoaded(msg)
		if msg.Err != nil {
			m.debugLog.Record(debug.KindError, "history: %v", msg.Err)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.closeSubscription()
		m.cancel()
		return m, tea.Quit
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Up):
			m.debugLog.ScrollUp(1)
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Down):
			m.debugLog.ScrollDown(1)
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Filter):
			m.debugLog.ToggleScans()
		case m.overlay == OverlayHistory && key.Matches(msg, m.keys.History):
			cmd := m.loadHistory()
			return m, cmd
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Open):
		cmd := m.openScanner()
		return m, cmd

	case key.Matches(msg, m.keys.Trigger):
		if m.controller.PressTrigger() {
			m.debugLog.Armed()
		}
		return m, nil

	case key.Matches(msg, m.keys.Exit), key.Matches(msg, m.keys.Escape):
		if m.controller.CameraActive() {
			m.exitScanner()
			m.debugLog.Record(debug.KindScanner, "closed")
		}
		return m, nil

	case key.Matches(msg, m.keys.History):
		m.overlay = OverlayHistory
		cmd := m.loadHistory()
		return m, cmd

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		return m, nil
	}

	return m, nil
}

// openScanner activates the camera and subscribes to the frame source.
// Without camera permission nothing is subscribed.
func (m *Model) openScanner() tea.Cmd {
	if err := m.controller.OpenScanner(); err != nil {
		m.debugLog.Record(debug.KindPerm, "open refused: %v", err)
		return m.flash.Show("Camera permission denied", false, time.Now())
	}
	if m.subCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(m.ctx)
	ch, err := m.deps.Source.Subscribe(ctx, m.deps.Symbologies)
	if err != nil {
		cancel()
		m.controller.Exit()
		log.Printf("frame source subscribe failed: %v", err)
		m.debugLog.Record(debug.KindError, "frame source: %v", err)
		return m.flash.Show("Camera unavailable", false, time.Now())
	}

	m.sub++
	m.subCancel = cancel
	m.subscription = ch
	m.debugLog.Record(debug.KindScanner, "opened")
	return frames.Next(m.sub, ch)
}

// exitScanner cancels the frame subscription and returns to Idle,
// discarding a pending arm.
func (m *Model) exitScanner() {
	m.closeSubscription()
	m.controller.Exit()
}

func (m *Model) closeSubscription() {
	if m.subCancel != nil {
		m.subCancel()
		m.subCancel = nil
		m.subscription = nil
	}
}

func (m *Model) acknowledge(msg dispatch.AckMsg) tea.Cmd {
	m.acks++
	m.lastScan = &msg

	text := "Sent " + msg.Candidate.Value
	ok := true
	if msg.Err != nil {
		m.failed++
	}
	m.debugLog.Ack(msg.Candidate.Value, msg.Confirmed, msg.Err)
	switch {
	case msg.Confirmed:
		text = "Confirmed " + msg.Candidate.Value
	case msg.Err != nil && m.deps.Dispatcher.Mode() == dispatch.Confirmed:
		// Optimistic mode still shows "Sent" for a failed emit.
		text = fmt.Sprintf("Not confirmed: %s (%v)", msg.Candidate.Value, msg.Err)
		ok = false
	}
	return m.flash.Show(text, ok, msg.At)
}

func (m *Model) loadHistory() tea.Cmd {
	if m.deps.History == nil {
		return nil
	}
	m.history.Loading = true
	return history.Fetch(m.ctx, m.deps.History, history.DefaultLimit)
}

func (m *Model) syncStatus() {
	m.statusBar.Conn = m.deps.Transport.Status()
	m.statusBar.State = m.controller.State().String()
	m.statusBar.SetCounts(m.acks-m.failed, m.failed)
}

// State returns the activation state.
func (m Model) State() activation.State {
	return m.controller.State()
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	switch m.overlay {
	case OverlayHistory:
		body = m.history.View(m.width)
	case OverlayDebug:
		body = m.debugLog.View(m.width, m.height-4)
	case OverlayHelp:
		body = m.help.View(m.width)
	default:
		body = m.renderScanner()
	}

	sections := []string{m.statusBar.View()}
	if banner := m.flash.View(m.width); banner != "" {
		sections = append(sections, banner)
	}
	sections = append(sections,
		body,
		theme.StyleDimmed.Render("  o:open  t:trigger  x:close  h:history  d:log  ?:help  q:quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderScanner() string {
	state := m.controller.State()
	stateStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.StateColor(state.String()))

	var hint string
	switch state {
	case activation.Idle:
		switch {
		case !m.permsKnown:
			hint = "Requesting camera permission..."
		case !m.controller.CameraPermitted():
			hint = "Camera permission denied. The scanner cannot open."
		default:
			hint = "Press o to open the scanner."
		}
	case activation.Scanning:
		hint = "Camera live. Press t to arm for one scan."
	case activation.Armed:
		hint = "Armed. Point at a code..."
	}

	lines := []string{
		stateStyle.Render(theme.StateGlyph(state.String()) + " " + state.String()),
		"",
		hint,
	}
	if m.lastScan != nil {
		lines = append(lines, "",
			theme.StyleDimmed.Render("last: ")+theme.StyleSelected.Render(m.lastScan.Candidate.Value))
	}

	width := m.width - 4
	if width < 30 {
		width = 30
	}
	return theme.StyleBorder.Width(width).Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
