package ui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/spx/internal/control"
	"github.com/desertthunder/spx/internal/session"
	"github.com/desertthunder/spx/internal/shared"
)

// DoublePressWindow is how long a side press waits for a second one.
const DoublePressWindow = 250 * time.Millisecond

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LoginView ViewState = iota
	PlayerView
	DeviceView
)

// Login is a login attempt waiting for its redirect.
type Login interface {
	URL() string
	Wait(ctx context.Context) error
}

// Controller is the session the TUI drives.
type Controller interface {
	LoggedIn() bool
	Snapshot() session.View
	Updates() <-chan struct{}
	StartLogin(ctx context.Context) (Login, error)
	Logout(ctx context.Context) error

	TogglePlay(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Transfer(ctx context.Context) error
	TransferTo(ctx context.Context, deviceID string) error
	Unlock(ctx context.Context) error
	AdjustVolume(ctx context.Context, delta float64) float64
	Devices(ctx context.Context) ([]control.Device, error)

	Gesture(ctx context.Context)
	Visible(ctx context.Context)
}

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	ctrl       Controller
	view       ViewState
	width      int
	height     int
	snapshot   session.View
	loginURL   string
	loggingIn  bool
	err        error
	deviceList list.Model
	spinner    spinner.Model
	help       help.Model
	keys       keyMap
	sideSeq    int
	sidePend   bool
	loginWait  time.Duration
}

// NewModel creates a new TUI model driving ctrl.
func NewModel(ctx context.Context, ctrl Controller) *Model {
	m := &Model{
		ctx:       ctx,
		ctrl:      ctrl,
		view:      LoginView,
		snapshot:  ctrl.Snapshot(),
		spinner:   spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		help:      help.New(),
		keys:      newKeyMap(),
		loginWait: 2 * time.Minute,
	}
	if ctrl.LoggedIn() {
		m.view = PlayerView
	}
	return m
}

// Init subscribes to session updates.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.spinner.Tick)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.deviceList.Width() != 0 {
			m.deviceList.SetSize(msg.Width-4, msg.Height-4)
		}
		return m, nil

	case tea.FocusMsg:
		return m, m.run(func(ctx context.Context) tea.Msg {
			m.ctrl.Visible(ctx)
			return nil
		})

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) && !(m.view == DeviceView && m.deviceList.FilterState() == list.Filtering) {
			return m, tea.Quit
		}
		var cmd tea.Cmd
		switch m.view {
		case LoginView:
			cmd = m.handleLoginKeys(msg)
		case PlayerView:
			cmd = m.handlePlayerKeys(msg)
		case DeviceView:
			cmd = m.handleDeviceKeys(msg)
		}
		return m, m.withGesture(cmd)

	case sessionUpdatedMsg:
		m.snapshot = m.ctrl.Snapshot()
		if m.ctrl.LoggedIn() && m.view == LoginView {
			m.view = PlayerView
		}
		return m, m.waitForUpdate()

	case loginStartedMsg:
		if msg.login == nil {
			m.loggingIn = false
			m.err = msg.err
			return m, nil
		}
		m.loginURL = msg.login.URL()
		m.err = msg.err
		return m, m.waitForLogin(msg.login)

	case loginDoneMsg:
		m.loggingIn = false
		m.loginURL = ""
		m.err = msg.err
		if msg.err == nil {
			m.view = PlayerView
		}
		m.snapshot = m.ctrl.Snapshot()
		return m, nil

	case loggedOutMsg:
		m.view = LoginView
		m.err = msg.err
		m.snapshot = m.ctrl.Snapshot()
		return m, nil

	case actionDoneMsg:
		m.snapshot = m.ctrl.Snapshot()
		return m, nil

	case volumeMsg:
		m.snapshot.Volume = float64(msg)
		return m, nil

	case devicesFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.deviceList = list.New(deviceItems(msg.devices), list.NewDefaultDelegate(), 0, 0)
		m.deviceList.Title = "Connect Devices"
		m.deviceList.SetSize(max(m.width-4, 20), max(m.height-4, 10))
		m.view = DeviceView
		return m, nil

	case sideTimeoutMsg:
		if !m.sidePend || msg.seq != m.sideSeq {
			return m, nil
		}
		m.sidePend = false
		if m.snapshot.Status != session.Ready {
			return m, nil
		}
		return m, m.action(m.ctrl.TogglePlay)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.view == DeviceView {
		var cmd tea.Cmd
		m.deviceList, cmd = m.deviceList.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case LoginView:
		return m.renderLogin()
	case PlayerView:
		return m.renderPlayer()
	case DeviceView:
		return m.renderDevices()
	default:
		return ""
	}
}

func (m *Model) handleLoginKeys(msg tea.KeyMsg) tea.Cmd {
	if !key.Matches(msg, m.keys.login) || m.loggingIn {
		return nil
	}
	m.loggingIn = true
	m.err = nil
	return m.run(func(ctx context.Context) tea.Msg {
		login, err := m.ctrl.StartLogin(ctx)
		return loginStartedMsg{login: login, err: err}
	})
}

func (m *Model) handlePlayerKeys(msg tea.KeyMsg) tea.Cmd {
	m.keys.follow(m.snapshot.Status)
	switch {
	case key.Matches(msg, m.keys.toggle):
		return m.action(m.ctrl.TogglePlay)
	case key.Matches(msg, m.keys.next):
		return m.action(m.ctrl.Next)
	case key.Matches(msg, m.keys.prev):
		return m.action(m.ctrl.Previous)
	case key.Matches(msg, m.keys.transfer):
		return m.action(m.ctrl.Transfer)
	case key.Matches(msg, m.keys.unlock):
		return m.action(m.ctrl.Unlock)
	case key.Matches(msg, m.keys.volUp):
		return m.volume(session.VolumeStep)
	case key.Matches(msg, m.keys.volDown):
		return m.volume(-session.VolumeStep)
	case key.Matches(msg, m.keys.side):
		return m.sidePress()
	case key.Matches(msg, m.keys.devices):
		return m.run(func(ctx context.Context) tea.Msg {
			devices, err := m.ctrl.Devices(ctx)
			return devicesFetchedMsg{devices: devices, err: err}
		})
	case key.Matches(msg, m.keys.logout):
		return m.run(func(ctx context.Context) tea.Msg {
			return loggedOutMsg{err: m.ctrl.Logout(ctx)}
		})
	}
	return nil
}

func (m *Model) handleDeviceKeys(msg tea.KeyMsg) tea.Cmd {
	if m.deviceList.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.back):
			m.view = PlayerView
			return nil
		case key.Matches(msg, m.keys.enter):
			selected, ok := m.deviceList.SelectedItem().(deviceItem)
			if !ok {
				return nil
			}
			m.view = PlayerView
			id := selected.device.ID
			return m.action(func(ctx context.Context) error { return m.ctrl.TransferTo(ctx, id) })
		}
	}

	var cmd tea.Cmd
	m.deviceList, cmd = m.deviceList.Update(msg)
	return cmd
}

// sidePress toggles on a single press and skips on a double press.
func (m *Model) sidePress() tea.Cmd {
	if m.sidePend {
		m.sidePend = false
		m.sideSeq++
		return m.action(m.ctrl.Next)
	}
	m.sidePend = true
	m.sideSeq++
	seq := m.sideSeq
	return tea.Tick(DoublePressWindow, func(time.Time) tea.Msg { return sideTimeoutMsg{seq: seq} })
}

// withGesture reports the key press as a gesture before running cmd.
func (m *Model) withGesture(cmd tea.Cmd) tea.Cmd {
	return func() tea.Msg {
		m.ctrl.Gesture(m.ctx)
		if cmd == nil {
			return nil
		}
		return cmd()
	}
}

func (m *Model) run(fn func(ctx context.Context) tea.Msg) tea.Cmd {
	return func() tea.Msg { return fn(m.ctx) }
}

func (m *Model) action(fn func(ctx context.Context) error) tea.Cmd {
	return m.run(func(ctx context.Context) tea.Msg {
		return actionDoneMsg{err: fn(ctx)}
	})
}

func (m *Model) volume(delta float64) tea.Cmd {
	return m.run(func(ctx context.Context) tea.Msg {
		return volumeMsg(m.ctrl.AdjustVolume(ctx, delta))
	})
}

func (m *Model) waitForUpdate() tea.Cmd {
	updates := m.ctrl.Updates()
	return func() tea.Msg {
		select {
		case <-updates:
			return sessionUpdatedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) waitForLogin(login Login) tea.Cmd {
	return m.run(func(ctx context.Context) tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, m.loginWait)
		defer cancel()
		return loginDoneMsg{err: login.Wait(ctx)}
	})
}

func (m *Model) renderLogin() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("spx"))
	b.WriteString("\n")

	switch {
	case m.loggingIn && m.loginURL != "":
		fmt.Fprintf(&b, "%s Waiting for Spotify authorization...\n\n", m.spinner.View())
		b.WriteString(styles.help.Render("If your browser did not open, visit:"))
		fmt.Fprintf(&b, "\n%s\n", m.loginURL)
	case m.loggingIn:
		fmt.Fprintf(&b, "%s Starting login...\n", m.spinner.View())
	default:
		b.WriteString("Not logged in.\n")
	}

	if m.err != nil {
		fmt.Fprintf(&b, "\n%s\n", styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
	} else if m.snapshot.Error != "" {
		fmt.Fprintf(&b, "\n%s\n", styles.err.Render(m.snapshot.Error))
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.login, m.keys.quit}))
	return b.String()
}

func (m *Model) renderPlayer() string {
	v := m.snapshot
	var b strings.Builder

	b.WriteString(styles.title.Render(fmt.Sprintf("spx • %s", statusLabel(v.Status))))
	b.WriteString("\n")

	if v.Status == session.Connecting {
		fmt.Fprintf(&b, "%s Connecting to Spotify...\n", m.spinner.View())
	}

	track := v.Playback.TrackName
	if track == "" {
		track = "Nothing playing"
	}
	icon := "▶"
	if v.Playback.Paused {
		icon = "⏸"
	}
	fmt.Fprintf(&b, "%s %s\n", icon, styles.track.Render(track))
	if v.Playback.Artists != "" {
		fmt.Fprintf(&b, "  %s\n", v.Playback.Artists)
	}
	fmt.Fprintf(&b, "  %s %s %s\n",
		shared.FormatMillis(v.Playback.Position),
		progressBar(v.Playback.Position, v.Playback.Duration, 30),
		shared.FormatMillis(v.Playback.Duration))
	fmt.Fprintf(&b, "  Volume %s %d%%\n", progressBar(int(math.Round(v.Volume*100)), 100, 10), int(math.Round(v.Volume*100)))

	if v.Unlock.NeedsUnlock && v.Unlock.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", styles.warn.Render(v.Unlock.Message))
	}
	if v.Error != "" {
		fmt.Fprintf(&b, "\n%s\n", styles.err.Render(v.Error))
	} else if m.err != nil {
		fmt.Fprintf(&b, "\n%s\n", styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	b.WriteString("\n")
	m.keys.follow(m.snapshot.Status)
	b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	return b.String()
}

func (m *Model) renderDevices() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.deviceList.View(), m.help.ShortHelpView(helpKeys))
}

func statusLabel(s session.Status) string {
	switch s {
	case session.Ready:
		return styles.ok.Render("ready")
	case session.NotReady:
		return styles.warn.Render("device offline")
	case session.Connecting:
		return "connecting"
	default:
		return s.String()
	}
}

// progressBar renders value/total as a fixed-width bar.
func progressBar(value, total, width int) string {
	filled := 0
	if total > 0 {
		filled = min(max(value*width/total, 0), width)
	}
	return styles.bar.Render(strings.Repeat("━", filled)) + styles.help.Render(strings.Repeat("─", width-filled))
}
