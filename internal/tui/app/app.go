// Package app is the root Bubble Tea model of the notification TUI.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/client"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/tui/theme"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/tui/views/detail"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/tui/views/history"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/tui/views/status"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/tui/views/toast"
)

const apiTimeout = 5 * time.Second

// Controller drives the notification connection. *client.Reconnector
// implements it. Its methods block, so the model only calls them from
// commands.
type Controller interface {
	Connect(cfg client.Config)
	Disconnect()
	ResetCounter()
}

// API is the non-streaming server surface. *client.HTTPClient implements
// it.
type API interface {
	Publish(ctx context.Context, req client.PublishRequest) error
	GetStats(ctx context.Context) (*client.ServerStats, error)
}

type toastExpiredMsg struct{ id int }

type pulseFrameMsg struct{}

type publishDoneMsg struct{ err error }

type statsMsg struct {
	stats *client.ServerStats
	err   error
}

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDetail
)

// Model is the root Bubble Tea model.
type Model struct {
	ctrl Controller
	api  API
	cfg  client.Config

	keys   KeyMap
	width  int
	height int

	statusBar status.Model
	toasts    toast.Model
	history   history.Model
	detail    detail.Model
	overlay   Overlay
	pulsing   bool
	published int
}

// New creates the root model. api may be nil, which disables publishing
// and stats.
func New(ctrl Controller, api API, cfg client.Config, server string) Model {
	return Model{
		ctrl:      ctrl,
		api:       api,
		cfg:       cfg,
		keys:      DefaultKeyMap(),
		statusBar: status.New(server, describeFilter(cfg)),
		toasts:    toast.New(),
		history:   history.New(),
	}
}

func describeFilter(cfg client.Config) string {
	s := "all modules"
	if cfg.Modules != "" {
		s = cfg.Modules
	}
	if cfg.UserID != "" {
		s += " @" + cfg.UserID
	}
	return s
}

// Init opens the connection.
func (m Model) Init() tea.Cmd {
	return m.connect()
}

func (m Model) connect() tea.Cmd {
	ctrl, cfg := m.ctrl, m.cfg
	return func() tea.Msg {
		ctrl.Connect(cfg)
		return nil
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StatusMsg:
		return m, m.statusBar.SetState(msg.State)

	case ToastMsg:
		id := m.toasts.Push(msg.Toast)
		if msg.Toast.Event.Kind == notify.KindMessage {
			m.history.Add(msg.Toast.Event)
		}
		if msg.Toast.Sticky() {
			return m, nil
		}
		return m, tea.Tick(msg.Toast.Duration, func(time.Time) tea.Msg {
			return toastExpiredMsg{id: id}
		})

	case toastExpiredMsg:
		m.toasts.Expire(msg.id)
		return m, nil

	case CounterMsg:
		if m.statusBar.SetCounter(msg.N) && !m.pulsing {
			m.pulsing = true
			return m, pulseFrame()
		}
		return m, nil

	case pulseFrameMsg:
		if m.statusBar.Pulse.Step() {
			return m, pulseFrame()
		}
		m.pulsing = false
		return m, nil

	case publishDoneMsg:
		if msg.err != nil {
			m.statusBar.Notice = lipgloss.NewStyle().Foreground(theme.ColorError).Render("publish failed: " + msg.err.Error())
		} else {
			m.statusBar.Notice = theme.StyleDimmed.Render("test notification sent")
		}
		return m, nil

	case statsMsg:
		if msg.err != nil {
			m.statusBar.Notice = lipgloss.NewStyle().Foreground(theme.ColorError).Render("stats failed: " + msg.err.Error())
			return m, nil
		}
		m.statusBar.Notice = theme.StyleDimmed.Render(fmt.Sprintf("%d subscribers  %d published  %d dropped",
			msg.stats.Subscribers, msg.stats.Published, msg.stats.Dropped))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.statusBar, cmd = m.statusBar.Update(msg)
		return m, cmd
	}

	return m, nil
}

func pulseFrame() tea.Cmd {
	return tea.Tick(status.FrameInterval, func(time.Time) tea.Msg { return pulseFrameMsg{} })
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.overlay != OverlayNone {
		if key.Matches(msg, m.keys.Escape) {
			m.overlay = OverlayNone
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		ctrl := m.ctrl
		return m, func() tea.Msg {
			ctrl.Disconnect()
			return tea.Quit()
		}

	case key.Matches(msg, m.keys.Reset):
		ctrl := m.ctrl
		return m, func() tea.Msg {
			ctrl.ResetCounter()
			return nil
		}

	case key.Matches(msg, m.keys.Dismiss):
		m.toasts.DismissAll()
		return m, nil

	case key.Matches(msg, m.keys.Reconnect):
		return m, m.connect()

	case key.Matches(msg, m.keys.Publish):
		if m.api == nil {
			m.statusBar.Notice = theme.StyleDimmed.Render("publishing unavailable")
			return m, nil
		}
		m.published++
		return m, publishTest(m.api, m.cfg, m.published)

	case key.Matches(msg, m.keys.Stats):
		if m.api == nil {
			m.statusBar.Notice = theme.StyleDimmed.Render("stats unavailable")
			return m, nil
		}
		api := m.api
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
			defer cancel()
			s, err := api.GetStats(ctx)
			return statsMsg{stats: s, err: err}
		}

	case key.Matches(msg, m.keys.Up):
		m.history.Up(1)
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.history.Down(1)
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if e, ok := m.history.Selected(); ok {
			m.detail = detail.New(e)
			m.overlay = OverlayDetail
		}
		return m, nil
	}

	return m, nil
}

// publishTest sends a test notification addressed to the configured
// module and user so it comes back on this client's own stream.
func publishTest(api API, cfg client.Config, n int) tea.Cmd {
	module := firstModule(cfg.Modules)
	req := client.PublishRequest{
		Severity: notify.SeverityInfo,
		Module:   module,
		Action:   notify.ActionMessage,
		Title:    fmt.Sprintf("Test notification #%d", n),
		Message:  "Sent from the terminal client",
		UserID:   cfg.UserID,
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
		defer cancel()
		return publishDoneMsg{err: api.Publish(ctx, req)}
	}
}

func firstModule(list string) string {
	first, _, _ := strings.Cut(list, ",")
	if first = strings.TrimSpace(first); first == "" {
		return "system"
	}
	return first
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	bodyHeight := m.height - 5
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	var body string
	if m.overlay == OverlayDetail {
		body = m.detail.View()
	} else {
		listWidth := m.width - 48
		if listWidth < 30 {
			listWidth = 30
		}
		list := lipgloss.NewStyle().Width(listWidth).Render(m.history.View(listWidth, bodyHeight))
		body = lipgloss.JoinHorizontal(lipgloss.Top, list, m.toasts.View())
	}

	sections := []string{m.statusBar.View()}
	if m.statusBar.State == client.StateError {
		sections = append(sections, lipgloss.NewStyle().Bold(true).Foreground(theme.ColorError).
			Render("  DISCONNECTED. Reconnecting..."))
	}
	sections = append(sections,
		body,
		theme.StyleDimmed.Render("  j/k:navigate  enter:detail  c:reset counter  x:dismiss  p:send test  s:stats  r:reconnect  q:quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
