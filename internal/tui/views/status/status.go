// Package status renders the connection status bar with the unread
// counter badge.
package status

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/client"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	State    client.State
	Counter  int
	Server   string
	Filter   string
	Notice   string
	Width    int
	Pulse    Pulse
	spinner  spinner.Model
	spinning bool
}

// New creates a status bar model.
func New(server, filter string) Model {
	return Model{
		State:   client.StateDisconnected,
		Server:  server,
		Filter:  filter,
		Pulse:   NewPulse(),
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot)),
	}
}

// SetState records a new connection state. The returned command starts
// the spinner when the client begins waiting on the network.
func (m *Model) SetState(s client.State) tea.Cmd {
	m.State = s
	waiting := s == client.StateConnecting || s == client.StateError
	if waiting && !m.spinning {
		m.spinning = true
		return m.spinner.Tick
	}
	if !waiting {
		m.spinning = false
	}
	return nil
}

// SetCounter updates the badge and reports whether it went up.
func (m *Model) SetCounter(n int) bool {
	up := n > m.Counter
	m.Counter = n
	if up {
		m.Pulse.Kick()
	}
	return up
}

// Update advances the spinner while the client is not connected.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.spinning {
		return m, nil
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	stateStyle := lipgloss.NewStyle().Foreground(theme.StateColor(m.State))
	var connStr string
	switch m.State {
	case client.StateConnected:
		connStr = stateStyle.Render("● Connected")
	case client.StateConnecting:
		connStr = stateStyle.Render(m.spinner.View() + " Connecting...")
	case client.StateError:
		connStr = stateStyle.Render(m.spinner.View() + " Connection lost, reconnecting")
	default:
		connStr = stateStyle.Render("○ Disconnected")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + m.badge() + sep + theme.StyleDimmed.Render(m.Filter)
	if m.Server != "" {
		content += sep + theme.StyleDimmed.Render(m.Server)
	}
	if m.Notice != "" {
		content += sep + m.Notice
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) badge() string {
	label := fmt.Sprintf("🔔 %d", m.Counter)
	if m.Counter == 0 {
		return theme.StyleDimmed.Render(label)
	}
	style := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBadge)
	if m.Pulse.Lit() {
		style = style.Reverse(true)
	}
	return style.Render(label)
}
