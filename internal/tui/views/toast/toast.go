// Package toast renders the stack of notification popups.
package toast

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/client"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/tui/theme"
)

const (
	maxVisible = 4
	boxWidth   = 44
)

type item struct {
	id    int
	toast client.Toast
}

// Model is the toast stack, newest first.
type Model struct {
	items  []item
	nextID int
}

func New() Model {
	return Model{}
}

// Push adds a toast and returns its id. Non-sticky toasts should be
// expired with Expire once their Duration has passed.
func (m *Model) Push(t client.Toast) int {
	m.nextID++
	m.items = append([]item{{id: m.nextID, toast: t}}, m.items...)
	return m.nextID
}

// Expire removes the toast with the given id. Unknown ids are ignored.
func (m *Model) Expire(id int) {
	for i, it := range m.items {
		if it.id == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return
		}
	}
}

// DismissAll removes every toast, sticky ones included.
func (m *Model) DismissAll() {
	m.items = nil
}

func (m Model) Len() int {
	return len(m.items)
}

// Toasts returns the current stack, newest first.
func (m Model) Toasts() []client.Toast {
	out := make([]client.Toast, len(m.items))
	for i, it := range m.items {
		out[i] = it.toast
	}
	return out
}

func (m Model) View() string {
	if len(m.items) == 0 {
		return ""
	}
	visible := m.items
	if len(visible) > maxVisible {
		visible = visible[:maxVisible]
	}

	boxes := make([]string, 0, len(visible)+1)
	for _, it := range visible {
		boxes = append(boxes, renderToast(it.toast))
	}
	if hidden := len(m.items) - len(visible); hidden > 0 {
		boxes = append(boxes, theme.StyleDimmed.Render(fmt.Sprintf("+%d more", hidden)))
	}
	return lipgloss.JoinVertical(lipgloss.Right, boxes...)
}

func renderToast(t client.Toast) string {
	color := theme.SeverityColor(t.Severity)
	title := lipgloss.NewStyle().Bold(true).Foreground(color).
		Render(theme.SeverityGlyph(t.Severity) + " " + t.Title)

	lines := []string{title}
	if t.Body != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorBright).Render(t.Body))
	}
	if t.Sticky() {
		lines = append(lines, theme.StyleDimmed.Render("[x] dismiss"))
	} else if !t.Event.Timestamp.IsZero() {
		lines = append(lines, theme.StyleDimmed.Render(t.Event.Timestamp.Local().Format(time.TimeOnly)))
	}

	return lipgloss.NewStyle().
		Width(boxWidth).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Render(strings.Join(lines, "\n"))
}
