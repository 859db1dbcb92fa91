// Package history provides the scrollable list of received notifications.
package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/tui/theme"
)

const maxEntries = 200

// Model holds the received notifications, oldest first.
type Model struct {
	Entries []notify.Event
	// Offset is the distance of the selected entry from the newest one.
	Offset int
}

func New() Model {
	return Model{}
}

// Add appends an event and caps the buffer. A selection away from the
// newest entry stays on the same event.
func (m *Model) Add(e notify.Event) {
	m.Entries = append(m.Entries, e)
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	if m.Offset > 0 {
		m.Offset++
	}
	m.clamp()
}

// Up selects an older entry.
func (m *Model) Up(n int) {
	m.Offset += n
	m.clamp()
}

// Down selects a newer entry.
func (m *Model) Down(n int) {
	m.Offset -= n
	m.clamp()
}

func (m *Model) clamp() {
	max := len(m.Entries) - 1
	if max < 0 {
		max = 0
	}
	if m.Offset > max {
		m.Offset = max
	}
	if m.Offset < 0 {
		m.Offset = 0
	}
}

// Selected returns the highlighted event.
func (m Model) Selected() (notify.Event, bool) {
	if len(m.Entries) == 0 {
		return notify.Event{}, false
	}
	return m.Entries[len(m.Entries)-1-m.Offset], true
}

// View renders the newest entries that fit in height lines, keeping the
// selection visible.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	visibleLines := height - 2
	if visibleLines < 3 {
		visibleLines = 3
	}

	title := theme.StyleHeader.Render(fmt.Sprintf(" NOTIFICATIONS (%d) ", len(m.Entries)))
	if len(m.Entries) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, theme.StyleDimmed.Render("  Waiting for notifications..."))
	}

	selected := len(m.Entries) - 1 - m.Offset
	end := len(m.Entries)
	if selected < end-visibleLines {
		end = selected + visibleLines
	}
	start := end - visibleLines
	if start < 0 {
		start = 0
	}

	lines := []string{title}
	for i := start; i < end; i++ {
		lines = append(lines, renderLine(m.Entries[i], i == selected, innerW))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderLine(e notify.Event, selected bool, width int) string {
	prefix := "  "
	if selected {
		prefix = "> "
	}
	ts := theme.StyleDimmed.Render(e.Timestamp.Local().Format(time.TimeOnly))
	glyph := lipgloss.NewStyle().Foreground(theme.SeverityColor(e.Severity)).Render(theme.SeverityGlyph(e.Severity))
	module := lipgloss.NewStyle().Foreground(theme.ColorDimmed).Width(10).Render(e.Module)

	text := e.Title
	if e.Body != "" {
		text += ": " + e.Body
	}
	if limit := width - 24; limit > 3 && len(text) > limit {
		text = text[:limit-3] + "..."
	}
	text = strings.ReplaceAll(text, "\n", " ")
	if selected {
		text = theme.StyleSelected.Render(text)
	}
	return fmt.Sprintf("%s%s %s %s %s", prefix, ts, glyph, module, text)
}
