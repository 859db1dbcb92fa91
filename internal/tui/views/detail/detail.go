// Package detail renders the notification detail overlay.
package detail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	glamourstyles "github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/tui/theme"
)

const panelWidth = 72

var stylePanel = lipgloss.NewStyle().
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(theme.ColorBorder).
	Padding(0, 1)

var (
	mdRenderer      *glamour.TermRenderer
	mdRendererMu    sync.Mutex
	mdRendererWidth int
)

// renderMarkdown renders md at the given wrap width. It falls back to the
// raw text when the renderer cannot be built.
func renderMarkdown(md string, width int) string {
	mdRendererMu.Lock()
	defer mdRendererMu.Unlock()
	if mdRenderer == nil || mdRendererWidth != width {
		// A fixed style avoids the terminal background query that
		// WithAutoStyle performs while bubbletea owns stdin.
		r, err := glamour.NewTermRenderer(
			glamour.WithStyles(glamourstyles.DarkStyleConfig),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return md
		}
		mdRenderer = r
		mdRendererWidth = width
	}
	out, err := mdRenderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// Model holds the event shown in the overlay.
type Model struct {
	Event *notify.Event
}

func New(e notify.Event) Model {
	return Model{Event: &e}
}

// View renders the detail panel. Returns an empty string if no event is
// set.
func (m Model) View() string {
	if m.Event == nil {
		return ""
	}
	body := renderMarkdown(Markdown(*m.Event), panelWidth-4)
	footer := theme.StyleDimmed.Render("[esc] close")
	return stylePanel.Width(panelWidth).Render(body + "\n\n" + footer)
}

// Markdown describes an event as a markdown document.
func Markdown(e notify.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", e.Title)
	if e.Body != "" {
		b.WriteString(e.Body + "\n\n")
	}

	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "| %s | %s |\n", k, strings.ReplaceAll(v, "|", `\|`))
		}
	}
	row("Severity", string(e.Severity))
	row("Module", e.Module)
	row("Action", string(e.Action))
	row("User", e.UserID)
	row("ID", e.ID)
	if !e.Timestamp.IsZero() {
		row("Time", e.Timestamp.Local().Format(time.DateTime))
	}

	if len(e.Payload) > 0 {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, e.Payload, "", "  "); err != nil {
			pretty.Reset()
			pretty.Write(e.Payload)
		}
		b.WriteString("\n```json\n" + pretty.String() + "\n```\n")
	}
	return b.String()
}
