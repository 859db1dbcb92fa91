// Package theme provides the Lip Gloss color palette and reusable styles
// for the notification TUI. It is a leaf package with no internal TUI
// imports to avoid import cycles.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/client"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

// Severity colors.
var (
	ColorSuccess = lipgloss.Color("#16a34a")
	ColorInfo    = lipgloss.Color("#2563eb")
	ColorWarning = lipgloss.Color("#d97706")
	ColorError   = lipgloss.Color("#dc2626")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBadge   = lipgloss.Color("#ef4444")
	ColorHealthy = lipgloss.Color("#22c55e")
)

// SeverityColor returns the Lip Gloss color for a notification severity.
func SeverityColor(s notify.Severity) lipgloss.Color {
	switch s {
	case notify.SeveritySuccess:
		return ColorSuccess
	case notify.SeverityInfo:
		return ColorInfo
	case notify.SeverityWarning:
		return ColorWarning
	case notify.SeverityError:
		return ColorError
	default:
		return ColorDefault
	}
}

// SeverityGlyph returns a one-cell marker for a severity.
func SeverityGlyph(s notify.Severity) string {
	switch s {
	case notify.SeveritySuccess:
		return "✓"
	case notify.SeverityInfo:
		return "i"
	case notify.SeverityWarning:
		return "!"
	case notify.SeverityError:
		return "✗"
	default:
		return "·"
	}
}

// StateColor returns the color for a connection state.
func StateColor(s client.State) lipgloss.Color {
	switch s {
	case client.StateConnected:
		return ColorHealthy
	case client.StateConnecting:
		return ColorWarning
	case client.StateError:
		return ColorError
	default:
		return ColorDimmed
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)
