package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/encore/internal/core"
)

// Colors
var (
	Primary   = lipgloss.Color("#7C3AED") // Purple
	Secondary = lipgloss.Color("#10B981") // Green
	Accent    = lipgloss.Color("#F59E0B") // Amber

	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Info    = lipgloss.Color("#3B82F6")

	Border    = lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#4B5563"}
	Text      = lipgloss.AdaptiveColor{Light: "#111827", Dark: "#F9FAFB"}
	TextMuted = lipgloss.AdaptiveColor{Light: "#4B5563", Dark: "#9CA3AF"}
	TextDim   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#6B7280"}
	Selection = lipgloss.AdaptiveColor{Light: "#E5E7EB", Dark: "#374151"}
)

// Text styles
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Text)

	Subtitle = lipgloss.NewStyle().
			Foreground(TextMuted)

	Label = lipgloss.NewStyle().
		Foreground(TextDim)

	Highlight = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	Muted = lipgloss.NewStyle().
		Foreground(TextMuted)

	Dim = lipgloss.NewStyle().
		Foreground(TextDim)

	Playing = lipgloss.NewStyle().
		Foreground(Secondary)

	Paused = lipgloss.NewStyle().
		Foreground(Warning)

	Failed = lipgloss.NewStyle().
		Foreground(Error)

	Selected = lipgloss.NewStyle().
			Background(Selection)
)

// Border styles
var (
	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Border)

	FocusedBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary)
)

// ApplyTheme forces a light or dark palette. "auto" leaves detection to
// lipgloss.
func ApplyTheme(theme string) {
	switch theme {
	case "dark":
		lipgloss.SetHasDarkBackground(true)
	case "light":
		lipgloss.SetHasDarkBackground(false)
	}
}

// Panel returns the frame style for a panel.
func Panel(focused bool) lipgloss.Style {
	if focused {
		return FocusedBorder.Padding(0, 1)
	}
	return BorderStyle.Padding(0, 1)
}

// PanelTitle creates a styled panel title
func PanelTitle(title string, focused bool) string {
	style := Label
	if focused {
		style = Highlight
	}
	return style.Render(" " + title + " ")
}

// ProgressBar creates a progress bar string
func ProgressBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	filled = max(0, min(filled, width))

	filledStyle := lipgloss.NewStyle().Foreground(Primary)
	emptyStyle := lipgloss.NewStyle().Foreground(Border)

	return filledStyle.Render(strings.Repeat("━", filled)) +
		emptyStyle.Render(strings.Repeat("─", width-filled))
}

// StatusIcon returns an icon for a playback status.
func StatusIcon(status core.Status) string {
	switch status {
	case core.StatusPlaying:
		return Playing.Render("▶")
	case core.StatusPaused:
		return Paused.Render("⏸")
	case core.StatusLoading:
		return Muted.Render("…")
	case core.StatusFinished:
		return Muted.Render("✓")
	case core.StatusError:
		return Failed.Render("✗")
	default:
		return Dim.Render("■")
	}
}

// Truncate shortens s to width runes, ending in an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}
