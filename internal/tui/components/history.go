package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tessro/encore/internal/core"
	"github.com/tessro/encore/internal/tui/styles"
)

// History displays the recently played list of the current identity.
type History struct {
	cursor
	now func() time.Time
}

// NewHistory creates a new History component
func NewHistory() *History {
	return &History{now: time.Now}
}

// Render renders the history panel
func (h *History) Render(records []core.HistoryRecord, status string, width, height int, focused bool) string {
	title := styles.PanelTitle("History", focused)
	h.clamp(len(records))

	var content string
	if len(records) == 0 {
		content = styles.Muted.Render("No history yet")
	} else {
		content = h.renderRecords(records, width-4, height-6)
	}

	return styles.Panel(focused).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", content, "", styles.Dim.Render(status)))
}

func (h *History) renderRecords(records []core.HistoryRecord, width, maxLines int) string {
	start, end := h.window(len(records), maxLines)
	lines := make([]string, 0, end-start)

	for i := start; i < end; i++ {
		rec := records[i]
		ago := humanize.RelTime(rec.PlayedAt, h.now(), "ago", "from now")

		info := styles.Truncate(fmt.Sprintf("%s — %s", rec.Song().DisplayTitle(), rec.Artist), width-len(ago)-3)
		padding := max(width-2-lipgloss.Width(info)-len(ago), 1)
		line := fmt.Sprintf("%s %s%s%s", styles.Dim.Render("✓"), info,
			lipgloss.NewStyle().Width(padding).Render(""), styles.Dim.Render(ago))

		if i == h.selected {
			line = styles.Selected.Render(line)
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
