package components

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/encore/internal/core"
	"github.com/tessro/encore/internal/tui/styles"
)

// cursor tracks a selection in a scrolling list.
type cursor struct {
	selected int
	offset   int
}

// Selected returns the selected index
func (c *cursor) Selected() int {
	return c.selected
}

// SelectNext moves the selection down
func (c *cursor) SelectNext(n int) {
	if c.selected < n-1 {
		c.selected++
	}
}

// SelectPrev moves the selection up
func (c *cursor) SelectPrev() {
	if c.selected > 0 {
		c.selected--
	}
}

// Reset moves the selection to the top
func (c *cursor) Reset() {
	c.selected, c.offset = 0, 0
}

func (c *cursor) clamp(n int) {
	if c.selected >= n {
		c.selected = max(n-1, 0)
	}
}

// window returns the visible range, scrolling to keep the selection in view.
func (c *cursor) window(n, lines int) (int, int) {
	lines = max(lines, 1)
	if c.selected < c.offset {
		c.offset = c.selected
	}
	if c.selected >= c.offset+lines {
		c.offset = c.selected - lines + 1
	}
	return c.offset, min(c.offset+lines, n)
}

// Library displays the songs that can be played.
type Library struct {
	cursor
}

// NewLibrary creates a new Library component
func NewLibrary() *Library {
	return &Library{}
}

// Render renders the library panel. visible holds indexes into songs.
func (l *Library) Render(songs []core.Song, visible []int, current *core.Song, filter string, width, height int, focused bool) string {
	title := styles.PanelTitle("Library", focused)
	l.clamp(len(visible))

	var content string
	switch {
	case len(songs) == 0:
		content = styles.Muted.Render("No songs. Set library.path or pass filenames.")
	case len(visible) == 0:
		content = styles.Muted.Render("No songs match")
	default:
		content = l.renderSongs(songs, visible, current, width-4, height-6)
	}

	footer := ""
	if filter != "" {
		footer = styles.Dim.Render("filter: " + filter)
	}

	return styles.Panel(focused).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", content, "", footer))
}

func (l *Library) renderSongs(songs []core.Song, visible []int, current *core.Song, width, maxLines int) string {
	start, end := l.window(len(visible), maxLines)
	lines := make([]string, 0, end-start)

	for i := start; i < end; i++ {
		song := songs[visible[i]]

		marker := "  "
		if current.Same(&song) {
			marker = styles.Playing.Render("♪ ")
		}
		label := song.DisplayTitle()
		if song.Artist != "" {
			label += " — " + song.Artist
		}
		line := marker + styles.Truncate(label, width-2)
		if i == l.selected {
			line = styles.Selected.Render(line)
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
