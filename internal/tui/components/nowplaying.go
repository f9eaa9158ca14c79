package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/encore/internal/core"
	"github.com/tessro/encore/internal/tui/styles"
)

// NowPlaying displays the current song and its progress.
type NowPlaying struct{}

// NewNowPlaying creates a new NowPlaying component
func NewNowPlaying() *NowPlaying {
	return &NowPlaying{}
}

// Render renders the now playing panel
func (n *NowPlaying) Render(s core.Session, identity core.Identity, width, height int) string {
	title := styles.PanelTitle("Now Playing", false)

	var content string
	if !s.HasSong() {
		content = styles.Muted.Render("Nothing playing")
		if s.LastError != nil {
			content = styles.Failed.Render("Error: " + s.LastError.Error())
		}
	} else {
		content = n.renderSong(s, width-4)
	}

	footer := styles.Dim.Render("Listening as " + identity.String())

	return styles.Panel(false).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", content, "", footer))
}

func (n *NowPlaying) renderSong(s core.Session, width int) string {
	song := s.Song

	icon := styles.StatusIcon(s.Status)
	title := styles.Title.Width(max(width-4, 1)).Render(styles.Truncate(song.DisplayTitle(), width-4))

	details := song.Artist
	if song.Language != "" {
		details += " · " + song.Language
	}
	if e := song.EmotionString(); e != "" {
		details += " · " + e
	}

	progressWidth := max(width-14, 10)
	progress := fmt.Sprintf("%s %s %s",
		formatDuration(s.Position),
		styles.ProgressBar(s.ProgressPercent(), progressWidth),
		formatDuration(s.Duration))

	lines := []string{
		icon + " " + title,
		"  " + styles.Subtitle.Render(details),
		"",
		progress,
		styles.Dim.Render(s.Status.String()),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}
