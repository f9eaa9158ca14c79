package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tessro/encore/internal/core"
	"github.com/tessro/encore/internal/history"
)

// Table provides a simple table formatter.
type Table struct {
	w       *tabwriter.Writer
	headers []string
}

// NewTableWriter creates a table writing to out.
func NewTableWriter(out io.Writer, headers ...string) *Table {
	t := &Table{
		w:       tabwriter.NewWriter(out, 0, 0, 2, ' ', 0),
		headers: headers,
	}
	if len(headers) > 0 {
		_, _ = t.w.Write([]byte(strings.Join(headers, "\t") + "\n"))
	}
	return t
}

// Row adds a row to the table.
func (t *Table) Row(values ...string) {
	_, _ = t.w.Write([]byte(strings.Join(values, "\t") + "\n"))
}

// Flush writes the table output.
func (t *Table) Flush() {
	_ = t.w.Flush()
}

// writeJSON encodes v as indented JSON.
func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// TruncateString truncates a string to maxLen runes, adding "..." if truncated.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// FormatDuration formats a duration as m:ss or h:mm:ss.
func FormatDuration(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatProgress formats a progress bar.
func FormatProgress(current, total time.Duration, width int) string {
	if total <= 0 {
		return strings.Repeat("─", width)
	}

	filled := int(float64(current) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	return strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
}

// historyOutput is the JSON shape of a history command.
type historyOutput struct {
	Identity string               `json:"identity"`
	Result   string               `json:"result"`
	Backend  string               `json:"backend,omitempty"`
	Reason   string               `json:"reason,omitempty"`
	Songs    []core.HistoryRecord `json:"songs"`
}

func newHistoryOutput(id core.Identity, res history.Result) historyOutput {
	out := historyOutput{
		Identity: id.String(),
		Result:   res.Kind.String(),
		Backend:  string(res.Backend),
		Songs:    res.Records,
	}
	if res.Reason != nil {
		out.Reason = res.Reason.Error()
	}
	if out.Songs == nil {
		out.Songs = []core.HistoryRecord{}
	}
	return out
}

// printHistory renders records as a table, most recent first.
func printHistory(out io.Writer, records []core.HistoryRecord, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No recently played songs")
		return
	}
	t := NewTableWriter(out, "#", "TITLE", "ARTIST", "FILE", "PLAYED")
	for i, r := range records {
		t.Row(
			fmt.Sprintf("%d", i+1),
			TruncateString(r.Title, 32),
			TruncateString(r.Artist, 24),
			TruncateString(r.Filename, 32),
			humanize.RelTime(r.PlayedAt, now, "ago", "from now"),
		)
	}
	t.Flush()
}

// resultNote describes a non-Ok history result for stderr.
func resultNote(res history.Result) string {
	switch res.Kind {
	case history.Fallback:
		return fmt.Sprintf("Remote history unavailable, showing local history (%v)", res.Reason)
	case history.Fail:
		return fmt.Sprintf("History operation failed: %v", res.Reason)
	default:
		return ""
	}
}
