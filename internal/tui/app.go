package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/encore/internal/core"
	"github.com/tessro/encore/internal/history"
	"github.com/tessro/encore/internal/identity"
	"github.com/tessro/encore/internal/library"
	"github.com/tessro/encore/internal/tui/components"
	"github.com/tessro/encore/internal/tui/styles"
)

// Panel represents which panel is focused
type Panel int

const (
	PanelLibrary Panel = iota
	PanelHistory
)

const actionTimeout = 10 * time.Second

// HistoryService is the part of the history engine the TUI uses.
type HistoryService interface {
	View() history.View
	Load(ctx context.Context, id core.Identity) history.Result
	Remove(ctx context.Context, filename string, id core.Identity) history.Result
	Clear(ctx context.Context, id core.Identity) history.Result
}

// App holds the TUI's collaborators.
type App struct {
	player      core.Player
	history     HistoryService
	identities  identity.Source
	songs       []core.Song
	refreshRate time.Duration
}

// NewApp creates a new TUI application
func NewApp(player core.Player, hist HistoryService, ids identity.Source, songs []core.Song, refreshRate time.Duration) *App {
	if refreshRate <= 0 {
		refreshRate = 500 * time.Millisecond
	}
	return &App{
		player:      player,
		history:     hist,
		identities:  ids,
		songs:       songs,
		refreshRate: refreshRate,
	}
}

// Model is the main TUI model
type Model struct {
	app     *App
	width   int
	height  int
	focused Panel

	// State
	session  core.Session
	view     history.View
	identity core.Identity
	loaded   bool
	visible  []int
	status   string

	// Components
	nowPlaying  *components.NowPlaying
	libraryView *components.Library
	historyView *components.History

	// Overlays
	showHelp    bool
	filtering   bool
	filterInput textinput.Model

	lastError   error
	errorExpiry time.Time

	quitting bool
}

// NewModel creates a new TUI model
func NewModel(app *App) Model {
	ti := textinput.New()
	ti.Placeholder = "Filter songs..."
	ti.CharLimit = 100
	ti.Width = 40

	return Model{
		app:         app,
		focused:     PanelLibrary,
		identity:    core.Guest,
		visible:     library.Filter(app.songs, ""),
		nowPlaying:  components.NewNowPlaying(),
		libraryView: components.NewLibrary(),
		historyView: components.NewHistory(),
		filterInput: ti,
	}
}

// Messages
type tickMsg time.Time
type identityMsg core.Identity
type errMsg error
type refreshMsg struct{}

type historyMsg struct {
	op  string
	res history.Result
}

// Commands
func (m Model) tick() tea.Cmd {
	return tea.Tick(m.app.refreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetchIdentity() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		id, err := m.app.identities.Current(ctx)
		if err != nil {
			return errMsg(err)
		}
		return identityMsg(id)
	}
}

func (m Model) historyOp(op string, fn func(ctx context.Context) history.Result) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return historyMsg{op: op, res: fn(ctx)}
	}
}

func (m Model) loadHistory(id core.Identity) tea.Cmd {
	return m.historyOp("load", func(ctx context.Context) history.Result {
		return m.app.history.Load(ctx, id)
	})
}

func (m Model) control(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			return errMsg(err)
		}
		return refreshMsg{}
	}
}

func (m Model) play(song core.Song) tea.Cmd {
	return m.control(func(ctx context.Context) error {
		return m.app.player.Play(ctx, song)
	})
}

func (m Model) togglePause() tea.Cmd {
	switch m.session.Status {
	case core.StatusPlaying:
		return m.control(m.app.player.Pause)
	case core.StatusPaused:
		return m.control(m.app.player.Resume)
	}
	return nil
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.fetchIdentity())
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tea.Batch(m.tick(), m.fetchIdentity())

	case refreshMsg:
		m.refresh()
		return m, nil

	case identityMsg:
		id := core.Identity(msg)
		if !m.loaded || id != m.identity {
			m.loaded = true
			m.identity = id
			return m, m.loadHistory(id)
		}
		return m, nil

	case historyMsg:
		m.view = m.app.history.View()
		m.status = describeResult(msg.op, msg.res)
		if err := msg.res.Err(); err != nil {
			m.setError(err)
		}
		return m, nil

	case errMsg:
		m.setError(msg)
		return m, nil
	}

	if m.filtering {
		var cmd tea.Cmd
		m.filterInput, cmd = m.filterInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) refresh() {
	m.session = m.app.player.Session()
	m.view = m.app.history.View()
	if time.Now().After(m.errorExpiry) {
		m.lastError = nil
	}
}

func (m *Model) setError(err error) {
	m.lastError = err
	m.errorExpiry = time.Now().Add(5 * time.Second)
}

func describeResult(op string, res history.Result) string {
	switch res.Kind {
	case history.Ok:
		return fmt.Sprintf("%s: %d songs (%s)", op, len(res.Records), res.Backend)
	case history.Fallback:
		return fmt.Sprintf("%s: %d songs (local fallback)", op, len(res.Records))
	default:
		return op + " failed"
	}
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	if m.showHelp {
		switch msg.String() {
		case "?", "esc", "q":
			m.showHelp = false
		}
		return m, nil
	}

	if m.filtering {
		return m.handleFilterKeyPress(msg)
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "?":
		m.showHelp = true
		return m, nil
	case "/":
		m.filtering = true
		m.focused = PanelLibrary
		m.filterInput.Focus()
		return m, textinput.Blink
	case "tab", "shift+tab":
		m.focused = (m.focused + 1) % 2
		return m, nil
	case "j", "down":
		if m.focused == PanelLibrary {
			m.libraryView.SelectNext(len(m.visible))
		} else {
			m.historyView.SelectNext(len(m.view.Records))
		}
		return m, nil
	case "k", "up":
		if m.focused == PanelLibrary {
			m.libraryView.SelectPrev()
		} else {
			m.historyView.SelectPrev()
		}
		return m, nil
	case "enter":
		if song, ok := m.selectedSong(); ok {
			return m, m.play(song)
		}
		return m, nil
	case " ":
		return m, m.togglePause()
	case "s":
		return m, m.control(m.app.player.Stop)
	case "d":
		if rec, ok := m.selectedRecord(); ok {
			id := m.identity
			return m, m.historyOp("remove", func(ctx context.Context) history.Result {
				return m.app.history.Remove(ctx, rec.Filename, id)
			})
		}
		return m, nil
	case "c":
		id := m.identity
		return m, m.historyOp("clear", func(ctx context.Context) history.Result {
			return m.app.history.Clear(ctx, id)
		})
	case "r":
		return m, m.loadHistory(m.identity)
	}
	return m, nil
}

func (m Model) handleFilterKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filtering = false
		m.filterInput.Blur()
		m.filterInput.SetValue("")
		m.applyFilter()
		return m, nil
	case "enter":
		m.filtering = false
		m.filterInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m *Model) applyFilter() {
	m.visible = library.Filter(m.app.songs, m.filterInput.Value())
	m.libraryView.Reset()
}

func (m Model) selectedSong() (core.Song, bool) {
	if m.focused == PanelHistory {
		rec, ok := m.selectedRecord()
		return rec.Song(), ok
	}
	i := m.libraryView.Selected()
	if i < 0 || i >= len(m.visible) {
		return core.Song{}, false
	}
	return m.app.songs[m.visible[i]], true
}

func (m Model) selectedRecord() (core.HistoryRecord, bool) {
	if m.focused != PanelHistory {
		return core.HistoryRecord{}, false
	}
	i := m.historyView.Selected()
	if i < 0 || i >= len(m.view.Records) {
		return core.HistoryRecord{}, false
	}
	return m.view.Records[i], true
}

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	leftWidth := m.width * 55 / 100
	rightWidth := m.width - leftWidth - 2
	topHeight := max(m.height*35/100, 8)
	bottomHeight := max(m.height-topHeight-3, 6)

	filter := m.filterInput.Value()
	if m.filtering {
		filter = m.filterInput.View()
	}

	nowPlaying := m.nowPlaying.Render(m.session, m.identity, leftWidth-2, topHeight-2)
	libraryView := m.libraryView.Render(m.app.songs, m.visible, m.session.Song, filter,
		leftWidth-2, bottomHeight-2, m.focused == PanelLibrary)
	historyView := m.historyView.Render(m.view.Records, m.status,
		rightWidth-2, topHeight+bottomHeight-2, m.focused == PanelHistory)

	leftCol := lipgloss.JoinVertical(lipgloss.Left, nowPlaying, libraryView)
	main := lipgloss.JoinHorizontal(lipgloss.Top, leftCol, historyView)

	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m Model) renderStatusBar() string {
	status := styles.Dim.Render("q:quit  ?:help  /:filter  enter:play  space:pause  s:stop  d:remove  c:clear  r:reload  tab:panel")
	if m.lastError != nil {
		status = styles.Failed.Render("Error: " + m.lastError.Error())
	}

	return lipgloss.NewStyle().
		Width(m.width).
		Padding(0, 1).
		Render(status)
}

func (m Model) renderHelp() string {
	help := `
  Encore - Keyboard Shortcuts
  ═══════════════════════════

  Global
  ──────
  q, Ctrl+C    Quit
  ?            Toggle help
  /            Filter library
  Tab          Switch panel
  r            Reload history

  Playback
  ────────
  Enter        Play selected (toggles the current song)
  Space        Pause/Resume
  s            Stop

  History Panel
  ─────────────
  j/↓, k/↑     Move selection
  d            Remove selected song
  c            Clear history

  Press ? or Esc to close
`

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(styles.BorderStyle.Render(help))
}

// Run starts the TUI application
func Run(app *App, theme string) error {
	styles.ApplyTheme(theme)

	p := tea.NewProgram(NewModel(app), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
