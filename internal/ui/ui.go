package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/tasks"
)

const maxPlaylistName = 100

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PromptView ViewState = iota
	GenerateView
	ResultView
	ConfirmView
)

// Generator runs a generation request. [tasks.Engine] implements it.
type Generator interface {
	Generate(ctx context.Context, req tasks.Request, progress chan<- tasks.ProgressUpdate) (*tasks.Result, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	cancel    context.CancelFunc
	view      ViewState
	generator Generator
	publisher services.Publisher
	template  tasks.Request
	width     int
	height    int

	input     textinput.Model
	spinner   spinner.Model
	trackList list.Model
	help      help.Model
	keys      keyMap

	progressChan chan tasks.ProgressUpdate
	doneChan     chan generateOutcome
	progress     tasks.ProgressUpdate
	history      []tasks.ProgressUpdate

	result     *tasks.Result
	published  *tasks.Published
	publishing bool
	err        error
}

// NewModel creates a TUI model. template supplies the target and options for
// every prompt; publisher may be nil, which hides the publish action.
func NewModel(ctx context.Context, generator Generator, publisher services.Publisher, template tasks.Request) *Model {
	input := textinput.New()
	input.Placeholder = "late night drive, synthwave, no Kavinsky"
	input.Prompt = "› "
	input.CharLimit = 500
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.ok

	return &Model{
		ctx:       ctx,
		view:      PromptView,
		generator: generator,
		publisher: publisher,
		template:  template,
		input:     input,
		spinner:   s,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Init starts the cursor blinking in the prompt.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-6, 20)
		if m.view == ResultView || m.view == ConfirmView {
			m.trackList.SetSize(m.listSize())
		}
		return m, nil

	case spinner.TickMsg:
		if m.view != GenerateView && !m.publishing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case PromptView:
			return m.handlePromptKeys(msg)
		case GenerateView:
			return m.handleGenerateKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateComponents(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		if m.progress.Message != "" && m.progress.Phase != update.Phase {
			m.history = append(m.history, m.progress)
		}
		m.progress = update
		return m, m.waitForProgress()

	case MsgGenerateComplete:
		out := msg.data.(generateOutcome)
		m.finishRun()
		m.result = out.result
		m.err = out.err
		m.view = ResultView

		tracks := m.partial()
		if out.result != nil {
			tracks = out.result.Tracks
		}
		m.trackList = list.New(trackItems(tracks), list.NewDefaultDelegate(), 0, 0)
		m.trackList.Title = m.playlistName()
		m.trackList.SetShowHelp(false)
		m.trackList.SetSize(m.listSize())
		return m, nil

	case MsgPublishComplete:
		out := msg.data.(publishOutcome)
		m.publishing = false
		m.view = ResultView
		if out.err != nil {
			m.err = out.err
			return m, nil
		}
		m.published = out.published
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case PromptView:
		return m.renderPrompt()
	case GenerateView:
		return m.renderGenerate()
	case ResultView:
		return m.renderResult()
	case ConfirmView:
		return m.renderConfirm()
	default:
		return ""
	}
}

func (m *Model) handlePromptKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "enter":
		if strings.TrimSpace(m.input.Value()) == "" {
			return m, nil
		}
		return m, m.startGenerate()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleGenerateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.finishRun()
		return m, tea.Quit
	case key.Matches(msg, m.keys.cancel):
		if m.cancel != nil {
			m.cancel()
		}
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.publishing {
		return m, nil
	}
	if m.trackList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.reset()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.publish):
		if m.canPublish() {
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = ResultView
		m.publishing = true
		return m, tea.Batch(m.startPublish(), m.spinner.Tick)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.view = ResultView
	}
	return m, nil
}

func (m *Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PromptView:
		m.input, cmd = m.input.Update(msg)
	case ResultView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) reset() {
	m.view = PromptView
	m.input.Reset()
	m.input.Focus()
	m.progress = tasks.ProgressUpdate{}
	m.history = nil
	m.result = nil
	m.published = nil
	m.err = nil
}

// startGenerate runs the engine on a goroutine. Progress and the final
// outcome arrive on separate channels and are read one message at a time.
func (m *Model) startGenerate() tea.Cmd {
	req := m.template
	req.Prompt = strings.TrimSpace(m.input.Value())

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.doneChan = make(chan generateOutcome, 1)
	m.view = GenerateView
	m.progress = tasks.ProgressUpdate{Phase: tasks.Planning, Message: "Starting..."}
	m.history = nil

	progress, done, generator := m.progressChan, m.doneChan, m.generator
	go func() {
		result, err := generator.Generate(ctx, req, progress)
		done <- generateOutcome{result: result, err: err}
	}()

	return tea.Batch(m.waitForProgress(), m.spinner.Tick)
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	if done == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case update := <-progress:
			return progressUpdateMsg(update)
		case out := <-done:
			return generateCompleteMsg(out.result, out.err)
		}
	}
}

func (m *Model) finishRun() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.progressChan = nil
	m.doneChan = nil
}

func (m *Model) startPublish() tea.Cmd {
	ctx, publisher, result, name := m.ctx, m.publisher, m.result, m.playlistName()
	return func() tea.Msg {
		published, err := tasks.Publish(ctx, publisher, result, name, false)
		return publishCompleteMsg(published, err)
	}
}

func (m *Model) canPublish() bool {
	return m.publisher != nil && m.result != nil && len(m.result.Tracks) > 0 && m.published == nil
}

func (m *Model) partial() []models.Track {
	var genErr *tasks.GenerateError
	if errors.As(m.err, &genErr) {
		return genErr.Partial
	}
	return nil
}

func (m *Model) playlistName() string {
	name := strings.TrimSpace(m.input.Value())
	if len(name) > maxPlaylistName {
		name = strings.TrimSpace(name[:maxPlaylistName])
	}
	if name == "" {
		return "mixtape"
	}
	return name
}

func (m *Model) renderPrompt() string {
	title := styles.title.Render("What should the playlist sound like?")
	target := styles.help.Render(fmt.Sprintf("Up to %d tracks", m.targetTracks()))
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.submit, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s\n\n%s", title, m.input.View(), target, helpView)
}

func (m *Model) renderGenerate() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Generating Playlist"))
	b.WriteString("\n")

	for _, past := range m.history {
		b.WriteString(styles.done.Render(fmt.Sprintf("✓ %-20s %s", past.Phase, past.Message)))
		b.WriteString("\n")
	}

	label := m.progress.Phase.String()
	if m.progress.Total > 0 {
		label = fmt.Sprintf("%s (%d/%d)", label, m.progress.Step, m.progress.Total)
	}
	b.WriteString(fmt.Sprintf("%s %s %s\n\n", m.spinner.View(), styles.phase.Render(label), m.progress.Message))
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.cancel, m.keys.quit}))
	return b.String()
}

func (m *Model) renderResult() string {
	var header string
	switch {
	case m.err != nil && m.result == nil:
		header = styles.err.Render(fmt.Sprintf("Generation failed: %v", m.err))
		if n := len(m.partial()); n > 0 {
			header += "\n" + styles.warn.Render(fmt.Sprintf("%d partial tracks shown below", n))
		}
	case m.result != nil:
		header = styles.ok.Render(fmt.Sprintf("✓ %d tracks", len(m.result.Tracks)))
		if m.result.Fallback {
			header += "  " + styles.warn.Render("planner unavailable, using direct suggestions")
		}
	default:
		header = styles.err.Render("No result available")
	}

	var status string
	switch {
	case m.publishing:
		status = fmt.Sprintf("%s Publishing...", m.spinner.View())
	case m.published != nil:
		status = styles.ok.Render(fmt.Sprintf("Published %q (%d tracks) as %s", m.published.Name, m.published.Tracks, m.published.PlaylistID))
	case m.err != nil && m.result != nil:
		status = styles.err.Render(fmt.Sprintf("Publish failed: %v", m.err))
	}

	helpKeys := []key.Binding{m.keys.up, m.keys.down, m.keys.restart, m.keys.quit}
	if m.canPublish() {
		helpKeys = append([]key.Binding{m.keys.publish}, helpKeys...)
	}

	body := []string{header}
	if len(m.trackList.Items()) > 0 {
		body = append(body, m.trackList.View())
	}
	if status != "" {
		body = append(body, status)
	}
	body = append(body, m.help.ShortHelpView(helpKeys))
	return strings.Join(body, "\n\n")
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Publish '%s' to Spotify?", m.playlistName()))
	info := fmt.Sprintf("\nTracks: %d\nVisibility: private\n", len(m.result.Tracks))
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no})
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) listSize() (int, int) {
	return max(m.width-4, 40), max(m.height-10, 12)
}

func (m *Model) targetTracks() int {
	if m.template.TargetTracks > 0 {
		return m.template.TargetTracks
	}
	return 30
}
