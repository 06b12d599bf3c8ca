// Package tui is a terminal dashboard for a visual editor session. It shows
// the session state, the preview text and recent errors, and maps keys to
// session operations.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/standardbeagle/clangfmt-studio/internal/formatter"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/recovery"
	"github.com/standardbeagle/clangfmt-studio/internal/state"
	"github.com/standardbeagle/clangfmt-studio/internal/studio"
	"github.com/standardbeagle/clangfmt-studio/pkg/events"
)

const (
	updateChannelBufferSize = 100
	actionTimeout           = 30 * time.Second
	shownErrors             = 3
	minPreviewHeight        = 3
	// rows used by everything except the preview viewport
	chromeHeight = 14
)

// Studio is the session surface the dashboard drives
type Studio interface {
	ShowEditor(ctx context.Context) error
	State() state.VisualEditorState
	Subscribe(fn func(state.Change)) events.Subscription
	RunConfigAction(ctx context.Context, a studio.ConfigAction) error
	OpenPreview(ctx context.Context) (host.EditorID, error)
	ClosePreview(ctx context.Context) error
	PreviewText() (string, bool)
	RecentErrors(n int) []recovery.Error
	FormatterStats() formatter.Stats
}

var _ Studio = (*studio.Coordinator)(nil)

// stateChangedMsg is sent when the session state changed
type stateChangedMsg struct{}

// snapshotMsg carries everything the view renders
type snapshotMsg struct {
	state   state.VisualEditorState
	preview string
	errors  []recovery.Error
	stats   formatter.Stats
}

// actionDoneMsg reports a finished key action
type actionDoneMsg struct {
	name string
	err  error
}

// Model is the dashboard bubbletea model
type Model struct {
	studio Studio
	ctx    context.Context

	keys     KeyMap
	help     help.Model
	spinner  spinner.Model
	viewport viewport.Model

	updateChan chan tea.Msg
	sub        events.Subscription

	state   state.VisualEditorState
	errors  []recovery.Error
	stats   formatter.Stats
	status  string
	failed  bool
	busy    string
	width   int
	height  int
	hasText bool
}

// New creates a dashboard for s. Close releases its state subscription.
func New(ctx context.Context, s Studio) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := Model{
		studio:     s,
		ctx:        ctx,
		keys:       NewKeyMap(),
		help:       help.New(),
		spinner:    sp,
		viewport:   viewport.New(80, 10),
		updateChan: make(chan tea.Msg, updateChannelBufferSize),
		state:      s.State(),
		width:      80,
	}
	updates := m.updateChan
	m.sub = s.Subscribe(func(state.Change) {
		// A pending message already triggers a refresh
		select {
		case updates <- stateChangedMsg{}:
		default:
		}
	})
	return m
}

// Close stops listening for state changes
func (m Model) Close() {
	m.sub.Unsubscribe()
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForUpdates(),
		m.refresh(),
	)
}

func (m Model) waitForUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updateChan
	}
}

// refresh reads the session off the UI goroutine, since PreviewText waits
// for a pending preview render
func (m Model) refresh() tea.Cmd {
	s := m.studio
	return func() tea.Msg {
		text, _ := s.PreviewText()
		return snapshotMsg{
			state:   s.State(),
			preview: text,
			errors:  s.RecentErrors(shownErrors),
			stats:   s.FormatterStats(),
		}
	}
}

// run performs a session operation in the background
func (m Model) run(name string, fn func(ctx context.Context) error) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, actionTimeout)
		defer cancel()
		return actionDoneMsg{name: name, err: fn(ctx)}
	}
}

func (m Model) configAction(kind studio.ActionKind) func(ctx context.Context) error {
	s := m.studio
	return func(ctx context.Context) error {
		return s.RunConfigAction(ctx, studio.ConfigAction{Action: kind, Source: studio.OriginAPI})
	}
}

func (m Model) actionFor(msg tea.KeyMsg) (string, func(ctx context.Context) error) {
	s := m.studio
	switch {
	case key.Matches(msg, m.keys.ShowEditor):
		return "show editor", s.ShowEditor
	case key.Matches(msg, m.keys.OpenPreview):
		return "open preview", func(ctx context.Context) error {
			_, err := s.OpenPreview(ctx)
			return err
		}
	case key.Matches(msg, m.keys.ClosePreview):
		return "close preview", s.ClosePreview
	case key.Matches(msg, m.keys.Load):
		return "load", m.configAction(studio.ActionLoad)
	case key.Matches(msg, m.keys.Save):
		return "save", m.configAction(studio.ActionSave)
	case key.Matches(msg, m.keys.Reset):
		return "reset", m.configAction(studio.ActionReset)
	case key.Matches(msg, m.keys.Copy):
		return "copy", m.configAction(studio.ActionCopy)
	}
	return "", nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateSizes()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.updateSizes()
			return m, nil
		}
		if name, fn := m.actionFor(msg); fn != nil {
			if m.busy != "" {
				m.status = fmt.Sprintf("%s still running", m.busy)
				return m, nil
			}
			m.busy = name
			m.status = ""
			return m, m.run(name, fn)
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case actionDoneMsg:
		m.busy = ""
		if msg.err != nil {
			m.failed = true
			m.status = fmt.Sprintf("%s failed: %v", msg.name, msg.err)
		} else {
			m.failed = false
			m.status = msg.name + " done"
		}
		cmds = append(cmds, m.refresh())

	case stateChangedMsg:
		cmds = append(cmds, m.waitForUpdates(), m.refresh())

	case snapshotMsg:
		m.state = msg.state
		m.errors = msg.errors
		m.stats = msg.stats
		m.hasText = msg.preview != ""
		m.viewport.SetContent(msg.preview)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) updateSizes() {
	m.help.Width = m.width
	height := m.height - chromeHeight
	if m.help.ShowAll {
		height -= 3
	}
	if height < minPreviewHeight {
		height = minPreviewHeight
	}
	m.viewport.Width = m.width - 2
	m.viewport.Height = height
}

func (m Model) View() string {
	if m.width > 0 && m.width < minTerminalWidth {
		return errTerminalTooSmall
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderState())
	b.WriteString("\n")
	b.WriteString(m.renderPreview())
	b.WriteString("\n")
	b.WriteString(m.renderErrors())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
