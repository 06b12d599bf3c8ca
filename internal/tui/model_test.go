package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/formatter"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/recovery"
	"github.com/standardbeagle/clangfmt-studio/internal/state"
	"github.com/standardbeagle/clangfmt-studio/internal/studio"
	"github.com/standardbeagle/clangfmt-studio/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStudio struct {
	mu       sync.Mutex
	state    state.VisualEditorState
	preview  string
	errs     []recovery.Error
	err      error
	calls    []string
	actions  []studio.ActionKind
	onChange func(state.Change)
}

func newFakeStudio() *fakeStudio {
	return &fakeStudio{
		state: state.VisualEditorState{
			PreviewMode:   state.PreviewClosed,
			CurrentConfig: clangformat.Config{},
		},
	}
}

func (f *fakeStudio) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeStudio) ShowEditor(ctx context.Context) error { return f.record("show") }
func (f *fakeStudio) State() state.VisualEditorState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone()
}
func (f *fakeStudio) Subscribe(fn func(state.Change)) events.Subscription {
	f.onChange = fn
	return events.Subscription{}
}
func (f *fakeStudio) RunConfigAction(ctx context.Context, a studio.ConfigAction) error {
	f.mu.Lock()
	f.actions = append(f.actions, a.Action)
	f.mu.Unlock()
	return f.record("config")
}
func (f *fakeStudio) OpenPreview(ctx context.Context) (host.EditorID, error) {
	return "editor-1", f.record("open")
}
func (f *fakeStudio) ClosePreview(ctx context.Context) error { return f.record("close") }
func (f *fakeStudio) PreviewText() (string, bool)          { return f.preview, f.preview != "" }
func (f *fakeStudio) RecentErrors(n int) []recovery.Error  { return f.errs }
func (f *fakeStudio) FormatterStats() formatter.Stats      { return formatter.Stats{Calls: 4, Hits: 2} }

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestKeyRunsAction(t *testing.T) {
	fake := newFakeStudio()
	m := New(context.Background(), fake)

	m, cmd := update(t, m, keyPress("p"))
	require.NotNil(t, cmd)
	assert.Equal(t, "open preview", m.busy)
	assert.Contains(t, m.View(), "open preview...")

	done := cmd()
	require.IsType(t, actionDoneMsg{}, done)
	assert.Equal(t, []string{"open"}, fake.calls)

	m, cmd = update(t, m, done)
	assert.Empty(t, m.busy)
	assert.Equal(t, "open preview done", m.status)
	require.NotNil(t, cmd)
}

func TestConfigKeys(t *testing.T) {
	fake := newFakeStudio()
	m := New(context.Background(), fake)

	for _, k := range []string{"l", "s", "r", "y"} {
		var cmd tea.Cmd
		m, cmd = update(t, m, keyPress(k))
		require.NotNil(t, cmd, k)
		m, _ = update(t, m, cmd())
	}
	assert.Equal(t, []studio.ActionKind{
		studio.ActionLoad, studio.ActionSave, studio.ActionReset, studio.ActionCopy,
	}, fake.actions)
}

func TestBusyRejectsSecondAction(t *testing.T) {
	fake := newFakeStudio()
	m := New(context.Background(), fake)

	m, first := update(t, m, keyPress("e"))
	require.NotNil(t, first)
	m, second := update(t, m, keyPress("c"))
	assert.Nil(t, second)
	assert.Contains(t, m.status, "still running")
}

func TestFailedActionShown(t *testing.T) {
	fake := newFakeStudio()
	fake.err = errors.New("no workspace")
	m := New(context.Background(), fake)

	m, cmd := update(t, m, keyPress("s"))
	m, _ = update(t, m, cmd())
	assert.True(t, m.failed)
	assert.Contains(t, m.View(), "save failed: no workspace")
}

func TestSnapshotRendersState(t *testing.T) {
	fake := newFakeStudio()
	fake.state = state.VisualEditorState{
		IsVisible:     true,
		IsInitialized: true,
		PreviewMode:   state.PreviewOpen,
		CurrentConfig: clangformat.Config{
			"BasedOnStyle": clangformat.String("Google"),
			"IndentWidth":  clangformat.Int(4),
		},
		ConfigDirty: true,
	}
	fake.preview = "// clang-format preview (2 active options)\nint main() {}\n"
	fake.errs = []recovery.Error{{
		Operation:  "save",
		Underlying: errors.New("permission denied"),
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
	m := New(context.Background(), fake)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	m, _ = update(t, m, m.refresh()())
	view := m.View()
	assert.Contains(t, view, "visible")
	assert.Contains(t, view, "open")
	assert.Contains(t, view, "2 active options")
	assert.Contains(t, view, "(unsaved)")
	assert.Contains(t, view, "{BasedOnStyle: Google, IndentWidth: 4}")
	assert.Contains(t, view, "int main() {}")
	assert.Contains(t, view, "save: permission denied")
	assert.Contains(t, view, "4 calls, 2 cache hits")
}

func TestEmptyPreviewHint(t *testing.T) {
	m := New(context.Background(), newFakeStudio())
	m, _ = update(t, m, m.refresh()())
	assert.Contains(t, m.View(), "No preview open")
	assert.Contains(t, m.View(), "No errors")
}

func TestStateChangesQueueRefresh(t *testing.T) {
	fake := newFakeStudio()
	m := New(context.Background(), fake)
	require.NotNil(t, fake.onChange)

	for i := 0; i < updateChannelBufferSize+10; i++ {
		fake.onChange(state.Change{})
	}
	msg := m.waitForUpdates()()
	assert.IsType(t, stateChangedMsg{}, msg)

	_, cmd := update(t, m, msg)
	assert.NotNil(t, cmd)
}

func TestQuitAndHelp(t *testing.T) {
	m := New(context.Background(), newFakeStudio())

	m, cmd := update(t, m, keyPress("?"))
	assert.Nil(t, cmd)
	assert.True(t, m.help.ShowAll)

	_, cmd = update(t, m, keyPress("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestTinyTerminal(t *testing.T) {
	m := New(context.Background(), newFakeStudio())
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 10, Height: 5})
	assert.Equal(t, errTerminalTooSmall, m.View())
}
