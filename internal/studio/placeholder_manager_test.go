package studio

import (
	"context"
	"errors"
	"testing"

	"github.com/standardbeagle/clangfmt-studio/internal/state"
	"github.com/standardbeagle/clangfmt-studio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// editorUp marks the control panel visible without creating it
func editorUp(f *fixture, visible bool) {
	f.shared().State.Update(state.Patch{
		IsVisible:     state.Ptr(visible),
		IsInitialized: state.Ptr(true),
	}, "test")
}

func TestPlaceholderRequiresVisibleEditor(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	editorUp(f, false)

	require.NoError(t, f.coord.placeholder.HandlePreviewClosed(context.Background()))
	assert.Empty(t, f.placeholders())
	assert.Zero(t, f.coord.placeholder.Created())
}

func TestPlaceholderRequiresClosedPreview(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	editorUp(f, true)

	_, err := f.coord.OpenPreview(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.coord.placeholder.HandlePreviewClosed(context.Background()))
	assert.Empty(t, f.placeholders())
}

func TestPlaceholderShowsSummaryAndReusesVisiblePanel(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	editorUp(f, true)

	ctx := context.Background()
	require.NoError(t, f.coord.placeholder.HandlePreviewClosed(ctx))
	panels := f.placeholders()
	require.Len(t, panels, 1)
	assert.Contains(t, panels[0].HTML(), "reopenPreview")
	assert.Contains(t, panels[0].HTML(), "clang-format preview")

	require.NoError(t, f.coord.placeholder.HandlePreviewClosed(ctx))
	assert.Len(t, f.placeholders(), 1)
	assert.Equal(t, uint64(1), f.coord.placeholder.Created())
}

func TestPlaceholderReplacesStalePanel(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	editorUp(f, true)

	ctx := context.Background()
	require.NoError(t, f.coord.placeholder.HandlePreviewClosed(ctx))
	stale := f.placeholders()[0]
	stale.SetVisible(false)

	require.NoError(t, f.coord.placeholder.HandlePreviewClosed(ctx))
	panels := f.placeholders()
	require.Len(t, panels, 1)
	assert.NotEqual(t, stale.ID(), panels[0].ID())
	assert.True(t, stale.Disposed())
	assert.True(t, f.coord.State().IsInitialized, "discarding a stale placeholder does not end the session")
}

func TestPlaceholderDisposedWhenPreviewOpens(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	editorUp(f, true)
	ended := testutil.Record(t, f.coord.Bus(), EditorClosed)

	ctx := context.Background()
	require.NoError(t, f.coord.placeholder.HandlePreviewClosed(ctx))
	require.Len(t, f.placeholders(), 1)

	_, err := f.coord.OpenPreview(ctx)
	require.NoError(t, err)

	assert.Empty(t, f.placeholders())
	assert.Nil(t, f.coord.placeholder.Panel())
	assert.Zero(t, ended.Count(), "a programmatic dispose is not a user close")
}

func TestPlaceholderCreationFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	editorUp(f, true)
	f.host.FailNextCreatePanel(errors.New("no space for panel"))

	err := f.coord.placeholder.HandlePreviewClosed(context.Background())
	require.Error(t, err)
	assert.Empty(t, f.placeholders())
	assert.NotNil(t, f.coord.State().LastError)
}

func TestUserClosingPlaceholderEmitsEditorClosed(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	editorUp(f, true)
	ended := testutil.Record(t, f.coord.Bus(), EditorClosed)

	require.NoError(t, f.coord.placeholder.HandlePreviewClosed(context.Background()))
	f.placeholders()[0].UserClose()

	require.Equal(t, 1, ended.Count())
	ev, _ := ended.Last()
	assert.Equal(t, OriginPlaceholder, ev.Source)
}
