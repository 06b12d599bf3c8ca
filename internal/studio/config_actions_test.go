package studio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/mitchellh/go-homedir"
	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/host/memhost"
	"github.com/standardbeagle/clangfmt-studio/internal/recovery"
	"github.com/standardbeagle/clangfmt-studio/internal/testutil"
	"github.com/standardbeagle/clangfmt-studio/internal/webview"
	"github.com/standardbeagle/clangfmt-studio/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, f *fixture, a ConfigAction) error {
	t.Helper()
	return f.coord.RunConfigAction(context.Background(), a)
}

func TestSaveWritesClangFormatFile(t *testing.T) {
	f := newFixture(t)
	f.wire(t)

	require.NoError(t, f.coord.SetOption(context.Background(), "IndentWidth", clangformat.Int(2)))
	assert.True(t, f.coord.State().ConfigDirty)

	require.NoError(t, run(t, f, ConfigAction{Action: ActionSave}))

	data, err := os.ReadFile(filepath.Join(f.workspace, ".clang-format"))
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, clangformat.Header))
	assert.Contains(t, text, "IndentWidth: 2\n")

	assert.False(t, f.coord.State().ConfigDirty)
	assert.False(t, f.coord.configs.Edited())
	assert.NoFileExists(t, filepath.Join(f.workspace, ".clang-format.lock"))
	assert.NotEmpty(t, f.host.NotificationsAt(memhost.LevelStatus))
}

func TestEditDuringSaveStaysDirty(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	ctx := context.Background()
	path := filepath.Join(f.workspace, ".clang-format")

	require.NoError(t, f.coord.SetOption(ctx, "IndentWidth", clangformat.Int(2)))

	// Hold the file lock so the save waits after taking its snapshot
	held := flock.New(path + ".lock")
	require.NoError(t, held.Lock())

	saved := make(chan error, 1)
	go func() { saved <- run(t, f, ConfigAction{Action: ActionSave}) }()
	testutil.RequireNever(t, 2*lockRetry, func() bool { return len(saved) > 0 }, "save finished while the lock was held")

	require.NoError(t, f.coord.SetOption(ctx, "IndentWidth", clangformat.Int(3)))
	require.NoError(t, held.Unlock())

	select {
	case err := <-saved:
		require.NoError(t, err)
	case <-time.After(lockTimeout):
		t.Fatal("save did not finish")
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "IndentWidth: 2\n")

	st := f.coord.State()
	assert.True(t, st.CurrentConfig["IndentWidth"].Equal(clangformat.Int(3)), "the edit made during the save was reverted")
	assert.True(t, st.ConfigDirty)
	assert.True(t, f.coord.configs.Edited())

	// A second save catches up
	require.NoError(t, run(t, f, ConfigAction{Action: ActionSave}))
	assert.False(t, f.coord.State().ConfigDirty)
	assert.False(t, f.coord.configs.Edited())
}

func TestSaveOverwritesAlternateFileWhenItIsTheOnlyOne(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	alt := f.writeWorkspaceFile(t, AltConfigFileName, "BasedOnStyle: Google\n")

	require.NoError(t, f.coord.SetOption(context.Background(), "ColumnLimit", clangformat.Int(100)))
	require.NoError(t, run(t, f, ConfigAction{Action: ActionSave}))

	data, err := os.ReadFile(alt)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ColumnLimit: 100")
	assert.NoFileExists(t, filepath.Join(f.workspace, ".clang-format"))
}

func TestLoadReadsWorkspaceConfig(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	completed := testutil.Record(t, f.coord.Bus(), ConfigActionCompleted)
	path := f.writeWorkspaceFile(t, ".clang-format", "BasedOnStyle: Google\nIndentWidth: 4\n")

	require.NoError(t, run(t, f, ConfigAction{Action: ActionLoad}))

	st := f.coord.State()
	assert.True(t, st.CurrentConfig.Equal(clangformat.Config{
		"BasedOnStyle": clangformat.String("Google"),
		"IndentWidth":  clangformat.Int(4),
	}))
	assert.True(t, st.ConfigDirty)
	assert.False(t, f.coord.configs.Edited())

	res, ok := completed.Last()
	require.True(t, ok)
	assert.Equal(t, ActionLoad, res.Action)
	assert.Equal(t, path, res.Path)
	assert.NoError(t, res.Err)
}

func TestLoadFallsBackToAlternateFileName(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	alt := f.writeWorkspaceFile(t, AltConfigFileName, "UseTab: Never\n")

	assert.Equal(t, alt, f.coord.configs.WorkspaceFile())
	require.NoError(t, run(t, f, ConfigAction{Action: ActionLoad}))
	assert.True(t, f.coord.State().CurrentConfig["UseTab"].Equal(clangformat.String("Never")))
}

func TestLoadPrefersDotClangFormat(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	f.writeWorkspaceFile(t, AltConfigFileName, "IndentWidth: 8\n")
	primary := f.writeWorkspaceFile(t, ".clang-format", "IndentWidth: 3\n")

	assert.Equal(t, primary, f.coord.configs.WorkspaceFile())
	require.NoError(t, run(t, f, ConfigAction{Action: ActionLoad}))
	assert.True(t, f.coord.State().CurrentConfig["IndentWidth"].Equal(clangformat.Int(3)))
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"bad yaml", "IndentWidth: [2\n"},
		{"wrong type", "IndentWidth: wide\n"},
		{"rejected by clang-format", "BasedOnStyle: Broken\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.wire(t)
			require.NoError(t, f.coord.SetOption(context.Background(), "ColumnLimit", clangformat.Int(90)))
			before := f.coord.State().CurrentConfig
			path := f.writeWorkspaceFile(t, ".clang-format", tt.text)

			err := run(t, f, ConfigAction{Action: ActionLoad})
			require.Error(t, err)

			var rerr *recovery.Error
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, recovery.CategoryConfigParse, rerr.Category)
			assert.Equal(t, path, rerr.Path)

			st := f.coord.State()
			assert.True(t, st.CurrentConfig.Equal(before), "a failed load leaves the config alone")
			require.NotNil(t, st.LastError)
			assert.NotEmpty(t, f.host.NotificationsAt(memhost.LevelError))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	f := newFixture(t)
	f.wire(t)

	// silent loads only leave a hint
	require.NoError(t, run(t, f, ConfigAction{Action: ActionLoad, Silent: true}))
	assert.Empty(t, f.host.NotificationsAt(memhost.LevelError))
	assert.NotEmpty(t, f.host.NotificationsAt(memhost.LevelStatus))
	assert.Nil(t, f.coord.State().LastError)

	err := run(t, f, ConfigAction{Action: ActionLoad})
	require.Error(t, err)
	var rerr *recovery.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, recovery.CodeFileNotFound, rerr.Code)
	assert.NotEmpty(t, f.host.NotificationsAt(memhost.LevelError))
}

func TestImportFromGivenPath(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	src := filepath.Join(t.TempDir(), "team.clang-format")
	require.NoError(t, os.WriteFile(src, []byte("BasedOnStyle: Mozilla\nColumnLimit: 120\n"), 0o644))

	require.NoError(t, run(t, f, ConfigAction{Action: ActionImport, Path: src}))

	st := f.coord.State()
	assert.True(t, st.CurrentConfig["ColumnLimit"].Equal(clangformat.Int(120)))
	assert.True(t, st.ConfigDirty)
	assert.True(t, f.coord.configs.Edited(), "imported options are unsaved edits")
	assert.Contains(t, f.host.NotificationsAt(memhost.LevelInfo), "Imported "+src)
}

func TestImportRelativeAndHomePaths(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	f.writeWorkspaceFile(t, "styles.yaml", "IndentWidth: 6\n")

	require.NoError(t, run(t, f, ConfigAction{Action: ActionImport, Path: "styles.yaml"}))
	assert.True(t, f.coord.State().CurrentConfig["IndentWidth"].Equal(clangformat.Int(6)))

	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	require.NoError(t, os.WriteFile(filepath.Join(home, "mine.clang-format"), []byte("IndentWidth: 7\n"), 0o644))

	require.NoError(t, run(t, f, ConfigAction{Action: ActionImport, Path: "~/mine.clang-format"}))
	assert.True(t, f.coord.State().CurrentConfig["IndentWidth"].Equal(clangformat.Int(7)))
}

func TestImportThroughPicker(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	src := filepath.Join(t.TempDir(), "picked")
	require.NoError(t, os.WriteFile(src, []byte("SortIncludes: false\n"), 0o644))
	f.host.SetPickResult(src, nil)

	require.NoError(t, run(t, f, ConfigAction{Action: ActionImport}))
	assert.True(t, f.coord.State().CurrentConfig["SortIncludes"].Equal(clangformat.Bool(false)))
}

func TestCancelledPickerIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	f.host.SetPickResult("", host.ErrCancelled)

	err := run(t, f, ConfigAction{Action: ActionExport})
	assert.ErrorIs(t, err, host.ErrCancelled)
	assert.Empty(t, f.host.NotificationsAt(memhost.LevelError))
	assert.Nil(t, f.coord.State().LastError)
	assert.Empty(t, f.coord.RecentErrors(5))
}

func TestExportWritesCurrentConfig(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	require.NoError(t, f.coord.SetOption(context.Background(), "TabWidth", clangformat.Int(8)))
	dst := filepath.Join(t.TempDir(), "nested", "out.clang-format")

	require.NoError(t, run(t, f, ConfigAction{Action: ActionExport, Path: dst}))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, clangformat.Stringify(f.coord.State().CurrentConfig), string(data))
	assert.True(t, f.coord.State().ConfigDirty, "exporting elsewhere does not save the workspace file")
}

func TestResetRestoresDefaults(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	f.writeWorkspaceFile(t, ".clang-format", "IndentWidth: 4\n")
	require.NoError(t, run(t, f, ConfigAction{Action: ActionLoad}))

	require.NoError(t, run(t, f, ConfigAction{Action: ActionReset}))

	st := f.coord.State()
	assert.True(t, st.CurrentConfig.Equal(clangformat.DefaultConfig()))
	assert.True(t, st.ConfigDirty)
	assert.True(t, f.coord.configs.Edited())
}

func TestOpenAsTextCreatesMissingFile(t *testing.T) {
	f := newFixture(t)
	f.wire(t)

	require.NoError(t, run(t, f, ConfigAction{Action: ActionOpenAsText}))

	path := filepath.Join(f.workspace, ".clang-format")
	assert.FileExists(t, path)
	assert.Equal(t, []string{path}, f.host.OpenedFiles())
	assert.False(t, f.coord.State().ConfigDirty)
}

func TestCopyPutsConfigOnClipboard(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	var copied string
	f.coord.configs.copyText = func(text string) error {
		copied = text
		return nil
	}
	require.NoError(t, f.coord.SetOption(context.Background(), "IndentWidth", clangformat.Int(2)))

	require.NoError(t, run(t, f, ConfigAction{Action: ActionCopy}))
	assert.Contains(t, copied, "IndentWidth: 2")

	f.coord.configs.copyText = func(string) error { return errors.New("no clipboard utility") }
	require.Error(t, run(t, f, ConfigAction{Action: ActionCopy}))
}

func TestUnknownActionFails(t *testing.T) {
	f := newFixture(t)
	f.wire(t)
	require.Error(t, run(t, f, ConfigAction{Action: ActionKind("explode")}))
}

func TestEditsFromControlPanel(t *testing.T) {
	f := newFixture(t, withoutAutoLoad())
	f.show(t)
	panel := f.editorPanel(t)
	posted := len(panel.Posted())

	require.NoError(t, panel.Send(map[string]any{
		"type":    "configChanged",
		"payload": map[string]any{"key": "IndentWidth", "value": 3},
	}))

	st := f.coord.State()
	assert.True(t, st.CurrentConfig["IndentWidth"].Equal(clangformat.Int(3)))
	assert.True(t, st.ConfigDirty)
	assert.True(t, f.coord.configs.Edited())
	assert.Len(t, panel.Posted(), posted, "edits are not echoed back to the page")

	// an inherit value removes the key
	require.NoError(t, panel.Send(map[string]any{
		"type":    "configChanged",
		"payload": map[string]any{"key": "IndentWidth", "value": nil},
	}))
	_, present := f.coord.State().CurrentConfig["IndentWidth"]
	assert.False(t, present)
}

func TestInvalidEditIsReportedToThePage(t *testing.T) {
	f := newFixture(t, withoutAutoLoad())
	f.show(t)
	panel := f.editorPanel(t)

	events.Emit(f.coord.Bus(), ConfigChanged, webview.ConfigChangedPayload{
		Key:   "IndentWidth",
		Value: clangformat.String("wide"),
	})

	_, present := f.coord.State().CurrentConfig["IndentWidth"]
	assert.False(t, present)
	types := panel.PostedTypes()
	require.NotEmpty(t, types)
	assert.Equal(t, string(webview.TypeError), types[len(types)-1])
	assert.Error(t, f.coord.SetOption(context.Background(), "IndentWidth", clangformat.String("wide")))
}

func TestWatcherReloadsExternalChanges(t *testing.T) {
	f := newFixture(t, withWatch())
	f.wire(t)

	f.writeWorkspaceFile(t, ".clang-format", "IndentWidth: 5\n")

	testutil.RequireEventually(t, settle, func() bool {
		return f.coord.State().CurrentConfig["IndentWidth"].Equal(clangformat.Int(5))
	}, "external change was not loaded")
}

func TestWatcherKeepsUnsavedEdits(t *testing.T) {
	f := newFixture(t, withWatch())
	f.wire(t)
	require.NoError(t, f.coord.SetOption(context.Background(), "IndentWidth", clangformat.Int(2)))

	f.writeWorkspaceFile(t, ".clang-format", "IndentWidth: 5\n")

	testutil.RequireEventually(t, settle, func() bool {
		for _, s := range f.host.NotificationsAt(memhost.LevelStatus) {
			if strings.Contains(s, "changed on disk") {
				return true
			}
		}
		return false
	}, "no notice about the external change")
	assert.True(t, f.coord.State().CurrentConfig["IndentWidth"].Equal(clangformat.Int(2)))
}

func TestWatcherIgnoresOwnWrites(t *testing.T) {
	f := newFixture(t, withWatch())
	f.wire(t)
	require.NoError(t, f.coord.SetOption(context.Background(), "IndentWidth", clangformat.Int(2)))
	completed := testutil.Record(t, f.coord.Bus(), ConfigActionCompleted)

	require.NoError(t, run(t, f, ConfigAction{Action: ActionSave}))

	testutil.RequireNever(t, 3*reloadDebounce, func() bool {
		return completed.Count() > 1
	}, "saving triggered a reload")
	assert.False(t, f.coord.State().ConfigDirty)
}
