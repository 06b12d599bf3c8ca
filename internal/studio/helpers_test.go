package studio

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/standardbeagle/clangfmt-studio/internal/config"
	"github.com/standardbeagle/clangfmt-studio/internal/host/memhost"
	"github.com/standardbeagle/clangfmt-studio/internal/state"
	"github.com/stretchr/testify/require"
)

const (
	testDebounce = 20 * time.Millisecond
	settle       = 2 * time.Second
)

// fakeFormatter writes a clang-format stand-in that echoes stdin under a
// comment naming the style. Styles containing "Broken" fail.
func fakeFormatter(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake formatter is a shell script")
	}
	script := `#!/bin/sh
style=""
for a in "$@"; do
  case "$a" in
    -style=*) style="${a#-style=}" ;;
    --version) echo "clang-format version 17.0.0 (fake)"; exit 0 ;;
  esac
done
case "$style" in
  *Broken*) echo "error: unknown key 'Broken'" >&2; exit 1 ;;
esac
echo "// formatted with $style"
cat
`
	path := filepath.Join(t.TempDir(), "clang-format")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

type fixture struct {
	coord     *Coordinator
	host      *memhost.Host
	workspace string
}

type fixtureOption func(*config.Config)

func withFormatter(path string) fixtureOption {
	return func(c *config.Config) { c.FormatterPath = &path }
}

func withWatch() fixtureOption {
	return func(c *config.Config) { c.WatchConfig = boolPtr(true) }
}

func withoutAutoLoad() fixtureOption {
	return func(c *config.Config) { c.AutoLoad = boolPtr(false) }
}

func boolPtr(b bool) *bool { return &b }

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	debounce := int(testDebounce / time.Millisecond)
	settings := &config.Config{
		DebounceMS:  &debounce,
		WatchConfig: boolPtr(false),
	}
	for _, opt := range opts {
		opt(settings)
	}
	if settings.FormatterPath == nil {
		bin := fakeFormatter(t)
		settings.FormatterPath = &bin
	}

	h := memhost.New()
	h.SetQuiet(true)
	workspace := t.TempDir()

	coord, err := New(Options{Host: h, Settings: settings, Workspace: workspace})
	require.NoError(t, err)
	t.Cleanup(coord.Dispose)

	return &fixture{coord: coord, host: h, workspace: workspace}
}

// wire initialises managers without showing anything
func (f *fixture) wire(t *testing.T) {
	t.Helper()
	require.NoError(t, f.coord.wire(context.Background()))
}

func (f *fixture) show(t *testing.T) {
	t.Helper()
	require.NoError(t, f.coord.ShowEditor(context.Background()))
}

func (f *fixture) shared() *Context {
	return f.coord.shared
}

func (f *fixture) mode() state.PreviewMode {
	return f.coord.shared.State.PreviewMode()
}

func (f *fixture) editorPanel(t *testing.T) *memhost.Panel {
	t.Helper()
	panels := f.host.PanelsOfType(ViewTypeEditor)
	require.Len(t, panels, 1)
	return panels[0]
}

func (f *fixture) placeholders() []*memhost.Panel {
	return f.host.PanelsOfType(ViewTypePlaceholder)
}

// previewTabs counts open tabs of the preview scheme
func (f *fixture) previewTabs() int {
	n := 0
	for _, tab := range f.host.Tabs() {
		if tab.URI.Scheme == PreviewScheme {
			n++
		}
	}
	return n
}

func (f *fixture) writeWorkspaceFile(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(f.workspace, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}
