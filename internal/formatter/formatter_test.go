package formatter

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClangFormat writes a script that prints the style as a comment and
// squeezes repeated spaces out of stdin. Styles containing "Broken" fail.
func fakeClangFormat(t *testing.T) (path, countFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake formatter is a shell script")
	}

	dir := t.TempDir()
	countFile = filepath.Join(dir, "calls")
	script := `#!/bin/sh
echo call >> "` + countFile + `"
style=""
for a in "$@"; do
  case "$a" in
    -style=*) style="${a#-style=}" ;;
    --version) echo "clang-format version 17.0.0 (fake)"; exit 0 ;;
  esac
done
case "$style" in
  *Broken*) echo "YAML:1:2: error: unknown key 'Broken'" >&2; exit 1 ;;
  *Warn*) cat; echo "warning: deprecated option" >&2; exit 0 ;;
esac
echo "// $style"
tr -s ' '
`
	path = filepath.Join(dir, "clang-format")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path, countFile
}

func callCount(t *testing.T, countFile string) int {
	t.Helper()
	data, err := os.ReadFile(countFile)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "call")
}

func TestFormatSuccess(t *testing.T) {
	bin, _ := fakeClangFormat(t)
	s := New(Options{Path: bin})

	res := s.Format(context.Background(), "int  x  = 1;\n", clangformat.Config{"IndentWidth": clangformat.Int(2)})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "// {IndentWidth: 2}\nint x = 1;\n", res.FormattedCode)
	assert.Empty(t, res.Error)
}

func TestFormatOmitsInherit(t *testing.T) {
	bin, _ := fakeClangFormat(t)
	s := New(Options{Path: bin})

	res := s.Format(context.Background(), "x;\n", clangformat.Config{
		"ColumnLimit":  clangformat.String(clangformat.Inherit),
		"BasedOnStyle": clangformat.String("LLVM"),
	})
	require.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.FormattedCode, "// {BasedOnStyle: LLVM}\n"))
}

func TestFormatMissingBinary(t *testing.T) {
	s := New(Options{Path: filepath.Join(t.TempDir(), "clang-format")})

	code := "int main() { return 0; }\n"
	res := s.Format(context.Background(), code, clangformat.Config{"IndentWidth": clangformat.Int(2)})
	assert.False(t, res.Success)
	assert.Equal(t, code, res.FormattedCode)
	assert.Contains(t, res.Error, "not found")
	assert.False(t, s.Available())
}

func TestFormatNonZeroExit(t *testing.T) {
	bin, _ := fakeClangFormat(t)
	s := New(Options{Path: bin})

	res := s.Format(context.Background(), "x;\n", clangformat.Config{"Broken": clangformat.Bool(true)})
	assert.False(t, res.Success)
	assert.Equal(t, "x;\n", res.FormattedCode)
	assert.Contains(t, res.Error, "unknown key")

	assert.Error(t, s.Validate(context.Background(), clangformat.Config{"Broken": clangformat.Bool(true)}))
	assert.NoError(t, s.Validate(context.Background(), clangformat.Config{"IndentWidth": clangformat.Int(2)}))
}

func TestFormatStderrIsFailure(t *testing.T) {
	bin, _ := fakeClangFormat(t)
	s := New(Options{Path: bin})

	res := s.Format(context.Background(), "x;\n", clangformat.Config{"Warn": clangformat.Bool(true)})
	assert.False(t, res.Success)
	assert.Equal(t, "x;\n", res.FormattedCode)
	assert.Contains(t, res.Error, "deprecated")
}

func TestFormatCachesResults(t *testing.T) {
	bin, countFile := fakeClangFormat(t)
	s := New(Options{Path: bin, CacheSize: 4})
	cfg := clangformat.Config{"IndentWidth": clangformat.Int(2)}

	first := s.Format(context.Background(), "a;\n", cfg)
	second := s.Format(context.Background(), "a;\n", cfg)
	require.True(t, first.Success)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.FormattedCode, second.FormattedCode)
	assert.Equal(t, 1, callCount(t, countFile))

	s.Format(context.Background(), "a;\n", clangformat.Config{"IndentWidth": clangformat.Int(4)})
	assert.Equal(t, 2, callCount(t, countFile))

	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.Calls)
	assert.Equal(t, uint64(1), stats.Hits)

	s.Purge()
	s.Format(context.Background(), "a;\n", cfg)
	assert.Equal(t, 3, callCount(t, countFile))
}

func TestFailuresAreNotCached(t *testing.T) {
	bin, countFile := fakeClangFormat(t)
	s := New(Options{Path: bin})
	cfg := clangformat.Config{"Broken": clangformat.Bool(true)}

	s.Format(context.Background(), "x;\n", cfg)
	s.Format(context.Background(), "x;\n", cfg)
	assert.Equal(t, 2, callCount(t, countFile))
}

func TestVersion(t *testing.T) {
	bin, _ := fakeClangFormat(t)
	s := New(Options{Path: bin})

	v, err := s.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "clang-format version 17.0.0 (fake)", v)
}

func TestDiff(t *testing.T) {
	assert.True(t, Diff("same\n", "same\n").Unchanged())

	c := Diff("a\nb\n", "a\nc\n")
	assert.Equal(t, 1, c.Inserted)
	assert.Equal(t, 1, c.Deleted)
	assert.Equal(t, 1, c.ChangedLines)

	c = Diff("int  x;\n", "int x;\nint y;\n")
	assert.Greater(t, c.Inserted, 0)
	assert.Equal(t, 2, c.ChangedLines)
}
