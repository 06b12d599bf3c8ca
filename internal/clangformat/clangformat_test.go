package clangformat

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInfersTypes(t *testing.T) {
	text := `# comment
---
BasedOnStyle: Google
IndentWidth: 4
PenaltyExcessCharacter: 1.5
SortIncludes: false
ForEachMacros: [foreach, Q_FOREACH, 'BOOST_FOREACH']
CommentPragmas: '^ IWYU pragma:'
MacroBlockBegin: "^BEGIN"
Standard: c++17 # trailing comment
BraceWrapping:
  AfterClass: true
IncludeCategories:
  - Regex: '^<'
    Priority: 1
...
`
	cfg, err := Parse(text)
	require.NoError(t, err)

	assert.True(t, cfg["BasedOnStyle"].Equal(String("Google")))
	assert.True(t, cfg["IndentWidth"].Equal(Int(4)))
	assert.True(t, cfg["PenaltyExcessCharacter"].Equal(Float(1.5)))
	assert.True(t, cfg["SortIncludes"].Equal(Bool(false)))
	assert.True(t, cfg["ForEachMacros"].Equal(List("foreach", "Q_FOREACH", "BOOST_FOREACH")))
	assert.True(t, cfg["CommentPragmas"].Equal(String("^ IWYU pragma:")))
	assert.True(t, cfg["MacroBlockBegin"].Equal(String("^BEGIN")))
	assert.True(t, cfg["Standard"].Equal(String("c++17")))

	// Nested mappings are not part of the flat format
	assert.NotContains(t, cfg, "BraceWrapping")
	assert.NotContains(t, cfg, "AfterClass")
	assert.NotContains(t, cfg, "Regex")
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("IndentWidth: 2\nthis is not a pair\n")
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Line)
}

func TestParseValueSplitsOnFirstColon(t *testing.T) {
	cfg, err := Parse("CommentPragmas: a:b:c\n")
	require.NoError(t, err)
	assert.True(t, cfg["CommentPragmas"].Equal(String("a:b:c")))
}

func TestRoundTrip(t *testing.T) {
	cfg := Config{
		"BasedOnStyle":          String("LLVM"),
		"IndentWidth":           Int(2),
		"AccessModifierOffset":  Int(-2),
		"PenaltyBreakComment":   Float(300.25),
		"PenaltyReturnType":     Float(60),
		"UseTab":                String("Never"),
		"AlignTrailingComments": Bool(true),
		"BinPackArguments":      Bool(false),
		"CommentPragmas":        String("^ IWYU pragma:"),
		"QuotedNumber":          String("42"),
		"QuotedBool":            String("true"),
		"EmptyString":           String(""),
		"Apostrophe":            String("it's"),
		"ForEachMacros":         List("foreach", "Q_FOREACH"),
		"TrickyList":            List("a, b", "true", "x]"),
		"EmptyList":             List(),
	}

	parsed, err := Parse(Stringify(cfg))
	require.NoError(t, err)

	for key, want := range cfg {
		got, ok := parsed[key]
		if assert.True(t, ok, "missing %s", key) {
			assert.True(t, want.Equal(got), "%s: want %v (%s) got %v (%s)", key, want, want.Kind(), got, got.Kind())
		}
	}
	assert.Len(t, parsed, len(cfg))
}

func TestStringifyHeaderAndOrder(t *testing.T) {
	out := Stringify(Config{
		"UseTab":       String("Never"),
		"IndentWidth":  Int(2),
		"BasedOnStyle": String("LLVM"),
		"ColumnLimit":  String(Inherit),
	})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "#"))
	assert.True(t, strings.HasPrefix(lines[1], "#"))
	assert.Equal(t, []string{"BasedOnStyle: LLVM", "IndentWidth: 2", "UseTab: Never"}, lines[2:])
}

func TestStyleString(t *testing.T) {
	style := StyleString(Config{
		"IndentWidth":   Int(2),
		"BasedOnStyle":  String("LLVM"),
		"ColumnLimit":   String(Inherit),
		"ForEachMacros": List("foreach"),
		"Unset":         Value{},
	})
	assert.Equal(t, "{BasedOnStyle: LLVM, ForEachMacros: [foreach], IndentWidth: 2}", style)
	assert.Equal(t, "{}", StyleString(Config{}))
}

func TestConfigSetDropsInherit(t *testing.T) {
	cfg := Config{"IndentWidth": Int(2)}
	cfg.Set("IndentWidth", String(Inherit))
	assert.NotContains(t, cfg, "IndentWidth")

	cfg.Set("ColumnLimit", Int(100))
	cfg.Set("ColumnLimit", Value{})
	assert.Empty(t, cfg)
}

func TestConfigCloneIsIndependent(t *testing.T) {
	cfg := Config{"ForEachMacros": List("a")}
	clone := cfg.Clone()
	clone["IndentWidth"] = Int(3)

	assert.NotContains(t, cfg, "IndentWidth")
	assert.True(t, cfg.Equal(Config{"ForEachMacros": List("a")}))
}

func TestValueJSON(t *testing.T) {
	var payload struct {
		A Value `json:"a"`
		B Value `json:"b"`
		C Value `json:"c"`
		D Value `json:"d"`
		E Value `json:"e"`
		F Value `json:"f"`
	}
	err := json.Unmarshal([]byte(`{"a":true,"b":4,"c":1.25,"d":"Never","e":["x","y"],"f":null}`), &payload)
	require.NoError(t, err)

	assert.True(t, payload.A.Equal(Bool(true)))
	assert.True(t, payload.B.Equal(Int(4)))
	assert.True(t, payload.C.Equal(Float(1.25)))
	assert.True(t, payload.D.Equal(String("Never")))
	assert.True(t, payload.E.Equal(List("x", "y")))
	assert.False(t, payload.F.IsSet())

	data, err := json.Marshal(Config{"IndentWidth": Int(2), "UseTab": String("Never")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"IndentWidth":2,"UseTab":"Never"}`, string(data))
}

func TestSummary(t *testing.T) {
	summary := Summary(Config{"IndentWidth": Int(2), "BasedOnStyle": String("LLVM")}, "//")
	assert.Contains(t, summary, "2 active options")
	assert.Contains(t, summary, "BasedOnStyle: LLVM, IndentWidth: 2")
	for _, line := range strings.Split(strings.TrimRight(summary, "\n"), "\n") {
		assert.True(t, strings.HasPrefix(line, "//"), line)
	}

	empty := Summary(Config{}, "")
	assert.Contains(t, empty, "no options set")
}

func TestSummaryWrapsLongLists(t *testing.T) {
	cfg := Config{}
	for _, opt := range DefaultCatalog() {
		cfg[opt.Key] = String("Value")
	}
	for _, line := range strings.Split(Summary(cfg, "//"), "\n") {
		assert.LessOrEqual(t, len(line), summaryWidth+len("// ")+30)
	}
}

func TestValidate(t *testing.T) {
	catalog := DefaultCatalog()

	assert.NoError(t, Validate(Config{
		"IndentWidth":      Int(2),
		"UseTab":           String("Never"),
		"SortIncludes":     Bool(true),
		"SomeFutureOption": String("x"),
	}, catalog))

	err := Validate(Config{
		"IndentWidth":      String("two"),
		"UseTab":           String("Sometimes"),
		"IndentCaseLabels": Int(1),
	}, catalog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IndentWidth")
	assert.Contains(t, err.Error(), "UseTab")
	assert.Contains(t, err.Error(), "IndentCaseLabels")
}

func TestCheckDocument(t *testing.T) {
	assert.NoError(t, CheckDocument("---\nIndentWidth: 2\n---\nLanguage: Cpp\n"))
	assert.NoError(t, CheckDocument(""))
	assert.Error(t, CheckDocument("IndentWidth: [2\n"))
}

func TestDefaultSampleEmbedded(t *testing.T) {
	assert.Contains(t, DefaultSample, "class ExampleClass")
}
