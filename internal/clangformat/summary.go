package clangformat

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/muesli/reflow/wordwrap"
)

// DefaultSample is the C++ source shown in the preview when no sample file
// is configured.
//
//go:embed sample.cpp.txt
var DefaultSample string

const summaryWidth = 76

// Summary renders a comment block listing the options that are set, so the
// preview shows which keys produced the formatted code. prefix is the line
// comment marker of the preview language.
func Summary(cfg Config, prefix string) string {
	if prefix == "" {
		prefix = "//"
	}

	var active []string
	for _, key := range cfg.Keys() {
		if v := cfg[key]; v.IsSet() {
			active = append(active, key+": "+FormatValue(v))
		}
	}

	var b strings.Builder
	if len(active) == 0 {
		fmt.Fprintf(&b, "%s clang-format preview: no options set, every option inherits its default\n", prefix)
		b.WriteString(prefix + "\n")
		return b.String()
	}

	noun := "options"
	if len(active) == 1 {
		noun = "option"
	}
	fmt.Fprintf(&b, "%s clang-format preview (%d active %s)\n", prefix, len(active), noun)
	wrapped := wordwrap.String(strings.Join(active, ", "), summaryWidth)
	for _, line := range strings.Split(wrapped, "\n") {
		b.WriteString(prefix + " " + strings.TrimSpace(line) + "\n")
	}
	b.WriteString(prefix + "\n")
	return b.String()
}
