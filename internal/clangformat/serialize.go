package clangformat

import (
	"strconv"
	"strings"
)

// Header is the two-line comment written at the top of generated files
const Header = "# .clang-format generated by clangfmt-studio\n" +
	"# Options are sorted by key; delete a line to inherit it from BasedOnStyle\n"

// Stringify renders cfg as a .clang-format file: the generated header followed
// by one sorted "Key: Value" line per set option.
func Stringify(cfg Config) string {
	var b strings.Builder
	b.WriteString(Header)
	for _, key := range cfg.Keys() {
		v := cfg[key]
		if !v.IsSet() {
			continue
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(FormatValue(v))
		b.WriteByte('\n')
	}
	return b.String()
}

// StyleString renders cfg as the inline flow mapping accepted by
// clang-format's -style argument, for example {BasedOnStyle: LLVM, IndentWidth: 2}.
func StyleString(cfg Config) string {
	parts := make([]string, 0, len(cfg))
	for _, key := range cfg.Keys() {
		v := cfg[key]
		if !v.IsSet() {
			continue
		}
		parts = append(parts, key+": "+FormatValue(v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FormatValue renders a single value so that ParseValue reads it back as the
// same kind and content.
func FormatValue(v Value) string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		s := strconv.FormatFloat(v.f, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case KindString:
		return formatString(v.s, false)
	case KindList:
		items := make([]string, len(v.list))
		for i, item := range v.list {
			items[i] = formatString(item, true)
		}
		return "[" + strings.Join(items, ", ") + "]"
	default:
		return ""
	}
}

func formatString(s string, inList bool) string {
	if needsQuote(s, inList) {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return s
}

func needsQuote(s string, inList bool) bool {
	if s == "" || s != strings.TrimSpace(s) {
		return true
	}
	if strings.ContainsAny(s, "\n\t") || strings.Contains(s, ": ") || strings.HasSuffix(s, ":") || strings.Contains(s, " #") {
		return true
	}
	if strings.ContainsRune("[]{},&*!|>'\"%@`#?:-", rune(s[0])) {
		return true
	}
	if inList && strings.ContainsAny(s, ",]") {
		return true
	}
	// Anything that would re-parse as a bool or number must stay a string
	return ParseValue(s).Kind() != KindString
}
