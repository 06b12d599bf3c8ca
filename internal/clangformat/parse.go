package clangformat

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	intPattern   = regexp.MustCompile(`^[-+]?[0-9]+$`)
	floatPattern = regexp.MustCompile(`^[-+]?([0-9]+\.[0-9]*|\.[0-9]+)$`)
	keyPattern   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

// ParseError reports a line that is neither a comment nor a Key: Value pair
type ParseError struct {
	Line int
	Text string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: expected \"Key: Value\", got %q", e.Line, e.Text)
}

// Parse reads a .clang-format file. Comments, blank lines, document markers,
// indented lines (nested mappings and sequences) and keys without a value are
// skipped. Later duplicates of a key win.
func Parse(text string) (Config, error) {
	cfg := make(Config)
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "", strings.HasPrefix(trimmed, "#"):
			continue
		case trimmed == "---", trimmed == "...":
			continue
		case line[0] == ' ' || line[0] == '\t' || strings.HasPrefix(trimmed, "- "):
			continue
		}

		key, raw, ok := strings.Cut(trimmed, ":")
		key = strings.TrimSpace(key)
		if !ok || !keyPattern.MatchString(key) {
			return nil, &ParseError{Line: lineNo, Text: trimmed}
		}

		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		cfg.Set(key, ParseValue(raw))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseValue infers the type of a raw scalar: boolean literal, integer,
// decimal, bracketed list, quoted string, else the raw string.
func ParseValue(raw string) Value {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Value{}
	}

	if raw[0] == '"' || raw[0] == '\'' {
		if s, rest, ok := unquote(raw); ok && strings.TrimSpace(stripComment(rest)) == "" {
			return String(s)
		}
	}

	if raw[0] == '[' {
		if end := strings.LastIndexByte(raw, ']'); end > 0 {
			return List(splitList(raw[1:end])...)
		}
	}

	raw = strings.TrimSpace(stripComment(raw))
	switch {
	case strings.EqualFold(raw, "true"):
		return Bool(true)
	case strings.EqualFold(raw, "false"):
		return Bool(false)
	case intPattern.MatchString(raw):
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Int(i)
		}
	case floatPattern.MatchString(raw):
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return Float(f)
		}
	}
	return String(raw)
}

// stripComment removes a trailing " # comment" from an unquoted scalar
func stripComment(s string) string {
	if i := strings.Index(s, " #"); i >= 0 {
		return s[:i]
	}
	return s
}

// unquote reads one quoted scalar from the start of s and returns the
// remainder after the closing quote.
func unquote(s string) (string, string, bool) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case quote == '\'' && c == '\'':
			if i+1 < len(s) && s[i+1] == '\'' {
				b.WriteByte('\'')
				i++
				continue
			}
			return b.String(), s[i+1:], true
		case quote == '"' && c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
		case quote == '"' && c == '"':
			return b.String(), s[i+1:], true
		default:
			b.WriteByte(c)
		}
	}
	return "", "", false
}

// splitList splits the inside of a bracketed list on commas that are not
// inside quotes.
func splitList(inner string) []string {
	items := []string{}
	rest := strings.TrimSpace(inner)
	for rest != "" {
		var item string
		if rest[0] == '"' || rest[0] == '\'' {
			s, after, ok := unquote(rest)
			if !ok {
				items = append(items, rest)
				break
			}
			item = s
			rest = strings.TrimSpace(after)
			rest = strings.TrimPrefix(rest, ",")
		} else {
			raw, after, _ := strings.Cut(rest, ",")
			item = strings.TrimSpace(raw)
			rest = after
		}
		items = append(items, item)
		rest = strings.TrimSpace(rest)
	}
	return items
}
