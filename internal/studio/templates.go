package studio

import (
	"bytes"
	"embed"
	"html/template"
	"sort"
	"strings"

	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

type optionField struct {
	Key         string
	Title       string
	Description string
	Type        string
	Enum        []string
	Value       string
	IsSet       bool
}

type optionGroup struct {
	Name    string
	Options []optionField
}

type editorPage struct {
	Title      string
	Theme      string
	ConfigPath string
	Dirty      bool
	Groups     []optionGroup
}

type placeholderPage struct {
	Title   string
	Theme   string
	Summary string
}

// groupOptions lays the catalogue out by category, categories sorted, options
// in catalogue order
func groupOptions(catalog clangformat.Catalog, cfg clangformat.Config) []optionGroup {
	index := make(map[string]int)
	var groups []optionGroup
	for _, opt := range catalog.Options() {
		field := optionField{
			Key:         opt.Key,
			Title:       opt.Title,
			Description: opt.Description,
			Type:        string(opt.Type),
			Enum:        opt.Enum,
		}
		if field.Title == "" {
			field.Title = opt.Key
		}
		if v, ok := cfg[opt.Key]; ok && v.IsSet() {
			field.IsSet = true
			field.Value = displayValue(v)
		}
		i, ok := index[opt.Category]
		if !ok {
			i = len(groups)
			index[opt.Category] = i
			groups = append(groups, optionGroup{Name: opt.Category})
		}
		groups[i].Options = append(groups[i].Options, field)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].Name < groups[b].Name })
	return groups
}

func displayValue(v clangformat.Value) string {
	if items, ok := v.Items(); ok {
		return strings.Join(items, ", ")
	}
	if s, ok := v.Str(); ok {
		return s
	}
	return v.String()
}

func renderPage(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
