package clangformat

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// OptionType is the value type an option accepts
type OptionType string

const (
	TypeBool   OptionType = "bool"
	TypeInt    OptionType = "int"
	TypeEnum   OptionType = "enum"
	TypeString OptionType = "string"
	TypeList   OptionType = "list"
)

// Option describes one configurable key
type Option struct {
	Key         string     `json:"key"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Type        OptionType `json:"type"`
	Enum        []string   `json:"enum,omitempty"`
	// Snippet is a short source fragment that shows the option's effect
	Snippet string `json:"snippet,omitempty"`
}

// Catalog is the set of options the control panel offers
type Catalog interface {
	Options() []Option
	Lookup(key string) (Option, bool)
}

// StaticCatalog is a Catalog backed by a slice
type StaticCatalog []Option

func (c StaticCatalog) Options() []Option {
	return append([]Option(nil), c...)
}

func (c StaticCatalog) Lookup(key string) (Option, bool) {
	for _, opt := range c {
		if opt.Key == key {
			return opt, true
		}
	}
	return Option{}, false
}

// DefaultCatalog returns the built-in subset of commonly tuned options
func DefaultCatalog() StaticCatalog {
	return StaticCatalog{
		{Key: "BasedOnStyle", Title: "Based on style", Category: "General", Type: TypeEnum,
			Enum:        []string{"LLVM", "Google", "Chromium", "Mozilla", "WebKit", "Microsoft", "GNU", "InheritParentConfig"},
			Description: "The style used for every option that is not set explicitly."},
		{Key: "ColumnLimit", Title: "Column limit", Category: "General", Type: TypeInt,
			Description: "Maximum line length; 0 means no limit.",
			Snippet:     "int result = computeSomething(firstArgument, secondArgument, thirdArgument);"},
		{Key: "IndentWidth", Title: "Indent width", Category: "Indentation", Type: TypeInt,
			Description: "Number of columns used for each indentation level.",
			Snippet:     "void f() {\nif (x) {\nreturn;\n}\n}"},
		{Key: "TabWidth", Title: "Tab width", Category: "Indentation", Type: TypeInt,
			Description: "Columns occupied by a tab character."},
		{Key: "UseTab", Title: "Use tabs", Category: "Indentation", Type: TypeEnum,
			Enum:        []string{"Never", "ForIndentation", "ForContinuationAndIndentation", "AlignWithSpaces", "Always"},
			Description: "Whether tab characters are used for indentation."},
		{Key: "AccessModifierOffset", Title: "Access modifier offset", Category: "Indentation", Type: TypeInt,
			Description: "Extra indent or outdent of access modifiers such as public:.",
			Snippet:     "class A {\npublic:\nint x;\n};"},
		{Key: "IndentCaseLabels", Title: "Indent case labels", Category: "Indentation", Type: TypeBool,
			Description: "Indent case labels one level from the switch statement.",
			Snippet:     "switch (x) {\ncase 1:\nbreak;\n}"},
		{Key: "BreakBeforeBraces", Title: "Brace breaking", Category: "Braces", Type: TypeEnum,
			Enum:        []string{"Attach", "Linux", "Mozilla", "Stroustrup", "Allman", "Whitesmiths", "GNU", "WebKit", "Custom"},
			Description: "The brace breaking style to use.",
			Snippet:     "void f() {\nif (x) {\ng();\n} else {\nh();\n}\n}"},
		{Key: "AllowShortFunctionsOnASingleLine", Title: "Short functions on one line", Category: "Line breaking", Type: TypeEnum,
			Enum:        []string{"None", "InlineOnly", "Empty", "Inline", "All"},
			Description: "Which short functions may be kept on a single line.",
			Snippet:     "class A {\nint get() { return x; }\n};"},
		{Key: "AllowShortIfStatementsOnASingleLine", Title: "Short if statements on one line", Category: "Line breaking", Type: TypeEnum,
			Enum:        []string{"Never", "WithoutElse", "OnlyFirstIf", "AllIfsAndElse"},
			Description: "Whether short if statements may stay on a single line.",
			Snippet:     "if (x) return;"},
		{Key: "BinPackArguments", Title: "Bin-pack arguments", Category: "Line breaking", Type: TypeBool,
			Description: "Pack call arguments onto as few lines as possible."},
		{Key: "BinPackParameters", Title: "Bin-pack parameters", Category: "Line breaking", Type: TypeBool,
			Description: "Pack declaration parameters onto as few lines as possible."},
		{Key: "PointerAlignment", Title: "Pointer alignment", Category: "Spacing", Type: TypeEnum,
			Enum:        []string{"Left", "Right", "Middle"},
			Description: "Where the * and & of pointers and references attach.",
			Snippet:     "int* a;\nint *b;\nint & c = *b;"},
		{Key: "SpaceBeforeParens", Title: "Space before parentheses", Category: "Spacing", Type: TypeEnum,
			Enum:        []string{"Never", "ControlStatements", "ControlStatementsExceptControlMacros", "NonEmptyParentheses", "Always", "Custom"},
			Description: "When a space is inserted before an opening parenthesis.",
			Snippet:     "if(x) f(a);"},
		{Key: "SpacesInParentheses", Title: "Spaces inside parentheses", Category: "Spacing", Type: TypeBool,
			Description: "Insert spaces after ( and before )."},
		{Key: "AlignConsecutiveAssignments", Title: "Align consecutive assignments", Category: "Alignment", Type: TypeEnum,
			Enum:        []string{"None", "Consecutive", "AcrossEmptyLines", "AcrossComments", "AcrossEmptyLinesAndComments"},
			Description: "Align the = of consecutive assignments.",
			Snippet:     "int a = 1;\nint somelongname = 2;\ndouble c = 3;"},
		{Key: "AlignTrailingComments", Title: "Align trailing comments", Category: "Alignment", Type: TypeBool,
			Description: "Align trailing comments of consecutive lines."},
		{Key: "SortIncludes", Title: "Sort includes", Category: "Includes", Type: TypeEnum,
			Enum:        []string{"Never", "CaseSensitive", "CaseInsensitive"},
			Description: "How #include blocks are sorted.",
			Snippet:     "#include <vector>\n#include <iostream>\n#include <memory>"},
		{Key: "MaxEmptyLinesToKeep", Title: "Max empty lines to keep", Category: "Whitespace", Type: TypeInt,
			Description: "Maximum number of consecutive empty lines kept."},
		{Key: "Standard", Title: "Language standard", Category: "General", Type: TypeEnum,
			Enum:        []string{"c++03", "c++11", "c++14", "c++17", "c++20", "Latest", "Auto"},
			Description: "The C++ standard used to parse and format code."},
		{Key: "ForEachMacros", Title: "For-each macros", Category: "Macros", Type: TypeList,
			Description: "Macros that should be treated as foreach loops."},
	}
}

// Validate checks option keys and, for options the catalogue knows, the value
// type and enum membership. Unknown keys with valid names are accepted since
// the catalogue is not exhaustive.
func Validate(cfg Config, catalog Catalog) error {
	var errs []error
	for _, key := range cfg.Keys() {
		v := cfg[key]
		if !keyPattern.MatchString(key) {
			errs = append(errs, fmt.Errorf("invalid option name %q", key))
			continue
		}
		if catalog == nil {
			continue
		}
		opt, ok := catalog.Lookup(key)
		if !ok {
			continue
		}
		if err := checkType(opt, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func checkType(opt Option, v Value) error {
	switch opt.Type {
	case TypeBool:
		if v.Kind() != KindBool {
			return fmt.Errorf("expected true or false, got %s", v.Kind())
		}
	case TypeInt:
		if v.Kind() != KindInt {
			return fmt.Errorf("expected an integer, got %s", v.Kind())
		}
	case TypeList:
		if v.Kind() != KindList {
			return fmt.Errorf("expected a list, got %s", v.Kind())
		}
	case TypeEnum:
		s, ok := v.Str()
		if !ok {
			// Several enums accept legacy booleans, e.g. SortIncludes: true
			if v.Kind() == KindBool {
				return nil
			}
			return fmt.Errorf("expected one of %v, got %s", opt.Enum, v.Kind())
		}
		if len(opt.Enum) > 0 && !slices.Contains(opt.Enum, s) {
			return fmt.Errorf("unknown value %q, expected one of %v", s, opt.Enum)
		}
	}
	return nil
}

// CheckDocument verifies the file text is well-formed YAML before the
// line-oriented parser reads it, so malformed files are rejected instead of
// being partially applied.
func CheckDocument(text string) error {
	dec := yaml.NewDecoder(strings.NewReader(text))
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("malformed YAML: %w", err)
		}
	}
}
