// Package clangformat models the contents of a .clang-format file: typed
// option values, the line-oriented parser and serializer, the inline style
// string handed to the formatter, and the catalogue of known options.
package clangformat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Inherit is the sentinel value meaning "take the value from the base style"
const Inherit = "inherit"

// Kind of a Value
type Kind int

const (
	KindUnset Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	default:
		return "unset"
	}
}

// Value is a single option value. The zero value is unset.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []string
}

func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }

func List(items ...string) Value {
	return Value{kind: KindList, list: append([]string{}, items...)}
}

func (v Value) Kind() Kind { return v.kind }

// IsSet reports whether the value should be stored. Unset values and the
// inherit sentinel both mean the key is absent.
func (v Value) IsSet() bool {
	return v.kind != KindUnset && !v.IsInherit()
}

// IsInherit reports whether the value is the inherit sentinel
func (v Value) IsInherit() bool {
	return v.kind == KindString && v.s == Inherit
}

func (v Value) Bool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool)      { return v.i, v.kind == KindInt }
func (v Value) Float() (float64, bool)  { return v.f, v.kind == KindFloat }
func (v Value) Str() (string, bool)     { return v.s, v.kind == KindString }
func (v Value) Items() ([]string, bool) { return append([]string(nil), v.list...), v.kind == KindList }

// Interface returns the value as a plain Go value
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		return append([]string{}, v.list...)
	default:
		return nil
	}
}

// Equal compares two values by kind and content
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the value the way it is written in a config file
func (v Value) String() string {
	return FormatValue(v)
}

// MarshalJSON encodes the value as its natural JSON form
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts null, booleans, numbers, strings and string arrays
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	val, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// FromAny converts a decoded JSON or YAML value
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return Int(int64(x)), nil
		}
		return Float(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q", x)
		}
		return Float(f), nil
	case string:
		return String(x), nil
	case []string:
		return List(x...), nil
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			items = append(items, fmt.Sprint(item))
		}
		return List(items...), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// Config maps option keys to values. An absent key inherits from the base style.
type Config map[string]Value

// Clone returns a copy that shares no list storage with c
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		if v.kind == KindList {
			v.list = append([]string{}, v.list...)
		}
		out[k] = v
	}
	return out
}

// Set stores v under key, or deletes key when v is unset or inherit
func (c Config) Set(key string, v Value) {
	if !v.IsSet() {
		delete(c, key)
		return
	}
	c[key] = v
}

// Keys returns the keys in sorted order
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal compares two configs key by key
func (c Config) Equal(o Config) bool {
	if len(c) != len(o) {
		return false
	}
	for k, v := range c {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Merge returns a copy of c with every set value of patch applied and every
// unset value of patch removed.
func (c Config) Merge(patch Config) Config {
	out := c.Clone()
	for k, v := range patch {
		out.Set(k, v)
	}
	return out
}

// DefaultConfig is what reset restores
func DefaultConfig() Config {
	return Config{"BasedOnStyle": String("LLVM")}
}
