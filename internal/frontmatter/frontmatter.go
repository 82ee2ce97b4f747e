// Package frontmatter models the YAML metadata block at the top of a note as
// an ordered mapping of keys to tagged values.
//
// Supported value shapes:
//
//	title: Hello            # string
//	weight: 3               # number
//	draft: false            # bool
//	tags: [a, b]            # list (of any value)
//	meta:                   # nested mapping
//	  author: alice
//	empty:                  # null
//
// Key order is preserved through YAML and JSON round trips.
package frontmatter

import (
	"strconv"
)

// Kind enumerates the value shapes a front-matter entry may hold.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a tagged variant. Only the field matching Kind is meaningful.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	List []Value
	Map  *FrontMatter
}

// String, Number, Bool, List, Map and Null construct values of each kind.
func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func List(items ...Value) Value { return Value{Kind: KindList, List: items} }
func Map(m *FrontMatter) Value { return Value{Kind: KindMap, Map: m} }
func Null() Value { return Value{Kind: KindNull} }

// Text renders a scalar as plain text. Lists and maps render as empty.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return formatNumber(v.Num)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// Strings flattens a scalar or a list of scalars into strings. It is how
// list-or-scalar keys such as "aliases" are read.
func (v Value) Strings() []string {
	switch v.Kind {
	case KindNull, KindMap:
		return nil
	case KindList:
		out := make([]string, 0, len(v.List))
		for _, item := range v.List {
			if item.Kind == KindList || item.Kind == KindMap || item.Kind == KindNull {
				continue
			}
			out = append(out, item.Text())
		}
		return out
	default:
		return []string{v.Text()}
	}
}

// Equal reports deep equality, including key order of nested maps.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.Map.Equal(o.Map)
	}
	return false
}

// Field is one key/value entry.
type Field struct {
	Key   string
	Value Value
}

// FrontMatter is an ordered mapping. The zero value is empty and ready to use.
type FrontMatter struct {
	fields []Field
}

// New returns an empty front matter.
func New() *FrontMatter { return &FrontMatter{} }

// Len returns the number of keys. A nil receiver is empty.
func (fm *FrontMatter) Len() int {
	if fm == nil {
		return 0
	}
	return len(fm.fields)
}

// Fields returns the entries in order. The slice must not be modified.
func (fm *FrontMatter) Fields() []Field {
	if fm == nil {
		return nil
	}
	return fm.fields
}

// Get looks up key.
func (fm *FrontMatter) Get(key string) (Value, bool) {
	if fm == nil {
		return Value{}, false
	}
	for _, f := range fm.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the value of an existing key in place or appends a new key.
func (fm *FrontMatter) Set(key string, v Value) *FrontMatter {
	for i := range fm.fields {
		if fm.fields[i].Key == key {
			fm.fields[i].Value = v
			return fm
		}
	}
	fm.fields = append(fm.fields, Field{Key: key, Value: v})
	return fm
}

// Delete removes key if present.
func (fm *FrontMatter) Delete(key string) {
	for i := range fm.fields {
		if fm.fields[i].Key == key {
			fm.fields = append(fm.fields[:i], fm.fields[i+1:]...)
			return
		}
	}
}

// Equal compares two front matters key by key, in order.
func (fm *FrontMatter) Equal(o *FrontMatter) bool {
	if fm.Len() != o.Len() {
		return false
	}
	for i, f := range fm.Fields() {
		g := o.fields[i]
		if f.Key != g.Key || !f.Value.Equal(g.Value) {
			return false
		}
	}
	return true
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func isIntegral(f float64) bool {
	return f == float64(int64(f))
}
