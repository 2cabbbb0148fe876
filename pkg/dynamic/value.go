// Package dynamic provides the self-describing, schema-aware value tree that
// is the common currency between configuration, state, and plan. Every value
// is one of null, unknown, bool, number, string, list, map, or object.
// Unknown is a first-class state meaning "determined at apply time" and is
// distinct from null. Numbers are exact decimals so integers and fractions
// round-trip without loss.
package dynamic

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/apd/v3"
)

// Kind discriminates the states a Value can be in.
type Kind int

const (
	// KindNull is an explicit null.
	KindNull Kind = iota

	// KindUnknown is a value whose concrete content is only determined
	// during apply.
	KindUnknown

	// KindBool is a boolean.
	KindBool

	// KindNumber is an exact decimal number.
	KindNumber

	// KindString is a string.
	KindString

	// KindList is an ordered sequence of values.
	KindList

	// KindMap maps string keys to values; insertion order is irrelevant.
	KindMap

	// KindObject has a fixed key set matching a governing schema.
	KindObject
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindUnknown:
		return "unknown"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Value is a tagged dynamic value. Each node exclusively owns its children;
// value trees are never cyclic. The zero Value is null.
type Value struct {
	kind  Kind
	b     bool
	num   *apd.Decimal
	str   string
	list  []Value
	elems map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Unknown returns the unknown value.
func Unknown() Value { return Value{kind: KindUnknown} }

// Bool returns a bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// NumberInt returns a number value holding an integer.
func NumberInt(n int64) Value {
	return Value{kind: KindNumber, num: apd.New(n, 0)}
}

// NumberString parses a decimal literal into a number value. The literal's
// exact decimal form is preserved, avoiding floating-point drift.
func NumberString(s string) (Value, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Null(), fmt.Errorf("invalid number literal %q: %w", s, err)
	}
	return Value{kind: KindNumber, num: d}, nil
}

// MustNumber is NumberString for literals known to be valid.
func MustNumber(s string) Value {
	v, err := NumberString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// NumberDecimal wraps an exact decimal into a number value.
func NumberDecimal(d *apd.Decimal) Value {
	cp := new(apd.Decimal).Set(d)
	return Value{kind: KindNumber, num: cp}
}

// List returns a list value owning the given elements.
func List(elems []Value) Value {
	return Value{kind: KindList, list: elems}
}

// Map returns a map value owning the given entries.
func Map(entries map[string]Value) Value {
	return Value{kind: KindMap, elems: entries}
}

// Object returns an object value with a fixed key set.
func Object(attrs map[string]Value) Value {
	return Value{kind: KindObject, elems: attrs}
}

// Kind returns the value's kind tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsUnknown reports whether the value itself is unknown. Use IsKnown for
// the recursive check.
func (v Value) IsUnknown() bool { return v.kind == KindUnknown }

// IsKnown reports whether no unknown node exists anywhere in the tree.
func (v Value) IsKnown() bool {
	switch v.kind {
	case KindUnknown:
		return false
	case KindList:
		for _, e := range v.list {
			if !e.IsKnown() {
				return false
			}
		}
		return true
	case KindMap, KindObject:
		for _, e := range v.elems {
			if !e.IsKnown() {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// AsBool returns the boolean content.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, typeMismatch("bool", v.kind)
	}
	return v.b, nil
}

// AsString returns the string content.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", typeMismatch("string", v.kind)
	}
	return v.str, nil
}

// AsNumber returns the exact decimal content. The caller must not mutate
// the returned decimal.
func (v Value) AsNumber() (*apd.Decimal, error) {
	if v.kind != KindNumber {
		return nil, typeMismatch("number", v.kind)
	}
	return v.num, nil
}

// AsInt64 returns the number content as an int64 when it is integral.
func (v Value) AsInt64() (int64, error) {
	d, err := v.AsNumber()
	if err != nil {
		return 0, err
	}
	i, err := d.Int64()
	if err != nil {
		return 0, fmt.Errorf("number %s is not an int64: %w", d, err)
	}
	return i, nil
}

// AsList returns the list elements. The caller must not mutate them.
func (v Value) AsList() ([]Value, error) {
	if v.kind != KindList {
		return nil, typeMismatch("list", v.kind)
	}
	return v.list, nil
}

// AsMap returns the map entries. The caller must not mutate them.
func (v Value) AsMap() (map[string]Value, error) {
	if v.kind != KindMap && v.kind != KindObject {
		return nil, typeMismatch("map", v.kind)
	}
	return v.elems, nil
}

// Attr returns the named attribute of an object or map value, and whether
// it was present.
func (v Value) Attr(name string) (Value, bool) {
	if v.kind != KindMap && v.kind != KindObject {
		return Null(), false
	}
	e, ok := v.elems[name]
	return e, ok
}

// AttrNames returns the sorted key set of an object or map value.
func (v Value) AttrNames() []string {
	if v.kind != KindMap && v.kind != KindObject {
		return nil
	}
	names := make([]string, 0, len(v.elems))
	for name := range v.elems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithAttr returns a copy of an object or map value with one entry
// replaced. Values are treated as immutable; mutation returns new trees.
func (v Value) WithAttr(name string, attr Value) Value {
	if v.kind != KindMap && v.kind != KindObject {
		return v
	}
	elems := make(map[string]Value, len(v.elems)+1)
	for k, e := range v.elems {
		elems[k] = e
	}
	elems[name] = attr
	return Value{kind: v.kind, elems: elems}
}

// GoString renders the value for debugging. Numbers print in their exact
// decimal form.
func (v Value) GoString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindUnknown:
		return "unknown"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindNumber:
		return v.num.String()
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindList:
		s := "["
		for i, e := range v.list {
			if i > 0 {
				s += ", "
			}
			s += e.GoString()
		}
		return s + "]"
	case KindMap, KindObject:
		s := "{"
		for i, name := range v.AttrNames() {
			if i > 0 {
				s += ", "
			}
			s += fmt.Sprintf("%s: %s", name, v.elems[name].GoString())
		}
		return s + "}"
	default:
		return "invalid"
	}
}

func typeMismatch(expected string, got Kind) error {
	return fmt.Errorf("expected %s, got %s", expected, got)
}
