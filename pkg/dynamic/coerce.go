package dynamic

import (
	"encoding/json"
	"fmt"

	"github.com/openfroyo/providerkit/pkg/diag"
	"github.com/openfroyo/providerkit/pkg/schema"
)

// FromGo converts a loosely-typed Go value, as produced by parsing a config
// literal, into an untyped Value tree. Numbers arriving as json.Number or
// string-form decimals keep their exact decimal representation.
func FromGo(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return NumberInt(int64(x)), nil
	case int64:
		return NumberInt(x), nil
	case json.Number:
		return NumberString(x.String())
	case float64:
		return NumberString(fmt.Sprintf("%g", x))
	case []any:
		elems := make([]Value, len(x))
		for i, e := range x {
			v, err := FromGo(e)
			if err != nil {
				return Null(), err
			}
			elems[i] = v
		}
		return List(elems), nil
	case map[string]any:
		entries := make(map[string]Value, len(x))
		for name, e := range x {
			v, err := FromGo(e)
			if err != nil {
				return Null(), err
			}
			entries[name] = v
		}
		return Map(entries), nil
	default:
		return Null(), fmt.Errorf("unsupported value of type %T", raw)
	}
}

// Coerce converts a value into one conforming exactly to the schema's type
// tree and attribute roles. It fails with a type-class error on type
// mismatch, unknown attribute names, missing required attributes, or null
// supplied for a required attribute. A null input stays null: it denotes a
// structurally absent configuration.
func Coerce(v Value, s schema.Schema) (Value, error) {
	if v.IsNull() {
		return Null(), nil
	}
	return coerceBlock(v, s.Block, Root())
}

func coerceBlock(v Value, b schema.Block, p Path) (Value, error) {
	if v.IsUnknown() {
		return v, nil
	}
	if v.kind != KindMap && v.kind != KindObject {
		return Null(), diag.NewTypeError(
			fmt.Sprintf("expected object, got %s", v.kind), nil).
			WithPath(p.String()).WithCode(diag.CodeTypeMismatch)
	}

	out := make(map[string]Value, len(b.Attributes)+len(b.BlockTypes))
	declared := make(map[string]bool, len(b.Attributes)+len(b.BlockTypes))

	for _, a := range b.Attributes {
		declared[a.Name] = true
		ap := p.Attr(a.Name)
		got, present := v.Attr(a.Name)
		if !present || got.IsNull() {
			if a.Required {
				code := diag.CodeMissingRequired
				if present {
					code = diag.CodeNullRequired
				}
				return Null(), diag.NewTypeError(
					fmt.Sprintf("attribute %q is required", a.Name), nil).
					WithPath(ap.String()).WithCode(code)
			}
			out[a.Name] = Null()
			continue
		}
		coerced, err := coerceType(got, a.Type, ap)
		if err != nil {
			return Null(), err
		}
		out[a.Name] = coerced
	}

	for _, nb := range b.BlockTypes {
		declared[nb.TypeName] = true
		bp := p.Attr(nb.TypeName)
		got, present := v.Attr(nb.TypeName)
		if !present || got.IsNull() {
			if nb.MinItems > 0 {
				return Null(), diag.NewTypeError(
					fmt.Sprintf("block %q requires at least %d item(s)", nb.TypeName, nb.MinItems), nil).
					WithPath(bp.String()).WithCode(diag.CodeMissingRequired)
			}
			out[nb.TypeName] = Null()
			continue
		}
		coerced, err := coerceNestedBlock(got, nb, bp)
		if err != nil {
			return Null(), err
		}
		out[nb.TypeName] = coerced
	}

	for _, name := range v.AttrNames() {
		if !declared[name] {
			return Null(), diag.NewTypeError(
				fmt.Sprintf("unknown attribute %q", name), nil).
				WithPath(p.Attr(name).String()).WithCode(diag.CodeUnknownAttribute)
		}
	}

	return Object(out), nil
}

func coerceNestedBlock(v Value, nb schema.NestedBlock, p Path) (Value, error) {
	if v.IsUnknown() {
		return v, nil
	}
	if nb.Nesting == schema.NestingSingle {
		return coerceBlock(v, nb.Block, p)
	}

	elems, err := v.AsList()
	if err != nil {
		return Null(), diag.NewTypeError(
			fmt.Sprintf("expected %s of blocks, got %s", nb.Nesting, v.kind), nil).
			WithPath(p.String()).WithCode(diag.CodeTypeMismatch)
	}
	n := int64(len(elems))
	if n < nb.MinItems || (nb.MaxItems != 0 && n > nb.MaxItems) {
		return Null(), diag.NewTypeError(
			fmt.Sprintf("block %q allows [%d, %d] items, got %d", nb.TypeName, nb.MinItems, nb.MaxItems, n), nil).
			WithPath(p.String()).WithCode(diag.CodeTypeMismatch)
	}
	out := make([]Value, len(elems))
	for i, e := range elems {
		coerced, err := coerceBlock(e, nb.Block, p.Index(i))
		if err != nil {
			return Null(), err
		}
		out[i] = coerced
	}
	return List(out), nil
}

func coerceType(v Value, t schema.Type, p Path) (Value, error) {
	if v.IsUnknown() || v.IsNull() {
		return v, nil
	}

	switch t.Kind {
	case schema.KindString:
		switch v.kind {
		case KindString:
			return v, nil
		case KindNumber:
			// Config literals sometimes carry numeric syntax for
			// string attributes.
			return String(v.num.String()), nil
		case KindBool:
			return String(fmt.Sprintf("%t", v.b)), nil
		}

	case schema.KindNumber:
		switch v.kind {
		case KindNumber:
			return v, nil
		case KindString:
			n, err := NumberString(v.str)
			if err != nil {
				return Null(), diag.NewTypeError(
					fmt.Sprintf("cannot parse %q as number", v.str), nil).
					WithPath(p.String()).WithCode(diag.CodeTypeMismatch)
			}
			return n, nil
		}

	case schema.KindBool:
		if v.kind == KindBool {
			return v, nil
		}

	case schema.KindList, schema.KindSet:
		if v.kind == KindList && t.Elem != nil {
			out := make([]Value, len(v.list))
			for i, e := range v.list {
				coerced, err := coerceType(e, *t.Elem, p.Index(i))
				if err != nil {
					return Null(), err
				}
				out[i] = coerced
			}
			if t.Kind == schema.KindSet {
				if err := checkSetUniqueness(out, *t.Elem, p); err != nil {
					return Null(), err
				}
			}
			return List(out), nil
		}

	case schema.KindMap:
		if (v.kind == KindMap || v.kind == KindObject) && t.Elem != nil {
			out := make(map[string]Value, len(v.elems))
			for name, e := range v.elems {
				coerced, err := coerceType(e, *t.Elem, p.Key(name))
				if err != nil {
					return Null(), err
				}
				out[name] = coerced
			}
			return Map(out), nil
		}

	case schema.KindObject:
		if v.kind == KindMap || v.kind == KindObject {
			out := make(map[string]Value, len(t.Attrs))
			for name, at := range t.Attrs {
				e, ok := v.Attr(name)
				if !ok {
					return Null(), diag.NewTypeError(
						fmt.Sprintf("object missing attribute %q", name), nil).
						WithPath(p.Attr(name).String()).WithCode(diag.CodeMissingRequired)
				}
				coerced, err := coerceType(e, at, p.Attr(name))
				if err != nil {
					return Null(), err
				}
				out[name] = coerced
			}
			for _, name := range v.AttrNames() {
				if _, ok := t.Attrs[name]; !ok {
					return Null(), diag.NewTypeError(
						fmt.Sprintf("unknown object attribute %q", name), nil).
						WithPath(p.Attr(name).String()).WithCode(diag.CodeUnknownAttribute)
				}
			}
			return Object(out), nil
		}
	}

	return Null(), diag.NewTypeError(
		fmt.Sprintf("expected %s, got %s", t.Kind, v.kind), nil).
		WithPath(p.String()).WithCode(diag.CodeTypeMismatch)
}

func checkSetUniqueness(elems []Value, elemType schema.Type, p Path) error {
	for i := range elems {
		for j := i + 1; j < len(elems); j++ {
			if EqualForType(elems[i], elems[j], elemType) {
				return diag.NewTypeError("set contains duplicate elements", nil).
					WithPath(p.Index(j).String()).WithCode(diag.CodeTypeMismatch)
			}
		}
	}
	return nil
}
