package dynamic

import "github.com/openfroyo/providerkit/pkg/schema"

// Equal reports structural equality of two values. Unknown is never equal
// to anything, including another unknown: it is a one-way sentinel, not a
// value with identity. Numbers compare by exact decimal value, so 1.0 and
// 1.00 are equal while 0.1+0.2 style drift cannot occur.
func Equal(a, b Value) bool {
	if a.kind == KindUnknown || b.kind == KindUnknown {
		return false
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.num.Cmp(b.num) == 0
	case KindString:
		return a.str == b.str
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap, KindObject:
		if len(a.elems) != len(b.elems) {
			return false
		}
		for name, av := range a.elems {
			bv, ok := b.elems[name]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// EqualForType compares two values under a governing type descriptor.
// Set-typed collections compare order-independently; everything else is
// plain structural equality, so list-order changes count as value changes.
func EqualForType(a, b Value, t schema.Type) bool {
	if a.kind == KindUnknown || b.kind == KindUnknown {
		return false
	}
	switch t.Kind {
	case schema.KindSet:
		if a.kind != KindList || b.kind != KindList {
			return Equal(a, b)
		}
		if len(a.list) != len(b.list) {
			return false
		}
		matched := make([]bool, len(b.list))
	outer:
		for _, av := range a.list {
			for i, bv := range b.list {
				if !matched[i] && EqualForType(av, bv, *t.Elem) {
					matched[i] = true
					continue outer
				}
			}
			return false
		}
		return true
	case schema.KindList:
		if a.kind != KindList || b.kind != KindList || t.Elem == nil {
			return Equal(a, b)
		}
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !EqualForType(a.list[i], b.list[i], *t.Elem) {
				return false
			}
		}
		return true
	case schema.KindMap:
		if (a.kind != KindMap && a.kind != KindObject) || t.Elem == nil {
			return Equal(a, b)
		}
		if b.kind != KindMap && b.kind != KindObject {
			return false
		}
		if len(a.elems) != len(b.elems) {
			return false
		}
		for name, av := range a.elems {
			bv, ok := b.elems[name]
			if !ok || !EqualForType(av, bv, *t.Elem) {
				return false
			}
		}
		return true
	case schema.KindObject:
		if a.kind != KindObject && a.kind != KindMap {
			return Equal(a, b)
		}
		if b.kind != KindObject && b.kind != KindMap {
			return false
		}
		if len(a.elems) != len(b.elems) {
			return false
		}
		for name, av := range a.elems {
			bv, ok := b.elems[name]
			if !ok {
				return false
			}
			at, ok := t.Attrs[name]
			if !ok {
				if !Equal(av, bv) {
					return false
				}
				continue
			}
			if !EqualForType(av, bv, at) {
				return false
			}
		}
		return true
	default:
		return Equal(a, b)
	}
}
