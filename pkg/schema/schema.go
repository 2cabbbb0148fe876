// Package schema declares the shape and constraints of provider, resource,
// and data source configuration and state. A schema is published once per
// protocol exchange and is immutable afterwards; the structural invariants
// are checked at registration time, before any protocol traffic.
package schema

// Kind enumerates the type descriptors understood by the framework.
type Kind int

const (
	// KindInvalid is the zero Kind and never valid in a published schema.
	KindInvalid Kind = iota

	// KindString is a UTF-8 string.
	KindString

	// KindNumber is an exact decimal number. Integers and decimals
	// round-trip without loss.
	KindNumber

	// KindBool is a boolean.
	KindBool

	// KindList is an ordered collection of one element type.
	KindList

	// KindSet is an unordered collection of one element type.
	KindSet

	// KindMap maps string keys to one element type.
	KindMap

	// KindObject has a fixed key set, each key with its own type.
	KindObject
)

// String returns the type-system name of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindMap:
		return "map"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Type is a recursive type descriptor. Each node exclusively owns its
// children; type trees are never cyclic.
type Type struct {
	// Kind discriminates the descriptor.
	Kind Kind

	// Elem is the element type for list, set, and map kinds.
	Elem *Type

	// Attrs is the fixed attribute set for object kinds.
	Attrs map[string]Type
}

// StringType returns the string type descriptor.
func StringType() Type { return Type{Kind: KindString} }

// NumberType returns the number type descriptor.
func NumberType() Type { return Type{Kind: KindNumber} }

// BoolType returns the bool type descriptor.
func BoolType() Type { return Type{Kind: KindBool} }

// ListOf returns a list type with the given element type.
func ListOf(elem Type) Type { return Type{Kind: KindList, Elem: &elem} }

// SetOf returns a set type with the given element type.
func SetOf(elem Type) Type { return Type{Kind: KindSet, Elem: &elem} }

// MapOf returns a map type with the given element type.
func MapOf(elem Type) Type { return Type{Kind: KindMap, Elem: &elem} }

// ObjectOf returns an object type with the given fixed attribute set.
func ObjectOf(attrs map[string]Type) Type { return Type{Kind: KindObject, Attrs: attrs} }

// Equal reports structural equality of two type descriptors.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindList, KindSet, KindMap:
		if t.Elem == nil || other.Elem == nil {
			return t.Elem == other.Elem
		}
		return t.Elem.Equal(*other.Elem)
	case KindObject:
		if len(t.Attrs) != len(other.Attrs) {
			return false
		}
		for name, at := range t.Attrs {
			bt, ok := other.Attrs[name]
			if !ok || !at.Equal(bt) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// NestingMode defines the cardinality of a nested block.
type NestingMode int

const (
	// NestingInvalid is the zero NestingMode and never valid.
	NestingInvalid NestingMode = iota

	// NestingSingle allows at most one block instance.
	NestingSingle

	// NestingList allows an ordered list of block instances.
	NestingList

	// NestingSet allows an unordered set of block instances.
	NestingSet
)

// String returns the name of the nesting mode.
func (m NestingMode) String() string {
	switch m {
	case NestingSingle:
		return "single"
	case NestingList:
		return "list"
	case NestingSet:
		return "set"
	default:
		return "invalid"
	}
}

// Attribute represents a single configuration attribute.
type Attribute struct {
	// Name is the attribute name, unique within its block.
	Name string

	// Type is the attribute's type descriptor.
	Type Type

	// Description documents the attribute for the orchestrator.
	Description string

	// Required means the caller must supply a non-null value.
	Required bool

	// Optional means the caller may supply a value or leave it null.
	Optional bool

	// Computed means the backend derives the value. An attribute that is
	// both optional and computed may be supplied by the caller or else
	// derived by the backend. Required and computed are mutually
	// exclusive.
	Computed bool

	// Sensitive marks values that must be redacted from diagnostics.
	Sensitive bool

	// RequiresReplace escalates any change of this attribute to a
	// whole-instance replace.
	RequiresReplace bool

	// DependsOn names sibling attributes this attribute is derived from.
	// When any of them is unknown or changed during planning, this
	// attribute's planned value becomes unknown too.
	DependsOn []string
}

// NestedBlock represents a nested configuration block with its own
// sub-schema and cardinality.
type NestedBlock struct {
	// TypeName is the block name, unique within its parent block.
	TypeName string

	// Nesting is the block cardinality.
	Nesting NestingMode

	// Block is the nested sub-schema.
	Block Block

	// MinItems and MaxItems bound list and set nesting. Zero MaxItems
	// means unbounded.
	MinItems int64
	MaxItems int64
}

// Block is a tree node holding attribute and nested-block declarations.
type Block struct {
	// Attributes are the block's attribute declarations.
	Attributes []Attribute

	// BlockTypes are the block's nested-block declarations.
	BlockTypes []NestedBlock

	// Description documents the block.
	Description string
}

// Attribute returns the declaration with the given name, or nil.
func (b *Block) Attribute(name string) *Attribute {
	for i := range b.Attributes {
		if b.Attributes[i].Name == name {
			return &b.Attributes[i]
		}
	}
	return nil
}

// ObjectType returns the object type implied by the block's attribute
// declarations. Nested blocks contribute an object (or collection of
// objects) under their type name.
func (b *Block) ObjectType() Type {
	attrs := make(map[string]Type, len(b.Attributes)+len(b.BlockTypes))
	for _, a := range b.Attributes {
		attrs[a.Name] = a.Type
	}
	for _, nb := range b.BlockTypes {
		inner := nb.Block.ObjectType()
		switch nb.Nesting {
		case NestingList:
			attrs[nb.TypeName] = ListOf(inner)
		case NestingSet:
			attrs[nb.TypeName] = SetOf(inner)
		default:
			attrs[nb.TypeName] = inner
		}
	}
	return ObjectOf(attrs)
}

// Schema is the published shape of one provider, resource, or data source.
// Version increments when schema changes require state migration.
type Schema struct {
	Version int64
	Block   Block
}

// Equal reports structural equality of two schemas. The orchestrator uses
// this when it requests schema versioning and caching.
func (s Schema) Equal(other Schema) bool {
	return s.Version == other.Version && blockEqual(s.Block, other.Block)
}

// SensitivePaths lists the dotted path of every sensitive attribute,
// including attributes inside nested blocks. Diagnostics landing on one
// of these paths must not echo the attribute value.
func (s Schema) SensitivePaths() []string {
	return appendSensitivePaths(nil, "", s.Block)
}

func appendSensitivePaths(paths []string, prefix string, b Block) []string {
	for _, a := range b.Attributes {
		if a.Sensitive {
			paths = append(paths, prefix+a.Name)
		}
	}
	for _, nb := range b.BlockTypes {
		paths = appendSensitivePaths(paths, prefix+nb.TypeName+".", nb.Block)
	}
	return paths
}

func blockEqual(a, b Block) bool {
	if len(a.Attributes) != len(b.Attributes) || len(a.BlockTypes) != len(b.BlockTypes) {
		return false
	}
	for i := range a.Attributes {
		if !attributeEqual(a.Attributes[i], b.Attributes[i]) {
			return false
		}
	}
	for i := range a.BlockTypes {
		x, y := a.BlockTypes[i], b.BlockTypes[i]
		if x.TypeName != y.TypeName || x.Nesting != y.Nesting ||
			x.MinItems != y.MinItems || x.MaxItems != y.MaxItems ||
			!blockEqual(x.Block, y.Block) {
			return false
		}
	}
	return true
}

func attributeEqual(a, b Attribute) bool {
	if a.Name != b.Name || !a.Type.Equal(b.Type) ||
		a.Required != b.Required || a.Optional != b.Optional ||
		a.Computed != b.Computed || a.Sensitive != b.Sensitive ||
		a.RequiresReplace != b.RequiresReplace ||
		len(a.DependsOn) != len(b.DependsOn) {
		return false
	}
	for i := range a.DependsOn {
		if a.DependsOn[i] != b.DependsOn[i] {
			return false
		}
	}
	return true
}
