package schema

// AttributeBuilder provides a fluent API for declaring attributes.
type AttributeBuilder struct {
	attr Attribute
}

// NewAttribute creates an attribute builder for the given name and type.
func NewAttribute(name string, t Type) *AttributeBuilder {
	return &AttributeBuilder{attr: Attribute{Name: name, Type: t}}
}

// Description sets the attribute description.
func (ab *AttributeBuilder) Description(desc string) *AttributeBuilder {
	ab.attr.Description = desc
	return ab
}

// Required marks the attribute as required.
func (ab *AttributeBuilder) Required() *AttributeBuilder {
	ab.attr.Required = true
	ab.attr.Optional = false
	return ab
}

// Optional marks the attribute as optional.
func (ab *AttributeBuilder) Optional() *AttributeBuilder {
	ab.attr.Optional = true
	ab.attr.Required = false
	return ab
}

// Computed marks the attribute as backend-derived.
func (ab *AttributeBuilder) Computed() *AttributeBuilder {
	ab.attr.Computed = true
	return ab
}

// Sensitive marks the attribute for redaction in diagnostics.
func (ab *AttributeBuilder) Sensitive() *AttributeBuilder {
	ab.attr.Sensitive = true
	return ab
}

// RequiresReplace escalates changes of this attribute to a replace.
func (ab *AttributeBuilder) RequiresReplace() *AttributeBuilder {
	ab.attr.RequiresReplace = true
	return ab
}

// DependsOn declares sibling attributes this attribute is derived from.
func (ab *AttributeBuilder) DependsOn(names ...string) *AttributeBuilder {
	ab.attr.DependsOn = append(ab.attr.DependsOn, names...)
	return ab
}

// Build finalizes the attribute.
func (ab *AttributeBuilder) Build() Attribute {
	return ab.attr
}

// Builder provides a fluent API for declaring schemas.
type Builder struct {
	s Schema
}

// NewBuilder creates a schema builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Version sets the schema version.
func (b *Builder) Version(v int64) *Builder {
	b.s.Version = v
	return b
}

// Description sets the root block description.
func (b *Builder) Description(desc string) *Builder {
	b.s.Block.Description = desc
	return b
}

// Attribute appends an attribute declaration to the root block.
func (b *Builder) Attribute(a Attribute) *Builder {
	b.s.Block.Attributes = append(b.s.Block.Attributes, a)
	return b
}

// NestedBlock appends a nested-block declaration to the root block.
func (b *Builder) NestedBlock(nb NestedBlock) *Builder {
	b.s.Block.BlockTypes = append(b.s.Block.BlockTypes, nb)
	return b
}

// Build finalizes the schema.
func (b *Builder) Build() Schema {
	return b.s
}
