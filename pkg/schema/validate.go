package schema

import (
	"fmt"

	"github.com/openfroyo/providerkit/pkg/diag"
)

// Validate checks the structural invariants of a schema: unique names, no
// required+computed conflicts, valid block cardinalities, and declared
// dependencies that resolve to sibling attributes. It fails fast at
// registration time, before any protocol traffic.
func (s Schema) Validate() error {
	return validateBlock(s.Block, "")
}

func validateBlock(b Block, prefix string) error {
	seen := make(map[string]bool, len(b.Attributes)+len(b.BlockTypes))
	names := make(map[string]bool, len(b.Attributes))

	for _, a := range b.Attributes {
		path := joinPath(prefix, a.Name)
		if a.Name == "" {
			return diag.NewSchemaError("attribute with empty name", nil).
				WithPath(prefix).WithCode(diag.CodeDuplicateAttribute)
		}
		if seen[a.Name] {
			return diag.NewSchemaError(fmt.Sprintf("duplicate attribute %q", a.Name), nil).
				WithPath(path).WithCode(diag.CodeDuplicateAttribute)
		}
		seen[a.Name] = true
		names[a.Name] = true

		if err := validateRole(a, path); err != nil {
			return err
		}
		if err := validateType(a.Type, path); err != nil {
			return err
		}
	}

	for _, a := range b.Attributes {
		path := joinPath(prefix, a.Name)
		for _, dep := range a.DependsOn {
			if dep == a.Name {
				return diag.NewSchemaError(fmt.Sprintf("attribute %q depends on itself", a.Name), nil).
					WithPath(path).WithCode(diag.CodeUndeclaredDep)
			}
			if !names[dep] {
				return diag.NewSchemaError(
					fmt.Sprintf("attribute %q depends on undeclared attribute %q", a.Name, dep), nil).
					WithPath(path).WithCode(diag.CodeUndeclaredDep)
			}
		}
	}

	for _, nb := range b.BlockTypes {
		path := joinPath(prefix, nb.TypeName)
		if nb.TypeName == "" {
			return diag.NewSchemaError("nested block with empty type name", nil).
				WithPath(prefix).WithCode(diag.CodeDuplicateAttribute)
		}
		if seen[nb.TypeName] {
			return diag.NewSchemaError(fmt.Sprintf("duplicate block %q", nb.TypeName), nil).
				WithPath(path).WithCode(diag.CodeDuplicateAttribute)
		}
		seen[nb.TypeName] = true

		switch nb.Nesting {
		case NestingSingle, NestingList, NestingSet:
		default:
			return diag.NewSchemaError(
				fmt.Sprintf("block %q has invalid nesting mode", nb.TypeName), nil).
				WithPath(path)
		}
		if nb.MinItems < 0 || (nb.MaxItems != 0 && nb.MaxItems < nb.MinItems) {
			return diag.NewSchemaError(
				fmt.Sprintf("block %q has invalid item bounds [%d, %d]", nb.TypeName, nb.MinItems, nb.MaxItems), nil).
				WithPath(path)
		}
		if nb.Nesting == NestingSingle && nb.MaxItems > 1 {
			return diag.NewSchemaError(
				fmt.Sprintf("single-nested block %q cannot allow %d items", nb.TypeName, nb.MaxItems), nil).
				WithPath(path)
		}

		if err := validateBlock(nb.Block, path); err != nil {
			return err
		}
	}

	return nil
}

func validateRole(a Attribute, path string) error {
	if a.Required && a.Computed {
		return diag.NewSchemaError(
			fmt.Sprintf("attribute %q cannot be both required and computed", a.Name), nil).
			WithPath(path).WithCode(diag.CodeRoleConflict)
	}
	if a.Required && a.Optional {
		return diag.NewSchemaError(
			fmt.Sprintf("attribute %q cannot be both required and optional", a.Name), nil).
			WithPath(path).WithCode(diag.CodeRoleConflict)
	}
	if !a.Required && !a.Optional && !a.Computed {
		return diag.NewSchemaError(
			fmt.Sprintf("attribute %q must be required, optional, or computed", a.Name), nil).
			WithPath(path).WithCode(diag.CodeRoleConflict)
	}
	return nil
}

func validateType(t Type, path string) error {
	switch t.Kind {
	case KindString, KindNumber, KindBool:
		return nil
	case KindList, KindSet, KindMap:
		if t.Elem == nil {
			return diag.NewSchemaError(
				fmt.Sprintf("%s type missing element type", t.Kind), nil).WithPath(path)
		}
		return validateType(*t.Elem, path)
	case KindObject:
		for name, at := range t.Attrs {
			if name == "" {
				return diag.NewSchemaError("object type with empty attribute name", nil).WithPath(path)
			}
			if err := validateType(at, joinPath(path, name)); err != nil {
				return err
			}
		}
		return nil
	default:
		return diag.NewSchemaError("invalid type kind", nil).WithPath(path)
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
