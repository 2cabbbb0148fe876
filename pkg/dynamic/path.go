package dynamic

import (
	"fmt"
	"strconv"
	"strings"
)

// PathStep is one step in an attribute path: an attribute name, a list
// index, or a map key.
type PathStep struct {
	// Name is set for attribute-name steps.
	Name string

	// Index is set for list-index steps when Name and Key are empty.
	Index int

	// Key is set for map-key steps.
	Key string

	kind pathStepKind
}

type pathStepKind int

const (
	stepAttr pathStepKind = iota
	stepIndex
	stepKey
)

// Path is a typed path to a value inside a Value tree. Paths appear in
// diagnostics and change sets in dotted form ("disk.0.size").
type Path struct {
	steps []PathStep
}

// Root returns the empty path addressing the whole value.
func Root() Path { return Path{} }

// PathTo returns a path with a single attribute-name step.
func PathTo(name string) Path { return Root().Attr(name) }

// Attr appends an attribute-name step.
func (p Path) Attr(name string) Path {
	return Path{steps: append(append([]PathStep{}, p.steps...), PathStep{Name: name, kind: stepAttr})}
}

// Index appends a list-index step.
func (p Path) Index(i int) Path {
	return Path{steps: append(append([]PathStep{}, p.steps...), PathStep{Index: i, kind: stepIndex})}
}

// Key appends a map-key step.
func (p Path) Key(k string) Path {
	return Path{steps: append(append([]PathStep{}, p.steps...), PathStep{Key: k, kind: stepKey})}
}

// IsRoot reports whether the path has no steps.
func (p Path) IsRoot() bool { return len(p.steps) == 0 }

// String renders the path in dotted form.
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p.steps {
		if i > 0 {
			b.WriteByte('.')
		}
		switch s.kind {
		case stepAttr:
			b.WriteString(s.Name)
		case stepIndex:
			b.WriteString(strconv.Itoa(s.Index))
		case stepKey:
			b.WriteString(s.Key)
		}
	}
	return b.String()
}

// Get navigates the path inside v.
func (v Value) Get(p Path) (Value, error) {
	cur := v
	for _, s := range p.steps {
		switch s.kind {
		case stepAttr, stepKey:
			name := s.Name
			if s.kind == stepKey {
				name = s.Key
			}
			next, ok := cur.Attr(name)
			if !ok {
				return Null(), fmt.Errorf("attribute %q not found at %s", name, p)
			}
			cur = next
		case stepIndex:
			elems, err := cur.AsList()
			if err != nil {
				return Null(), fmt.Errorf("at %s: %w", p, err)
			}
			if s.Index < 0 || s.Index >= len(elems) {
				return Null(), fmt.Errorf("list index %d out of bounds at %s", s.Index, p)
			}
			cur = elems[s.Index]
		}
	}
	return cur, nil
}

// GetString navigates the path and returns a string.
func (v Value) GetString(p Path) (string, error) {
	got, err := v.Get(p)
	if err != nil {
		return "", err
	}
	return got.AsString()
}

// GetInt64 navigates the path and returns an integral number.
func (v Value) GetInt64(p Path) (int64, error) {
	got, err := v.Get(p)
	if err != nil {
		return 0, err
	}
	return got.AsInt64()
}

// GetBool navigates the path and returns a bool.
func (v Value) GetBool(p Path) (bool, error) {
	got, err := v.Get(p)
	if err != nil {
		return false, err
	}
	return got.AsBool()
}

// Set returns a copy of v with the value at the path replaced. Intermediate
// objects and maps are copied on the way down; lists are addressed by
// existing index only.
func (v Value) Set(p Path, newVal Value) (Value, error) {
	if p.IsRoot() {
		return newVal, nil
	}
	return v.setSteps(p.steps, newVal, p)
}

func (v Value) setSteps(steps []PathStep, newVal Value, full Path) (Value, error) {
	s := steps[0]
	switch s.kind {
	case stepAttr, stepKey:
		name := s.Name
		if s.kind == stepKey {
			name = s.Key
		}
		if v.kind != KindMap && v.kind != KindObject {
			return Null(), fmt.Errorf("cannot set %q on %s at %s", name, v.kind, full)
		}
		child, ok := v.Attr(name)
		if !ok {
			child = Null()
		}
		if len(steps) == 1 {
			return v.WithAttr(name, newVal), nil
		}
		updated, err := child.setSteps(steps[1:], newVal, full)
		if err != nil {
			return Null(), err
		}
		return v.WithAttr(name, updated), nil
	case stepIndex:
		elems, err := v.AsList()
		if err != nil {
			return Null(), fmt.Errorf("at %s: %w", full, err)
		}
		if s.Index < 0 || s.Index >= len(elems) {
			return Null(), fmt.Errorf("list index %d out of bounds at %s", s.Index, full)
		}
		cp := make([]Value, len(elems))
		copy(cp, elems)
		if len(steps) == 1 {
			cp[s.Index] = newVal
		} else {
			updated, err := elems[s.Index].setSteps(steps[1:], newVal, full)
			if err != nil {
				return Null(), err
			}
			cp[s.Index] = updated
		}
		return List(cp), nil
	}
	return Null(), fmt.Errorf("invalid path step at %s", full)
}
