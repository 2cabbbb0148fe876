package plan

import (
	"fmt"

	"github.com/openfroyo/providerkit/pkg/diag"
	"github.com/openfroyo/providerkit/pkg/dynamic"
	"github.com/openfroyo/providerkit/pkg/schema"
)

// Result is the outcome of planning one resource instance.
type Result struct {
	// Action is the classified change.
	Action Action

	// Planned is the proposed state; it may contain unknown values.
	Planned dynamic.Value

	// Changes lists the attribute paths whose value changed.
	Changes []Change

	// Ordering is the declared replace sequencing, meaningful only when
	// Action is replace.
	Ordering ReplaceOrdering
}

// Compute runs the plan algorithm for one instance. prior is null for new
// instances; config is null when deletion is requested. ordering is the
// resource's declared replace policy. Planning performs no external I/O:
// attributes whose value needs a backend round trip are carried as unknown
// and resolved during apply.
//
// Re-running Compute with prior set to the previous planned or applied
// state and an unchanged config always yields a no-op with the prior state
// returned bit for bit.
func Compute(s schema.Schema, prior, config dynamic.Value, ordering ReplaceOrdering) (*Result, error) {
	if err := ordering.Validate(); err != nil {
		return nil, err
	}

	// Deletion: configuration structurally absent.
	if config.IsNull() {
		if prior.IsNull() {
			return &Result{Action: ActionNoOp, Planned: dynamic.Null(), Ordering: ordering}, nil
		}
		return &Result{Action: ActionDelete, Planned: dynamic.Null(), Ordering: ordering}, nil
	}

	coerced, err := dynamic.Coerce(config, s)
	if err != nil {
		return nil, err
	}

	// Creation: no prior state. Computed-and-absent attributes become
	// unknown via ApplyDefaults.
	if prior.IsNull() {
		planned := dynamic.ApplyDefaults(coerced, s, dynamic.Null())
		return &Result{
			Action:   ActionCreate,
			Planned:  planned,
			Changes:  []Change{{Path: ""}},
			Ordering: ordering,
		}, nil
	}

	planned := dynamic.ApplyDefaults(coerced, s, prior)
	changed := make(map[string]bool)

	for _, a := range s.Block.Attributes {
		if a.Computed && !a.Optional {
			// Caller cannot set it; ApplyDefaults already carried
			// the prior value forward unchanged.
			continue
		}
		pv, _ := planned.Attr(a.Name)
		prv, _ := prior.Attr(a.Name)
		if pv.IsNull() && prv.IsNull() {
			continue
		}
		if !dynamic.EqualForType(pv, prv, a.Type) {
			changed[a.Name] = true
		}
	}

	for _, nb := range s.Block.BlockTypes {
		pv, _ := planned.Attr(nb.TypeName)
		prv, _ := prior.Attr(nb.TypeName)
		if pv.IsNull() && prv.IsNull() {
			continue
		}
		if !dynamic.EqualForType(pv, prv, blockType(nb)) {
			changed[nb.TypeName] = true
		}
	}

	planned, err = propagateUnknown(s, planned, coerced, changed)
	if err != nil {
		return nil, err
	}

	if len(changed) == 0 {
		// Bit-for-bit prior state guarantees idempotence.
		return &Result{Action: ActionNoOp, Planned: prior, Ordering: ordering}, nil
	}

	var changes []Change
	replace := false
	for _, a := range s.Block.Attributes {
		if !changed[a.Name] {
			continue
		}
		changes = append(changes, Change{Path: a.Name, RequiresReplace: a.RequiresReplace})
		if a.RequiresReplace {
			replace = true
		}
	}
	for _, nb := range s.Block.BlockTypes {
		if changed[nb.TypeName] {
			changes = append(changes, Change{Path: nb.TypeName})
		}
	}

	action := ActionUpdate
	if replace {
		action = ActionReplace
	}
	return &Result{Action: action, Planned: planned, Changes: changes, Ordering: ordering}, nil
}

// propagateUnknown walks declared dependencies and forces dependents of
// unknown or changed attributes to unknown. Propagation follows the
// explicit DependsOn declarations, not traversal order, and iterates to a
// fixpoint so chains of dependencies resolve regardless of declaration
// order. An attribute the caller set explicitly keeps its configured value.
func propagateUnknown(s schema.Schema, planned, coerced dynamic.Value, changed map[string]bool) (dynamic.Value, error) {
	for {
		again := false
		for _, a := range s.Block.Attributes {
			if len(a.DependsOn) == 0 {
				continue
			}
			if !a.Computed {
				return dynamic.Null(), diag.NewPlanError(
					fmt.Sprintf("attribute %q declares dependencies but is not computed", a.Name), nil).
					WithPath(a.Name).WithCode(diag.CodeUndeclaredDep)
			}
			if cv, ok := coerced.Attr(a.Name); ok && !cv.IsNull() {
				// Explicitly configured optional+computed value wins.
				continue
			}
			pv, _ := planned.Attr(a.Name)
			if pv.IsUnknown() {
				continue
			}
			for _, dep := range a.DependsOn {
				dv, _ := planned.Attr(dep)
				if !dv.IsKnown() || changed[dep] {
					planned = planned.WithAttr(a.Name, dynamic.Unknown())
					changed[a.Name] = true
					again = true
					break
				}
			}
		}
		if !again {
			return planned, nil
		}
	}
}

func blockType(nb schema.NestedBlock) schema.Type {
	inner := nb.Block.ObjectType()
	switch nb.Nesting {
	case schema.NestingList:
		return schema.ListOf(inner)
	case schema.NestingSet:
		return schema.SetOf(inner)
	default:
		return inner
	}
}

func errInvalidAction(a Action) error {
	return diag.NewPlanError(fmt.Sprintf("invalid plan action %q", a), nil)
}

func errInvalidOrdering(o ReplaceOrdering) error {
	return diag.NewPlanError(fmt.Sprintf("invalid replace ordering %q", o), nil)
}
