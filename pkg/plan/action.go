// Package plan computes deterministic, idempotent change plans. Given a
// schema, the prior state, and the current configuration it classifies the
// required action, produces the planned state with unknown-value
// propagation, and reports the attribute paths that changed.
package plan

// Action classifies the change required for a resource instance.
type Action string

const (
	// ActionNoOp means the instance already matches the configuration.
	ActionNoOp Action = "noop"

	// ActionCreate means the instance does not exist yet.
	ActionCreate Action = "create"

	// ActionUpdate means the instance changes in place.
	ActionUpdate Action = "update"

	// ActionDelete means the configuration was removed.
	ActionDelete Action = "delete"

	// ActionReplace means a changed attribute forces destroy-and-create.
	ActionReplace Action = "replace"
)

// Validate checks that the action is a known classification.
func (a Action) Validate() error {
	switch a {
	case ActionNoOp, ActionCreate, ActionUpdate, ActionDelete, ActionReplace:
		return nil
	}
	return errInvalidAction(a)
}

// ReplaceOrdering is the per-resource declared policy for how a replace is
// sequenced. It is declared, never inferred.
type ReplaceOrdering string

const (
	// DeleteThenCreate destroys the old instance before creating the new
	// one. This is the default.
	DeleteThenCreate ReplaceOrdering = "delete-then-create"

	// CreateThenDelete creates the new instance before destroying the
	// old one, for resources that tolerate overlap but not absence.
	CreateThenDelete ReplaceOrdering = "create-then-delete"
)

// Validate checks that the ordering is a known policy.
func (o ReplaceOrdering) Validate() error {
	switch o {
	case DeleteThenCreate, CreateThenDelete:
		return nil
	}
	return errInvalidOrdering(o)
}

// Change records one attribute path whose value changed, annotated with
// whether the change forces replacement.
type Change struct {
	// Path is the dotted attribute path.
	Path string `json:"path"`

	// RequiresReplace is true when the attribute carries the
	// requires-replace flag.
	RequiresReplace bool `json:"requires_replace"`
}
