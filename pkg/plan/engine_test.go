package plan

import (
	"testing"

	"github.com/openfroyo/providerkit/pkg/dynamic"
	"github.com/openfroyo/providerkit/pkg/schema"
)

// planTestSchema models the canonical worked example: a required name and
// a computed numeric id.
func planTestSchema() schema.Schema {
	return schema.NewBuilder().
		Attribute(schema.NewAttribute("name", schema.StringType()).Required().Build()).
		Attribute(schema.NewAttribute("id", schema.NumberType()).Computed().Build()).
		Build()
}

func replaceTestSchema() schema.Schema {
	return schema.NewBuilder().
		Attribute(schema.NewAttribute("name", schema.StringType()).Required().RequiresReplace().Build()).
		Attribute(schema.NewAttribute("cores", schema.NumberType()).Optional().Build()).
		Attribute(schema.NewAttribute("id", schema.NumberType()).Computed().Build()).
		Build()
}

func TestCompute_Create(t *testing.T) {
	config := dynamic.Object(map[string]dynamic.Value{"name": dynamic.String("web")})

	result, err := Compute(planTestSchema(), dynamic.Null(), config, DeleteThenCreate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if result.Action != ActionCreate {
		t.Errorf("action = %s, want %s", result.Action, ActionCreate)
	}
	id, _ := result.Planned.Attr("id")
	if !id.IsUnknown() {
		t.Error("computed id must be unknown in the planned state")
	}
	name, _ := result.Planned.Attr("name")
	if got, _ := name.AsString(); got != "web" {
		t.Errorf("name = %q", got)
	}
	if len(result.Changes) != 1 || result.Changes[0].Path != "" {
		t.Errorf("create must report the root path changed, got %v", result.Changes)
	}
}

func TestCompute_NoOpAfterApply(t *testing.T) {
	// After apply resolved id, re-planning the same config is a no-op
	// returning the prior state untouched.
	config := dynamic.Object(map[string]dynamic.Value{"name": dynamic.String("web")})
	prior := dynamic.Object(map[string]dynamic.Value{
		"name": dynamic.String("web"),
		"id":   dynamic.NumberInt(7),
	})

	result, err := Compute(planTestSchema(), prior, config, DeleteThenCreate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if result.Action != ActionNoOp {
		t.Errorf("action = %s, want %s", result.Action, ActionNoOp)
	}
	if len(result.Changes) != 0 {
		t.Errorf("no-op must carry no changes, got %v", result.Changes)
	}
	if !dynamic.Equal(result.Planned, prior) {
		t.Error("no-op must return the prior state")
	}
	id, _ := result.Planned.Attr("id")
	if got, err := id.AsInt64(); err != nil || got != 7 {
		t.Errorf("computed id must be preserved exactly, got %v", id)
	}
}

func TestCompute_PlanIdempotent(t *testing.T) {
	config := dynamic.Object(map[string]dynamic.Value{"name": dynamic.String("web")})
	prior := dynamic.Object(map[string]dynamic.Value{
		"name": dynamic.String("web"),
		"id":   dynamic.NumberInt(7),
	})

	first, err := Compute(planTestSchema(), prior, config, DeleteThenCreate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	second, err := Compute(planTestSchema(), first.Planned, config, DeleteThenCreate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if second.Action != ActionNoOp {
		t.Errorf("re-plan of planned state must be a no-op, got %s", second.Action)
	}
	if !dynamic.Equal(second.Planned, first.Planned) {
		t.Error("re-plan must return the same state")
	}
}

func TestCompute_Update(t *testing.T) {
	s := replaceTestSchema()
	prior := dynamic.Object(map[string]dynamic.Value{
		"name":  dynamic.String("web"),
		"cores": dynamic.NumberInt(2),
		"id":    dynamic.NumberInt(7),
	})
	config := dynamic.Object(map[string]dynamic.Value{
		"name":  dynamic.String("web"),
		"cores": dynamic.NumberInt(4),
	})

	result, err := Compute(s, prior, config, DeleteThenCreate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if result.Action != ActionUpdate {
		t.Errorf("action = %s, want %s", result.Action, ActionUpdate)
	}
	if len(result.Changes) != 1 || result.Changes[0].Path != "cores" {
		t.Errorf("changes = %v, want [cores]", result.Changes)
	}
	if result.Changes[0].RequiresReplace {
		t.Error("cores does not require replacement")
	}
	id, _ := result.Planned.Attr("id")
	if got, err := id.AsInt64(); err != nil || got != 7 {
		t.Errorf("unrelated computed attribute must carry over, got %v", id)
	}
}

func TestCompute_ReplaceOnFlaggedAttribute(t *testing.T) {
	s := replaceTestSchema()
	prior := dynamic.Object(map[string]dynamic.Value{
		"name":  dynamic.String("web"),
		"cores": dynamic.NumberInt(2),
		"id":    dynamic.NumberInt(7),
	})
	config := dynamic.Object(map[string]dynamic.Value{
		"name":  dynamic.String("db"),
		"cores": dynamic.NumberInt(2),
	})

	result, err := Compute(s, prior, config, CreateThenDelete)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if result.Action != ActionReplace {
		t.Errorf("action = %s, want %s", result.Action, ActionReplace)
	}
	if result.Ordering != CreateThenDelete {
		t.Errorf("ordering = %s, want %s", result.Ordering, CreateThenDelete)
	}
	found := false
	for _, c := range result.Changes {
		if c.Path == "name" {
			found = true
			if !c.RequiresReplace {
				t.Error("name change must be flagged requires-replace")
			}
		}
	}
	if !found {
		t.Errorf("changes = %v, want name present", result.Changes)
	}
}

func TestCompute_Delete(t *testing.T) {
	prior := dynamic.Object(map[string]dynamic.Value{
		"name": dynamic.String("web"),
		"id":   dynamic.NumberInt(7),
	})

	result, err := Compute(planTestSchema(), prior, dynamic.Null(), DeleteThenCreate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if result.Action != ActionDelete {
		t.Errorf("action = %s, want %s", result.Action, ActionDelete)
	}
	if !result.Planned.IsNull() {
		t.Error("planned state of a delete is null")
	}
}

func TestCompute_DeleteAbsent(t *testing.T) {
	result, err := Compute(planTestSchema(), dynamic.Null(), dynamic.Null(), DeleteThenCreate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if result.Action != ActionNoOp {
		t.Errorf("deleting nothing is a no-op, got %s", result.Action)
	}
}

func TestCompute_UnknownPropagation(t *testing.T) {
	// ip declares a dependency on node: when node changes, the stale ip
	// cannot be assumed and becomes unknown.
	s := schema.NewBuilder().
		Attribute(schema.NewAttribute("node", schema.StringType()).Required().Build()).
		Attribute(schema.NewAttribute("ip", schema.StringType()).Computed().DependsOn("node").Build()).
		Build()

	prior := dynamic.Object(map[string]dynamic.Value{
		"node": dynamic.String("n1"),
		"ip":   dynamic.String("10.0.0.5"),
	})
	config := dynamic.Object(map[string]dynamic.Value{
		"node": dynamic.String("n2"),
	})

	result, err := Compute(s, prior, config, DeleteThenCreate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	ip, _ := result.Planned.Attr("ip")
	if !ip.IsUnknown() {
		t.Errorf("ip must be re-derived when node changes, got %#v", ip)
	}
	paths := map[string]bool{}
	for _, c := range result.Changes {
		paths[c.Path] = true
	}
	if !paths["node"] || !paths["ip"] {
		t.Errorf("changes = %v, want node and ip", result.Changes)
	}
}

func TestCompute_UnknownPropagation_Chain(t *testing.T) {
	// a -> b -> c: a change to a cascades through both dependents,
	// regardless of declaration order.
	s := schema.NewBuilder().
		Attribute(schema.NewAttribute("c", schema.StringType()).Computed().DependsOn("b").Build()).
		Attribute(schema.NewAttribute("b", schema.StringType()).Computed().DependsOn("a").Build()).
		Attribute(schema.NewAttribute("a", schema.StringType()).Required().Build()).
		Build()

	prior := dynamic.Object(map[string]dynamic.Value{
		"a": dynamic.String("1"),
		"b": dynamic.String("x"),
		"c": dynamic.String("y"),
	})
	config := dynamic.Object(map[string]dynamic.Value{"a": dynamic.String("2")})

	result, err := Compute(s, prior, config, DeleteThenCreate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	b, _ := result.Planned.Attr("b")
	c, _ := result.Planned.Attr("c")
	if !b.IsUnknown() || !c.IsUnknown() {
		t.Errorf("chain must cascade: b=%#v c=%#v", b, c)
	}
}

func TestCompute_ExplicitlyConfiguredOptionalComputedKept(t *testing.T) {
	s := schema.NewBuilder().
		Attribute(schema.NewAttribute("node", schema.StringType()).Required().Build()).
		Attribute(schema.NewAttribute("ip", schema.StringType()).Optional().Computed().DependsOn("node").Build()).
		Build()

	prior := dynamic.Object(map[string]dynamic.Value{
		"node": dynamic.String("n1"),
		"ip":   dynamic.String("10.0.0.5"),
	})
	config := dynamic.Object(map[string]dynamic.Value{
		"node": dynamic.String("n2"),
		"ip":   dynamic.String("10.0.0.9"),
	})

	result, err := Compute(s, prior, config, DeleteThenCreate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	ip, _ := result.Planned.Attr("ip")
	if got, err := ip.AsString(); err != nil || got != "10.0.0.9" {
		t.Errorf("explicitly configured value must win over re-derivation, got %#v", ip)
	}
}

func TestCompute_DependsOnNonComputedRejected(t *testing.T) {
	s := schema.Schema{Block: schema.Block{Attributes: []schema.Attribute{
		{Name: "a", Type: schema.StringType(), Required: true},
		{Name: "b", Type: schema.StringType(), Optional: true, DependsOn: []string{"a"}},
	}}}

	prior := dynamic.Object(map[string]dynamic.Value{
		"a": dynamic.String("1"),
		"b": dynamic.String("2"),
	})
	config := dynamic.Object(map[string]dynamic.Value{
		"a": dynamic.String("9"),
		"b": dynamic.String("2"),
	})

	if _, err := Compute(s, prior, config, DeleteThenCreate); err == nil {
		t.Error("dependencies on a non-computed attribute must be rejected")
	}
}

func TestCompute_ListOrderIsAChange(t *testing.T) {
	s := schema.NewBuilder().
		Attribute(schema.NewAttribute("tags", schema.ListOf(schema.StringType())).Optional().Build()).
		Build()

	prior := dynamic.Object(map[string]dynamic.Value{
		"tags": dynamic.List([]dynamic.Value{dynamic.String("a"), dynamic.String("b")}),
	})
	config := dynamic.Object(map[string]dynamic.Value{
		"tags": dynamic.List([]dynamic.Value{dynamic.String("b"), dynamic.String("a")}),
	})

	result, err := Compute(s, prior, config, DeleteThenCreate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if result.Action != ActionUpdate {
		t.Errorf("reordering a list is a change, got %s", result.Action)
	}
}

func TestCompute_SetOrderIgnored(t *testing.T) {
	s := schema.NewBuilder().
		Attribute(schema.NewAttribute("tags", schema.SetOf(schema.StringType())).Optional().Build()).
		Build()

	prior := dynamic.Object(map[string]dynamic.Value{
		"tags": dynamic.List([]dynamic.Value{dynamic.String("a"), dynamic.String("b")}),
	})
	config := dynamic.Object(map[string]dynamic.Value{
		"tags": dynamic.List([]dynamic.Value{dynamic.String("b"), dynamic.String("a")}),
	})

	result, err := Compute(s, prior, config, DeleteThenCreate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if result.Action != ActionNoOp {
		t.Errorf("reordering a set is not a change, got %s", result.Action)
	}
}

func TestCompute_InvalidConfigFailsFast(t *testing.T) {
	config := dynamic.Object(map[string]dynamic.Value{"bogus": dynamic.String("x")})
	if _, err := Compute(planTestSchema(), dynamic.Null(), config, DeleteThenCreate); err == nil {
		t.Error("invalid config must fail planning")
	}
}

func TestCompute_InvalidOrdering(t *testing.T) {
	config := dynamic.Object(map[string]dynamic.Value{"name": dynamic.String("web")})
	if _, err := Compute(planTestSchema(), dynamic.Null(), config, ReplaceOrdering("sideways")); err == nil {
		t.Error("invalid ordering must be rejected")
	}
}

func TestAction_Validate(t *testing.T) {
	for _, a := range []Action{ActionNoOp, ActionCreate, ActionUpdate, ActionDelete, ActionReplace} {
		if err := a.Validate(); err != nil {
			t.Errorf("%s must validate: %v", a, err)
		}
	}
	if err := Action("explode").Validate(); err == nil {
		t.Error("invalid action must not validate")
	}
}
