package dynamic

import (
	"errors"
	"testing"

	"github.com/openfroyo/providerkit/pkg/diag"
	"github.com/openfroyo/providerkit/pkg/schema"
)

func coerceTestSchema() schema.Schema {
	return schema.NewBuilder().
		Attribute(schema.NewAttribute("name", schema.StringType()).Required().Build()).
		Attribute(schema.NewAttribute("cores", schema.NumberType()).Optional().Build()).
		Attribute(schema.NewAttribute("id", schema.StringType()).Computed().Build()).
		Build()
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var e *diag.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected classified error, got %v", err)
	}
	return e.Code
}

func TestCoerce_FillsAbsentAttributes(t *testing.T) {
	v := Object(map[string]Value{"name": String("web")})
	out, err := Coerce(v, coerceTestSchema())
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}

	if cores, ok := out.Attr("cores"); !ok || !cores.IsNull() {
		t.Error("absent optional attribute must coerce to null")
	}
	if id, ok := out.Attr("id"); !ok || !id.IsNull() {
		t.Error("absent computed attribute must coerce to null")
	}
}

func TestCoerce_MissingRequired(t *testing.T) {
	v := Object(map[string]Value{"cores": NumberInt(2)})
	_, err := Coerce(v, coerceTestSchema())
	if err == nil {
		t.Fatal("expected error for missing required attribute")
	}
	if code := errCode(t, err); code != diag.CodeMissingRequired {
		t.Errorf("code = %s, want %s", code, diag.CodeMissingRequired)
	}
}

func TestCoerce_NullRequired(t *testing.T) {
	v := Object(map[string]Value{"name": Null()})
	_, err := Coerce(v, coerceTestSchema())
	if err == nil {
		t.Fatal("expected error for null required attribute")
	}
	if code := errCode(t, err); code != diag.CodeNullRequired {
		t.Errorf("code = %s, want %s", code, diag.CodeNullRequired)
	}
}

func TestCoerce_UnknownAttribute(t *testing.T) {
	v := Object(map[string]Value{"name": String("web"), "bogus": String("x")})
	_, err := Coerce(v, coerceTestSchema())
	if err == nil {
		t.Fatal("expected error for undeclared attribute")
	}
	if code := errCode(t, err); code != diag.CodeUnknownAttribute {
		t.Errorf("code = %s, want %s", code, diag.CodeUnknownAttribute)
	}
}

func TestCoerce_StringToNumber(t *testing.T) {
	v := Object(map[string]Value{"name": String("web"), "cores": String("4")})
	out, err := Coerce(v, coerceTestSchema())
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	cores, _ := out.Attr("cores")
	if n, err := cores.AsInt64(); err != nil || n != 4 {
		t.Errorf("string-to-number conversion = %d, %v", n, err)
	}

	bad := Object(map[string]Value{"name": String("web"), "cores": String("many")})
	if _, err := Coerce(bad, coerceTestSchema()); err == nil {
		t.Error("unparseable number string must fail coercion")
	}
}

func TestCoerce_BoolStrict(t *testing.T) {
	s := schema.NewBuilder().
		Attribute(schema.NewAttribute("on", schema.BoolType()).Required().Build()).
		Build()
	v := Object(map[string]Value{"on": String("true")})
	if _, err := Coerce(v, s); err == nil {
		t.Error("bool conversion from string must be rejected")
	}
}

func TestCoerce_UnknownPassesThrough(t *testing.T) {
	v := Object(map[string]Value{"name": Unknown()})
	out, err := Coerce(v, coerceTestSchema())
	if err != nil {
		t.Fatalf("unknown must satisfy a required attribute during planning: %v", err)
	}
	name, _ := out.Attr("name")
	if !name.IsUnknown() {
		t.Error("unknown must be preserved by coercion")
	}
}

func TestCoerce_SetDuplicates(t *testing.T) {
	s := schema.NewBuilder().
		Attribute(schema.NewAttribute("tags", schema.SetOf(schema.StringType())).Optional().Build()).
		Build()
	v := Object(map[string]Value{"tags": List([]Value{String("a"), String("a")})})
	if _, err := Coerce(v, s); err == nil {
		t.Error("duplicate set elements must be rejected")
	}
}

func TestCoerce_NestedBlockCardinality(t *testing.T) {
	s := schema.Schema{Block: schema.Block{
		Attributes: []schema.Attribute{
			schema.NewAttribute("name", schema.StringType()).Required().Build(),
		},
		BlockTypes: []schema.NestedBlock{{
			TypeName: "disk",
			Nesting:  schema.NestingList,
			MinItems: 1,
			MaxItems: 2,
			Block: schema.Block{Attributes: []schema.Attribute{
				schema.NewAttribute("device", schema.StringType()).Required().Build(),
			}},
		}},
	}}

	ok := Object(map[string]Value{
		"name": String("web"),
		"disk": List([]Value{Object(map[string]Value{"device": String("sda")})}),
	})
	if _, err := Coerce(ok, s); err != nil {
		t.Fatalf("valid nested block rejected: %v", err)
	}

	tooMany := Object(map[string]Value{
		"name": String("web"),
		"disk": List([]Value{
			Object(map[string]Value{"device": String("sda")}),
			Object(map[string]Value{"device": String("sdb")}),
			Object(map[string]Value{"device": String("sdc")}),
		}),
	})
	if _, err := Coerce(tooMany, s); err == nil {
		t.Error("exceeding max_items must fail")
	}
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"name":  "web",
		"cores": int64(4),
		"tags":  []any{"a", "b"},
		"extra": nil,
	})
	if err != nil {
		t.Fatalf("FromGo: %v", err)
	}
	if got, _ := v.GetString(PathTo("name")); got != "web" {
		t.Errorf("name = %q", got)
	}
	if got, _ := v.GetInt64(PathTo("cores")); got != 4 {
		t.Errorf("cores = %d", got)
	}
	if e, _ := v.Attr("extra"); !e.IsNull() {
		t.Error("nil must map to null")
	}
}

func TestApplyDefaults_ComputedUnknownOnCreate(t *testing.T) {
	s := coerceTestSchema()
	config, err := Coerce(Object(map[string]Value{"name": String("web")}), s)
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}

	planned := ApplyDefaults(config, s, Null())
	id, _ := planned.Attr("id")
	if !id.IsUnknown() {
		t.Error("computed attribute with no prior must become unknown")
	}
}

func TestApplyDefaults_ComputedCarriedFromPrior(t *testing.T) {
	s := coerceTestSchema()
	config, err := Coerce(Object(map[string]Value{"name": String("web")}), s)
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	prior := Object(map[string]Value{
		"name":  String("web"),
		"cores": Null(),
		"id":    String("i-123"),
	})

	planned := ApplyDefaults(config, s, prior)
	id, _ := planned.Attr("id")
	if got, _ := id.AsString(); got != "i-123" {
		t.Errorf("computed attribute must carry the prior value, got %v", id)
	}
}

func TestPrivateState_RoundTrip(t *testing.T) {
	ps := NewPrivateState()
	ps.SetKey("etag", []byte("abc123"))
	ps.SetKey("token", []byte{0x00, 0xff})

	raw, err := ps.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	raw2, err := ps.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(raw) != string(raw2) {
		t.Error("private state encoding must be deterministic")
	}

	back, err := DecodePrivateState(raw)
	if err != nil {
		t.Fatalf("DecodePrivateState: %v", err)
	}
	if string(back.GetKey("etag")) != "abc123" {
		t.Errorf("etag = %q", back.GetKey("etag"))
	}
	if len(back.GetKey("token")) != 2 {
		t.Error("binary value lost")
	}
}

func TestPrivateState_EmptyEncodesNil(t *testing.T) {
	ps := NewPrivateState()
	raw, err := ps.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if raw != nil {
		t.Errorf("empty private state must encode to nil, got %q", raw)
	}

	back, err := DecodePrivateState(nil)
	if err != nil {
		t.Fatalf("DecodePrivateState(nil): %v", err)
	}
	if back != nil && len(back.GetKey("anything")) != 0 {
		t.Error("nil round trip")
	}
}
