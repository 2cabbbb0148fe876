package provider

import (
	"context"
	"testing"

	"github.com/openfroyo/providerkit/pkg/plan"
	"github.com/openfroyo/providerkit/pkg/schema"
)

type fakeDataSource struct {
	schema schema.Schema
}

func (f *fakeDataSource) Schema(ctx context.Context) schema.Schema { return f.schema }

func (f *fakeDataSource) Read(ctx context.Context, req DataSourceReadRequest) DataSourceReadResponse {
	return DataSourceReadResponse{}
}

var _ DataSource = (*fakeDataSource)(nil)

func registerMachine(t *testing.T, r *Registry, name string) {
	t.Helper()
	err := r.RegisterResource(context.Background(), name, func() Resource {
		return &fakeResource{schema: machineSchema()}
	}, plan.DeleteThenCreate)
	if err != nil {
		t.Fatalf("RegisterResource(%q): %v", name, err)
	}
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	r := NewRegistry()
	registerMachine(t, r, "test_machine")

	err := r.RegisterResource(context.Background(), "test_machine", func() Resource {
		return &fakeResource{schema: machineSchema()}
	}, plan.DeleteThenCreate)
	if err == nil {
		t.Error("duplicate registration must fail")
	}
}

func TestRegistry_Register_InvalidSchema(t *testing.T) {
	broken := schema.Schema{Block: schema.Block{Attributes: []schema.Attribute{
		{Name: "a", Type: schema.StringType(), Required: true, Computed: true},
	}}}

	r := NewRegistry()
	err := r.RegisterResource(context.Background(), "test_broken", func() Resource {
		return &fakeResource{schema: broken}
	}, plan.DeleteThenCreate)
	if err == nil {
		t.Error("invalid schema must fail registration")
	}
}

func TestRegistry_Register_InvalidOrdering(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterResource(context.Background(), "test_machine", func() Resource {
		return &fakeResource{schema: machineSchema()}
	}, plan.ReplaceOrdering("sideways"))
	if err == nil {
		t.Error("invalid ordering must fail registration")
	}
}

func TestRegistry_Sealed(t *testing.T) {
	r := NewRegistry()
	registerMachine(t, r, "test_machine")
	r.Seal()

	err := r.RegisterResource(context.Background(), "test_other", func() Resource {
		return &fakeResource{schema: machineSchema()}
	}, plan.DeleteThenCreate)
	if err == nil {
		t.Error("registration after sealing must fail")
	}
	err = r.RegisterDataSource(context.Background(), "test_data", func() DataSource {
		return &fakeDataSource{schema: machineSchema()}
	})
	if err == nil {
		t.Error("data source registration after sealing must fail")
	}

	// Sealed registries still serve lookups.
	if _, _, _, err := r.Resource("test_machine"); err != nil {
		t.Errorf("lookup after sealing: %v", err)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	registerMachine(t, r, "test_machine")

	res, s, ordering, err := r.Resource("test_machine")
	if err != nil {
		t.Fatalf("Resource: %v", err)
	}
	if res == nil {
		t.Error("lookup must return an implementation")
	}
	if ordering != plan.DeleteThenCreate {
		t.Errorf("ordering = %s", ordering)
	}
	if a := s.Block.Attribute("name"); a == nil || !a.RequiresReplace {
		t.Error("published schema lost the requires-replace flag")
	}

	if _, _, _, err := r.Resource("no_such_type"); err == nil {
		t.Error("unknown type must fail lookup")
	}
}

func TestRegistry_DataSource(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterDataSource(context.Background(), "test_version", func() DataSource {
		return &fakeDataSource{schema: machineSchema()}
	})
	if err != nil {
		t.Fatalf("RegisterDataSource: %v", err)
	}

	if _, _, err := r.DataSource("test_version"); err != nil {
		t.Errorf("DataSource: %v", err)
	}
	if _, _, err := r.DataSource("no_such_data"); err == nil {
		t.Error("unknown data source must fail lookup")
	}
}

func TestRegistry_TypeNames_Sorted(t *testing.T) {
	r := NewRegistry()
	registerMachine(t, r, "test_zeta")
	registerMachine(t, r, "test_alpha")

	names := r.TypeNames()
	if len(names) != 2 || names[0] != "test_alpha" || names[1] != "test_zeta" {
		t.Errorf("TypeNames = %v", names)
	}
}
