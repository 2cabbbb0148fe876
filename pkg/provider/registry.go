package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/openfroyo/providerkit/pkg/diag"
	"github.com/openfroyo/providerkit/pkg/plan"
	"github.com/openfroyo/providerkit/pkg/schema"
)

// ResourceFactory creates a fresh resource implementation per call.
type ResourceFactory func() Resource

// DataSourceFactory creates a fresh data source implementation per call.
type DataSourceFactory func() DataSource

type resourceEntry struct {
	factory  ResourceFactory
	schema   schema.Schema
	ordering plan.ReplaceOrdering
}

type dataSourceEntry struct {
	factory DataSourceFactory
	schema  schema.Schema
}

// Registry is the explicit registration table keyed by resource type name,
// built once at process start. Schemas are validated at registration time,
// before any protocol traffic, and become immutable once the registry is
// sealed for publication.
type Registry struct {
	// mu protects the registration maps until the registry is sealed.
	mu sync.RWMutex

	resources   map[string]resourceEntry
	dataSources map[string]dataSourceEntry
	sealed      bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		resources:   make(map[string]resourceEntry),
		dataSources: make(map[string]dataSourceEntry),
	}
}

// RegisterResource registers a resource type under its name with its
// declared replace ordering. The schema is validated immediately; a broken
// schema fails registration so the process never starts serving it.
func (r *Registry) RegisterResource(ctx context.Context, typeName string, factory ResourceFactory, ordering plan.ReplaceOrdering) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return diag.NewSchemaError("registry is sealed; schema already published", nil)
	}
	if _, exists := r.resources[typeName]; exists {
		return diag.NewSchemaError(fmt.Sprintf("resource type %q already registered", typeName), nil).
			WithCode(diag.CodeDuplicateAttribute)
	}
	if err := ordering.Validate(); err != nil {
		return err
	}

	s := factory().Schema(ctx)
	if err := s.Validate(); err != nil {
		return fmt.Errorf("resource %q schema invalid: %w", typeName, err)
	}

	r.resources[typeName] = resourceEntry{factory: factory, schema: s, ordering: ordering}
	return nil
}

// RegisterDataSource registers a data source type under its name.
func (r *Registry) RegisterDataSource(ctx context.Context, typeName string, factory DataSourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return diag.NewSchemaError("registry is sealed; schema already published", nil)
	}
	if _, exists := r.dataSources[typeName]; exists {
		return diag.NewSchemaError(fmt.Sprintf("data source type %q already registered", typeName), nil).
			WithCode(diag.CodeDuplicateAttribute)
	}

	s := factory().Schema(ctx)
	if err := s.Validate(); err != nil {
		return fmt.Errorf("data source %q schema invalid: %w", typeName, err)
	}

	r.dataSources[typeName] = dataSourceEntry{factory: factory, schema: s}
	return nil
}

// Seal freezes the registry. After sealing, registration fails and reads
// need no locking.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Resource returns a fresh implementation, the published schema, and the
// declared replace ordering for a type name.
func (r *Registry) Resource(typeName string) (Resource, schema.Schema, plan.ReplaceOrdering, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.resources[typeName]
	if !ok {
		return nil, schema.Schema{}, "", diag.NewTypeError(
			fmt.Sprintf("unknown resource type %q", typeName), nil).WithCode(diag.CodeUnknownResource)
	}
	return e.factory(), e.schema, e.ordering, nil
}

// DataSource returns a fresh implementation and the published schema for a
// type name.
func (r *Registry) DataSource(typeName string) (DataSource, schema.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.dataSources[typeName]
	if !ok {
		return nil, schema.Schema{}, diag.NewTypeError(
			fmt.Sprintf("unknown data source type %q", typeName), nil).WithCode(diag.CodeUnknownResource)
	}
	return e.factory(), e.schema, nil
}

// ResourceSchemas returns the published resource schemas keyed by type name.
func (r *Registry) ResourceSchemas() map[string]schema.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]schema.Schema, len(r.resources))
	for name, e := range r.resources {
		out[name] = e.schema
	}
	return out
}

// DataSourceSchemas returns the published data source schemas keyed by
// type name.
func (r *Registry) DataSourceSchemas() map[string]schema.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]schema.Schema, len(r.dataSources))
	for name, e := range r.dataSources {
		out[name] = e.schema
	}
	return out
}

// TypeNames returns the sorted registered resource type names.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
