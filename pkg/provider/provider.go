// Package provider defines the capability contract resource and data source
// implementations register against, the registration table keyed by type
// name, and the lifecycle state machine that sequences validate, plan,
// apply, read, and import for each managed instance.
package provider

import (
	"context"

	"github.com/openfroyo/providerkit/pkg/diag"
	"github.com/openfroyo/providerkit/pkg/dynamic"
	"github.com/openfroyo/providerkit/pkg/schema"
)

// Resource is the capability interface every managed resource type
// implements. The framework plans; the resource performs the I/O. All
// blocking operations take a context for cancellation. Implementations are
// stateless between calls: everything carried forward travels in the state
// and private data supplied on each request.
type Resource interface {
	// Schema declares the resource's configuration and state shape.
	// It must be deterministic; the result is validated and published
	// once per process lifetime.
	Schema(ctx context.Context) schema.Schema

	// ValidateConfig checks a coerced configuration. It is a pure
	// function: diagnostics only, no side effects.
	ValidateConfig(ctx context.Context, req ValidateRequest) ValidateResponse

	// Create brings a new instance into existence from the planned
	// state. On partial failure the response must still carry the latest
	// known real state so nothing is lost.
	Create(ctx context.Context, req CreateRequest) CreateResponse

	// Update mutates an existing instance in place.
	Update(ctx context.Context, req UpdateRequest) UpdateResponse

	// Delete removes an instance.
	Delete(ctx context.Context, req DeleteRequest) DeleteResponse

	// Read refreshes state from the backend without planning; used to
	// detect drift. A response with a null state means the instance is
	// gone.
	Read(ctx context.Context, req ReadRequest) ReadResponse

	// Import constructs an initial state for an instance that exists in
	// the backend but not yet in prior state, from an external
	// identifier alone.
	Import(ctx context.Context, req ImportRequest) ImportResponse
}

// DataSource is the read-only counterpart of Resource.
type DataSource interface {
	// Schema declares the data source's shape.
	Schema(ctx context.Context) schema.Schema

	// Read resolves the data source against the backend.
	Read(ctx context.Context, req DataSourceReadRequest) DataSourceReadResponse
}

// ValidateRequest carries a coerced configuration to validate.
type ValidateRequest struct {
	// Config is the coerced configuration value.
	Config dynamic.Value

	// ProviderData is the value produced at provider configuration
	// time, nil before the provider is configured.
	ProviderData any
}

// ValidateResponse carries validation diagnostics.
type ValidateResponse struct {
	Diagnostics diag.Diagnostics
}

// CreateRequest carries the planned state for a new instance.
type CreateRequest struct {
	// Planned is the planned state; unknown values must be resolved by
	// the implementation before returning.
	Planned dynamic.Value

	// Config is the coerced configuration the plan was computed from.
	Config dynamic.Value

	// Private is the instance's private data blob.
	Private *dynamic.PrivateState

	// ProviderData is the configured provider context value.
	ProviderData any
}

// CreateResponse carries the created state. State must be the best-effort
// real state even when Diagnostics contains errors.
type CreateResponse struct {
	State       dynamic.Value
	Private     *dynamic.PrivateState
	Diagnostics diag.Diagnostics
}

// UpdateRequest carries prior and planned state for an in-place change.
type UpdateRequest struct {
	Prior        dynamic.Value
	Planned      dynamic.Value
	Config       dynamic.Value
	Private      *dynamic.PrivateState
	ProviderData any
}

// UpdateResponse carries the updated state, best effort on failure.
type UpdateResponse struct {
	State       dynamic.Value
	Private     *dynamic.PrivateState
	Diagnostics diag.Diagnostics
}

// DeleteRequest carries the prior state of the instance to remove.
type DeleteRequest struct {
	Prior        dynamic.Value
	Private      *dynamic.PrivateState
	ProviderData any
}

// DeleteResponse reports deletion. A non-null State with error diagnostics
// means the instance partially survives.
type DeleteResponse struct {
	State       dynamic.Value
	Diagnostics diag.Diagnostics
}

// ReadRequest carries the last recorded state for a refresh.
type ReadRequest struct {
	Current      dynamic.Value
	Private      *dynamic.PrivateState
	ProviderData any
}

// ReadResponse carries the refreshed state. Null state means the backend
// no longer has the instance.
type ReadResponse struct {
	State       dynamic.Value
	Private     *dynamic.PrivateState
	Diagnostics diag.Diagnostics
}

// ImportRequest carries the external identifier to import by.
type ImportRequest struct {
	// ID is the backend's identifier for the instance.
	ID string

	ProviderData any
}

// ImportResponse carries the constructed initial state.
type ImportResponse struct {
	State       dynamic.Value
	Private     *dynamic.PrivateState
	Diagnostics diag.Diagnostics
}

// DataSourceReadRequest carries the coerced data source configuration.
type DataSourceReadRequest struct {
	Config       dynamic.Value
	ProviderData any
}

// DataSourceReadResponse carries the resolved data source state.
type DataSourceReadResponse struct {
	State       dynamic.Value
	Diagnostics diag.Diagnostics
}
