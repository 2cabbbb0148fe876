package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/providerkit/pkg/diag"
	"github.com/openfroyo/providerkit/pkg/dynamic"
	"github.com/openfroyo/providerkit/pkg/plan"
	"github.com/openfroyo/providerkit/pkg/schema"
)

// State is the provider process state. Unconfigured is entered once at
// process start and Configured after successful provider configuration;
// the per-call phases in between are stateless and independent.
type State string

const (
	// StateUnconfigured means ConfigureProvider has not succeeded yet.
	StateUnconfigured State = "unconfigured"

	// StateConfigured means the provider holds resolved configuration.
	StateConfigured State = "configured"
)

// Definition describes the provider itself: its schema and the hook that
// turns a coerced configuration into the process-wide context value passed
// to every subsequent resource call.
type Definition struct {
	// Name is the provider type name.
	Name string

	// Version is the provider build version.
	Version string

	// Schema is the provider configuration schema.
	Schema schema.Schema

	// Configure resolves a coerced configuration into the provider data
	// value (backend endpoint, credentials). Called once per process.
	Configure func(ctx context.Context, config dynamic.Value) (any, diag.Diagnostics)
}

// SchemaBundle is the full published schema surface.
type SchemaBundle struct {
	Provider    schema.Schema
	Resources   map[string]schema.Schema
	DataSources map[string]schema.Schema
}

// Lifecycle sequences validate, plan, apply, read, and import over the
// registered implementations. The only shared mutable state is the
// provider data, written once during configuration and read concurrently
// afterwards behind a single-writer/many-reader lock. No per-instance
// session is held between calls.
type Lifecycle struct {
	def      Definition
	registry *Registry
	log      zerolog.Logger

	// mu guards state and providerData.
	mu           sync.RWMutex
	state        State
	providerData any
}

// NewLifecycle validates the provider schema, seals the registry so the
// published schema surface is immutable, and returns the state machine in
// the unconfigured state. A schema error here is fatal to process start.
func NewLifecycle(def Definition, registry *Registry, log zerolog.Logger) (*Lifecycle, error) {
	if err := def.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("provider %q schema invalid: %w", def.Name, err)
	}
	registry.Seal()
	return &Lifecycle{
		def:      def,
		registry: registry,
		log:      log.With().Str("component", "lifecycle").Logger(),
		state:    StateUnconfigured,
	}, nil
}

// Name returns the provider type name.
func (lc *Lifecycle) Name() string {
	return lc.def.Name
}

// Version returns the provider build version.
func (lc *Lifecycle) Version() string {
	return lc.def.Version
}

// State returns the current provider state.
func (lc *Lifecycle) State() State {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.state
}

// SchemaBundle returns the published schema surface.
func (lc *Lifecycle) SchemaBundle() SchemaBundle {
	return SchemaBundle{
		Provider:    lc.def.Schema,
		Resources:   lc.registry.ResourceSchemas(),
		DataSources: lc.registry.DataSourceSchemas(),
	}
}

// providerDataSnapshot returns the configured data under the read lock.
func (lc *Lifecycle) providerDataSnapshot() (any, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.providerData, lc.state == StateConfigured
}

// redacted scrubs detail text from diagnostics that land on sensitive
// attributes of s. Applied at every boundary where hook or coercion
// diagnostics leave the lifecycle.
func redacted(s schema.Schema, ds diag.Diagnostics) diag.Diagnostics {
	return ds.Redact(s.SensitivePaths())
}

func notConfigured() diag.Diagnostics {
	return diag.Diagnostics{{
		Severity: diag.SeverityError,
		Summary:  "provider not configured",
		Detail:   "ConfigureProvider must succeed before resource operations",
	}}
}

// ValidateProviderConfig coerces and validates a provider configuration
// without applying it. Pure: diagnostics only.
func (lc *Lifecycle) ValidateProviderConfig(ctx context.Context, config dynamic.Value) diag.Diagnostics {
	if _, err := dynamic.Coerce(config, lc.def.Schema); err != nil {
		return redacted(lc.def.Schema, diag.Diagnostics{diag.FromError(err)})
	}
	return nil
}

// Configure resolves the provider configuration and transitions to the
// configured state. The resolved data is written exactly once; a second
// successful configuration attempt is rejected.
func (lc *Lifecycle) Configure(ctx context.Context, config dynamic.Value) diag.Diagnostics {
	coerced, err := dynamic.Coerce(config, lc.def.Schema)
	if err != nil {
		return redacted(lc.def.Schema, diag.Diagnostics{diag.FromError(err)})
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.state == StateConfigured {
		return diag.Diagnostics{{
			Severity: diag.SeverityError,
			Summary:  "provider already configured",
		}}
	}

	var ds diag.Diagnostics
	var data any
	if lc.def.Configure != nil {
		data, ds = lc.def.Configure(ctx, coerced)
		ds = redacted(lc.def.Schema, ds)
		if ds.HasErrors() {
			return ds
		}
	}

	lc.providerData = data
	lc.state = StateConfigured
	lc.log.Debug().Str("provider", lc.def.Name).Msg("provider configured")
	return ds
}

// ValidateResourceConfig coerces the configuration against the resource
// schema and runs the implementation's validation hook. Pure: no side
// effects, diagnostics only.
func (lc *Lifecycle) ValidateResourceConfig(ctx context.Context, typeName string, config dynamic.Value) diag.Diagnostics {
	res, s, _, err := lc.registry.Resource(typeName)
	if err != nil {
		return diag.Diagnostics{diag.FromError(err)}
	}
	coerced, err := dynamic.Coerce(config, s)
	if err != nil {
		return redacted(s, diag.Diagnostics{diag.FromError(err)})
	}
	data, _ := lc.providerDataSnapshot()
	resp := res.ValidateConfig(ctx, ValidateRequest{Config: coerced, ProviderData: data})
	return redacted(s, resp.Diagnostics)
}

// PlanResourceChange computes the change plan for one instance. Planning
// performs no external I/O; attributes needing a backend round trip stay
// unknown until apply. The private blob passes through untouched.
func (lc *Lifecycle) PlanResourceChange(ctx context.Context, typeName string, prior, config dynamic.Value) (*plan.Result, diag.Diagnostics) {
	if _, ok := lc.providerDataSnapshot(); !ok {
		return nil, notConfigured()
	}
	_, s, ordering, err := lc.registry.Resource(typeName)
	if err != nil {
		return nil, diag.Diagnostics{diag.FromError(err)}
	}

	result, err := plan.Compute(s, prior, config, ordering)
	if err != nil {
		return nil, redacted(s, diag.Diagnostics{diag.FromError(err)})
	}
	lc.log.Debug().
		Str("type", typeName).
		Str("action", string(result.Action)).
		Int("changes", len(result.Changes)).
		Msg("planned resource change")
	return result, nil
}

// ApplyResourceChange performs the planned mutation. The action is
// re-derived from the same inputs the plan used, so plan and apply can
// never disagree on classification; the derived action is returned so the
// protocol adapter can report it. Whatever real state is known is always
// returned, even on failure, so a partial apply never loses state.
func (lc *Lifecycle) ApplyResourceChange(ctx context.Context, typeName string, prior, config dynamic.Value, private *dynamic.PrivateState) (plan.Action, dynamic.Value, *dynamic.PrivateState, diag.Diagnostics) {
	data, ok := lc.providerDataSnapshot()
	if !ok {
		return "", prior, private, notConfigured()
	}
	res, s, ordering, err := lc.registry.Resource(typeName)
	if err != nil {
		return "", prior, private, diag.Diagnostics{diag.FromError(err)}
	}

	result, err := plan.Compute(s, prior, config, ordering)
	if err != nil {
		return "", prior, private, redacted(s, diag.Diagnostics{diag.FromError(err)})
	}

	coerced := dynamic.Null()
	if !config.IsNull() {
		// Plan already coerced successfully; repeat for the hooks.
		coerced, _ = dynamic.Coerce(config, s)
	}

	lc.log.Debug().
		Str("type", typeName).
		Str("action", string(result.Action)).
		Msg("applying resource change")

	switch result.Action {
	case plan.ActionNoOp:
		return result.Action, prior, private, nil

	case plan.ActionCreate:
		resp := res.Create(ctx, CreateRequest{
			Planned: result.Planned, Config: coerced, Private: private, ProviderData: data,
		})
		return result.Action, resp.State, resp.Private, redacted(s, resp.Diagnostics)

	case plan.ActionUpdate:
		resp := res.Update(ctx, UpdateRequest{
			Prior: prior, Planned: result.Planned, Config: coerced, Private: private, ProviderData: data,
		})
		return result.Action, resp.State, resp.Private, redacted(s, resp.Diagnostics)

	case plan.ActionDelete:
		resp := res.Delete(ctx, DeleteRequest{Prior: prior, Private: private, ProviderData: data})
		return result.Action, resp.State, nil, redacted(s, resp.Diagnostics)

	case plan.ActionReplace:
		state, newPrivate, ds := lc.applyReplace(ctx, res, result, prior, coerced, private, data)
		return result.Action, state, newPrivate, redacted(s, ds)

	default:
		return result.Action, prior, private, diag.Diagnostics{{
			Severity: diag.SeverityError,
			Summary:  fmt.Sprintf("unhandled plan action %q", result.Action),
		}}
	}
}

// applyReplace sequences the two halves of a replace per the resource's
// declared ordering, preserving whatever state is real at each step.
func (lc *Lifecycle) applyReplace(ctx context.Context, res Resource, result *plan.Result, prior, config dynamic.Value, private *dynamic.PrivateState, data any) (dynamic.Value, *dynamic.PrivateState, diag.Diagnostics) {
	switch result.Ordering {
	case plan.CreateThenDelete:
		createResp := res.Create(ctx, CreateRequest{
			Planned: result.Planned, Config: config, Private: private, ProviderData: data,
		})
		if createResp.Diagnostics.HasErrors() {
			// Old instance still exists; report it as current.
			if createResp.State.IsNull() {
				return prior, private, createResp.Diagnostics
			}
			return createResp.State, createResp.Private, createResp.Diagnostics
		}
		deleteResp := res.Delete(ctx, DeleteRequest{Prior: prior, Private: private, ProviderData: data})
		ds := append(createResp.Diagnostics, deleteResp.Diagnostics...)
		return createResp.State, createResp.Private, ds

	default: // DeleteThenCreate
		deleteResp := res.Delete(ctx, DeleteRequest{Prior: prior, Private: private, ProviderData: data})
		if deleteResp.Diagnostics.HasErrors() {
			return deleteResp.State, private, deleteResp.Diagnostics
		}
		createResp := res.Create(ctx, CreateRequest{
			Planned: result.Planned, Config: config, Private: nil, ProviderData: data,
		})
		ds := append(deleteResp.Diagnostics, createResp.Diagnostics...)
		return createResp.State, createResp.Private, ds
	}
}

// ReadResource refreshes one instance from the backend to detect drift.
func (lc *Lifecycle) ReadResource(ctx context.Context, typeName string, current dynamic.Value, private *dynamic.PrivateState) (dynamic.Value, *dynamic.PrivateState, diag.Diagnostics) {
	data, ok := lc.providerDataSnapshot()
	if !ok {
		return current, private, notConfigured()
	}
	res, s, _, err := lc.registry.Resource(typeName)
	if err != nil {
		return current, private, diag.Diagnostics{diag.FromError(err)}
	}
	resp := res.Read(ctx, ReadRequest{Current: current, Private: private, ProviderData: data})
	return resp.State, resp.Private, redacted(s, resp.Diagnostics)
}

// ImportResourceState constructs an initial state from an external ID.
func (lc *Lifecycle) ImportResourceState(ctx context.Context, typeName, id string) (dynamic.Value, *dynamic.PrivateState, diag.Diagnostics) {
	data, ok := lc.providerDataSnapshot()
	if !ok {
		return dynamic.Null(), nil, notConfigured()
	}
	res, s, _, err := lc.registry.Resource(typeName)
	if err != nil {
		return dynamic.Null(), nil, diag.Diagnostics{diag.FromError(err)}
	}
	resp := res.Import(ctx, ImportRequest{ID: id, ProviderData: data})
	return resp.State, resp.Private, redacted(s, resp.Diagnostics)
}

// ReadDataSource resolves a data source configuration.
func (lc *Lifecycle) ReadDataSource(ctx context.Context, typeName string, config dynamic.Value) (dynamic.Value, diag.Diagnostics) {
	data, ok := lc.providerDataSnapshot()
	if !ok {
		return dynamic.Null(), notConfigured()
	}
	ds, s, err := lc.registry.DataSource(typeName)
	if err != nil {
		return dynamic.Null(), diag.Diagnostics{diag.FromError(err)}
	}
	coerced, err := dynamic.Coerce(config, s)
	if err != nil {
		return dynamic.Null(), redacted(s, diag.Diagnostics{diag.FromError(err)})
	}
	resp := ds.Read(ctx, DataSourceReadRequest{Config: coerced, ProviderData: data})
	return resp.State, redacted(s, resp.Diagnostics)
}
