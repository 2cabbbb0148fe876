package virt

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfroyo/providerkit/pkg/dynamic"
	"github.com/openfroyo/providerkit/pkg/provider"
	"github.com/openfroyo/providerkit/pkg/schema"
)

// realmResource manages an authentication realm. The realm name is its
// backend identity, so renaming requires replacement.
type realmResource struct{}

func (r *realmResource) Schema(ctx context.Context) schema.Schema {
	return schema.NewBuilder().
		Version(1).
		Description("An authentication realm").
		Attribute(schema.NewAttribute("realm", schema.StringType()).
			Description("Realm name").
			Required().
			RequiresReplace().
			Build()).
		Attribute(schema.NewAttribute("type", schema.StringType()).
			Description("Realm type (openid, ldap, ad)").
			Required().
			Build()).
		Attribute(schema.NewAttribute("issuer_url", schema.StringType()).
			Description("OpenID issuer URL").
			Optional().
			Build()).
		Attribute(schema.NewAttribute("client_id", schema.StringType()).
			Description("OpenID client ID").
			Optional().
			Build()).
		Attribute(schema.NewAttribute("client_key", schema.StringType()).
			Description("OpenID client key").
			Optional().
			Sensitive().
			Build()).
		Attribute(schema.NewAttribute("comment", schema.StringType()).
			Optional().
			Build()).
		Attribute(schema.NewAttribute("default", schema.BoolType()).
			Description("Use as the default login realm").
			Optional().
			Build()).
		Build()
}

var realmTypes = map[string]bool{"openid": true, "ldap": true, "ad": true}

func (r *realmResource) ValidateConfig(ctx context.Context, req provider.ValidateRequest) provider.ValidateResponse {
	var resp provider.ValidateResponse

	if v, ok := req.Config.Attr("type"); ok && !v.IsNull() {
		t, _ := v.AsString()
		if !realmTypes[t] {
			resp.Diagnostics.AddAttributeError("type", "invalid realm type",
				fmt.Sprintf("%q is not one of openid, ldap, ad", t))
		}
		// OpenID realms need their issuer and client.
		if t == "openid" {
			for _, name := range []string{"issuer_url", "client_id"} {
				if v, ok := req.Config.Attr(name); !ok || v.IsNull() {
					resp.Diagnostics.AddAttributeError(name, "missing OpenID setting",
						fmt.Sprintf("%s is required when type is openid", name))
				}
			}
		}
	}

	if v, ok := req.Config.Attr("issuer_url"); ok && !v.IsNull() {
		u, _ := v.AsString()
		if !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
			resp.Diagnostics.AddAttributeError("issuer_url", "invalid issuer URL",
				"issuer_url must start with http:// or https://")
		}
	}

	return resp
}

func realmSpec(planned dynamic.Value) Realm {
	var spec Realm
	spec.Realm, _ = planned.GetString(dynamic.PathTo("realm"))
	spec.Type, _ = planned.GetString(dynamic.PathTo("type"))
	spec.IssuerURL, _ = planned.GetString(dynamic.PathTo("issuer_url"))
	spec.ClientID, _ = planned.GetString(dynamic.PathTo("client_id"))
	spec.ClientKey, _ = planned.GetString(dynamic.PathTo("client_key"))
	spec.Comment, _ = planned.GetString(dynamic.PathTo("comment"))
	if v, ok := planned.Attr("default"); ok && v.IsKnown() && !v.IsNull() {
		spec.Default, _ = v.AsBool()
	}
	return spec
}

// realmState renders the backend realm into a state value. The client key
// is write-only in the backend, so the configured value in base is kept.
func realmState(base dynamic.Value, realm Realm) dynamic.Value {
	state := base.
		WithAttr("realm", dynamic.String(realm.Realm)).
		WithAttr("type", dynamic.String(realm.Type))
	if realm.IssuerURL != "" {
		state = state.WithAttr("issuer_url", dynamic.String(realm.IssuerURL))
	}
	if realm.ClientID != "" {
		state = state.WithAttr("client_id", dynamic.String(realm.ClientID))
	}
	if realm.Comment != "" {
		state = state.WithAttr("comment", dynamic.String(realm.Comment))
	}
	if realm.Default {
		state = state.WithAttr("default", dynamic.Bool(true))
	}
	return state
}

func (r *realmResource) Create(ctx context.Context, req provider.CreateRequest) provider.CreateResponse {
	var resp provider.CreateResponse
	client, ds := clientFrom(req.ProviderData)
	if ds.HasErrors() {
		resp.State = dynamic.Null()
		resp.Diagnostics = ds
		return resp
	}

	spec := realmSpec(req.Planned)
	if err := client.CreateRealm(ctx, spec); err != nil {
		resp.State = dynamic.Null()
		resp.Diagnostics.AddError("failed to create realm", err.Error())
		return resp
	}

	resp.State = req.Planned
	resp.Private = req.Private
	return resp
}

func (r *realmResource) Update(ctx context.Context, req provider.UpdateRequest) provider.UpdateResponse {
	var resp provider.UpdateResponse
	client, ds := clientFrom(req.ProviderData)
	if ds.HasErrors() {
		resp.State = req.Prior
		resp.Diagnostics = ds
		return resp
	}

	if err := client.UpdateRealm(ctx, realmSpec(req.Planned)); err != nil {
		resp.State = req.Prior
		resp.Diagnostics.AddError("failed to update realm", err.Error())
		return resp
	}

	resp.State = req.Planned
	resp.Private = req.Private
	return resp
}

func (r *realmResource) Delete(ctx context.Context, req provider.DeleteRequest) provider.DeleteResponse {
	var resp provider.DeleteResponse
	client, ds := clientFrom(req.ProviderData)
	if ds.HasErrors() {
		resp.State = req.Prior
		resp.Diagnostics = ds
		return resp
	}

	name, err := req.Prior.GetString(dynamic.PathTo("realm"))
	if err != nil {
		resp.State = req.Prior
		resp.Diagnostics.AddError("prior state missing realm name", err.Error())
		return resp
	}

	if err := client.DeleteRealm(ctx, name); err != nil {
		resp.State = req.Prior
		resp.Diagnostics.AddError("failed to delete realm", err.Error())
		return resp
	}

	resp.State = dynamic.Null()
	return resp
}

func (r *realmResource) Read(ctx context.Context, req provider.ReadRequest) provider.ReadResponse {
	var resp provider.ReadResponse
	client, ds := clientFrom(req.ProviderData)
	if ds.HasErrors() {
		resp.State = req.Current
		resp.Diagnostics = ds
		return resp
	}

	name, err := req.Current.GetString(dynamic.PathTo("realm"))
	if err != nil {
		resp.State = req.Current
		resp.Diagnostics.AddError("recorded state missing realm name", err.Error())
		return resp
	}

	realm, exists, err := client.GetRealm(ctx, name)
	if err != nil {
		resp.State = req.Current
		resp.Diagnostics.AddError("failed to read realm", err.Error())
		return resp
	}
	if !exists {
		resp.State = dynamic.Null()
		return resp
	}

	resp.State = realmState(req.Current, realm)
	resp.Private = req.Private
	return resp
}

// Import accepts the realm name as the identifier.
func (r *realmResource) Import(ctx context.Context, req provider.ImportRequest) provider.ImportResponse {
	var resp provider.ImportResponse
	client, ds := clientFrom(req.ProviderData)
	if ds.HasErrors() {
		resp.State = dynamic.Null()
		resp.Diagnostics = ds
		return resp
	}

	realm, exists, err := client.GetRealm(ctx, req.ID)
	if err != nil {
		resp.State = dynamic.Null()
		resp.Diagnostics.AddError("failed to import realm", err.Error())
		return resp
	}
	if !exists {
		resp.State = dynamic.Null()
		resp.Diagnostics.AddError("realm not found", fmt.Sprintf("no realm %q in the backend", req.ID))
		return resp
	}

	resp.State = realmState(dynamic.Object(map[string]dynamic.Value{
		"issuer_url": dynamic.Null(),
		"client_id":  dynamic.Null(),
		"client_key": dynamic.Null(),
		"comment":    dynamic.Null(),
		"default":    dynamic.Null(),
	}), realm)
	return resp
}

var _ provider.Resource = (*realmResource)(nil)
