package virt

import (
	"context"

	"github.com/openfroyo/providerkit/pkg/dynamic"
	"github.com/openfroyo/providerkit/pkg/provider"
	"github.com/openfroyo/providerkit/pkg/schema"
	"github.com/openfroyo/providerkit/pkg/telemetry"
)

// versionDataSource reports the backend's version. It takes no
// configuration; everything is computed.
type versionDataSource struct{}

func (d *versionDataSource) Schema(ctx context.Context) schema.Schema {
	return schema.NewBuilder().
		Version(1).
		Description("Backend version report").
		Attribute(schema.NewAttribute("version", schema.StringType()).
			Description("Backend version").
			Computed().
			Build()).
		Attribute(schema.NewAttribute("release", schema.StringType()).
			Description("Release name").
			Computed().
			Build()).
		Attribute(schema.NewAttribute("repoid", schema.StringType()).
			Description("Repository build identifier").
			Computed().
			Build()).
		Build()
}

func (d *versionDataSource) Read(ctx context.Context, req provider.DataSourceReadRequest) provider.DataSourceReadResponse {
	var resp provider.DataSourceReadResponse
	client, ds := clientFrom(req.ProviderData)
	if ds.HasErrors() {
		resp.State = dynamic.Null()
		resp.Diagnostics = ds
		return resp
	}

	ic := telemetry.StartOperation(ctx, "virt_version.read")
	info, err := client.Version(ic.Ctx)
	ic.End(err)
	if err != nil {
		resp.State = dynamic.Null()
		resp.Diagnostics.AddError("failed to read backend version", err.Error())
		return resp
	}

	resp.State = dynamic.Object(map[string]dynamic.Value{
		"version": dynamic.String(info.Version),
		"release": dynamic.String(info.Release),
		"repoid":  dynamic.String(info.RepoID),
	})
	return resp
}

var _ provider.DataSource = (*versionDataSource)(nil)
