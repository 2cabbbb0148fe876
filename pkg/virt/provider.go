package virt

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/providerkit/pkg/diag"
	"github.com/openfroyo/providerkit/pkg/dynamic"
	"github.com/openfroyo/providerkit/pkg/plan"
	"github.com/openfroyo/providerkit/pkg/provider"
	"github.com/openfroyo/providerkit/pkg/schema"
)

// Environment fallbacks for the provider configuration. Explicit config
// fields always win over the environment.
const (
	EnvEndpoint = "VIRT_ENDPOINT"
	EnvAPIToken = "VIRT_API_TOKEN"
	EnvInsecure = "VIRT_INSECURE"
)

// Config is the resolved provider configuration.
type Config struct {
	Endpoint string `validate:"required,startswith=http"`
	APIToken string `validate:"required,contains=!"`
	Insecure bool
}

var validate = validator.New()

// resolveConfig merges the coerced configuration with the environment.
func resolveConfig(config dynamic.Value) Config {
	cfg := Config{
		Endpoint: os.Getenv(EnvEndpoint),
		APIToken: os.Getenv(EnvAPIToken),
		Insecure: os.Getenv(EnvInsecure) == "true" || os.Getenv(EnvInsecure) == "1",
	}
	if v, ok := config.Attr("endpoint"); ok && !v.IsNull() {
		cfg.Endpoint, _ = v.AsString()
	}
	if v, ok := config.Attr("api_token"); ok && !v.IsNull() {
		cfg.APIToken, _ = v.AsString()
	}
	if v, ok := config.Attr("insecure"); ok && !v.IsNull() {
		cfg.Insecure, _ = v.AsBool()
	}
	return cfg
}

// providerSchema declares the provider configuration block. Every field is
// optional in the schema because the environment can supply it; presence is
// enforced after merging.
func providerSchema() schema.Schema {
	return schema.NewBuilder().
		Version(1).
		Description("Virtualization backend connection").
		Attribute(schema.NewAttribute("endpoint", schema.StringType()).
			Description("API endpoint URL, e.g. https://virt.example.com:8006. Falls back to " + EnvEndpoint + ".").
			Optional().
			Build()).
		Attribute(schema.NewAttribute("api_token", schema.StringType()).
			Description("API token in user@realm!name=uuid form. Falls back to " + EnvAPIToken + ".").
			Optional().
			Sensitive().
			Build()).
		Attribute(schema.NewAttribute("insecure", schema.BoolType()).
			Description("Skip TLS certificate verification. Falls back to " + EnvInsecure + ".").
			Optional().
			Build()).
		Build()
}

// NewDefinition returns the provider definition for the virtualization
// backend.
func NewDefinition(version string) provider.Definition {
	return provider.Definition{
		Name:    "virt",
		Version: version,
		Schema:  providerSchema(),
		Configure: func(ctx context.Context, config dynamic.Value) (any, diag.Diagnostics) {
			cfg := resolveConfig(config)

			var ds diag.Diagnostics
			if err := validate.Struct(cfg); err != nil {
				if errs, ok := err.(validator.ValidationErrors); ok {
					for _, fe := range errs {
						ds.AddError(
							fmt.Sprintf("invalid provider configuration: %s", fe.Field()),
							fmt.Sprintf("field %s failed %q validation; set it in the provider config or the %s environment", fe.Field(), fe.Tag(), envFor(fe.Field())),
						)
					}
				} else {
					ds.AddError("invalid provider configuration", err.Error())
				}
				return nil, ds
			}

			client, err := NewClient(cfg.Endpoint, cfg.APIToken, cfg.Insecure)
			if err != nil {
				ds.AddError("failed to build backend client", err.Error())
				return nil, ds
			}
			return client, nil
		},
	}
}

func envFor(field string) string {
	switch field {
	case "Endpoint":
		return EnvEndpoint
	case "APIToken":
		return EnvAPIToken
	default:
		return EnvInsecure
	}
}

// NewRegistry builds the registration table with every resource and data
// source this provider ships.
func NewRegistry(ctx context.Context) (*provider.Registry, error) {
	reg := provider.NewRegistry()

	if err := reg.RegisterResource(ctx, "virt_vm", func() provider.Resource {
		return &vmResource{}
	}, plan.DeleteThenCreate); err != nil {
		return nil, err
	}
	if err := reg.RegisterResource(ctx, "virt_realm", func() provider.Resource {
		return &realmResource{}
	}, plan.DeleteThenCreate); err != nil {
		return nil, err
	}
	if err := reg.RegisterDataSource(ctx, "virt_version", func() provider.DataSource {
		return &versionDataSource{}
	}); err != nil {
		return nil, err
	}

	return reg, nil
}

// clientFrom extracts the configured backend client from provider data.
func clientFrom(providerData any) (*Client, diag.Diagnostics) {
	client, ok := providerData.(*Client)
	if !ok || client == nil {
		var ds diag.Diagnostics
		ds.AddError("provider not configured", "no backend client available")
		return nil, ds
	}
	return client, nil
}
