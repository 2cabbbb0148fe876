package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/providerkit/pkg/provider"
	"github.com/openfroyo/providerkit/pkg/telemetry"
	"github.com/openfroyo/providerkit/pkg/virt"
)

// newSchemaCommand dumps the published schema surface as JSON, for
// inspection and for orchestrator development without a live handshake.
func newSchemaCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the provider, resource, and data source schemas as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
			if err != nil {
				return err
			}

			registry, err := virt.NewRegistry(ctx)
			if err != nil {
				return err
			}
			lc, err := provider.NewLifecycle(virt.NewDefinition(version), registry, tel.Logger.Zerolog())
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(lc.SchemaBundle(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(out))
			return nil
		},
	}
}
