package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/providerkit/pkg/plugin"
)

func newVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("provider-virt %s\n", version)
			fmt.Printf("  commit:   %s\n", commit)
			fmt.Printf("  built:    %s\n", buildDate)
			fmt.Printf("  protocol: %s\n", plugin.ProtocolVersion)
		},
	}
}
