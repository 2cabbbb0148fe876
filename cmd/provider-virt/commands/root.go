// Package commands implements the provider-virt CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	debug      bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "provider-virt",
		Short: "Virtualization backend provider plugin",
		Long: `provider-virt is a resource provider plugin for a Proxmox-style
virtualization backend. It is normally launched by an orchestrator, which
reads the handshake line from stdout and drives it over the plugin
protocol; running it by hand prints an explanation and exits.

Resources:
  virt_vm      virtual machines
  virt_realm   authentication realms

Data sources:
  virt_version backend version report`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "serve config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging and tracing")

	rootCmd.AddCommand(newServeCommand(version))
	rootCmd.AddCommand(newSchemaCommand(version))
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
