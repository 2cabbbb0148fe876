package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/providerkit/pkg/plugin"
	"github.com/openfroyo/providerkit/pkg/provider"
	"github.com/openfroyo/providerkit/pkg/telemetry"
	"github.com/openfroyo/providerkit/pkg/virt"
)

// serveFileConfig is the optional YAML serve configuration. Everything has
// a sensible default; the file exists for lab setups that want a metrics
// listener or verbose logs without touching the orchestrator.
type serveFileConfig struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Metrics struct {
		ListenAddress string `yaml:"listen_address"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"tracing"`
}

func loadServeConfig(path string) (*serveFileConfig, error) {
	var cfg serveFileConfig
	if path == "" {
		return &cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read serve config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse serve config: %w", err)
	}
	return &cfg, nil
}

func buildTelemetry(version string, file *serveFileConfig) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	if debug {
		cfg = telemetry.DebugConfig()
	}
	cfg.ServiceName = "provider-virt"
	cfg.ServiceVersion = version

	if file.Log.Level != "" {
		cfg.Logging.Level = file.Log.Level
	}
	if file.Log.Format != "" {
		cfg.Logging.Format = file.Log.Format
	}
	if file.Log.Output != "" {
		cfg.Logging.Output = file.Log.Output
	}
	if file.Metrics.ListenAddress != "" {
		cfg.Metrics.ListenAddress = file.Metrics.ListenAddress
	}
	if file.Tracing.Enabled {
		cfg.Tracing.Enabled = true
	}

	return telemetry.NewTelemetry(cfg)
}

func newServeCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the plugin protocol (launched by an orchestrator)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			fileCfg, err := loadServeConfig(configPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}

			tel, err := buildTelemetry(version, fileCfg)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			defer tel.Shutdown(ctx)
			ctx = tel.WithContext(ctx)

			if err := tel.StartMetricsServer(); err != nil {
				return err
			}

			registry, err := virt.NewRegistry(ctx)
			if err != nil {
				tel.Logger.WithError(err).Error("failed to build registry")
				return err
			}

			lc, err := provider.NewLifecycle(virt.NewDefinition(version), registry, tel.Logger.Zerolog())
			if err != nil {
				tel.Logger.WithError(err).Error("failed to build lifecycle")
				return err
			}

			if err := plugin.Serve(ctx, plugin.ServeConfig{
				Lifecycle: lc,
				Telemetry: tel,
			}); err != nil {
				tel.Logger.WithError(err).Error("plugin serve failed")
				return err
			}
			return nil
		},
	}
}
