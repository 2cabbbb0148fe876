package telemetry

import (
	"context"
	"testing"
)

func TestConfig_Validate_Defaults(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
	if err := DebugConfig().Validate(); err != nil {
		t.Errorf("debug config must validate: %v", err)
	}
}

func TestConfig_Validate_RejectsStdoutLogging(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Output = "stdout"
	if err := cfg.Validate(); err == nil {
		t.Error("stdout logging must be rejected: stdout carries the handshake line")
	}
}

func TestConfig_Validate_BadLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown log level must be rejected")
	}
}

func TestNewTelemetry_MetricsCollectOnly(t *testing.T) {
	tel, err := NewTelemetry(DefaultConfig())
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}
	defer tel.Shutdown(context.Background()) //nolint:errcheck

	tel.Metrics.RecordRPC("GetSchema", "ok", 0)
	tel.Metrics.RecordPlanAction("virt_vm", "create")
	tel.Metrics.RecordDriftDetection("virt_vm", "clean")
	if tel.Metrics.Handler() == nil {
		t.Error("metrics handler must be available without a listener")
	}
}
