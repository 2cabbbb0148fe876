// Package telemetry provides observability instrumentation for plugin
// processes.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), and metrics (Prometheus) into a unified system. A plugin
// has one hard constraint ordinary services do not: stdout carries the
// handshake line and nothing else, so every telemetry stream defaults to
// stderr.
//
// Initialize telemetry at process startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "provider-virt"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// Component loggers carry context through the protocol stack:
//
//	logger := tel.Logger.NewComponentLogger("plugin")
//	logger = logger.WithMethod("PlanResourceChange").WithTypeName("virt_vm")
//	logger.Info("planning change")
//
// Metrics track the served protocol surface:
//
//	tel.Metrics.RecordRPC("ApplyResourceChange", "ok", duration)
//	tel.Metrics.RecordPlanAction("virt_vm", "create")
//	tel.Metrics.RecordDriftDetection("virt_vm", "drifted")
//
// Metrics live on a private registry; they are exposed over HTTP only when
// a listen address is configured, since most plugin invocations are too
// short-lived to scrape.
//
// Tracing is off by default and exports to stderr when enabled:
//
//	ic := telemetry.StartOperation(ctx, "rpc.PlanResourceChange")
//	defer ic.End(err)
package telemetry
