// Package telemetry provides OpenTelemetry instrumentation for sessiond.
//
// # Overview
//
// This package implements distributed tracing and metrics collection using the
// OpenTelemetry Go SDK. It exports telemetry data to an OTEL Collector over
// OTLP (gRPC by default, http/protobuf optionally), which forwards to
// Prometheus-compatible backends such as VictoriaMetrics.
//
// # Usage
//
// Create telemetry instance:
//
//	cfg := telemetry.FromDaemonConfig(daemonCfg.Telemetry, version)
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
// Use tracer and meter:
//
//	tracer := tel.Tracer("sessiond.httpapi")
//	ctx, span := tracer.Start(ctx, "Import")
//	defer span.End()
//
//	meter := tel.Meter("sessiond.httpapi")
//	counter, _ := meter.Int64Counter("imports.total")
//	counter.Add(ctx, 1)
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: "grpc"
//	  sample_rate: 1.0  # 100% in dev, lower in prod
//	  metrics_interval: "15s"
//
// # Error Handling
//
// Telemetry failures do not crash the daemon. If telemetry cannot be
// initialized, the instance degrades gracefully and returns no-op providers;
// the reason is surfaced through Health for the status endpoint.
//
// # Testing
//
// Use TestTelemetry for tests:
//
//	tt := telemetry.NewTestTelemetry()
//	tracer := tt.Tracer("test")
//	_, span := tracer.Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
