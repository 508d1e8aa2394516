// Package telemetry provides OpenTelemetry instrumentation for gandalf.
//
// # Overview
//
// This package implements distributed tracing and metrics collection using
// the OpenTelemetry Go SDK. Telemetry data is exported to an OTLP endpoint
// over gRPC (default) or http/protobuf.
//
// # Usage
//
// Create a telemetry instance from the config section:
//
//	tel, err := telemetry.New(ctx, cfg.Telemetry, version)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
// Use tracer and meter:
//
//	tracer := tel.Tracer("gandalf.aggregate")
//	ctx, span := tracer.Start(ctx, "Recall")
//	defer span.End()
//
//	meter := tel.Meter("gandalf.mcp")
//	counter, _ := meter.Int64Counter("tool.invocations")
//	counter.Add(ctx, 1)
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  service_name: "gandalf"
//	  protocol: "grpc"
//	  sample_rate: 1.0
//	  metrics_interval: "60s"
//
// Telemetry is disabled by default: gandalf is a local tool and must not
// export anything unless the operator asks for it.
//
// # Error Handling
//
// Telemetry failures do not crash the application. If providers cannot be
// initialized, the instance degrades gracefully and hands out no-op
// tracers and meters.
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
