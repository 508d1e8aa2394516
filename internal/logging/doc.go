// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stderr + OpenTelemetry)
//   - Automatic context field injection (trace_id, session, request, tool)
//   - Defense-in-depth secret redaction
//   - Level-aware sampling (errors never sampled)
//
// Stdout is deliberately not a log destination: when gandalf runs as an
// MCP server, stdout carries the JSON-RPC wire protocol and any stray
// line on it corrupts the session.
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx := logging.WithSessionID(ctx, "sess_123")
//	ctx = logging.WithTool(ctx, "recall_conversations")
//	logger.Info(ctx, "aggregation complete", zap.Int("conversations", n))
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2025-11-24T10:15:30Z",
//	  "level": "info",
//	  "msg": "aggregation complete",
//	  "trace_id": "abc123",
//	  "session.id": "sess_123",
//	  "tool.name": "recall_conversations",
//	  "conversations": 42
//	}
//
// # Configuration Precedence
//
// Configuration follows standard gandalf precedence:
//  1. Defaults (NewDefaultConfig)
//  2. File (config.yaml)
//  3. Environment variables (GANDALF_LOGGING_*)
//
// # Secret Redaction
//
// Conversation snippets can embed whatever the user pasted into their
// editor, including live credentials. Secrets are redacted at two layers:
//  1. Encoder-level field name filtering
//  2. Encoder-level pattern matching
//
// Use helpers for manual redaction:
//
//	logger.Info(ctx, "auth received",
//	    logging.RedactedString("authorization", authHeader))
//
// # Sampling
//
// Level-aware sampling prevents log floods when extraction walks large
// databases:
//   - Trace: first 1 per second, drop rest
//   - Debug: first 10 per second, drop rest
//   - Info: first 100, then 1 every 10
//   - Warn: first 100, then 1 every 100
//   - Error+: never sampled
//
// Disable for debugging:
//
//	cfg.Sampling.Enabled = false
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//	tl.AssertNoSecrets(t)
//
// # Concurrency Safety
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings.
package logging
