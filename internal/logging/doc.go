// Package logging provides structured, context-aware logging for sessiond.
//
// # Overview
//
// The Logger wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Output fan-out (stdout, rotated file, OpenTelemetry bridge)
//   - Automatic context field injection (trace_id, session.key, request.id)
//   - Field redaction for secrets
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
// Create a logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context so correlation fields travel along:
//
//	ctx = logging.WithSessionKey(ctx, key)
//	logger.Info(ctx, "imported session data", zap.Int("hints", n))
//
// The With* context setters panic on malformed IDs. Callers validate
// inputs before attaching them; a bad value reaching the logger is a
// programming error, not an input error.
package logging
