// Package logger builds the slog loggers used by mailpipe commands.
//
// Records are JSON on stdout. Attributes carried in the context (tick id,
// campaign id) are added to every record by a decorating handler, so code deep
// in the delivery path only needs the context:
//
//	ctx = logger.WithTickID(ctx, tickID)
//	log.InfoContext(ctx, "tick committed", slog.Int("applied", n))
//	// {"level":"INFO","msg":"tick committed","applied":20,"tick_id":"01J..."}
//
// When SENTRY_DSN is set, NewWithSentry also forwards warnings as Sentry logs
// and errors as Sentry events; without a DSN it is identical to New.
//
// Library packages never construct loggers themselves. They default to
// NewNope and accept one through a WithLogger option.
package logger
