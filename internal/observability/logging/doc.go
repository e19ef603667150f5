// Package logging provides structured logging utilities with context propagation.
//
// Loggers are log/slog JSON loggers. Each ingestion cycle derives a child
// logger carrying its cycle_id and stores it in the context so fetchers and
// stores deeper in the call chain log with the same correlation id.
//
// Example usage:
//
//	logger := logging.NewLogger()
//	ctx = logging.WithLogger(ctx, logging.WithCycleID(logger, cycleID))
//	logging.FromContext(ctx).Info("cycle started")
package logging
