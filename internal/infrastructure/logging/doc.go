// Package logging provides structured logging using uber/zap.
//
// Production mode emits JSON for machine parsing; development mode emits
// colored console output. Every component takes a *Logger and derives a
// named child with Named, so log lines carry their context of origin.
//
// Example:
//
//	logger := logging.NewDefault()
//	logger.Named("session").Info("logged in", zap.String("username", name))
package logging
