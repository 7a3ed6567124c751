// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a named child logger so every line carries its origin
// (governor, runs, spantree, thread, api).
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	gov := governor.New(governor.Options{Logger: logger.Component("governor")})
//	logger.Error("Failed to assemble thread", zap.Error(err))
package logging
