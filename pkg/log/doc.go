// Package log provides structured logging for the InLock fabric built on
// zerolog.
//
// A single global logger is initialized once at process startup via Init and
// shared by every component. Console output (human-readable, RFC3339
// timestamps) is the default; JSON output is available for log aggregation.
//
// Child loggers carry contextual fields so that replica, asset and event
// identifiers appear consistently across components:
//
//	logger := log.WithComponent("ledger")
//	logger.Info().Str("asset_id", assetID).Msg("asset registered")
//
// The package-level helpers (Info, Warn, Error, ...) cover the common case
// of a bare message without fields.
package log
