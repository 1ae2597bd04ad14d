// Package log provides structured logging for davsync using zerolog.
//
// Init configures the process-wide logger once at startup; components then
// derive child loggers via WithComponent, WithAccount and WithResource so
// every line they emit carries enough context to trace one account's
// reconcile-download pipeline without grepping across processes.
package log
