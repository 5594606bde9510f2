// Package log provides the structured logging facade used across the
// Control Tower and its command-line tools.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that preserves our existing
// formatter/outputs pipeline. This allows adoption of the slog ecosystem
// while keeping consistent output and behavior across the codebase.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("server"), log.Str("ns", "default"))
//	l.Info("server started", log.Int("port", 8080))
//
// # Configuration
//
// Configure a logger with the NewLogger options: WithLevel, WithFormatter
// (JSONFormatter, the default, or TextFormatter) and WithOutput, which may be
// given more than once (ConsoleOutput, NullOutput, WriterOutput). With no
// WithOutput, NewLogger writes to the console.
//
// # Interop
//
// To integrate with libraries expecting *log.Logger, use ToStdLogger or
// RedirectStdLog. There is no package-level default logger; construct a
// Logger and pass it explicitly.
package log
