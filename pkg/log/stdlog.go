package log

import (
	stdlog "log"
)

// stdLogWriter adapts a Logger to io.Writer so the standard library's log
// package (and libraries built on it, like Pebble) can be redirected
// through our structured pipeline.
type stdLogWriter struct {
	logger Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	msg := string(p)
	for len(msg) > 0 && (msg[len(msg)-1] == '\n' || msg[len(msg)-1] == '\r') {
		msg = msg[:len(msg)-1]
	}
	w.logger.Info(msg)
	return len(p), nil
}

// RedirectStdLog points the standard library's default logger at logger,
// so calls to log.Print* from dependencies are captured structurally.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{logger: logger.WithComponent("stdlog")})
}

// ToStdLogger returns a *log.Logger backed by logger, for APIs that
// require the standard library type directly.
func ToStdLogger(logger Logger) *stdlog.Logger {
	return stdlog.New(stdLogWriter{logger: logger}, "", 0)
}
