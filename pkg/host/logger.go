package host

import (
	"fmt"
	"log/slog"
)

// Logger receives boundary diagnostics. Diagnostic output must never go
// to stdout: the stdio bridge reserves stdout for the wire protocol.
type Logger interface {
	ErrorPrintf(format string, args ...any)
	WarnPrintf(format string, args ...any)
	InfoPrintf(format string, args ...any)
	DebugPrintf(format string, args ...any)
}

// DefaultLogger returns a Logger over the process-wide slog default.
func DefaultLogger() Logger {
	return SlogLogger(slog.Default())
}

// SlogLogger wraps a slog.Logger as a boundary Logger. Messages are
// prefixed with "host: ".
func SlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) ErrorPrintf(format string, args ...any) {
	s.l.Error("host: " + fmt.Sprintf(format, args...))
}

func (s *slogLogger) WarnPrintf(format string, args ...any) {
	s.l.Warn("host: " + fmt.Sprintf(format, args...))
}

func (s *slogLogger) InfoPrintf(format string, args ...any) {
	s.l.Info("host: " + fmt.Sprintf(format, args...))
}

func (s *slogLogger) DebugPrintf(format string, args ...any) {
	s.l.Debug("host: " + fmt.Sprintf(format, args...))
}
