package molviz

import "fmt"

// Logger interface for logging operations, injectable into the molviz package.
type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (n *NoOpLogger) Debugf(format string, v ...any) {}
func (n *NoOpLogger) Infof(format string, v ...any)  {}
func (n *NoOpLogger) Warnf(format string, v ...any)  {}
func (n *NoOpLogger) Errorf(format string, v ...any) {}

// NewNoOpLogger creates a no-op logger
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// sessionLogger prefixes every line with the owning session ID.
type sessionLogger struct {
	inner  Logger
	prefix string
}

func withSession(l Logger, id SessionID) Logger {
	if l == nil {
		l = NewNoOpLogger()
	}
	return &sessionLogger{inner: l, prefix: fmt.Sprintf("session=%s ", id)}
}

func (s *sessionLogger) Debugf(format string, v ...any) { s.inner.Debugf(s.prefix+format, v...) }
func (s *sessionLogger) Infof(format string, v ...any)  { s.inner.Infof(s.prefix+format, v...) }
func (s *sessionLogger) Warnf(format string, v ...any)  { s.inner.Warnf(s.prefix+format, v...) }
func (s *sessionLogger) Errorf(format string, v ...any) { s.inner.Errorf(s.prefix+format, v...) }
