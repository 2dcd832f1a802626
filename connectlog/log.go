// Package connectlog provides the minimal logging seam the call paths use
// to report protocol-level problems (an unknown response codec, a
// compressed frame on an identity-encoded stream, a malformed end-stream
// payload) without taking a hard dependency on any one logging library at
// the API boundary.
package connectlog

import (
	"github.com/sirupsen/logrus"
)

// Logger is the narrow interface connectcore logs through. Both levels
// take a printf-style format, matching the rest of this module's error
// construction helpers.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

// Nop is a Logger that discards everything. It's the default when a
// client is constructed without an explicit logger.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

// Logrus adapts a *logrus.Entry (or *logrus.Logger, via its entry) to
// Logger, the pack's most common structured-logging choice.
type Logrus struct {
	entry *logrus.Entry
}

// NewLogrus wraps a *logrus.Logger for use as a connectlog.Logger.
func NewLogrus(l *logrus.Logger) Logrus {
	return Logrus{entry: logrus.NewEntry(l)}
}

// NewLogrusEntry wraps a pre-configured *logrus.Entry, letting callers
// attach fields (e.g. procedure name, peer address) once and reuse the
// result across many calls.
func NewLogrusEntry(e *logrus.Entry) Logrus {
	return Logrus{entry: e}
}

func (l Logrus) Debugf(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l Logrus) Warnf(format string, args ...any) {
	l.entry.Warnf(format, args...)
}
