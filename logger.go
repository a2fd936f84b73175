package smtp

import (
	"sync/atomic"

	"blitiri.com.ar/go/log"
)

// Logger is the diagnostic sink a Session writes protocol events to. It is
// intentionally narrow: three printf-style levels, no structured fields,
// matching the "arbitrary diagnostic records" the design calls for without
// committing callers to a particular logging library.
//
// Logger implementations must never be handed a Session's Secret values
// rendered to their underlying text — only Secret.String()'s "REDACTED".
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger discards everything. It is the default for a Session that
// doesn't configure a Logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

var globalDebug atomic.Bool

// SetDebug is a process-wide convenience switch mirroring the mutable
// global debug(level) flag of the client this engine is modeled on. New
// code should prefer passing a per-session Logger; this switch only gates
// BlitiriLogger.Debugf and exists for callers that can't easily thread a
// Logger through (see design note in SPEC_FULL.md §6.1).
func SetDebug(enabled bool) {
	globalDebug.Store(enabled)
}

// Debug reports the current state of the global debug switch.
func Debug() bool {
	return globalDebug.Load()
}

// BlitiriLogger adapts blitiri.com.ar/go/log's package-level logger to the
// Logger interface. Debugf is gated by SetDebug so a session built without
// calling SetDebug(true) stays quiet at debug level, matching the source's
// own "gated by debug(1)" default.
type BlitiriLogger struct{}

func (BlitiriLogger) Debugf(format string, args ...any) {
	if Debug() {
		log.Debugf(format, args...)
	}
}

func (BlitiriLogger) Infof(format string, args ...any) {
	log.Infof(format, args...)
}

func (BlitiriLogger) Errorf(format string, args ...any) {
	log.Errorf(format, args...)
}
