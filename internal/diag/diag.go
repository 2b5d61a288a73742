// Package diag collects non-fatal problems encountered while walking a PDB
// container so a caller can inspect them after the fact instead of aborting
// the whole read on the first malformed record.
package diag

import "fmt"

// Severity classifies a diagnostic.
type Severity int

const (
	// Warning marks a record that was skipped or degraded to an opaque
	// fallback but did not invalidate the surrounding stream.
	Warning Severity = iota
	// Error marks a problem serious enough that the caller should treat the
	// surrounding operation as failed, even though the sink itself never
	// aborts iteration.
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// Entry is one collected diagnostic, optionally attached to a stream/module
// and byte offset for later correlation with a hex dump.
type Entry struct {
	Severity Severity
	Stream   string
	Module   string
	Offset   int64
	Message  string
}

func (e Entry) String() string {
	loc := e.Stream
	if e.Module != "" {
		loc = fmt.Sprintf("%s/%s", e.Stream, e.Module)
	}
	if loc == "" {
		return fmt.Sprintf("%s: %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("%s: %s@%#x: %s", e.Severity, loc, e.Offset, e.Message)
}

// Sink is an append-only diagnostic collector. It is not safe for concurrent
// use by multiple goroutines; callers needing that should guard it
// themselves, the same way the rest of this module's per-container state
// assumes single-threaded cooperative access.
type Sink struct {
	entries []Entry
	cap     int
}

// NewSink creates a Sink. A non-positive cap means unbounded.
func NewSink(cap int) *Sink {
	return &Sink{cap: cap}
}

// Warnf records a warning.
func (s *Sink) Warnf(stream string, offset int64, format string, args ...any) {
	s.add(Warning, stream, "", offset, format, args...)
}

// Errorf records an error.
func (s *Sink) Errorf(stream string, offset int64, format string, args ...any) {
	s.add(Error, stream, "", offset, format, args...)
}

// WarnModule records a warning attached to a module stream.
func (s *Sink) WarnModule(stream, module string, offset int64, format string, args ...any) {
	s.add(Warning, stream, module, offset, format, args...)
}

func (s *Sink) add(sev Severity, stream, module string, offset int64, format string, args ...any) {
	s.entries = append(s.entries, Entry{
		Severity: sev,
		Stream:   stream,
		Module:   module,
		Offset:   offset,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Full reports whether the sink has reached its capacity; a caller doing
// cooperative cancellation should stop producing diagnostics (but may keep
// parsing) once this returns true.
func (s *Sink) Full() bool {
	return s.cap > 0 && len(s.entries) >= s.cap
}

// Entries returns all collected diagnostics in insertion order.
func (s *Sink) Entries() []Entry {
	return s.entries
}

// HasErrors reports whether any Error-severity diagnostic was recorded.
func (s *Sink) HasErrors() bool {
	for _, e := range s.entries {
		if e.Severity == Error {
			return true
		}
	}
	return false
}

// Len returns the number of collected diagnostics.
func (s *Sink) Len() int {
	return len(s.entries)
}
