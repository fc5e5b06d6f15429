// Package monitor implements the I/O monitor described in spec.md §4.C:
// a process-wide, append-only log of per-session traffic. It is a
// pluggable sink with a single method, in the spirit of the
// clog.LogProvider capability interface (rob-gra-go-iecp5/clog): callers
// that don't need tracing never construct one, and sessions hold only a
// non-owning reference to it.
package monitor

import (
	"fmt"
	"os"
	"sync"
)

// Direction identifies which way payload travelled relative to the
// session.
type Direction int

const (
	Out Direction = iota // application -> instrument
	In                    // instrument -> application
)

func (d Direction) String() string {
	if d == Out {
		return "OUT"
	}
	return "IN"
}

// Monitor is the logging capability a Session calls into when its
// tracing attribute is enabled. It must be safe to call from multiple
// sessions sharing one goroutine/thread; concurrent calls from multiple
// threads are not required by spec.md §5, but this implementation
// serializes with a mutex anyway since the cost is negligible and it is
// the only intentionally shared resource in the library.
type Monitor struct {
	mu   sync.Mutex
	w    *os.File
	owns bool
}

// Open opens (creating/appending) the log file at path.
func Open(path string) (*Monitor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("monitor.Open: %w", err)
	}
	return &Monitor{w: f, owns: true}, nil
}

// New wraps an already-open writer (e.g. os.Stdout in a demo, or a file
// the caller owns the lifetime of). Close on a Monitor built this way is
// a no-op.
func New(w *os.File) *Monitor {
	return &Monitor{w: w, owns: false}
}

// Log appends one record: "<session_name> <direction> <payload>",
// optionally followed by a newline. A nil Monitor logs nothing — this
// lets Session hold a possibly-nil *Monitor instead of branching on a
// separate "enabled" flag everywhere.
func (m *Monitor) Log(sessionName string, dir Direction, payload []byte, appendEOL bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Fprintf(m.w, "%s %s ", sessionName, dir)
	m.w.Write(payload)
	if appendEOL {
		m.w.Write([]byte{'\n'})
	}
}

// Close releases the underlying file if Monitor opened it itself.
func (m *Monitor) Close() error {
	if m == nil || !m.owns {
		return nil
	}
	return m.w.Close()
}

// DefaultPath is the default monitor log location from spec.md §6.
const DefaultPath = "/usr/local/etc/opentmlib.monitor"
