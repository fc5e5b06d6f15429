// Package opentmlib is the library's top-level convenience entry point
// (SPEC_FULL.md Supplemented Feature #1, grounded on
// original_source/opentmlib.cpp's thin open_session/close_session
// wrapper): resolve a resource string against the default configuration
// store and return a ready session.Session. Applications that need more
// control — an explicit *store.Store, a non-default store path — use
// package resource directly instead.
package opentmlib

import (
	"github.com/stefankopp/opentmlib/monitor"
	"github.com/stefankopp/opentmlib/resource"
	"github.com/stefankopp/opentmlib/session"
	"github.com/stefankopp/opentmlib/store"
)

// config accumulates the functional options passed to Open.
type config struct {
	lockOnOpen    bool
	lockTimeoutMs uint32
	mon           *monitor.Monitor
}

// Option configures Open; each named option mirrors one of the factory's
// three construction parameters (spec.md §4.I).
type Option func(*config)

// WithLockOnOpen requests a device-level lock at session creation
// (VXI-11 only; every other backend fails with locking-not-supported).
func WithLockOnOpen(on bool) Option {
	return func(c *config) { c.lockOnOpen = on }
}

// WithLockTimeout sets how long, in milliseconds, the lock request from
// WithLockOnOpen waits before failing.
func WithLockTimeout(ms uint32) Option {
	return func(c *config) { c.lockTimeoutMs = ms }
}

// WithMonitor attaches an already-open I/O monitor to the new session.
func WithMonitor(m *monitor.Monitor) Option {
	return func(c *config) { c.mon = m }
}

// Open resolves resourceStr (a literal resource string or a configuration
// store alias) and returns a ready session.Session. The configuration
// store at store.DefaultPath is consulted for alias resolution and
// per-alias default attributes if it exists; its absence is not an
// error unless resourceStr turns out to need it.
func Open(resourceStr string, opts ...Option) (*session.Session, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	st, _ := store.Load(store.DefaultPath)

	return resource.Open(resourceStr, st, resource.Options{
		LockOnOpen:    cfg.lockOnOpen,
		LockTimeoutMs: cfg.lockTimeoutMs,
		Monitor:       cfg.mon,
	})
}
