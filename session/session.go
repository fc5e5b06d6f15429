// Package session implements the session-framing layer described in
// spec.md §4.D: the shared line/int/binblock/SCPI operations layered on
// top of one polymorphic Backend capability. The four backend
// implementations (transport/serial, transport/socket, transport/usbtmc,
// transport/vxi11) each satisfy Backend; everything else in this package
// is written once and shared, mirroring how original_source/io_session.*
// splits a C++ base class into pure-virtual primitives plus inherited
// higher-level methods (spec.md §9, "Inheritance → capability set").
package session

import (
	"github.com/stefankopp/opentmlib/errs"
	"github.com/stefankopp/opentmlib/monitor"
)

// AttrID identifies a session attribute (spec.md §3, §6).
type AttrID int

const (
	// Base attributes, recognized by every transport.
	AttrStringSize AttrID = iota
	AttrThrowOnSCPIError
	AttrTracing
	AttrEOLChar
	AttrTimeout
	AttrTermCharEnable
	AttrTermChar
	AttrWaitLock
	AttrSetEndIndicator
	AttrStatusByte

	// Serial-specific.
	AttrSerialBaudrate
	AttrSerialSize
	AttrSerialParity
	AttrSerialStopBits
	AttrSerialRTSCTS
	AttrSerialXONXOFF

	// USBTMC-specific.
	AttrInterfaceCaps
	AttrDeviceCaps
	AttrUSB488InterfaceCaps
	AttrUSB488DeviceCaps

	// VXI-11-specific.
	AttrMaxRecvSize
	AttrLastError
)

// OpID identifies a transport-independent control operation (spec.md §6).
type OpID int

const (
	OpTrigger OpID = iota
	OpClear
	OpRemote
	OpLocal
	OpLock
	OpUnlock
	OpAbort

	// USBTMC-specific operations.
	OpIndicatorPulse
	OpUSBTMCAbortWrite
	OpUSBTMCAbortRead
	OpUSBTMCClearOutHalt
	OpUSBTMCClearInHalt
	OpUSBTMCReset
	OpUSBTMCRENControl
	OpUSBTMCGoToLocal
	OpUSBTMCLocalLockout
)

// DefaultStringSize is the default buffer-size hint for ReadString.
const DefaultStringSize = 200

// DefaultTimeoutSeconds is the hard default timeout applied by the
// factory when no configuration store option overrides it (spec.md §4.I).
const DefaultTimeoutSeconds = 5

// DefaultEOLChar / DefaultTermChar are the hard defaults from spec.md §4.I.
const (
	DefaultEOLChar  byte = '\n'
	DefaultTermChar byte = '\n'
)

// ReadOptions carries the session-level framing state a backend needs to
// honor on every read: termination-character handling and the timeout.
// Session is the sole owner of this state (spec.md §3); it is threaded
// into the backend explicitly on each call rather than mirrored into
// backend-private fields, since Go has no protected base-class storage
// for a C++-style inherited attribute to live in.
type ReadOptions struct {
	TermCharEnable bool
	TermChar       byte
	TimeoutSeconds uint64
}

// WriteOptions carries the session-level framing state a backend needs
// to honor on a write: the VXI-11 backend in particular needs the
// timeout (for io_timeout/lock_timeout), wait-lock and set-end-indicator
// attributes to build each device_write call (spec.md §4.H).
type WriteOptions struct {
	TimeoutSeconds  uint64
	WaitLock        bool
	SetEndIndicator bool
}

// Backend is the polymorphic capability every transport implements: four
// primitives (write, read, attribute get/set, control operation). The
// resource factory (package resource) constructs one of these and wraps
// it in a *Session; application code never sees the Backend directly.
type Backend interface {
	// WriteBuffer writes all of data or fails; it never short-writes.
	WriteBuffer(data []byte, opts WriteOptions) (int, error)
	// ReadBuffer reads up to len(buf) bytes, honoring termination-character
	// framing and the session timeout; it returns the count actually read.
	ReadBuffer(buf []byte, opts ReadOptions) (int, error)
	// SetAttribute/GetAttribute handle backend-specific attributes only;
	// an unrecognized id must fail with errs.BadAttribute so Session can
	// fall back to (or precede with) base-attribute handling.
	SetAttribute(id AttrID, value uint64) error
	GetAttribute(id AttrID) (uint64, error)
	// IOOperation performs a transport-independent control operation.
	IOOperation(op OpID, value uint64) error
	// Close releases the backend's endpoint (fd, socket, RPC client pair).
	Close() error
}

// Session is the fundamental entity applications interact with: one
// exclusively-owned open transport endpoint, plus the shared framing
// state from spec.md §3/§4.D. Concurrent calls on the same Session from
// multiple goroutines are undefined behavior (spec.md §5) — callers must
// serialize their own access.
type Session struct {
	backend Backend
	name    string
	mon     *monitor.Monitor

	stringSize       uint64
	throwOnSCPIError bool
	tracing          bool
	eolChar          byte
	timeoutSeconds   uint64
	termCharEnable   bool
	termChar         byte
	waitLock         bool
	setEndIndicator  bool

	lastSCPIErrors []string
}

// New wraps backend in a Session named name (the resolved instrument
// name: the alias if one was used, else the original resource string —
// spec.md §4.I step 4). mon may be nil.
func New(backend Backend, name string, mon *monitor.Monitor) *Session {
	return &Session{
		backend:        backend,
		name:           name,
		mon:            mon,
		stringSize:     DefaultStringSize,
		eolChar:        DefaultEOLChar,
		timeoutSeconds: DefaultTimeoutSeconds,
		termCharEnable: true,
		termChar:       DefaultTermChar,
	}
}

// Name returns the resolved instrument name this session was tagged
// with by the factory.
func (s *Session) Name() string { return s.name }

// Close releases the backend's endpoint.
func (s *Session) Close() error {
	return s.backend.Close()
}

// setBaseAttribute handles the attributes recognized by every transport.
// It returns an *errs.Error with Kind errs.BadAttribute for anything it
// doesn't recognize, so callers (SetAttribute) can fall through to the
// backend — the Go equivalent of the C++ base class's try/catch dispatch
// described in spec.md §9.
func (s *Session) setBaseAttribute(id AttrID, value uint64) error {
	switch id {
	case AttrStringSize:
		s.stringSize = value
	case AttrThrowOnSCPIError:
		s.throwOnSCPIError = value != 0
	case AttrTracing:
		s.tracing = value != 0
	case AttrEOLChar:
		if value > 0xff {
			return errs.New(errs.BadAttributeValue, "session.SetAttribute", "eol-char must fit in one byte")
		}
		s.eolChar = byte(value)
	case AttrTimeout:
		s.timeoutSeconds = value
	case AttrTermCharEnable:
		s.termCharEnable = value != 0
	case AttrTermChar:
		if value > 0xff {
			return errs.New(errs.BadAttributeValue, "session.SetAttribute", "term-character must fit in one byte")
		}
		s.termChar = byte(value)
	case AttrWaitLock:
		s.waitLock = value != 0
	case AttrSetEndIndicator:
		s.setEndIndicator = value != 0
	case AttrStatusByte:
		// Read-only.
		return errs.New(errs.BadAttributeValue, "session.SetAttribute", "status-byte is read-only")
	default:
		return errs.New(errs.BadAttribute, "session.SetAttribute", "")
	}
	return nil
}

func (s *Session) getBaseAttribute(id AttrID) (uint64, error) {
	switch id {
	case AttrStringSize:
		return s.stringSize, nil
	case AttrThrowOnSCPIError:
		return boolToUint(s.throwOnSCPIError), nil
	case AttrTracing:
		return boolToUint(s.tracing), nil
	case AttrEOLChar:
		return uint64(s.eolChar), nil
	case AttrTimeout:
		return s.timeoutSeconds, nil
	case AttrTermCharEnable:
		return boolToUint(s.termCharEnable), nil
	case AttrTermChar:
		return uint64(s.termChar), nil
	case AttrWaitLock:
		return boolToUint(s.waitLock), nil
	case AttrSetEndIndicator:
		return boolToUint(s.setEndIndicator), nil
	default:
		return 0, errs.New(errs.BadAttribute, "session.GetAttribute", "")
	}
}

// SetAttribute mutates a session attribute. Base attributes are handled
// here; anything else is delegated to the backend, which may itself fail
// with errs.BadAttribute if the id is unrecognized by any layer.
func (s *Session) SetAttribute(id AttrID, value uint64) error {
	err := s.setBaseAttribute(id, value)
	if err == nil {
		return nil
	}
	if !errs.Is(err, errs.BadAttribute) {
		return err
	}
	return s.backend.SetAttribute(id, value)
}

// GetAttribute reads a session attribute, base attributes first, then
// the backend (e.g. status-byte, max-recv-size, capability bitfields).
func (s *Session) GetAttribute(id AttrID) (uint64, error) {
	v, err := s.getBaseAttribute(id)
	if err == nil {
		return v, nil
	}
	if !errs.Is(err, errs.BadAttribute) {
		return 0, err
	}
	return s.backend.GetAttribute(id)
}

func (s *Session) readOptions() ReadOptions {
	return ReadOptions{
		TermCharEnable: s.termCharEnable,
		TermChar:       s.termChar,
		TimeoutSeconds: s.timeoutSeconds,
	}
}

func (s *Session) writeOptions() WriteOptions {
	return WriteOptions{
		TimeoutSeconds:  s.timeoutSeconds,
		WaitLock:        s.waitLock,
		SetEndIndicator: s.setEndIndicator,
	}
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
