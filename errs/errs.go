// Package errs defines the single unified error kind used across every
// opentmlib package. All failures in the library are reported as an
// *errs.Error carrying one of the Kind constants below; callers recover
// based on Kind rather than string-matching messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable, comparable error identifier. Kind is also a valid
// error on its own (useful for errors.Is-style comparisons against a
// bare kind), but operations normally return an *Error that wraps it
// with operation/message/cause context.
type Kind int

const (
	Unknown Kind = iota

	// Argument errors (§4.A "Argument" group).
	BadAttribute
	BadAttributeValue
	BadOperation
	BadOperationValue
	BadResourceString
	Format

	// Protocol framing.
	BinblockHeader
	BinblockSize
	BufferOverflow

	// Timing.
	Timeout
	TransactionAborted

	// Locking.
	DeviceLocked
	NoLockHeld
	LockingNotSupported

	// Generic transport / resource failures.
	Memory
	IOIssue
	OperationUnsupported

	// SCPI.
	SCPIError
	SCPIUnableToClear

	// Configuration store (§4.A config-store-*).
	ConfigBadAlias
	ConfigBadValue
	ConfigFileSize
	ConfigBadOption
	ConfigBadSection

	// Socket backend sub-kinds.
	SocketConnectFailed
	SocketWriteFailed
	SocketReadFailed
	SocketBadPort

	// Serial backend sub-kinds.
	SerialOpenFailed
	SerialTermiosFailed
	SerialRequestTooMuch
	SerialBadBaudrate
	SerialBadParity
	SerialBadStopBits
	SerialBadFlow

	// USBTMC backend sub-kinds.
	USBTMCOpenDriverError
	USBTMCReadError
	USBTMCWriteError
	USBTMCReadLessThanExpected
	USBTMCDeviceNotFound
	USBTMCMinorUnused

	// VXI-11 backend sub-kinds (mapped from the server error codes, §4.H).
	VXI11Syntax
	VXI11DeviceNotAccessible
	VXI11InvalidLinkID
	VXI11Parameter
	VXI11ChannelNotEstablished
	VXI11OperationUnsupported
	VXI11OutOfResources
	VXI11DeviceLocked
	VXI11NoLockHeld
	VXI11IOTimeout
	VXI11IOIssue
	VXI11InvalidAddress
	VXI11TransactionAborted
	VXI11ChannelAlreadyEstablished
	VXI11Read
	VXI11Write
	VXI11Lock
	VXI11CreateLinkFailed
	VXI11DestroyLinkFailed
)

// codes assigns each Kind a stable numeric code, grouped by backend the
// way original_source/usbtmc_session.hpp groups USBTMC_SESSION_ERRORS in
// the 0x4100 range. Ranges: core 0x1000s, config-store 0x2000s, socket
// 0x3000s, serial 0x4000s, usbtmc 0x5000s, vxi11 0x6000s.
var codes = map[Kind]int{
	BadAttribute:         0x1000,
	BadAttributeValue:    0x1001,
	BadOperation:         0x1002,
	BadOperationValue:    0x1003,
	BadResourceString:    0x1004,
	Format:               0x1005,
	BinblockHeader:       0x1006,
	BinblockSize:         0x1007,
	BufferOverflow:       0x1008,
	Timeout:              0x1009,
	TransactionAborted:   0x100a,
	DeviceLocked:         0x100b,
	NoLockHeld:           0x100c,
	LockingNotSupported:  0x100d,
	Memory:               0x100e,
	IOIssue:              0x100f,
	OperationUnsupported: 0x1010,
	SCPIError:            0x1011,
	SCPIUnableToClear:    0x1012,

	ConfigBadAlias:   0x2000,
	ConfigBadValue:   0x2001,
	ConfigFileSize:   0x2002,
	ConfigBadOption:  0x2003,
	ConfigBadSection: 0x2004,

	SocketConnectFailed: 0x3000,
	SocketWriteFailed:   0x3001,
	SocketReadFailed:    0x3002,
	SocketBadPort:       0x3003,

	SerialOpenFailed:      0x4000,
	SerialTermiosFailed:   0x4001,
	SerialRequestTooMuch:  0x4002,
	SerialBadBaudrate:     0x4003,
	SerialBadParity:       0x4004,
	SerialBadStopBits:     0x4005,
	SerialBadFlow:         0x4006,

	USBTMCOpenDriverError:      0x5000,
	USBTMCReadError:            0x5001,
	USBTMCWriteError:           0x5002,
	USBTMCReadLessThanExpected: 0x5003,
	USBTMCDeviceNotFound:       0x5004,
	USBTMCMinorUnused:          0x5005,

	VXI11Syntax:                    0x6001,
	VXI11DeviceNotAccessible:       0x6003,
	VXI11InvalidLinkID:             0x6004,
	VXI11Parameter:                 0x6005,
	VXI11ChannelNotEstablished:     0x6006,
	VXI11OperationUnsupported:      0x6008,
	VXI11OutOfResources:            0x6009,
	VXI11DeviceLocked:              0x600b,
	VXI11NoLockHeld:                0x600c,
	VXI11IOTimeout:                 0x600f,
	VXI11IOIssue:                   0x6011,
	VXI11InvalidAddress:            0x6015,
	VXI11TransactionAborted:        0x6017,
	VXI11ChannelAlreadyEstablished: 0x601d,
	VXI11Read:                      0x6020,
	VXI11Write:                     0x6021,
	VXI11Lock:                      0x6022,
	VXI11CreateLinkFailed:          0x6023,
	VXI11DestroyLinkFailed:         0x6024,
}

var messages = map[Kind]string{
	BadAttribute:         "unrecognized attribute",
	BadAttributeValue:    "attribute value out of range",
	BadOperation:         "unrecognized operation",
	BadOperationValue:    "operation value out of range",
	BadResourceString:    "malformed resource string",
	Format:               "value is not in the expected format",
	BinblockHeader:       "malformed binary block header",
	BinblockSize:         "binary block length exceeds caller's buffer",
	BufferOverflow:       "read reached max bytes without a terminator",
	Timeout:              "operation timed out",
	TransactionAborted:   "transaction aborted",
	DeviceLocked:         "device is locked by another session",
	NoLockHeld:           "session does not hold the lock",
	LockingNotSupported:  "backend does not support locking",
	Memory:               "out of memory",
	IOIssue:              "I/O error",
	OperationUnsupported: "operation not supported",
	SCPIError:            "instrument reported one or more SCPI errors",
	SCPIUnableToClear:    "SCPI error queue did not drain within max_cycles",

	ConfigBadAlias:   "alias not found in configuration store",
	ConfigBadValue:   "option or value must not be empty",
	ConfigFileSize:   "configuration file exceeds maximum size",
	ConfigBadOption:  "option not found",
	ConfigBadSection: "section not found",

	SocketConnectFailed: "TCP connect failed",
	SocketWriteFailed:   "TCP write failed",
	SocketReadFailed:    "TCP read failed",
	SocketBadPort:       "port out of range",

	SerialOpenFailed:     "failed to open serial device",
	SerialTermiosFailed:  "failed to configure termios",
	SerialRequestTooMuch: "requested read size exceeds accumulation buffer",
	SerialBadBaudrate:    "unsupported baud rate",
	SerialBadParity:      "unsupported parity setting",
	SerialBadStopBits:    "unsupported stop-bit setting",
	SerialBadFlow:        "unsupported flow-control setting",

	USBTMCOpenDriverError:      "failed to open USBTMC control device",
	USBTMCReadError:            "USBTMC read failed",
	USBTMCWriteError:           "USBTMC write failed",
	USBTMCReadLessThanExpected: "USBTMC control reply shorter than expected",
	USBTMCDeviceNotFound:       "no USBTMC device matched vendor/product/serial",
	USBTMCMinorUnused:          "minor number not in use",

	VXI11Syntax:                    "vxi11: syntax error",
	VXI11DeviceNotAccessible:       "vxi11: device not accessible",
	VXI11InvalidLinkID:             "vxi11: invalid link id",
	VXI11Parameter:                 "vxi11: invalid parameter",
	VXI11ChannelNotEstablished:     "vxi11: channel not established",
	VXI11OperationUnsupported:      "vxi11: operation not supported",
	VXI11OutOfResources:            "vxi11: out of resources",
	VXI11DeviceLocked:              "vxi11: device already locked",
	VXI11NoLockHeld:                "vxi11: no lock held",
	VXI11IOTimeout:                 "vxi11: I/O timeout",
	VXI11IOIssue:                   "vxi11: I/O error",
	VXI11InvalidAddress:            "vxi11: invalid address",
	VXI11TransactionAborted:        "vxi11: transaction aborted",
	VXI11ChannelAlreadyEstablished: "vxi11: channel already established",
	VXI11Read:                      "vxi11: device_read failed",
	VXI11Write:                     "vxi11: device_write failed",
	VXI11Lock:                      "vxi11: device_lock failed",
	VXI11CreateLinkFailed:          "vxi11: create_link failed",
	VXI11DestroyLinkFailed:         "vxi11: destroy_link failed",
}

// Code returns the stable numeric code for k, or 0 if k is Unknown or
// unregistered.
func (k Kind) Code() int { return codes[k] }

// String renders the kind's short human message. Kinds with no registered
// message render as "unknown error".
func (k Kind) String() string {
	if m, ok := messages[k]; ok {
		return m
	}
	return "unknown error"
}

func (k Kind) Error() string { return k.String() }

// Error wraps a Kind with operation context, a free-form message and an
// optional underlying cause (e.g. an errno from the OS, or an I/O error
// from net/os). It implements Unwrap so errors.Is/As compose normally.
type Error struct {
	Kind Kind
	Op   string // e.g. "serial.ReadBuffer", "vxi11.CreateLink"
	Msg  string // additional detail; may be empty
	Err  error  // underlying cause; may be nil
}

func (e *Error) Error() string {
	base := e.Kind.String()
	if e.Op != "" {
		base = e.Op + ": " + base
	}
	if e.Msg != "" {
		base += ": " + e.Msg
	}
	if e.Err != nil {
		base += ": " + e.Err.Error()
	}
	return base
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, SomeKind) work against an *Error without the
// caller needing to unwrap it manually.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	return false
}

// New builds an *Error with no cause.
func New(kind Kind, op string, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap builds an *Error carrying cause as the underlying error.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Wrapf is Wrap with a formatted message alongside the cause.
func Wrapf(kind Kind, op string, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the Kind from err, defaulting to Unknown. Mirrors the
// errcode.Of helper pattern: check for our own *Error first, then a
// bare Kind, then give up.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if k, ok := err.(Kind); ok {
		return k
	}
	return Unknown
}

// Is reports whether err's kind equals k, regardless of whether err is a
// bare Kind or a wrapped *Error.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
