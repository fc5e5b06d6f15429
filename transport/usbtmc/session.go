package usbtmc

import (
	"fmt"
	"os"

	"github.com/stefankopp/opentmlib/errs"
	"github.com/stefankopp/opentmlib/session"
)

// USBTMC attribute ids exchanged over the control channel (spec.md
// §4.G, §6 interface-capability / device-capability / USB488 bitfields).
const (
	attrInterfaceCaps      = 1
	attrDeviceCaps         = 2
	attrUSB488InterfaceCaps = 3
	attrUSB488DeviceCaps   = 4
	attrStatusByte         = 5
)

// IO operation ids, dispatched through cmdIOOperation on the control
// channel, in the order spec.md §4.G lists them: indicator-pulse,
// abort-write, abort-read, clear-out-halt, clear-in-halt, reset, clear,
// trigger, REN control, go-to-local, local-lockout. trigger and REN
// control are distinct USB488 requests and must not share an id.
const (
	opIndicatorPulse = 1
	opAbortWrite     = 2
	opAbortRead      = 3
	opClearOutHalt   = 4
	opClearInHalt    = 5
	opReset          = 6
	opClear          = 7
	opTrigger        = 8
	opRENControl     = 9
	opGoToLocal      = 10
	opLocalLockout   = 11
)

// Session is the USBTMC session.Backend implementation: a data node
// (/dev/usbtmcN) for bulk transfer. Attribute and control-operation
// exchanges go over /dev/usbtmc0, opened fresh for each call rather than
// held on the Session (spec.md §9: the shared minor-0 descriptor "should
// be opened per call ... rather than cached, to avoid cross-session
// interference").
type Session struct {
	data  *os.File
	minor byte
}

// Open opens /dev/usbtmc<minor> for bulk transfer.
func Open(minor byte) (*Session, error) {
	path := fmt.Sprintf("/dev/usbtmc%d", minor)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errs.Wrap(errs.USBTMCOpenDriverError, "usbtmc.Open", err)
	}
	return &Session{data: f, minor: minor}, nil
}

// Close closes the data node.
func (s *Session) Close() error {
	if err := s.data.Close(); err != nil {
		return errs.Wrap(errs.IOIssue, "usbtmc.Close", err)
	}
	return nil
}

// WriteBuffer writes data to the instrument's bulk-OUT endpoint via the
// kernel driver, which handles IEEE 488.2 DEV_DEP_MSG_OUT framing
// internally. The session's set_end_indicator attribute is not consulted
// here: the usbtmc character device sets the EOM bit itself on every
// complete Write(2) call.
func (s *Session) WriteBuffer(data []byte, _ session.WriteOptions) (int, error) {
	n, err := s.data.Write(data)
	if err != nil {
		if abortErr := controlIOOperation(s.minor, opAbortWrite, 0); abortErr != nil {
			return n, errs.Wrap(errs.USBTMCWriteError, "usbtmc.WriteBuffer", abortErr)
		}
		return n, errs.Wrap(errs.USBTMCWriteError, "usbtmc.WriteBuffer", err)
	}
	return n, nil
}

// ReadBuffer reads a single DEV_DEP_MSG_IN response from the bulk-IN
// endpoint. The kernel usbtmc driver already reassembles a complete
// message (honoring the device's EOM bit) into one Read(2) call, so
// unlike the serial/socket backends there is no accumulation buffer to
// manage here. A failed read issues abort-read on the control channel
// before returning, as WriteBuffer does with abort-write; a message
// larger than buf is not detected here.
func (s *Session) ReadBuffer(buf []byte, _ session.ReadOptions) (int, error) {
	n, err := s.data.Read(buf)
	if err != nil {
		if abortErr := controlIOOperation(s.minor, opAbortRead, 0); abortErr != nil {
			return n, errs.Wrap(errs.USBTMCReadError, "usbtmc.ReadBuffer", abortErr)
		}
		return n, errs.Wrap(errs.USBTMCReadError, "usbtmc.ReadBuffer", err)
	}
	return n, nil
}

// SetAttribute handles the USBTMC-specific capability/flag attributes;
// all of them are read-only capability bitfields reported by the
// device, so a set always fails.
func (s *Session) SetAttribute(id session.AttrID, _ uint64) error {
	switch id {
	case session.AttrInterfaceCaps, session.AttrDeviceCaps,
		session.AttrUSB488InterfaceCaps, session.AttrUSB488DeviceCaps:
		return errs.New(errs.BadAttributeValue, "usbtmc.SetAttribute", "capability attributes are read-only")
	default:
		return errs.New(errs.BadAttribute, "usbtmc.SetAttribute", "")
	}
}

// GetAttribute reads a USBTMC capability bitfield, or the IEEE 488.2
// status byte, from the control channel.
func (s *Session) GetAttribute(id session.AttrID) (uint64, error) {
	attrID, err := attributeControlID(id)
	if err != nil {
		return 0, err
	}
	return getControlAttribute(s.minor, attrID)
}

func attributeControlID(id session.AttrID) (uint32, error) {
	switch id {
	case session.AttrInterfaceCaps:
		return attrInterfaceCaps, nil
	case session.AttrDeviceCaps:
		return attrDeviceCaps, nil
	case session.AttrUSB488InterfaceCaps:
		return attrUSB488InterfaceCaps, nil
	case session.AttrUSB488DeviceCaps:
		return attrUSB488DeviceCaps, nil
	case session.AttrStatusByte:
		return attrStatusByte, nil
	default:
		return 0, errs.New(errs.BadAttribute, "usbtmc.GetAttribute", "")
	}
}

// IOOperation dispatches both the transport-independent operations
// (trigger/clear/remote/local/lock/unlock/abort) and the USBTMC-specific
// ones to the control channel (spec.md §4.G, §6).
func (s *Session) IOOperation(op session.OpID, value uint64) error {
	opID, value, err := ioOperationControlID(op, value)
	if err != nil {
		return err
	}
	return controlIOOperation(s.minor, opID, value)
}

// ioOperationControlID maps a session.OpID to the control-channel
// operation id and value to send, kept as a pure function so the
// dispatch table can be unit tested without a real control channel.
func ioOperationControlID(op session.OpID, value uint64) (uint32, uint64, error) {
	switch op {
	case session.OpTrigger:
		return opTrigger, value, nil
	case session.OpClear:
		return opClear, value, nil
	case session.OpRemote:
		return opRENControl, 1, nil
	case session.OpLocal:
		return opGoToLocal, value, nil
	case session.OpLock, session.OpUnlock:
		return 0, 0, errs.New(errs.LockingNotSupported, "usbtmc.IOOperation", "")
	case session.OpAbort:
		return opAbortWrite, value, nil
	case session.OpIndicatorPulse:
		return opIndicatorPulse, value, nil
	case session.OpUSBTMCAbortWrite:
		return opAbortWrite, value, nil
	case session.OpUSBTMCAbortRead:
		return opAbortRead, value, nil
	case session.OpUSBTMCClearOutHalt:
		return opClearOutHalt, value, nil
	case session.OpUSBTMCClearInHalt:
		return opClearInHalt, value, nil
	case session.OpUSBTMCReset:
		return opReset, value, nil
	case session.OpUSBTMCRENControl:
		return opRENControl, value, nil
	case session.OpUSBTMCGoToLocal:
		return opGoToLocal, value, nil
	case session.OpUSBTMCLocalLockout:
		return opLocalLockout, value, nil
	default:
		return 0, 0, errs.New(errs.OperationUnsupported, "usbtmc.IOOperation", "")
	}
}
