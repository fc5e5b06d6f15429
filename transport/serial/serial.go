//go:build linux

// Package serial implements the RS-232 session.Backend (spec.md §4.E):
// raw-mode termios configuration on open, termination-character framed
// reads through a fixed 1 KiB accumulation buffer, and a per-session
// timeout applied as a readiness check before each blocking read.
//
// Raw ioctl access to termios is the one place this module touches the
// kernel ABI directly; rather than hand-rolling ioctl request numbers
// the way internal/driver/device/ioctl.go does for its own invented
// protocol, this package uses golang.org/x/sys/unix's termios helpers,
// which already encode the (stable, well-known) TCGETS/TCSETS ABI.
package serial

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stefankopp/opentmlib/errs"
	"github.com/stefankopp/opentmlib/session"
)

// AccumBufSize is the fixed per-session accumulation buffer size used
// for termination-character framed reads (spec.md §4.E).
const AccumBufSize = 1024

// Parity values for session.AttrSerialParity.
const (
	ParityNone = 0
	ParityEven = 1
	ParityOdd  = 2
)

// Flow values for session.AttrSerialRTSCTS / AttrSerialXONXOFF.
const (
	FlowOff = 0
	FlowOn  = 1
)

var validBaudrates = map[uint64]uint32{
	50: unix.B50, 75: unix.B75, 110: unix.B110, 134: unix.B134,
	150: unix.B150, 200: unix.B200, 300: unix.B300, 600: unix.B600,
	1200: unix.B1200, 1800: unix.B1800, 2400: unix.B2400, 4800: unix.B4800,
	9600: unix.B9600, 19200: unix.B19200, 38400: unix.B38400,
	57600: unix.B57600, 115200: unix.B115200,
}

// Session is the serial session.Backend implementation.
type Session struct {
	file *os.File
	fd   int

	saved unix.Termios // termios at open time, restored on Close

	baud     uint64
	size     uint64
	parity   uint64
	stopbits uint64
	rtscts   uint64
	xonxoff  uint64

	accum []byte // bytes buffered but not yet returned to a caller
}

// Open opens /dev/ttyS<n> and forces it into raw mode, saving the
// pre-existing termios so Close can restore it (spec.md §4.E).
func Open(port int) (*Session, error) {
	path := fmt.Sprintf("/dev/ttyS%d", port)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_NOCTTY, 0)
	if err != nil {
		return nil, errs.Wrap(errs.SerialOpenFailed, "serial.Open", err)
	}
	fd := int(f.Fd())

	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.SerialTermiosFailed, "serial.Open", err)
	}

	raw := *saved
	raw.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	raw.Oflag &^= unix.OPOST
	raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cflag &^= unix.CSIZE | unix.PARENB
	raw.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		f.Close()
		return nil, errs.Wrap(errs.SerialTermiosFailed, "serial.Open", err)
	}

	return &Session{
		file:     f,
		fd:       fd,
		saved:    *saved,
		baud:     9600,
		size:     8,
		parity:   ParityNone,
		stopbits: 1,
		rtscts:   FlowOff,
		xonxoff:  FlowOff,
	}, nil
}

// Close restores the saved termios settings and closes the device.
func (s *Session) Close() error {
	_ = unix.IoctlSetTermios(s.fd, unix.TCSETS, &s.saved)
	return s.file.Close()
}

// WriteBuffer writes all of data, failing with errs.SerialOpenFailed's
// sibling io-issue kind on any short write.
func (s *Session) WriteBuffer(data []byte, _ session.WriteOptions) (int, error) {
	n, err := s.file.Write(data)
	if err != nil {
		return n, errs.Wrap(errs.IOIssue, "serial.WriteBuffer", err)
	}
	return n, nil
}

// ReadBuffer reads up to len(buf) bytes. With termination-character
// framing disabled it is a direct passthrough read; with it enabled, it
// scans the accumulation buffer for the terminator before doing any new
// I/O, and loops accumulating new bytes (bounded by a readiness check
// honoring the session timeout) until the terminator is seen or the
// caller's buffer fills without one (errs.BufferOverflow).
func (s *Session) ReadBuffer(buf []byte, opts session.ReadOptions) (int, error) {
	if !opts.TermCharEnable {
		return s.readRaw(buf, opts.TimeoutSeconds)
	}

	if len(buf) > AccumBufSize {
		return 0, errs.New(errs.SerialRequestTooMuch, "serial.ReadBuffer", "max exceeds accumulation buffer size")
	}

	for {
		if idx := scanForTermChar(s.accum, opts.TermChar); idx >= 0 {
			n := idx + 1
			if n > len(buf) {
				return 0, errs.New(errs.BufferOverflow, "serial.ReadBuffer", "")
			}
			copy(buf, s.accum[:n])
			s.accum = s.accum[n:]
			return n, nil
		}
		if len(s.accum) >= len(buf) {
			return 0, errs.New(errs.BufferOverflow, "serial.ReadBuffer", "")
		}

		chunk := make([]byte, len(buf)-len(s.accum))
		n, err := s.readRaw(chunk, opts.TimeoutSeconds)
		if err != nil {
			return 0, err
		}
		s.accum = append(s.accum, chunk[:n]...)
	}
}

// scanForTermChar returns the index of term within buf, or -1.
func scanForTermChar(buf []byte, term byte) int {
	for i, b := range buf {
		if b == term {
			return i
		}
	}
	return -1
}

// readRaw waits for the fd to become readable (honoring timeoutSeconds;
// 0 means wait forever) then performs one blocking read.
func (s *Session) readRaw(buf []byte, timeoutSeconds uint64) (int, error) {
	if timeoutSeconds != 0 {
		ready, err := waitReadable(s.fd, time.Duration(timeoutSeconds)*time.Second)
		if err != nil {
			return 0, errs.Wrap(errs.IOIssue, "serial.ReadBuffer", err)
		}
		if !ready {
			return 0, errs.New(errs.Timeout, "serial.ReadBuffer", "")
		}
	}
	n, err := s.file.Read(buf)
	if err != nil {
		return n, errs.Wrap(errs.IOIssue, "serial.ReadBuffer", err)
	}
	return n, nil
}

func waitReadable(fd int, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetAttribute handles the serial-specific attributes (spec.md §6); base
// attributes are handled by session.Session and never reach here.
func (s *Session) SetAttribute(id session.AttrID, value uint64) error {
	switch id {
	case session.AttrSerialBaudrate:
		cflag, ok := validBaudrates[value]
		if !ok {
			return errs.New(errs.SerialBadBaudrate, "serial.SetAttribute", "")
		}
		if err := s.applyBaud(cflag); err != nil {
			return err
		}
		s.baud = value
	case session.AttrSerialSize:
		if value < 5 || value > 8 {
			return errs.New(errs.BadAttributeValue, "serial.SetAttribute", "character size must be 5..8")
		}
		if err := s.applySize(value); err != nil {
			return err
		}
		s.size = value
	case session.AttrSerialParity:
		if value > ParityOdd {
			return errs.New(errs.SerialBadParity, "serial.SetAttribute", "")
		}
		if err := s.applyParity(value); err != nil {
			return err
		}
		s.parity = value
	case session.AttrSerialStopBits:
		if value != 1 && value != 2 {
			return errs.New(errs.SerialBadStopBits, "serial.SetAttribute", "")
		}
		if err := s.applyStopBits(value); err != nil {
			return err
		}
		s.stopbits = value
	case session.AttrSerialRTSCTS:
		if value != FlowOff && value != FlowOn {
			return errs.New(errs.SerialBadFlow, "serial.SetAttribute", "")
		}
		if err := s.applyRTSCTS(value); err != nil {
			return err
		}
		s.rtscts = value
	case session.AttrSerialXONXOFF:
		if value != FlowOff && value != FlowOn {
			return errs.New(errs.SerialBadFlow, "serial.SetAttribute", "")
		}
		if err := s.applyXONXOFF(value); err != nil {
			return err
		}
		s.xonxoff = value
	default:
		return errs.New(errs.BadAttribute, "serial.SetAttribute", "")
	}
	return nil
}

// GetAttribute handles the serial-specific attributes.
func (s *Session) GetAttribute(id session.AttrID) (uint64, error) {
	switch id {
	case session.AttrSerialBaudrate:
		return s.baud, nil
	case session.AttrSerialSize:
		return s.size, nil
	case session.AttrSerialParity:
		return s.parity, nil
	case session.AttrSerialStopBits:
		return s.stopbits, nil
	case session.AttrSerialRTSCTS:
		return s.rtscts, nil
	case session.AttrSerialXONXOFF:
		return s.xonxoff, nil
	default:
		return 0, errs.New(errs.BadAttribute, "serial.GetAttribute", "")
	}
}

// IOOperation: serial has no transport-specific operations; trigger,
// clear, remote and local are meaningless over a bare RS-232 line
// (there is no command channel distinct from the data stream), and
// locking is not supported (spec.md §5).
func (s *Session) IOOperation(op session.OpID, _ uint64) error {
	switch op {
	case session.OpLock, session.OpUnlock:
		return errs.New(errs.LockingNotSupported, "serial.IOOperation", "")
	default:
		return errs.New(errs.OperationUnsupported, "serial.IOOperation", "")
	}
}

func (s *Session) termios() (*unix.Termios, error) {
	return unix.IoctlGetTermios(s.fd, unix.TCGETS)
}

func (s *Session) setTermios(t *unix.Termios) error {
	if err := unix.IoctlSetTermios(s.fd, unix.TCSETS, t); err != nil {
		return errs.Wrap(errs.SerialTermiosFailed, "serial", err)
	}
	return nil
}

// applyBaud sets the line rate. bRate is one of the unix.Bxxxx
// constants, which are CBAUD bitmask values for Cflag, not raw speed
// values for Ispeed/Ospeed — so the existing CBAUD bits are cleared and
// bRate is OR'd in, rather than assigning it directly to the speed
// fields.
func (s *Session) applyBaud(bRate uint32) error {
	t, err := s.termios()
	if err != nil {
		return errs.Wrap(errs.SerialTermiosFailed, "serial.applyBaud", err)
	}
	t.Cflag &^= unix.CBAUD
	t.Cflag |= bRate
	return s.setTermios(t)
}

func (s *Session) applySize(bits uint64) error {
	t, err := s.termios()
	if err != nil {
		return errs.Wrap(errs.SerialTermiosFailed, "serial.applySize", err)
	}
	t.Cflag &^= unix.CSIZE
	switch bits {
	case 5:
		t.Cflag |= unix.CS5
	case 6:
		t.Cflag |= unix.CS6
	case 7:
		t.Cflag |= unix.CS7
	default:
		t.Cflag |= unix.CS8
	}
	return s.setTermios(t)
}

func (s *Session) applyParity(p uint64) error {
	t, err := s.termios()
	if err != nil {
		return errs.Wrap(errs.SerialTermiosFailed, "serial.applyParity", err)
	}
	t.Cflag &^= unix.PARENB | unix.PARODD
	if p == ParityEven {
		t.Cflag |= unix.PARENB
	} else if p == ParityOdd {
		t.Cflag |= unix.PARENB | unix.PARODD
	}
	return s.setTermios(t)
}

func (s *Session) applyStopBits(bits uint64) error {
	t, err := s.termios()
	if err != nil {
		return errs.Wrap(errs.SerialTermiosFailed, "serial.applyStopBits", err)
	}
	if bits == 2 {
		t.Cflag |= unix.CSTOPB
	} else {
		t.Cflag &^= unix.CSTOPB
	}
	return s.setTermios(t)
}

func (s *Session) applyRTSCTS(on uint64) error {
	t, err := s.termios()
	if err != nil {
		return errs.Wrap(errs.SerialTermiosFailed, "serial.applyRTSCTS", err)
	}
	if on == FlowOn {
		t.Cflag |= unix.CRTSCTS
	} else {
		t.Cflag &^= unix.CRTSCTS
	}
	return s.setTermios(t)
}

func (s *Session) applyXONXOFF(on uint64) error {
	t, err := s.termios()
	if err != nil {
		return errs.Wrap(errs.SerialTermiosFailed, "serial.applyXONXOFF", err)
	}
	if on == FlowOn {
		t.Iflag |= unix.IXON | unix.IXOFF
	} else {
		t.Iflag &^= unix.IXON | unix.IXOFF
	}
	return s.setTermios(t)
}
