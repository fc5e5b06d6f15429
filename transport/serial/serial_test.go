//go:build linux

package serial

import (
	"os"
	"testing"

	"github.com/stefankopp/opentmlib/errs"
	"github.com/stefankopp/opentmlib/session"
)

// newPipeSession builds a Session around an os.Pipe, bypassing Open (and
// therefore the termios ioctls, which need a real tty) so the framing
// logic can be exercised in isolation.
func newPipeSession(t *testing.T) (*Session, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	t.Cleanup(func() { r.Close(); w.Close() })
	return &Session{file: r}, w
}

func TestScanForTermChar(t *testing.T) {
	if idx := scanForTermChar([]byte("FOO\nBAR"), '\n'); idx != 3 {
		t.Errorf("idx = %d, want 3", idx)
	}
	if idx := scanForTermChar([]byte("no term here"), '\n'); idx != -1 {
		t.Errorf("idx = %d, want -1", idx)
	}
}

func TestWriteBufferPassthrough(t *testing.T) {
	s, w := newPipeSession(t)
	s.file = w // write side for this test

	n, err := s.WriteBuffer([]byte("*IDN?\n"), session.WriteOptions{})
	if err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}
	if n != 6 {
		t.Errorf("n = %d, want 6", n)
	}
}

func TestReadBufferTermCharFraming(t *testing.T) {
	s, w := newPipeSession(t)
	go func() {
		w.Write([]byte("FOO\nBAR\n"))
		w.Close()
	}()

	buf := make([]byte, 16)
	n, err := s.ReadBuffer(buf, session.ReadOptions{TermCharEnable: true, TermChar: '\n'})
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if string(buf[:n]) != "FOO\n" {
		t.Errorf("first read = %q, want %q", buf[:n], "FOO\n")
	}

	n, err = s.ReadBuffer(buf, session.ReadOptions{TermCharEnable: true, TermChar: '\n'})
	if err != nil {
		t.Fatalf("ReadBuffer (second): %v", err)
	}
	if string(buf[:n]) != "BAR\n" {
		t.Errorf("second read = %q, want %q", buf[:n], "BAR\n")
	}
}

func TestReadBufferOverflowWithoutTermChar(t *testing.T) {
	s, w := newPipeSession(t)
	go func() {
		w.Write([]byte("no terminator in this whole message"))
		w.Close()
	}()

	buf := make([]byte, 8)
	_, err := s.ReadBuffer(buf, session.ReadOptions{TermCharEnable: true, TermChar: '\n'})
	if !errs.Is(err, errs.BufferOverflow) {
		t.Fatalf("err = %v, want BufferOverflow", err)
	}
}

func TestReadBufferRejectsOversizedRequest(t *testing.T) {
	s, _ := newPipeSession(t)
	buf := make([]byte, AccumBufSize+1)
	_, err := s.ReadBuffer(buf, session.ReadOptions{TermCharEnable: true, TermChar: '\n'})
	if !errs.Is(err, errs.SerialRequestTooMuch) {
		t.Fatalf("err = %v, want SerialRequestTooMuch", err)
	}
}

func TestIOOperationRejectsLocking(t *testing.T) {
	s, _ := newPipeSession(t)
	if err := s.IOOperation(session.OpLock, 0); !errs.Is(err, errs.LockingNotSupported) {
		t.Fatalf("Lock err = %v, want LockingNotSupported", err)
	}
	if err := s.IOOperation(session.OpTrigger, 0); !errs.Is(err, errs.OperationUnsupported) {
		t.Fatalf("Trigger err = %v, want OperationUnsupported", err)
	}
}

func TestSetAttributeRejectsBadBaudrate(t *testing.T) {
	s, _ := newPipeSession(t)
	s.fd = -1 // never reached: validation happens before any ioctl
	if err := s.SetAttribute(session.AttrSerialBaudrate, 1234567); !errs.Is(err, errs.SerialBadBaudrate) {
		t.Fatalf("err = %v, want SerialBadBaudrate", err)
	}
}

func TestGetAttributeDefaults(t *testing.T) {
	s, _ := newPipeSession(t)
	s.baud, s.size, s.parity, s.stopbits = 9600, 8, ParityNone, 1

	v, err := s.GetAttribute(session.AttrSerialBaudrate)
	if err != nil || v != 9600 {
		t.Fatalf("baudrate = %d, %v", v, err)
	}
	v, err = s.GetAttribute(session.AttrSerialSize)
	if err != nil || v != 8 {
		t.Fatalf("size = %d, %v", v, err)
	}
}

func TestGetAttributeUnknown(t *testing.T) {
	s, _ := newPipeSession(t)
	if _, err := s.GetAttribute(session.AttrMaxRecvSize); !errs.Is(err, errs.BadAttribute) {
		t.Fatalf("err = %v, want BadAttribute", err)
	}
}
