// Package socket implements the raw-TCP session.Backend (spec.md §4.F):
// a plain "ip:port" connection (default port 5025, the SCPI-raw-socket
// convention) with the same termination-character framing shape as the
// serial backend, but sized for network payloads (a 10 MiB accumulation
// buffer instead of serial's 1 KiB) and timeouts expressed as read
// deadlines rather than a poll loop, since net.Conn already gives us
// that idiom directly.
package socket

import (
	"fmt"
	"net"
	"time"

	"github.com/stefankopp/opentmlib/errs"
	"github.com/stefankopp/opentmlib/session"
)

// AccumBufSize is the fixed accumulation buffer size for
// termination-character framed reads (spec.md §4.F).
const AccumBufSize = 10 * 1024 * 1024

// DefaultPort is used when Dial is given port 0.
const DefaultPort = 5025

// Session is the raw-TCP session.Backend implementation.
type Session struct {
	conn net.Conn

	accum []byte
}

// Dial connects to host:port (port defaults to DefaultPort when 0).
func Dial(host string, port int) (*Session, error) {
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, errs.Wrap(errs.SocketConnectFailed, "socket.Dial", err)
	}
	return &Session{conn: conn}, nil
}

// Close closes the TCP connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// WriteBuffer writes all of data, applying the session timeout as a
// write deadline.
func (s *Session) WriteBuffer(data []byte, opts session.WriteOptions) (int, error) {
	if err := s.setDeadline(opts.TimeoutSeconds); err != nil {
		return 0, err
	}
	n, err := s.conn.Write(data)
	if err != nil {
		if isTimeout(err) {
			return n, errs.Wrap(errs.Timeout, "socket.WriteBuffer", err)
		}
		return n, errs.Wrap(errs.SocketWriteFailed, "socket.WriteBuffer", err)
	}
	return n, nil
}

// ReadBuffer reads up to len(buf) bytes, honoring termination-character
// framing the same way transport/serial does, but against a much larger
// accumulation buffer sized for network transfers (spec.md §4.F).
func (s *Session) ReadBuffer(buf []byte, opts session.ReadOptions) (int, error) {
	if !opts.TermCharEnable {
		return s.readRaw(buf, opts.TimeoutSeconds)
	}

	if len(buf) > AccumBufSize {
		return 0, errs.New(errs.SerialRequestTooMuch, "socket.ReadBuffer", "max exceeds accumulation buffer size")
	}

	for {
		if idx := indexByte(s.accum, opts.TermChar); idx >= 0 {
			n := idx + 1
			if n > len(buf) {
				return 0, errs.New(errs.BufferOverflow, "socket.ReadBuffer", "")
			}
			copy(buf, s.accum[:n])
			s.accum = s.accum[n:]
			return n, nil
		}
		if len(s.accum) >= len(buf) {
			return 0, errs.New(errs.BufferOverflow, "socket.ReadBuffer", "")
		}

		chunk := make([]byte, len(buf)-len(s.accum))
		n, err := s.readRaw(chunk, opts.TimeoutSeconds)
		if err != nil {
			return 0, err
		}
		s.accum = append(s.accum, chunk[:n]...)
	}
}

func indexByte(buf []byte, b byte) int {
	for i, c := range buf {
		if c == b {
			return i
		}
	}
	return -1
}

func (s *Session) readRaw(buf []byte, timeoutSeconds uint64) (int, error) {
	if err := s.setDeadline(timeoutSeconds); err != nil {
		return 0, err
	}
	n, err := s.conn.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return n, errs.Wrap(errs.Timeout, "socket.ReadBuffer", err)
		}
		return n, errs.Wrap(errs.SocketReadFailed, "socket.ReadBuffer", err)
	}
	return n, nil
}

func (s *Session) setDeadline(timeoutSeconds uint64) error {
	if timeoutSeconds == 0 {
		return s.conn.SetDeadline(time.Time{})
	}
	return s.conn.SetDeadline(time.Now().Add(time.Duration(timeoutSeconds) * time.Second))
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// SetAttribute: the socket backend has no transport-specific attributes
// beyond the base set handled by session.Session.
func (s *Session) SetAttribute(id session.AttrID, _ uint64) error {
	return errs.New(errs.BadAttribute, "socket.SetAttribute", "")
}

// GetAttribute: no socket-specific attributes.
func (s *Session) GetAttribute(id session.AttrID) (uint64, error) {
	return 0, errs.New(errs.BadAttribute, "socket.GetAttribute", "")
}

// IOOperation: a bare TCP socket has no out-of-band control channel, so
// trigger/clear/remote/local/lock all fail the same way the serial
// backend's do (spec.md §5).
func (s *Session) IOOperation(op session.OpID, _ uint64) error {
	switch op {
	case session.OpLock, session.OpUnlock:
		return errs.New(errs.LockingNotSupported, "socket.IOOperation", "")
	default:
		return errs.New(errs.OperationUnsupported, "socket.IOOperation", "")
	}
}
