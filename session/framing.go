package session

import (
	"strconv"
	"strings"

	"github.com/stefankopp/opentmlib/errs"
	"github.com/stefankopp/opentmlib/monitor"
)

// writeBuffer is the shared choke point for every outbound write: it
// delegates to the backend and, if tracing is on, appends a trace
// record to the monitor.
func (s *Session) writeBuffer(data []byte) (int, error) {
	n, err := s.backend.WriteBuffer(data, s.writeOptions())
	if s.tracing {
		s.mon.Log(s.name, monitor.Out, data, true)
	}
	return n, err
}

// readBuffer is the shared choke point for every inbound read.
func (s *Session) readBuffer(buf []byte) (int, error) {
	n, err := s.backend.ReadBuffer(buf, s.readOptions())
	if s.tracing && n > 0 {
		s.mon.Log(s.name, monitor.In, buf[:n], true)
	}
	return n, err
}

// WriteString writes s, optionally appending the configured EOL
// character (spec.md §4.D).
func (s *Session) WriteString(msg string, appendEOL bool) error {
	payload := []byte(msg)
	if appendEOL {
		payload = append(payload, s.eolChar)
	}
	_, err := s.writeBuffer(payload)
	return err
}

// ReadString reads one frame (up to string-size bytes, or until the
// termination character if enabled) and returns it as a string.
func (s *Session) ReadString() (string, error) {
	size := s.stringSize
	if size == 0 {
		size = DefaultStringSize
	}
	buf := make([]byte, size)
	n, err := s.readBuffer(buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// WriteInt writes n as its decimal ASCII representation.
func (s *Session) WriteInt(n int, appendEOL bool) error {
	return s.WriteString(strconv.Itoa(n), appendEOL)
}

// ReadInt reads a line and parses it as a decimal integer, failing with
// errs.Format if the line isn't parseable.
func (s *Session) ReadInt() (int, error) {
	line, err := s.ReadString()
	if err != nil {
		return 0, err
	}
	trimmed := strings.TrimRight(line, "\r\n")
	n, err := strconv.Atoi(strings.TrimSpace(trimmed))
	if err != nil {
		return 0, errs.Wrap(errs.Format, "session.ReadInt", err)
	}
	return n, nil
}

// WriteBinblock emits the IEEE 488.2 definite-length binary block header
// "#<d><N>" followed by exactly len(payload) bytes, as two separate
// writeBuffer calls (spec.md §4.D).
func (s *Session) WriteBinblock(payload []byte) error {
	n := len(payload)
	digits := strconv.Itoa(n)
	if len(digits) > 9 {
		return errs.New(errs.BinblockSize, "session.WriteBinblock", "payload length needs more than 9 decimal digits")
	}
	header := "#" + strconv.Itoa(len(digits)) + digits
	if _, err := s.writeBuffer([]byte(header)); err != nil {
		return err
	}
	_, err := s.writeBuffer(payload)
	return err
}

// ReadBinblock reads one IEEE 488.2 binary block into buf and returns
// the number of payload bytes read. Termination-character handling is
// disabled for the duration of the call (binary payloads may legitimately
// contain the termination byte) and is restored on every exit path,
// including error returns — the scoped-guard behavior spec.md §9 calls
// out explicitly.
func (s *Session) ReadBinblock(buf []byte) (int, error) {
	savedEnable := s.termCharEnable
	s.termCharEnable = false
	defer func() { s.termCharEnable = savedEnable }()

	var hdr [1]byte
	if n, err := s.readBuffer(hdr[:]); err != nil || n != 1 {
		if err != nil {
			return 0, err
		}
		return 0, errs.New(errs.BinblockHeader, "session.ReadBinblock", "short read on '#'")
	}
	if hdr[0] != '#' {
		return 0, errs.New(errs.BinblockHeader, "session.ReadBinblock", "expected '#'")
	}

	var dByte [1]byte
	if n, err := s.readBuffer(dByte[:]); err != nil || n != 1 {
		if err != nil {
			return 0, err
		}
		return 0, errs.New(errs.BinblockHeader, "session.ReadBinblock", "short read on digit-count byte")
	}
	if dByte[0] < '1' || dByte[0] > '9' {
		return 0, errs.New(errs.BinblockHeader, "session.ReadBinblock", "digit-count byte out of range '1'..'9'")
	}
	d := int(dByte[0] - '0')

	lenBuf := make([]byte, d)
	if n, err := s.readBuffer(lenBuf); err != nil || n != d {
		if err != nil {
			return 0, err
		}
		return 0, errs.New(errs.BinblockHeader, "session.ReadBinblock", "short read on length field")
	}
	length, err := strconv.Atoi(string(lenBuf))
	if err != nil {
		return 0, errs.Wrap(errs.BinblockHeader, "session.ReadBinblock", err)
	}
	if length > len(buf) {
		return 0, errs.New(errs.BinblockSize, "session.ReadBinblock", "declared length exceeds caller's buffer")
	}

	total := 0
	for total < length {
		n, err := s.readBuffer(buf[total:length])
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, errs.New(errs.IOIssue, "session.ReadBinblock", "read returned 0 bytes before block complete")
		}
		total += n
	}
	return total, nil
}

// QueryString writes q then reads one response string.
func (s *Session) QueryString(q string) (string, error) {
	if err := s.WriteString(q, true); err != nil {
		return "", err
	}
	return s.ReadString()
}

// QueryInt writes q then reads one decimal integer response.
func (s *Session) QueryInt(q string) (int, error) {
	if err := s.WriteString(q, true); err != nil {
		return 0, err
	}
	return s.ReadInt()
}
