package session

import (
	"strconv"
	"strings"

	"github.com/stefankopp/opentmlib/errs"
)

// SCPIReset writes "*RST".
func (s *Session) SCPIReset() error {
	return s.WriteString("*RST", true)
}

// SCPIClear writes "*CLS".
func (s *Session) SCPIClear() error {
	return s.WriteString("*CLS", true)
}

// LastSCPIErrors returns the error-response lines accumulated by the most
// recent SCPICheckErrors call. This is the Go equivalent of the C++
// io_session's separate get_last_scpi_errors() accessor (see
// SPEC_FULL.md, Supplemented Features #3) — it lets a caller inspect the
// last scan's results without re-polling the instrument.
func (s *Session) LastSCPIErrors() []string {
	return s.lastSCPIErrors
}

// SCPICheckErrors polls "SYSTEM:ERROR?" until the instrument reports code
// 0 or maxCycles iterations pass (spec.md §4.D). Every non-zero response
// line is accumulated in LastSCPIErrors. If throw_on_scpi_error is set
// and any non-zero code appeared, SCPICheckErrors fails with
// errs.SCPIError; if the queue never drains within maxCycles, it fails
// with errs.SCPIUnableToClear (and still fails this way even when
// throw_on_scpi_error is clear — an undrained queue is always reported).
//
// The EOL flag on "SYSTEM:ERROR?" is always set — per spec.md §9 this
// corrects a bug in the C++ source, which sometimes omitted it.
func (s *Session) SCPICheckErrors(maxCycles int) error {
	s.lastSCPIErrors = nil
	drained := false
	sawError := false

	for i := 0; i < maxCycles; i++ {
		if err := s.WriteString("SYSTEM:ERROR?", true); err != nil {
			return err
		}
		line, err := s.ReadString()
		if err != nil {
			return err
		}
		code, ok := parseSCPIErrorCode(line)
		if !ok {
			return errs.New(errs.Format, "session.SCPICheckErrors", "unexpected SYSTEM:ERROR? response: "+line)
		}
		if code == 0 {
			drained = true
			break
		}
		sawError = true
		s.lastSCPIErrors = append(s.lastSCPIErrors, line)
	}

	if !drained {
		return errs.New(errs.SCPIUnableToClear, "session.SCPICheckErrors", "")
	}
	if sawError && s.throwOnSCPIError {
		return errs.New(errs.SCPIError, "session.SCPICheckErrors", strings.Join(s.lastSCPIErrors, "; "))
	}
	return nil
}

// parseSCPIErrorCode extracts the leading "<code>,\"...\"" integer from a
// SYSTEM:ERROR? response line.
func parseSCPIErrorCode(line string) (int, bool) {
	trimmed := strings.TrimRight(line, "\r\n")
	idx := strings.IndexByte(trimmed, ',')
	if idx < 0 {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(trimmed[:idx]))
	if err != nil {
		return 0, false
	}
	return code, true
}
