// Package resource implements the resource-string resolver and backend
// factory described in spec.md §4.I: parse a VISA-like resource string
// (or resolve it through the configuration store as an alias), dispatch
// to the matching transport constructor, and apply the default session
// attributes. It is the one place in opentmlib that knows about all four
// transport packages at once.
package resource

import (
	"strconv"
	"strings"

	"github.com/stefankopp/opentmlib/errs"
	"github.com/stefankopp/opentmlib/monitor"
	"github.com/stefankopp/opentmlib/session"
	"github.com/stefankopp/opentmlib/store"
	"github.com/stefankopp/opentmlib/transport/serial"
	"github.com/stefankopp/opentmlib/transport/socket"
	"github.com/stefankopp/opentmlib/transport/usbtmc"
	"github.com/stefankopp/opentmlib/transport/vxi11"
)

// Options carries the three construction parameters the factory needs
// beyond the resource string itself (spec.md §4.I).
type Options struct {
	LockOnOpen    bool
	LockTimeoutMs uint32
	Monitor       *monitor.Monitor
}

// defaultOptionNames are the configuration-store options the factory
// knows how to apply as session attributes (spec.md §4.I step 5).
const (
	optTermChar        = "term_char"
	optTermCharEnable  = "term_char_enable"
	optEOLChar         = "eol_char"
	optTimeout         = "timeout"
	optTracing         = "tracing"
	optSetEndIndicator = "set_end_indicator"
	optAddress         = "address"
)

// Open resolves raw (a literal resource string or a store alias),
// constructs the matching backend, and returns a ready-to-use Session
// with every default attribute applied.
func Open(raw string, st *store.Store, opts Options) (*session.Session, error) {
	resolved, alias, err := resolveAlias(raw, st)
	if err != nil {
		return nil, err
	}

	pieces, err := splitResource(resolved)
	if err != nil {
		return nil, err
	}

	backend, err := dispatch(pieces, opts)
	if err != nil {
		return nil, err
	}

	name := resolved
	if alias != "" {
		name = alias
	}
	sess := session.New(backend, name, opts.Monitor)

	if err := applyDefaults(sess, st, alias); err != nil {
		backend.Close()
		return nil, err
	}
	return sess, nil
}

// resolveAlias implements spec.md §4.I step 1: a resource string with no
// "::" is an alias, looked up in the store's "address" option under a
// section named for the alias. A resource string containing "::" is
// used as-is and is not an alias.
func resolveAlias(raw string, st *store.Store) (resolved string, alias string, err error) {
	if strings.Contains(raw, "::") {
		return raw, "", nil
	}
	if st == nil {
		return "", "", errs.New(errs.BadResourceString, "resource.Open", "no \"::\" found and no configuration store to resolve alias "+raw)
	}
	address := st.Lookup(raw, optAddress)
	if address == "" {
		return "", "", errs.New(errs.BadResourceString, "resource.Open", "alias "+raw+" not found in configuration store")
	}
	return address, raw, nil
}

// pieces is the result of splitting a resolved resource string on "::"
// (spec.md §4.I steps 2-3).
type pieces struct {
	scheme string // uppercased first piece with trailing digits stripped, e.g. "ASRL", "TCPIP", "USB"
	board  int    // trailing digits on the first piece, 0 if absent
	rest   []string
}

// splitResource implements spec.md §4.I step 2: split on "::", uppercase
// the first piece for scheme comparison, parse its trailing digits as
// the board index.
func splitResource(resolved string) (pieces, error) {
	parts := strings.Split(resolved, "::")
	if len(parts) == 0 || parts[0] == "" {
		return pieces{}, errs.New(errs.BadResourceString, "resource.Open", resolved)
	}
	scheme, board := splitTrailingDigits(strings.ToUpper(parts[0]))
	return pieces{scheme: scheme, board: board, rest: parts[1:]}, nil
}

// splitTrailingDigits splits a string like "TCPIP0" into ("TCPIP", 0).
// Absent digits default to board index 0.
func splitTrailingDigits(s string) (string, int) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return s, 0
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, 0
	}
	return s[:i], n
}

// dispatch implements spec.md §4.I step 3: choose and construct the
// backend matching p.scheme.
func dispatch(p pieces, opts Options) (session.Backend, error) {
	switch p.scheme {
	case "ASRL":
		return dispatchSerial(p, opts)
	case "TCPIP":
		return dispatchTCPIP(p, opts)
	case "USB":
		return dispatchUSB(p, opts)
	default:
		return nil, errs.New(errs.BadResourceString, "resource.Open", "unrecognized resource scheme "+p.scheme)
	}
}

func dispatchSerial(p pieces, opts Options) (session.Backend, error) {
	if err := rejectTrailingINSTR(p.rest); err != nil {
		return nil, err
	}
	if opts.LockOnOpen {
		return nil, errs.New(errs.LockingNotSupported, "resource.Open", "ASRL backend does not support lock-on-open")
	}
	return serial.Open(p.board)
}

// rejectTrailingINSTR accepts either no trailing pieces or a single
// "INSTR" piece (case-insensitive), the common suffix ASRL and
// simple-VXI11 forms share.
func rejectTrailingINSTR(rest []string) error {
	switch len(rest) {
	case 0:
		return nil
	case 1:
		if strings.EqualFold(rest[0], "INSTR") {
			return nil
		}
	}
	return errs.New(errs.BadResourceString, "resource.Open", "unexpected trailing resource components")
}

// dispatchTCPIP disambiguates the two TCPIP forms: a raw-socket
// connection (ip::port::SOCKET) and a VXI-11 link (ip[::logical][::INSTR]).
func dispatchTCPIP(p pieces, opts Options) (session.Backend, error) {
	if len(p.rest) < 1 {
		return nil, errs.New(errs.BadResourceString, "resource.Open", "TCPIP resource requires an IP address")
	}
	ip := p.rest[0]

	if len(p.rest) == 3 && strings.EqualFold(p.rest[2], "SOCKET") {
		if opts.LockOnOpen {
			return nil, errs.New(errs.LockingNotSupported, "resource.Open", "TCPIP SOCKET backend does not support lock-on-open")
		}
		port, err := strconv.Atoi(p.rest[1])
		if err != nil || port < 0 || port > 65535 {
			return nil, errs.New(errs.SocketBadPort, "resource.Open", p.rest[1])
		}
		return socket.Dial(ip, port)
	}

	if len(p.rest) > 3 {
		return nil, errs.New(errs.BadResourceString, "resource.Open", "too many TCPIP resource components")
	}
	device, err := vxi11LogicalDevice(p.rest[1:])
	if err != nil {
		return nil, err
	}
	return vxi11.Open(ip, device, opts.LockOnOpen, opts.LockTimeoutMs)
}

// vxi11LogicalDevice implements the VXI-11 logical-device-name portion
// of spec.md §4.I step 3: rest is whatever trails the IP address (0-2
// pieces). The logical device defaults to "inst0"; a present third piece
// that does not uppercase to "INSTR" is used literally, case-sensitive.
func vxi11LogicalDevice(rest []string) (string, error) {
	switch len(rest) {
	case 0:
		return "inst0", nil
	case 1:
		if strings.EqualFold(rest[0], "INSTR") {
			return "inst0", nil
		}
		return rest[0], nil
	case 2:
		if strings.EqualFold(rest[0], "INSTR") {
			return "", errs.New(errs.BadResourceString, "resource.Open", "logical device name must precede a trailing INSTR")
		}
		if !strings.EqualFold(rest[1], "INSTR") {
			return "", errs.New(errs.BadResourceString, "resource.Open", "expected trailing INSTR")
		}
		return rest[0], nil
	default:
		return "", errs.New(errs.BadResourceString, "resource.Open", "too many TCPIP resource components")
	}
}

// dispatchUSB implements the USB[n]::vendor::product::serial[::iface[::INSTR]]
// form (spec.md §4.I step 3, §6 grammar).
func dispatchUSB(p pieces, opts Options) (session.Backend, error) {
	if len(p.rest) < 3 {
		return nil, errs.New(errs.BadResourceString, "resource.Open", "USB resource requires vendor, product and serial")
	}
	if opts.LockOnOpen {
		return nil, errs.New(errs.LockingNotSupported, "resource.Open", "USB backend does not support lock-on-open")
	}
	vendorID, err := parseHex16(p.rest[0])
	if err != nil {
		return nil, err
	}
	productID, err := parseHex16(p.rest[1])
	if err != nil {
		return nil, err
	}
	serialNumber := p.rest[2]

	// Optional trailing interface index, optionally followed by INSTR.
	switch len(p.rest) {
	case 3:
	case 4:
		if !isDecimal(p.rest[3]) && !strings.EqualFold(p.rest[3], "INSTR") {
			return nil, errs.New(errs.BadResourceString, "resource.Open", "expected interface index or INSTR")
		}
	case 5:
		if !isDecimal(p.rest[3]) {
			return nil, errs.New(errs.BadResourceString, "resource.Open", "expected numeric interface index")
		}
		if !strings.EqualFold(p.rest[4], "INSTR") {
			return nil, errs.New(errs.BadResourceString, "resource.Open", "expected trailing INSTR")
		}
	default:
		return nil, errs.New(errs.BadResourceString, "resource.Open", "too many USB resource components")
	}

	inst, err := usbtmc.Find(vendorID, productID, serialNumber)
	if err != nil {
		return nil, err
	}
	return usbtmc.Open(inst.Minor)
}

func parseHex16(s string) (uint16, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(trimmed, 16, 16)
	if err != nil {
		return 0, errs.New(errs.BadResourceString, "resource.Open", "invalid hex value "+s)
	}
	return uint16(v), nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// applyDefaults implements spec.md §4.I step 5. session.New already
// seeds every base attribute with its hard default, so this only needs
// to override the ones the alias's store section names explicitly.
func applyDefaults(sess *session.Session, st *store.Store, alias string) error {
	if alias == "" || st == nil {
		return nil
	}
	if v := st.Lookup(alias, optTermChar); v != "" {
		b, err := parseByteValue(v)
		if err != nil {
			return err
		}
		if err := sess.SetAttribute(session.AttrTermChar, uint64(b)); err != nil {
			return err
		}
	}
	if v := st.Lookup(alias, optTermCharEnable); v != "" {
		enable, err := parseOnOff(v)
		if err != nil {
			return err
		}
		if err := sess.SetAttribute(session.AttrTermCharEnable, boolToUint(enable)); err != nil {
			return err
		}
	}
	if v := st.Lookup(alias, optEOLChar); v != "" {
		b, err := parseByteValue(v)
		if err != nil {
			return err
		}
		if err := sess.SetAttribute(session.AttrEOLChar, uint64(b)); err != nil {
			return err
		}
	}
	if v := st.Lookup(alias, optTimeout); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errs.New(errs.ConfigBadValue, "resource.Open", "timeout must be a decimal integer")
		}
		if err := sess.SetAttribute(session.AttrTimeout, n); err != nil {
			return err
		}
	}
	if v := st.Lookup(alias, optTracing); v != "" {
		on, err := parseOnOff(v)
		if err != nil {
			return err
		}
		if err := sess.SetAttribute(session.AttrTracing, boolToUint(on)); err != nil {
			return err
		}
	}
	if v := st.Lookup(alias, optSetEndIndicator); v != "" {
		on, err := parseOnOff(v)
		if err != nil {
			return err
		}
		if err := sess.SetAttribute(session.AttrSetEndIndicator, boolToUint(on)); err != nil {
			return err
		}
	}
	return nil
}

func parseOnOff(v string) (bool, error) {
	switch strings.ToUpper(v) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	default:
		return false, errs.New(errs.ConfigBadValue, "resource.Open", "expected ON or OFF, got "+v)
	}
}

// parseByteValue accepts a decimal or "0x"-prefixed hex integer in 0..255.
func parseByteValue(v string) (byte, error) {
	n, err := strconv.ParseUint(v, 0, 8)
	if err != nil {
		return 0, errs.New(errs.ConfigBadValue, "resource.Open", "expected a byte value, got "+v)
	}
	return byte(n), nil
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
