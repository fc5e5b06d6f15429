package resource

import (
	"path/filepath"
	"testing"

	"github.com/stefankopp/opentmlib/errs"
	"github.com/stefankopp/opentmlib/session"
	"github.com/stefankopp/opentmlib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTrailingDigits(t *testing.T) {
	cases := map[string]struct {
		prefix string
		board  int
	}{
		"ASRL":   {"ASRL", 0},
		"ASRL2":  {"ASRL", 2},
		"TCPIP0": {"TCPIP", 0},
		"USB10":  {"USB", 10},
	}
	for in, want := range cases {
		prefix, board := splitTrailingDigits(in)
		assert.Equal(t, want.prefix, prefix, in)
		assert.Equal(t, want.board, board, in)
	}
}

// TestSplitResourceScenario1 exercises spec.md §8 scenario 1:
// "TCPIP0::192.168.0.10::inst0::INSTR".
func TestSplitResourceScenario1(t *testing.T) {
	p, err := splitResource("TCPIP0::192.168.0.10::inst0::INSTR")
	require.NoError(t, err)
	assert.Equal(t, "TCPIP", p.scheme)
	assert.Equal(t, 0, p.board)

	device, err := vxi11LogicalDevice(p.rest[1:])
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.10", p.rest[0])
	assert.Equal(t, "inst0", device)
}

func TestVXI11LogicalDeviceDefaultsToInst0(t *testing.T) {
	device, err := vxi11LogicalDevice(nil)
	require.NoError(t, err)
	assert.Equal(t, "inst0", device)
}

func TestVXI11LogicalDeviceUsesLiteralThirdPiece(t *testing.T) {
	device, err := vxi11LogicalDevice([]string{"mydev", "INSTR"})
	require.NoError(t, err)
	assert.Equal(t, "mydev", device)
}

func TestVXI11LogicalDeviceSingleNonInstrPiece(t *testing.T) {
	device, err := vxi11LogicalDevice([]string{"mydev"})
	require.NoError(t, err)
	assert.Equal(t, "mydev", device)
}

func TestVXI11LogicalDeviceRejectsMissingTrailingInstr(t *testing.T) {
	_, err := vxi11LogicalDevice([]string{"mydev", "NOPE"})
	assert.True(t, errs.Is(err, errs.BadResourceString))
}

func TestSplitResourceKeepsSocketFormPieces(t *testing.T) {
	p, err := splitResource("TCPIP0::192.168.0.10::5025::SOCKET")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.0.10", "5025", "SOCKET"}, p.rest)
}

func TestDispatchTCPIPRejectsBadPort(t *testing.T) {
	p, _ := splitResource("TCPIP0::192.168.0.10::999999::SOCKET")
	_, err := dispatchTCPIP(p, Options{})
	assert.True(t, errs.Is(err, errs.SocketBadPort))
}

func TestParseHex16(t *testing.T) {
	v, err := parseHex16("0x0699")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0699), v)

	_, err = parseHex16("zz")
	assert.True(t, errs.Is(err, errs.BadResourceString))
}

func TestDispatchUnknownScheme(t *testing.T) {
	p, _ := splitResource("GPIB0::1::INSTR")
	_, err := dispatch(p, Options{})
	assert.True(t, errs.Is(err, errs.BadResourceString))
}

func TestResolveAliasPassesThroughLiteralResource(t *testing.T) {
	resolved, alias, err := resolveAlias("TCPIP0::192.168.0.10::INSTR", nil)
	require.NoError(t, err)
	assert.Empty(t, alias)
	assert.Equal(t, "TCPIP0::192.168.0.10::INSTR", resolved)
}

// TestResolveAliasScenario2 exercises spec.md §8 scenario 2: alias
// resolution with timeout=10, tracing=ON.
func TestResolveAliasScenario2(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opentmlib.store")
	s := store.New()
	require.NoError(t, s.Update("scope", "address", "USB0::0x0699::0x0401::C012345::INSTR"))
	require.NoError(t, s.Update("scope", "timeout", "10"))
	require.NoError(t, s.Update("scope", "tracing", "ON"))
	require.NoError(t, s.Save(path))

	loaded, err := store.Load(path)
	require.NoError(t, err)

	resolved, alias, err := resolveAlias("scope", loaded)
	require.NoError(t, err)
	assert.Equal(t, "scope", alias)
	assert.Equal(t, "USB0::0x0699::0x0401::C012345::INSTR", resolved)

	sess := session.New(&fakeBackend{}, resolved, nil)
	require.NoError(t, applyDefaults(sess, loaded, alias))

	timeout, err := sess.GetAttribute(session.AttrTimeout)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), timeout)

	tracing, err := sess.GetAttribute(session.AttrTracing)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tracing)
}

func TestResolveAliasMissingFails(t *testing.T) {
	s := store.New()
	_, _, err := resolveAlias("nosuch", s)
	assert.True(t, errs.Is(err, errs.BadResourceString))
}

func TestApplyDefaultsNoopWithoutAlias(t *testing.T) {
	sess := session.New(&fakeBackend{}, "literal", nil)
	require.NoError(t, applyDefaults(sess, store.New(), ""))

	timeout, _ := sess.GetAttribute(session.AttrTimeout)
	assert.Equal(t, uint64(session.DefaultTimeoutSeconds), timeout)
}

func TestApplyDefaultsRejectsBadOnOff(t *testing.T) {
	s := store.New()
	_ = s.Update("scope", "tracing", "MAYBE")
	sess := session.New(&fakeBackend{}, "scope", nil)
	err := applyDefaults(sess, s, "scope")
	assert.True(t, errs.Is(err, errs.ConfigBadValue))
}

// fakeBackend is a minimal session.Backend for exercising applyDefaults
// without any real transport.
type fakeBackend struct{}

func (f *fakeBackend) WriteBuffer(data []byte, _ session.WriteOptions) (int, error) {
	return len(data), nil
}
func (f *fakeBackend) ReadBuffer(buf []byte, _ session.ReadOptions) (int, error) { return 0, nil }
func (f *fakeBackend) SetAttribute(id session.AttrID, value uint64) error {
	return errs.New(errs.BadAttribute, "fakeBackend.SetAttribute", "")
}
func (f *fakeBackend) GetAttribute(id session.AttrID) (uint64, error) {
	return 0, errs.New(errs.BadAttribute, "fakeBackend.GetAttribute", "")
}
func (f *fakeBackend) IOOperation(op session.OpID, value uint64) error { return nil }
func (f *fakeBackend) Close() error                                   { return nil }
