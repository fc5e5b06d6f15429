package session

import (
	"bytes"
	"testing"

	"github.com/stefankopp/opentmlib/errs"
)

// fakeBackend is an in-memory Backend used to exercise the framing layer
// without any real transport.
type fakeBackend struct {
	out bytes.Buffer
	in  bytes.Buffer

	attrs map[AttrID]uint64
	ops   []OpID

	closed bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{attrs: map[AttrID]uint64{}}
}

func (f *fakeBackend) WriteBuffer(data []byte, _ WriteOptions) (int, error) {
	return f.out.Write(data)
}

func (f *fakeBackend) ReadBuffer(buf []byte, opts ReadOptions) (int, error) {
	if !opts.TermCharEnable {
		n, _ := f.in.Read(buf)
		return n, nil
	}
	// Termination-char framed read: return up to and including termChar,
	// or everything buffered if termChar never appears.
	data := f.in.Bytes()
	for i, b := range data {
		if b == opts.TermChar {
			n := copy(buf, data[:i+1])
			f.in.Next(i + 1)
			return n, nil
		}
	}
	n := copy(buf, data)
	f.in.Next(len(data))
	return n, nil
}

func (f *fakeBackend) SetAttribute(id AttrID, value uint64) error {
	if id != AttrMaxRecvSize {
		return errs.New(errs.BadAttribute, "fakeBackend.SetAttribute", "")
	}
	f.attrs[id] = value
	return nil
}

func (f *fakeBackend) GetAttribute(id AttrID) (uint64, error) {
	if id == AttrStatusByte {
		return 0x42, nil
	}
	v, ok := f.attrs[id]
	if !ok {
		return 0, errs.New(errs.BadAttribute, "fakeBackend.GetAttribute", "")
	}
	return v, nil
}

func (f *fakeBackend) IOOperation(op OpID, _ uint64) error {
	f.ops = append(f.ops, op)
	if op == OpLock {
		return errs.New(errs.LockingNotSupported, "fakeBackend.IOOperation", "")
	}
	return nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func TestWriteStringAppendsEOL(t *testing.T) {
	fb := newFakeBackend()
	s := New(fb, "fake0", nil)

	if err := s.WriteString("*IDN?", true); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if got := fb.out.String(); got != "*IDN?\n" {
		t.Errorf("out = %q, want %q", got, "*IDN?\n")
	}
}

func TestReadStringHonorsTermChar(t *testing.T) {
	fb := newFakeBackend()
	fb.in.WriteString("FOO\nBAR\n")
	s := New(fb, "fake0", nil)

	first, err := s.ReadString()
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if first != "FOO\n" {
		t.Errorf("first = %q, want %q", first, "FOO\n")
	}
	second, err := s.ReadString()
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if second != "BAR\n" {
		t.Errorf("second = %q, want %q", second, "BAR\n")
	}
}

func TestBaseAttributeRoundTrip(t *testing.T) {
	fb := newFakeBackend()
	s := New(fb, "fake0", nil)

	if err := s.SetAttribute(AttrTimeout, 10); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	v, err := s.GetAttribute(AttrTimeout)
	if err != nil {
		t.Fatalf("GetAttribute: %v", err)
	}
	if v != 10 {
		t.Errorf("timeout = %d, want 10", v)
	}
}

func TestUnknownAttributeFallsThroughToBackend(t *testing.T) {
	fb := newFakeBackend()
	s := New(fb, "fake0", nil)

	if err := s.SetAttribute(AttrMaxRecvSize, 256); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	v, err := s.GetAttribute(AttrMaxRecvSize)
	if err != nil {
		t.Fatalf("GetAttribute: %v", err)
	}
	if v != 256 {
		t.Errorf("max-recv-size = %d, want 256", v)
	}
}

func TestWriteThenReadBinblockRoundTrip(t *testing.T) {
	fb := newFakeBackend()
	s := New(fb, "fake0", nil)

	payload := bytes.Repeat([]byte{0xAA}, 1234)
	if err := s.WriteBinblock(payload); err != nil {
		t.Fatalf("WriteBinblock: %v", err)
	}
	if got := fb.out.String()[:6]; got != "#41234" {
		t.Errorf("header = %q, want %q", got, "#41234")
	}

	fb.in.Write(fb.out.Bytes())
	out := make([]byte, 2000)
	n, err := s.ReadBinblock(out)
	if err != nil {
		t.Fatalf("ReadBinblock: %v", err)
	}
	if n != 1234 {
		t.Fatalf("n = %d, want 1234", n)
	}
	if !bytes.Equal(out[:n], payload) {
		t.Errorf("payload mismatch")
	}
}

func TestReadBinblockRestoresTermCharEnableOnFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.in.WriteString("X") // not '#'
	s := New(fb, "fake0", nil)
	s.termCharEnable = true

	_, err := s.ReadBinblock(make([]byte, 16))
	if !errs.Is(err, errs.BinblockHeader) {
		t.Fatalf("err = %v, want BinblockHeader", err)
	}
	if !s.termCharEnable {
		t.Errorf("term_char_enable should be restored to true after failure")
	}
}

func TestReadBinblockRejectsOversizedLength(t *testing.T) {
	fb := newFakeBackend()
	fb.in.WriteString("#41234")
	s := New(fb, "fake0", nil)

	_, err := s.ReadBinblock(make([]byte, 10))
	if !errs.Is(err, errs.BinblockSize) {
		t.Fatalf("err = %v, want BinblockSize", err)
	}
}

func TestReadBinblockRejectsBadDigitCount(t *testing.T) {
	fb := newFakeBackend()
	fb.in.WriteString("#01234")
	s := New(fb, "fake0", nil)

	_, err := s.ReadBinblock(make([]byte, 10))
	if !errs.Is(err, errs.BinblockHeader) {
		t.Fatalf("err = %v, want BinblockHeader", err)
	}
}

func TestSCPICheckErrorsAccumulatesWithoutThrow(t *testing.T) {
	fb := newFakeBackend()
	fb.in.WriteString("-113,\"Undefined header\"\n+0,\"No error\"\n")
	s := New(fb, "fake0", nil)

	err := s.SCPICheckErrors(10)
	if err != nil {
		t.Fatalf("SCPICheckErrors: %v", err)
	}
	errsList := s.LastSCPIErrors()
	if len(errsList) != 1 || errsList[0] != "-113,\"Undefined header\"\n" {
		t.Errorf("lastSCPIErrors = %#v", errsList)
	}
}

func TestSCPICheckErrorsThrowsWhenConfigured(t *testing.T) {
	fb := newFakeBackend()
	fb.in.WriteString("-113,\"Undefined header\"\n+0,\"No error\"\n")
	s := New(fb, "fake0", nil)
	_ = s.SetAttribute(AttrThrowOnSCPIError, 1)

	err := s.SCPICheckErrors(10)
	if !errs.Is(err, errs.SCPIError) {
		t.Fatalf("err = %v, want SCPIError", err)
	}
}

func TestLockDelegatesToBackend(t *testing.T) {
	fb := newFakeBackend()
	s := New(fb, "fake0", nil)

	if err := s.Lock(); !errs.Is(err, errs.LockingNotSupported) {
		t.Fatalf("err = %v, want LockingNotSupported", err)
	}
}

func TestReadSTBDelegatesToBackend(t *testing.T) {
	fb := newFakeBackend()
	s := New(fb, "fake0", nil)

	v, err := s.ReadSTB()
	if err != nil {
		t.Fatalf("ReadSTB: %v", err)
	}
	if v != 0x42 {
		t.Errorf("stb = %#x, want 0x42", v)
	}
}
