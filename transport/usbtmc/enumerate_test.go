package usbtmc

import (
	"testing"

	"github.com/stefankopp/opentmlib/errs"
)

func TestFilterInstrumentsMatchesVendorProduct(t *testing.T) {
	instruments := []Instrument{
		{Minor: 1, VendorID: 0x0957, ProductID: 0x0607, Serial: "MY001"},
		{Minor: 2, VendorID: 0x0957, ProductID: 0x1234, Serial: "MY002"},
	}
	got, err := filterInstruments(instruments, 0x0957, 0x0607, "")
	if err != nil {
		t.Fatalf("filterInstruments: %v", err)
	}
	if got.Minor != 1 {
		t.Errorf("minor = %d, want 1", got.Minor)
	}
}

func TestFilterInstrumentsMatchesSerial(t *testing.T) {
	instruments := []Instrument{
		{Minor: 1, VendorID: 0x0957, ProductID: 0x0607, Serial: "MY001"},
		{Minor: 2, VendorID: 0x0957, ProductID: 0x0607, Serial: "MY002"},
	}
	got, err := filterInstruments(instruments, 0x0957, 0x0607, "MY002")
	if err != nil {
		t.Fatalf("filterInstruments: %v", err)
	}
	if got.Minor != 2 {
		t.Errorf("minor = %d, want 2", got.Minor)
	}
}

// TestFilterInstrumentsMatchesSerialPrefix exercises spec.md §4.G's
// "case-sensitive serial match up to the shorter length": a resource
// string carrying a truncated serial must still match the device whose
// full serial it's a prefix of.
func TestFilterInstrumentsMatchesSerialPrefix(t *testing.T) {
	instruments := []Instrument{
		{Minor: 1, VendorID: 0x0957, ProductID: 0x0607, Serial: "C012345XYZ"},
	}
	got, err := filterInstruments(instruments, 0x0957, 0x0607, "C012345")
	if err != nil {
		t.Fatalf("filterInstruments: %v", err)
	}
	if got.Minor != 1 {
		t.Errorf("minor = %d, want 1", got.Minor)
	}
}

func TestFilterInstrumentsSerialMismatchEvenAsPrefix(t *testing.T) {
	instruments := []Instrument{
		{Minor: 1, VendorID: 0x0957, ProductID: 0x0607, Serial: "C012345XYZ"},
	}
	_, err := filterInstruments(instruments, 0x0957, 0x0607, "C099999")
	if !errs.Is(err, errs.USBTMCDeviceNotFound) {
		t.Fatalf("err = %v, want USBTMCDeviceNotFound", err)
	}
}

func TestSerialMatchesPrefixSemantics(t *testing.T) {
	cases := []struct {
		have, want string
		match      bool
	}{
		{"C012345", "C012345XYZ", true},
		{"C012345XYZ", "C012345", true},
		{"C012345XYZ", "c012345", false}, // case-sensitive
		{"C012345", "C999999", false},
		{"", "", true},
	}
	for _, c := range cases {
		if got := serialMatches(c.have, c.want); got != c.match {
			t.Errorf("serialMatches(%q, %q) = %v, want %v", c.have, c.want, got, c.match)
		}
	}
}

func TestFilterInstrumentsNoMatch(t *testing.T) {
	_, err := filterInstruments(nil, 0x0957, 0x0607, "")
	if !errs.Is(err, errs.USBTMCDeviceNotFound) {
		t.Fatalf("err = %v, want USBTMCDeviceNotFound", err)
	}
}
