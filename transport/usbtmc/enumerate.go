package usbtmc

import (
	"github.com/stefankopp/opentmlib/errs"
)

// MaxMinor bounds the /dev/usbtmcN minor-number scan performed by Find
// (spec.md §4.G enumeration; §6 resource-string "USB0::...::INSTR").
const MaxMinor = 16

// Instrument describes one enumerated USBTMC device.
type Instrument struct {
	Minor     byte
	VendorID  uint16
	ProductID uint16
	Serial    string
}

// Enumerate reports every in-use minor number, from 1 up to MaxMinor (0
// is the control node itself and is skipped). Each minor is queried with
// its own open/write/read/close cycle against /dev/usbtmc0 (spec.md §9),
// not one handle held across the whole scan.
func Enumerate() ([]Instrument, error) {
	var found []Instrument
	for minor := byte(1); minor < MaxMinor; minor++ {
		report, err := reportControlInterface(minor)
		if err != nil {
			continue
		}
		if !report.InUse {
			continue
		}
		inst := Instrument{
			Minor:     minor,
			VendorID:  report.VendorID,
			ProductID: report.ProductID,
		}
		if desc, err := ProbeDescriptor(report.VendorID, report.ProductID); err == nil {
			inst.Serial = desc.Serial
		}
		found = append(found, inst)
	}
	return found, nil
}

// Find locates the minor number matching vendorID/productID and, if
// serial is non-empty, the given serial number too (spec.md §6's
// "USB0::<vendor>::<product>::<serial>::INSTR" resource form).
func Find(vendorID, productID uint16, serial string) (Instrument, error) {
	instruments, err := Enumerate()
	if err != nil {
		return Instrument{}, err
	}
	return filterInstruments(instruments, vendorID, productID, serial)
}

func filterInstruments(instruments []Instrument, vendorID, productID uint16, serial string) (Instrument, error) {
	for _, inst := range instruments {
		if inst.VendorID != vendorID || inst.ProductID != productID {
			continue
		}
		if serial != "" && !serialMatches(inst.Serial, serial) {
			continue
		}
		return inst, nil
	}
	return Instrument{}, errs.New(errs.USBTMCDeviceNotFound, "usbtmc.Find", "")
}

// serialMatches compares two serial numbers case-sensitively over only
// the shorter of their two lengths, per spec.md §4.G ("match the
// triple"), grounded on original_source/usbtmc_session.cpp:84-87's
// serial_length = min(len(a), len(b)).
func serialMatches(have, want string) bool {
	n := len(have)
	if len(want) < n {
		n = len(want)
	}
	return have[:n] == want[:n]
}
