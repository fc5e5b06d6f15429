//go:build !mips && !mipsle

// Probe enriches the control-channel enumeration in enumerate.go with
// descriptor fields (serial/manufacturer/product strings) the kernel
// usbtmc control node doesn't report, the same way the teacher's
// usb_device.go reaches past its kernel driver to talk to the ASIC
// directly over gousb when it needs something the kernel node can't
// give it. Unlike the teacher's probe, this one is load-bearing: the
// serial number spec.md §4.G's "match the triple" and §6's
// `USB0::vid::pid::serial::INSTR` resource form require comes from
// here, not from the control channel, so Enumerate calls it
// unconditionally (see probe_other.go for the mips/mipsle stub).
package usbtmc

import (
	"github.com/google/gousb"
)

// DescriptorInfo holds the descriptor fields a gousb probe adds to an
// Instrument found via the control channel.
type DescriptorInfo struct {
	Serial       string
	Manufacturer string
	Product      string
}

// ProbeDescriptor opens the USB device identified by vendorID/productID
// directly (bypassing the usbtmc kernel driver) just long enough to
// read its string descriptors, then releases it. Any failure here is
// non-fatal to the caller: a zero DescriptorInfo and the error are both
// returned, so Enumerate can still report a device by vendor/product
// alone when the probe fails (e.g. no libusb, permission denied).
func ProbeDescriptor(vendorID, productID uint16) (DescriptorInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vendorID), gousb.ID(productID))
	if err != nil {
		return DescriptorInfo{}, err
	}
	if dev == nil {
		return DescriptorInfo{}, nil
	}
	defer dev.Close()

	serial, _ := dev.SerialNumber()
	manufacturer, _ := dev.Manufacturer()
	product, _ := dev.Product()
	return DescriptorInfo{Serial: serial, Manufacturer: manufacturer, Product: product}, nil
}
