// Package usbtmc implements the USB/USBTMC session.Backend (spec.md
// §4.G): a control channel over the kernel usbtmc driver's shared node
// (/dev/usbtmc0), per-instrument data nodes (/dev/usbtmcN), and a
// gousb-based descriptor probe that Enumerate calls for every in-use
// minor to read the serial number the kernel node doesn't expose.
//
// The fixed-size control struct and direct character-device read/write
// are grounded on the teacher's kernel_device.go (open a node, write a
// fixed-layout packet, read a fixed-layout reply); the USBTMC command
// codes and control-message layout come from spec.md §6.
package usbtmc

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/stefankopp/opentmlib/errs"
)

// Control command codes (spec.md §6).
const (
	cmdSetAttribute    = 1
	cmdGetAttribute    = 2
	cmdReportInterface = 3
	cmdIOOperation     = 4
)

// controlRequest is the fixed 16-byte control packet written to
// /dev/usbtmc0: four little-endian uint32 fields
// {minor_number, command, argument, value} (spec.md §6).
type controlRequest struct {
	Minor    uint32
	Command  uint32
	Argument uint32
	Value    uint32
}

func (r controlRequest) marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], r.Minor)
	binary.LittleEndian.PutUint32(buf[4:8], r.Command)
	binary.LittleEndian.PutUint32(buf[8:12], r.Argument)
	binary.LittleEndian.PutUint32(buf[12:16], r.Value)
	return buf
}

// controlReply mirrors controlRequest's layout for responses: the
// driver echoes minor/command/argument and returns the result in Value.
type controlReply struct {
	Minor    uint32
	Command  uint32
	Argument uint32
	Value    uint32
}

func unmarshalReply(buf []byte) (controlReply, error) {
	if len(buf) < 16 {
		return controlReply{}, errs.New(errs.USBTMCReadLessThanExpected, "usbtmc.control", fmt.Sprintf("got %d bytes, want 16", len(buf)))
	}
	return controlReply{
		Minor:    binary.LittleEndian.Uint32(buf[0:4]),
		Command:  binary.LittleEndian.Uint32(buf[4:8]),
		Argument: binary.LittleEndian.Uint32(buf[8:12]),
		Value:    binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// controlNodePath is a var (not const) so tests can point it at a fake
// character device instead of the real /dev/usbtmc0.
var controlNodePath = "/dev/usbtmc0"

// exchangeControl opens the shared control node, writes req, reads the
// reply and closes the node again — one open/write/read/close cycle per
// call, never a cached descriptor. spec.md §9 calls this out explicitly:
// the minor-0 descriptor "should be opened per call ... rather than
// cached, to avoid cross-session interference," since the node is
// shared process-wide across every instrument's Session.
func exchangeControl(req controlRequest) (controlReply, error) {
	f, err := os.OpenFile(controlNodePath, os.O_RDWR, 0)
	if err != nil {
		return controlReply{}, errs.Wrap(errs.USBTMCOpenDriverError, "usbtmc.control", err)
	}
	defer f.Close()

	if _, err := f.Write(req.marshal()); err != nil {
		return controlReply{}, errs.Wrap(errs.USBTMCWriteError, "usbtmc.control", err)
	}
	buf := make([]byte, 16)
	n, err := f.Read(buf)
	if err != nil {
		return controlReply{}, errs.Wrap(errs.USBTMCReadError, "usbtmc.control", err)
	}
	return unmarshalReply(buf[:n])
}

func getControlAttribute(minor byte, id uint32) (uint64, error) {
	reply, err := exchangeControl(controlRequest{Command: cmdGetAttribute, Minor: uint32(minor), Argument: id})
	if err != nil {
		return 0, err
	}
	return uint64(reply.Value), nil
}

func setControlAttribute(minor byte, id uint32, value uint64) error {
	_, err := exchangeControl(controlRequest{Command: cmdSetAttribute, Minor: uint32(minor), Argument: id, Value: uint32(value)})
	return err
}

func controlIOOperation(minor byte, op uint32, value uint64) error {
	_, err := exchangeControl(controlRequest{Command: cmdIOOperation, Minor: uint32(minor), Argument: op, Value: uint32(value)})
	return err
}

// instrumentReport is the information cmdReportInterface returns for one
// minor number (spec.md §4.G enumeration). The single 32-bit Value field
// of the control reply carries a nonzero sentinel when the minor is in
// use; vendor/product detail is packed into its two halves. The serial
// number isn't part of this reply at all — it comes from the gousb
// descriptor probe (probe.go), wired in by Enumerate in enumerate.go.
type instrumentReport struct {
	InUse     bool
	VendorID  uint16
	ProductID uint16
}

func reportControlInterface(minor byte) (instrumentReport, error) {
	reply, err := exchangeControl(controlRequest{Command: cmdReportInterface, Minor: uint32(minor)})
	if err != nil {
		return instrumentReport{}, err
	}
	if reply.Value == 0 {
		return instrumentReport{InUse: false}, nil
	}
	return instrumentReport{
		InUse:     true,
		VendorID:  uint16(reply.Value >> 16),
		ProductID: uint16(reply.Value),
	}, nil
}
