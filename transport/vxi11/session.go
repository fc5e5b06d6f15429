// Package vxi11 implements the LAN/VXI-11 session.Backend (spec.md
// §4.H): two ONC-RPC clients (the CORE channel for data transfer and
// control operations, the ASYNC channel for out-of-band abort),
// maxRecvSize-bounded chunked writes, and server-error-code-to-Kind
// mapping. The wire client itself lives in transport/vxi11/rpc and
// transport/vxi11/xdr; this file builds VXI-11's specific RPC argument
// layouts on top of them.
package vxi11

import (
	"github.com/stefankopp/opentmlib/errs"
	"github.com/stefankopp/opentmlib/session"
	"github.com/stefankopp/opentmlib/transport/vxi11/rpc"
	"github.com/stefankopp/opentmlib/transport/vxi11/xdr"
)

const defaultCorePort = 111 // rpcbind, per spec.md's resolver falling back to the well-known portmapper port when not otherwise configured

// Session is the VXI-11 session.Backend implementation.
type Session struct {
	core  *rpc.Client
	async *rpc.Client

	linkID      int32
	abortHost   string
	abortPort   uint32
	maxRecvSize uint32

	lastError int32
}

// Open performs CREATE_LINK against host for the given logical device
// name (e.g. "inst0"), then dials the ASYNC channel using the
// server-reported abort port (spec.md §4.H).
func Open(host string, device string, lockOnOpen bool, lockTimeoutMs uint32) (*Session, error) {
	return openWithPort(host, defaultCorePort, device, lockOnOpen, lockTimeoutMs)
}

// openWithPort is Open with an explicit CORE-channel port, factored out
// so tests can point at an in-process fake server instead of the
// well-known rpcbind port.
func openWithPort(host string, port int, device string, lockOnOpen bool, lockTimeoutMs uint32) (*Session, error) {
	core, err := rpc.Dial(host, port)
	if err != nil {
		return nil, errs.Wrap(errs.VXI11CreateLinkFailed, "vxi11.Open", err)
	}

	s := &Session{core: core, abortHost: host}

	args := xdr.NewEncoder()
	args.PutInt32(0) // clientId; the server does not require a stable value across links
	args.PutBool(lockOnOpen)
	args.PutUint32(lockTimeoutMs)
	args.PutString(device)

	result, err := core.Call(programCore, rpcVersion, procCreateLink, args.Bytes())
	if err != nil {
		core.Close()
		return nil, errs.Wrap(errs.VXI11CreateLinkFailed, "vxi11.Open", err)
	}

	d := xdr.NewDecoder(result)
	code, err := d.GetInt32()
	if err != nil {
		core.Close()
		return nil, errs.Wrap(errs.VXI11CreateLinkFailed, "vxi11.Open", err)
	}
	s.lastError = code
	if mapped := mapServerError("vxi11.CreateLink", code, errs.VXI11CreateLinkFailed); mapped != nil {
		core.Close()
		return nil, mapped
	}
	linkID, _ := d.GetInt32()
	abortPort, _ := d.GetUint32()
	maxRecvSize, err := d.GetUint32()
	if err != nil {
		core.Close()
		return nil, errs.Wrap(errs.VXI11CreateLinkFailed, "vxi11.Open", err)
	}
	s.linkID = linkID
	s.abortPort = abortPort
	s.maxRecvSize = maxRecvSize

	async, err := rpc.Dial(host, int(abortPort))
	if err != nil {
		core.Close()
		return nil, errs.Wrap(errs.VXI11CreateLinkFailed, "vxi11.Open", err)
	}
	s.async = async

	return s, nil
}

// Close issues DESTROY_LINK then tears down both RPC clients.
func (s *Session) Close() error {
	args := xdr.NewEncoder()
	args.PutInt32(s.linkID)
	_, callErr := s.core.Call(programCore, rpcVersion, procDestroyLink, args.Bytes())

	coreErr := s.core.Close()
	asyncErr := s.async.Close()

	if callErr != nil {
		return errs.Wrap(errs.VXI11DestroyLinkFailed, "vxi11.Close", callErr)
	}
	if coreErr != nil {
		return errs.Wrap(errs.IOIssue, "vxi11.Close", coreErr)
	}
	if asyncErr != nil {
		return errs.Wrap(errs.IOIssue, "vxi11.Close", asyncErr)
	}
	return nil
}

// MaxRecvSize exposes the server-advertised chunk bound (read-only
// attribute, spec.md §3/§6).
func (s *Session) MaxRecvSize() uint32 { return s.maxRecvSize }

// WriteBuffer splits data into chunks of at most maxRecvSize and issues
// one device_write RPC per chunk, setting the end-indicator flag only
// on the final chunk (spec.md §4.H write protocol, §8 scenario 6).
func (s *Session) WriteBuffer(data []byte, opts session.WriteOptions) (int, error) {
	ioTimeoutMs := uint32(opts.TimeoutSeconds) * 1000
	chunkSize := int(s.maxRecvSize)
	if chunkSize == 0 {
		chunkSize = len(data)
	}

	if len(data) == 0 {
		return s.deviceWrite(nil, true, ioTimeoutMs, opts)
	}

	total := 0
	for offset := 0; offset < len(data); {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		isLast := end == len(data)

		n, err := s.deviceWrite(data[offset:end], isLast, ioTimeoutMs, opts)
		if err != nil {
			return total, err
		}
		total += n
		offset = end
	}
	return total, nil
}

func (s *Session) deviceWrite(chunk []byte, isLast bool, ioTimeoutMs uint32, opts session.WriteOptions) (int, error) {
	var flags uint32
	if opts.WaitLock {
		flags |= flagWaitLock
	}
	if opts.SetEndIndicator && isLast {
		flags |= flagEndIndicator
	}

	args := xdr.NewEncoder()
	args.PutInt32(s.linkID)
	args.PutUint32(ioTimeoutMs)
	args.PutUint32(ioTimeoutMs) // lock_timeout mirrors io_timeout, per the session timeout attribute
	args.PutUint32(flags)
	args.PutOpaque(chunk)

	result, err := s.core.Call(programCore, rpcVersion, procDeviceWrite, args.Bytes())
	if err != nil {
		return 0, errs.Wrap(errs.VXI11Write, "vxi11.WriteBuffer", err)
	}

	d := xdr.NewDecoder(result)
	code, err := d.GetInt32()
	if err != nil {
		return 0, errs.Wrap(errs.VXI11Write, "vxi11.WriteBuffer", err)
	}
	s.lastError = code
	if mapped := mapServerError("vxi11.WriteBuffer", code, errs.VXI11Write); mapped != nil {
		return 0, mapped
	}
	size, err := d.GetUint32()
	if err != nil {
		return 0, errs.Wrap(errs.VXI11Write, "vxi11.WriteBuffer", err)
	}
	return int(size), nil
}

// ReadBuffer issues one device_read RPC sized to len(buf), with the
// termination-character bit set iff framing is enabled (spec.md §4.H
// read protocol).
func (s *Session) ReadBuffer(buf []byte, opts session.ReadOptions) (int, error) {
	var flags uint32
	if opts.TermCharEnable {
		flags |= flagTermCharSet
	}
	ioTimeoutMs := uint32(opts.TimeoutSeconds) * 1000

	args := xdr.NewEncoder()
	args.PutInt32(s.linkID)
	args.PutUint32(uint32(len(buf)))
	args.PutUint32(ioTimeoutMs)
	args.PutUint32(ioTimeoutMs)
	args.PutUint32(flags)
	args.PutUint32(uint32(opts.TermChar))

	result, err := s.core.Call(programCore, rpcVersion, procDeviceRead, args.Bytes())
	if err != nil {
		return 0, errs.Wrap(errs.VXI11Read, "vxi11.ReadBuffer", err)
	}

	d := xdr.NewDecoder(result)
	code, err := d.GetInt32()
	if err != nil {
		return 0, errs.Wrap(errs.VXI11Read, "vxi11.ReadBuffer", err)
	}
	s.lastError = code
	if mapped := mapServerError("vxi11.ReadBuffer", code, errs.VXI11Read); mapped != nil {
		return 0, mapped
	}
	if _, err := d.GetUint32(); err != nil { // reason bitmask; callers rely on termination framing instead
		return 0, errs.Wrap(errs.VXI11Read, "vxi11.ReadBuffer", err)
	}
	data, err := d.GetOpaque()
	if err != nil {
		return 0, errs.Wrap(errs.VXI11Read, "vxi11.ReadBuffer", err)
	}
	if len(data) > len(buf) {
		return 0, errs.New(errs.BufferOverflow, "vxi11.ReadBuffer", "")
	}
	copy(buf, data)
	return len(data), nil
}

// SetAttribute: maxRecvSize and lastError are both read-only.
func (s *Session) SetAttribute(id session.AttrID, _ uint64) error {
	switch id {
	case session.AttrMaxRecvSize, session.AttrLastError:
		return errs.New(errs.BadAttributeValue, "vxi11.SetAttribute", "attribute is read-only")
	default:
		return errs.New(errs.BadAttribute, "vxi11.SetAttribute", "")
	}
}

// GetAttribute reads maxRecvSize, lastError, or (via device_readstb) the
// IEEE 488.2 status byte.
func (s *Session) GetAttribute(id session.AttrID) (uint64, error) {
	switch id {
	case session.AttrMaxRecvSize:
		return uint64(s.maxRecvSize), nil
	case session.AttrLastError:
		return uint64(uint32(s.lastError)), nil
	case session.AttrStatusByte:
		return s.readSTB()
	default:
		return 0, errs.New(errs.BadAttribute, "vxi11.GetAttribute", "")
	}
}

func (s *Session) readSTB() (uint64, error) {
	args := xdr.NewEncoder()
	args.PutInt32(s.linkID)
	args.PutUint32(0)
	args.PutUint32(0)
	args.PutUint32(0)

	result, err := s.core.Call(programCore, rpcVersion, procDeviceReadSTB, args.Bytes())
	if err != nil {
		return 0, errs.Wrap(errs.VXI11IOIssue, "vxi11.ReadSTB", err)
	}
	d := xdr.NewDecoder(result)
	code, err := d.GetInt32()
	if err != nil {
		return 0, errs.Wrap(errs.VXI11IOIssue, "vxi11.ReadSTB", err)
	}
	s.lastError = code
	if mapped := mapServerError("vxi11.ReadSTB", code, errs.VXI11IOIssue); mapped != nil {
		return 0, mapped
	}
	stb, err := d.GetUint32()
	if err != nil {
		return 0, errs.Wrap(errs.VXI11IOIssue, "vxi11.ReadSTB", err)
	}
	return uint64(stb), nil
}

// IOOperation dispatches trigger/clear/remote/local/lock/unlock to their
// matching device_* RPCs, and abort to the ASYNC channel's device_abort
// (spec.md §4.H "Operations").
func (s *Session) IOOperation(op session.OpID, _ uint64) error {
	switch op {
	case session.OpTrigger:
		return s.genericOp(procDeviceTrigger, "vxi11.Trigger", errs.VXI11IOIssue)
	case session.OpClear:
		return s.genericOp(procDeviceClear, "vxi11.Clear", errs.VXI11IOIssue)
	case session.OpRemote:
		return s.genericOp(procDeviceRemote, "vxi11.Remote", errs.VXI11IOIssue)
	case session.OpLocal:
		return s.genericOp(procDeviceLocal, "vxi11.Local", errs.VXI11IOIssue)
	case session.OpLock:
		return s.lockOp(procDeviceLock, "vxi11.Lock")
	case session.OpUnlock:
		return s.unlockOp()
	case session.OpAbort:
		return s.abort()
	default:
		return errs.New(errs.OperationUnsupported, "vxi11.IOOperation", "")
	}
}

func (s *Session) genericOp(proc uint32, op string, genericKind errs.Kind) error {
	args := xdr.NewEncoder()
	args.PutInt32(s.linkID)
	args.PutUint32(0)
	args.PutUint32(0)
	args.PutUint32(0)

	result, err := s.core.Call(programCore, rpcVersion, proc, args.Bytes())
	if err != nil {
		return errs.Wrap(genericKind, op, err)
	}
	d := xdr.NewDecoder(result)
	code, err := d.GetInt32()
	if err != nil {
		return errs.Wrap(genericKind, op, err)
	}
	s.lastError = code
	return mapServerError(op, code, genericKind)
}

func (s *Session) lockOp(proc uint32, op string) error {
	args := xdr.NewEncoder()
	args.PutInt32(s.linkID)
	args.PutUint32(0)
	args.PutUint32(0)

	result, err := s.core.Call(programCore, rpcVersion, proc, args.Bytes())
	if err != nil {
		return errs.Wrap(errs.VXI11Lock, op, err)
	}
	d := xdr.NewDecoder(result)
	code, err := d.GetInt32()
	if err != nil {
		return errs.Wrap(errs.VXI11Lock, op, err)
	}
	s.lastError = code
	return mapServerError(op, code, errs.VXI11Lock)
}

func (s *Session) unlockOp() error {
	args := xdr.NewEncoder()
	args.PutInt32(s.linkID)

	result, err := s.core.Call(programCore, rpcVersion, procDeviceUnlock, args.Bytes())
	if err != nil {
		return errs.Wrap(errs.VXI11Lock, "vxi11.Unlock", err)
	}
	d := xdr.NewDecoder(result)
	code, err := d.GetInt32()
	if err != nil {
		return errs.Wrap(errs.VXI11Lock, "vxi11.Unlock", err)
	}
	s.lastError = code
	return mapServerError("vxi11.Unlock", code, errs.VXI11Lock)
}

// abort cancels the currently blocked CORE-channel call via the ASYNC
// channel (spec.md §5 "Cancellation"); it is the one cross-channel
// interaction and is safe to invoke between other operations.
func (s *Session) abort() error {
	args := xdr.NewEncoder()
	args.PutInt32(s.linkID)

	result, err := s.async.Call(programAsync, rpcVersion, procDeviceAbort, args.Bytes())
	if err != nil {
		return errs.Wrap(errs.VXI11IOIssue, "vxi11.Abort", err)
	}
	d := xdr.NewDecoder(result)
	code, err := d.GetInt32()
	if err != nil {
		return errs.Wrap(errs.VXI11IOIssue, "vxi11.Abort", err)
	}
	return mapServerError("vxi11.Abort", code, errs.VXI11IOIssue)
}
