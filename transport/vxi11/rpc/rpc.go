// Package rpc implements just enough of ONC-RPC (RFC 1057) over TCP to
// drive VXI-11: record marking, the CALL/REPLY header layout, and
// AUTH_NONE credentials/verifiers. No RPC library appears anywhere in
// the retrieved example pack, so this follows the teacher's own
// dial-then-read-loop shape (cgminer_client.go's SendCommand) rather
// than any off-the-shelf transport.
package rpc

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/stefankopp/opentmlib/errs"
	"github.com/stefankopp/opentmlib/transport/vxi11/xdr"
)

const (
	msgTypeCall  = 0
	msgTypeReply = 1

	replyAccepted = 0
	acceptSuccess = 0

	authNone = 0
)

// Client is a single ONC-RPC TCP connection to one program/version
// (VXI-11's CORE channel or ASYNC channel get their own Client each).
type Client struct {
	conn net.Conn
	xid  uint32
}

// Dial connects to host:port and returns a Client ready to issue calls.
func Dial(host string, port int) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, errs.Wrap(errs.VXI11IOIssue, "rpc.Dial", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying TCP connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call issues one RPC: program/version/proc identify the remote
// procedure, argBody is the already-XDR-encoded argument list, and the
// raw XDR-encoded reply body is returned for the caller to decode.
func (c *Client) Call(program, version, proc uint32, argBody []byte) ([]byte, error) {
	c.xid++
	msg := xdr.NewEncoder()
	msg.PutUint32(c.xid)
	msg.PutUint32(msgTypeCall)
	msg.PutUint32(2) // RPC version 2
	msg.PutUint32(program)
	msg.PutUint32(version)
	msg.PutUint32(proc)
	msg.PutUint32(authNone) // credentials: flavor
	msg.PutOpaque(nil)      // credentials: body
	msg.PutUint32(authNone) // verifier: flavor
	msg.PutOpaque(nil)      // verifier: body

	body := append(msg.Bytes(), argBody...)

	if err := c.writeRecord(body); err != nil {
		return nil, errs.Wrap(errs.VXI11IOIssue, "rpc.Call", err)
	}

	reply, err := c.readRecord()
	if err != nil {
		return nil, errs.Wrap(errs.VXI11IOIssue, "rpc.Call", err)
	}
	return parseReply(reply, c.xid)
}

// parseReply validates the RPC reply header (matching xid, accepted,
// success) and returns the remaining bytes as the procedure's result.
func parseReply(reply []byte, wantXid uint32) ([]byte, error) {
	d := xdr.NewDecoder(reply)
	xid, err := d.GetUint32()
	if err != nil {
		return nil, errs.Wrap(errs.VXI11IOIssue, "rpc.parseReply", err)
	}
	if xid != wantXid {
		return nil, errs.New(errs.VXI11IOIssue, "rpc.parseReply", "xid mismatch")
	}
	msgType, err := d.GetUint32()
	if err != nil || msgType != msgTypeReply {
		return nil, errs.New(errs.VXI11IOIssue, "rpc.parseReply", "not a reply message")
	}
	replyStat, err := d.GetUint32()
	if err != nil || replyStat != replyAccepted {
		return nil, errs.New(errs.VXI11IOIssue, "rpc.parseReply", "rpc call rejected")
	}
	// verifier
	if _, err := d.GetUint32(); err != nil { // flavor
		return nil, errs.Wrap(errs.VXI11IOIssue, "rpc.parseReply", err)
	}
	if _, err := d.GetOpaque(); err != nil { // body
		return nil, errs.Wrap(errs.VXI11IOIssue, "rpc.parseReply", err)
	}
	acceptStat, err := d.GetUint32()
	if err != nil || acceptStat != acceptSuccess {
		return nil, errs.New(errs.VXI11IOIssue, "rpc.parseReply", fmt.Sprintf("rpc accept_stat=%d", acceptStat))
	}
	return reply[len(reply)-d.Remaining():], nil
}

// writeRecord frames body in a single-fragment ONC-RPC record marking
// header: a uint32 whose top bit marks "last fragment" and whose low 31
// bits are the fragment length (RFC 1057 §10).
func (c *Client) writeRecord(body []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body))|0x80000000)
	if _, err := c.conn.Write(header[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(body)
	return err
}

// readRecord reads one or more record-marking fragments until the
// last-fragment bit is set, and returns the reassembled message.
func (c *Client) readRecord() ([]byte, error) {
	var out []byte
	for {
		var header [4]byte
		if _, err := io.ReadFull(c.conn, header[:]); err != nil {
			return nil, err
		}
		word := binary.BigEndian.Uint32(header[:])
		last := word&0x80000000 != 0
		length := word &^ 0x80000000

		fragment := make([]byte, length)
		if _, err := io.ReadFull(c.conn, fragment); err != nil {
			return nil, err
		}
		out = append(out, fragment...)
		if last {
			break
		}
	}
	return out, nil
}
