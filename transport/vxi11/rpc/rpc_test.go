package rpc

import (
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stefankopp/opentmlib/errs"
	"github.com/stefankopp/opentmlib/transport/vxi11/xdr"
)

// fakeServer accepts one connection, reads one record-marked call, and
// replies with a hand-built accepted/success reply carrying resultBody,
// echoing the xid it received.
func fakeServer(t *testing.T, ln net.Listener, resultBody []byte) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return
	}
	length := binary.BigEndian.Uint32(header[:]) &^ 0x80000000
	call := make([]byte, length)
	if _, err := io.ReadFull(conn, call); err != nil {
		return
	}
	d := xdr.NewDecoder(call)
	xid, _ := d.GetUint32()

	reply := xdr.NewEncoder()
	reply.PutUint32(xid)
	reply.PutUint32(msgTypeReply)
	reply.PutUint32(replyAccepted)
	reply.PutUint32(authNone)
	reply.PutOpaque(nil)
	reply.PutUint32(acceptSuccess)
	body := append(reply.Bytes(), resultBody...)

	var respHeader [4]byte
	binary.BigEndian.PutUint32(respHeader[:], uint32(len(body))|0x80000000)
	conn.Write(respHeader[:])
	conn.Write(body)
}

func TestCallRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()

	want := xdr.NewEncoder()
	want.PutUint32(12345)
	go fakeServer(t, ln, want.Bytes())

	addr := ln.Addr().(*net.TCPAddr)
	client, err := Dial("127.0.0.1", addr.Port)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	arg := xdr.NewEncoder()
	arg.PutString("hostname")
	result, err := client.Call(0x0607AF, 1, 10, arg.Bytes())
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	d := xdr.NewDecoder(result)
	v, err := d.GetUint32()
	if err != nil {
		t.Fatalf("GetUint32: %v", err)
	}
	if v != 12345 {
		t.Errorf("v = %d, want 12345", v)
	}
}

func TestParseReplyRejectsXidMismatch(t *testing.T) {
	reply := xdr.NewEncoder()
	reply.PutUint32(99) // wrong xid
	reply.PutUint32(msgTypeReply)
	reply.PutUint32(replyAccepted)
	reply.PutUint32(authNone)
	reply.PutOpaque(nil)
	reply.PutUint32(acceptSuccess)

	_, err := parseReply(reply.Bytes(), 1)
	if !errs.Is(err, errs.VXI11IOIssue) {
		t.Fatalf("err = %v, want VXI11IOIssue", err)
	}
}

func TestParseReplyRejectsFailedAccept(t *testing.T) {
	reply := xdr.NewEncoder()
	reply.PutUint32(1)
	reply.PutUint32(msgTypeReply)
	reply.PutUint32(replyAccepted)
	reply.PutUint32(authNone)
	reply.PutOpaque(nil)
	reply.PutUint32(1) // PROC_UNAVAIL

	_, err := parseReply(reply.Bytes(), 1)
	if !errs.Is(err, errs.VXI11IOIssue) {
		t.Fatalf("err = %v, want VXI11IOIssue", err)
	}
}
