package usbtmc

import (
	"testing"

	"github.com/stefankopp/opentmlib/errs"
)

func TestControlRequestMarshal(t *testing.T) {
	req := controlRequest{Command: cmdSetAttribute, Minor: 3, Argument: attrInterfaceCaps, Value: 0xDEADBEEF}
	buf := req.marshal()
	if len(buf) != 16 {
		t.Fatalf("len = %d, want 16", len(buf))
	}
	reply, err := unmarshalReply(buf)
	if err != nil {
		t.Fatalf("unmarshalReply: %v", err)
	}
	if reply.Command != cmdSetAttribute || reply.Minor != 3 {
		t.Errorf("command/minor = %d/%d, want %d/3", reply.Command, reply.Minor, cmdSetAttribute)
	}
}

func TestUnmarshalReplyRejectsShortBuffer(t *testing.T) {
	_, err := unmarshalReply(make([]byte, 8))
	if !errs.Is(err, errs.USBTMCReadLessThanExpected) {
		t.Fatalf("err = %v, want USBTMCReadLessThanExpected", err)
	}
}

func TestUnmarshalReplyExtractsValue(t *testing.T) {
	req := controlRequest{Command: cmdGetAttribute, Minor: 1, Argument: attrDeviceCaps, Value: 42}
	reply, err := unmarshalReply(req.marshal())
	if err != nil {
		t.Fatalf("unmarshalReply: %v", err)
	}
	if reply.Value != 42 {
		t.Errorf("value = %d, want 42", reply.Value)
	}
}
