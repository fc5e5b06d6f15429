package vxi11

import (
	"log"

	"github.com/stefankopp/opentmlib/errs"
)

// serverErrorKinds maps a VXI-11 server error code to its core error
// kind (spec.md §4.H "Error mapping"). Any code not present here is not
// a dedicated core kind — the caller falls back to an operation-specific
// generic kind (vxi11-read/write/lock/create-link/destroy-link).
var serverErrorKinds = map[int32]errs.Kind{
	1:  errs.VXI11Syntax,
	3:  errs.VXI11DeviceNotAccessible,
	4:  errs.VXI11InvalidLinkID,
	5:  errs.VXI11Parameter,
	6:  errs.VXI11ChannelNotEstablished,
	8:  errs.VXI11OperationUnsupported,
	9:  errs.VXI11OutOfResources,
	11: errs.VXI11DeviceLocked,
	12: errs.VXI11NoLockHeld,
	15: errs.VXI11IOTimeout,
	17: errs.VXI11IOIssue,
	21: errs.VXI11InvalidAddress,
	23: errs.VXI11TransactionAborted,
	29: errs.VXI11ChannelAlreadyEstablished,
}

// mapServerError translates a nonzero VXI-11 server error code into an
// *errs.Error. genericKind names the operation-specific fallback used
// when code isn't one of the dedicated core kinds.
func mapServerError(op string, code int32, genericKind errs.Kind) error {
	if code == 0 {
		return nil
	}
	log.Printf("vxi11: %s: server returned error code %d", op, code)
	if kind, ok := serverErrorKinds[code]; ok {
		return errs.New(kind, op, "")
	}
	return errs.New(genericKind, op, "")
}
