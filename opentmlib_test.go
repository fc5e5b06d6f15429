package opentmlib

import (
	"testing"

	"github.com/stefankopp/opentmlib/errs"
	"github.com/stretchr/testify/assert"
)

func TestOpenRejectsLockOnOpenForSerial(t *testing.T) {
	_, err := Open("ASRL0::INSTR", WithLockOnOpen(true))
	assert.True(t, errs.Is(err, errs.LockingNotSupported))
}

func TestOpenRejectsUnresolvableAlias(t *testing.T) {
	_, err := Open("no-such-alias-in-any-store")
	assert.True(t, errs.Is(err, errs.BadResourceString))
}

func TestOpenRejectsBadScheme(t *testing.T) {
	_, err := Open("GPIB0::1::INSTR")
	assert.True(t, errs.Is(err, errs.BadResourceString))
}
