package display

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrap_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("EMFILE")
	err := Wrap(ErrAllocation, cause, "memfd_create")

	assert.ErrorIs(t, err, ErrAllocation)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrProtocol)
	assert.Equal(t, "allocation failed: memfd_create: EMFILE", err.Error())

	var e *Error
	assert.ErrorAs(t, err, &e)
	assert.Equal(t, ErrAllocation, e.Kind)
}

func TestWrap_NilCause(t *testing.T) {
	err := Wrapf(ErrSetup, nil, "no %s", "configure")
	assert.ErrorIs(t, err, ErrSetup)
	assert.Equal(t, "surface setup failed: no configure", err.Error())
}

func TestWrap_Nested(t *testing.T) {
	cause := errors.New("bad fd")
	inner := Wrapf(ErrProtocol, cause, "registering buffer %d", 1)
	outer := errors.Wrap(inner, "creating window")

	assert.ErrorIs(t, outer, ErrProtocol)
	assert.ErrorIs(t, outer, cause)
	assert.Contains(t, outer.Error(), "registering buffer 1: bad fd")
}

func TestFormat_String(t *testing.T) {
	assert.Equal(t, "argb8888", FormatARGB8888.String())
	assert.Equal(t, "xrgb8888", FormatXRGB8888.String())
	assert.Equal(t, "unknown", Format(0x34324258).String())
}
