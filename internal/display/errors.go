package display

import (
	"github.com/pkg/errors"
)

var (
	// ErrAllocation reports that shared memory could not be created or mapped.
	ErrAllocation = errors.New("allocation failed")
	// ErrProtocol reports a failed bind or registration request.
	ErrProtocol = errors.New("protocol request failed")
	// ErrSetup reports that a surface never became usable.
	ErrSetup = errors.New("surface setup failed")
	// ErrConfig reports parameters that cannot describe a window or pool.
	ErrConfig = errors.New("invalid configuration")
)

// Error attaches one of the kinds above to an underlying error. errors.Is
// matches both the kind and anything in the cause chain.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Wrap annotates err with msg and tags it with kind. A nil err is replaced by
// msg alone.
func Wrap(kind, err error, msg string) error {
	if err == nil {
		return &Error{Kind: kind, Err: errors.New(msg)}
	}
	return &Error{Kind: kind, Err: errors.Wrap(err, msg)}
}

// Wrapf is Wrap with a format string.
func Wrapf(kind, err error, format string, args ...any) error {
	if err == nil {
		return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
	}
	return &Error{Kind: kind, Err: errors.Wrapf(err, format, args...)}
}
