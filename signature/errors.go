package signature

import (
	"errors"
	"fmt"
)

// Sentinel errors for signature construction.
var (
	// ErrUnsupportedOp indicates no canonicalization rule matches the op name.
	ErrUnsupportedOp = errors.New("signature: unsupported operation")

	// ErrInvalidOp indicates the op instance is malformed for its rule.
	ErrInvalidOp = errors.New("signature: invalid operation")

	// ErrInvalidTarget indicates an empty or malformed target name.
	ErrInvalidTarget = errors.New("signature: invalid target")
)

// Error reports an operation that cannot be canonicalized.
// It unwraps to one of the sentinel errors above.
type Error struct {
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: op %q", e.Err, e.Op)
	}
	return fmt.Sprintf("%v: op %q: %s", e.Err, e.Op, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalidf(op string, format string, args ...any) error {
	return &Error{Op: op, Reason: fmt.Sprintf(format, args...), Err: ErrInvalidOp}
}
