package ntt

import "fmt"

// Error is the copy engine's structured error type. It carries the
// classified ErrorType (spec.md §4.1) alongside the wrapped cause and
// optional identifying data, so that log lines and inode.errors[]
// entries can be assembled from the same value.
//
// Grounded on SharedCode/sop's error.go: a code + wrapped error + free
// form user data, formatted via fmt.Errorf's %w.
type Error struct {
	Type     ErrorType
	Err      error
	UserData any
}

// Error formats the classification, user data, and wrapped error details.
func (e Error) Error() string {
	return fmt.Errorf("error_type: %s, user data: %v, details: %w", e.Type, e.UserData, e.Err).Error()
}

func (e Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with the given classification and optional
// correlation data (typically a medium_hash/inode_number pair).
func NewError(t ErrorType, err error, userData any) Error {
	return Error{Type: t, Err: err, UserData: userData}
}

// IsPermanent reports whether the error_type implies the source data
// cannot be read/trusted and retrying will never succeed without
// operator action (spec.md §7).
func (t ErrorType) IsPermanent() bool {
	switch t {
	case ErrorTypeIO, ErrorTypeHash:
		return true
	default:
		return false
	}
}
