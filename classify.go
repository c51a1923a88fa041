package ntt

import (
	"errors"
	"io/fs"
	"strings"
	"syscall"
)

// Classify maps an exception raised during analysis or execution to
// exactly one ErrorType, per the taxonomy in spec.md §4.1.
//
// Grounded on SharedCode/sop's failover.go (IsFailoverQualifiedIOError):
// same style of errors.Is/syscall.Errno inspection with a string
// fallback for platforms where the errno doesn't map to a named
// constant, generalized from "should we fail over" to "which of the
// five classes does this belong to".
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeNone
	}

	if isHashMismatch(err) {
		return ErrorTypeHash
	}

	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOENT) {
		return ErrorTypePath
	}
	if errors.Is(err, syscall.ENAMETOOLONG) {
		return ErrorTypePath
	}

	if errors.Is(err, syscall.EIO) {
		return ErrorTypeIO
	}
	if s := err.Error(); strings.Contains(s, "beyond end of device") || strings.Contains(s, "beyond EOF") {
		return ErrorTypeIO
	}

	if errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return ErrorTypePermission
	}

	return ErrorTypeUnknown
}

// hashMismatchError is raised by the analyzer (C5) when a pre-hash and
// post-hash of the same stream disagree — a permanent, unrecoverable
// condition distinct from any OS-level error.
type hashMismatchError struct {
	Expected, Actual string
}

func (e *hashMismatchError) Error() string {
	return "hash mismatch: expected " + e.Expected + ", got " + e.Actual
}

// NewHashMismatchError constructs the error Classify recognizes as
// ErrorTypeHash.
func NewHashMismatchError(expected, actual string) error {
	return &hashMismatchError{Expected: expected, Actual: actual}
}

func isHashMismatch(err error) bool {
	var hm *hashMismatchError
	return errors.As(err, &hm)
}
