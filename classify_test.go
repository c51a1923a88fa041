package ntt

import (
	"errors"
	"io/fs"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeNone},
		{"not exist", fs.ErrNotExist, ErrorTypePath},
		{"enoent", syscall.ENOENT, ErrorTypePath},
		{"enametoolong", syscall.ENAMETOOLONG, ErrorTypePath},
		{"eio", syscall.EIO, ErrorTypeIO},
		{"beyond eof text", errors.New("read beyond EOF on device"), ErrorTypeIO},
		{"permission", fs.ErrPermission, ErrorTypePermission},
		{"eacces", syscall.EACCES, ErrorTypePermission},
		{"hash mismatch", NewHashMismatchError("a", "b"), ErrorTypeHash},
		{"unknown", errors.New("something else"), ErrorTypeUnknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Classify(c.err); got != c.want {
				t.Errorf("Classify(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestClassifyWrappedHashMismatch(t *testing.T) {
	err := NewError(ErrorTypeUnknown, NewHashMismatchError("a", "b"), nil)
	if got := Classify(err); got != ErrorTypeHash {
		t.Errorf("Classify(wrapped) = %v, want %v", got, ErrorTypeHash)
	}
}

func TestIsPermanent(t *testing.T) {
	for _, tc := range []struct {
		t    ErrorType
		want bool
	}{
		{ErrorTypeIO, true},
		{ErrorTypeHash, true},
		{ErrorTypePath, false},
		{ErrorTypePermission, false},
		{ErrorTypeUnknown, false},
	} {
		if got := tc.t.IsPermanent(); got != tc.want {
			t.Errorf("%v.IsPermanent() = %v, want %v", tc.t, got, tc.want)
		}
	}
}
