package ntt

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestHashingReaderMatchesHashBytes(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	hr := NewHashingReader(bytes.NewReader(data))
	got, err := readAll(hr)
	if err != nil {
		t.Fatalf("readAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read back %q, want %q", got, data)
	}
	if want := HashBytes(data); hr.Sum() != want {
		t.Errorf("Sum() = %s, want %s", hr.Sum(), want)
	}
}

func TestHashingReaderEmptyMatchesPinnedConstant(t *testing.T) {
	hr := NewHashingReader(strings.NewReader(""))
	if _, err := readAll(hr); err != nil {
		t.Fatalf("readAll: %v", err)
	}
	if hr.Sum() != EmptyBlobHash {
		t.Errorf("Sum() of empty stream = %s, want pinned EmptyBlobHash %s", hr.Sum(), EmptyBlobHash)
	}
}

func TestHashingReaderSniffCapped(t *testing.T) {
	data := bytes.Repeat([]byte("x"), sniffLen*3)
	hr := NewHashingReader(bytes.NewReader(data))
	if _, err := readAll(hr); err != nil {
		t.Fatalf("readAll: %v", err)
	}
	if len(hr.Sniff()) != sniffLen {
		t.Errorf("Sniff() len = %d, want %d", len(hr.Sniff()), sniffLen)
	}
}

func readAll(hr *HashingReader) ([]byte, error) {
	buf := make([]byte, 0)
	chunk := make([]byte, 16)
	for {
		n, err := hr.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf, nil
			}
			return buf, err
		}
		if n == 0 {
			return buf, nil
		}
	}
}
