package ntt

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// sniffLen is how many leading bytes HashingReader retains for MIME
// sniffing, matching gabriel-vasile/mimetype's recommended read size.
const sniffLen = 3072

// HashingReader wraps a source reader with a streaming content hash.
// A single pass over the data computes the hash and, as a side
// effect, records the first sniffLen bytes for MIME detection — spec
// §4.1 requires hashing to be O(1) memory regardless of file size, so
// the sniff buffer is capped independently of the stream length.
type HashingReader struct {
	r       io.Reader
	h       hash.Hash
	sniff   []byte
	sniffed bool
}

// NewHashingReader wraps r, computing a SHA-256 content hash as bytes
// are read through it.
func NewHashingReader(r io.Reader) *HashingReader {
	return &HashingReader{r: r, h: sha256.New()}
}

func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
		if !hr.sniffed {
			remaining := sniffLen - len(hr.sniff)
			if remaining > n {
				remaining = n
			}
			if remaining > 0 {
				hr.sniff = append(hr.sniff, p[:remaining]...)
			}
			if len(hr.sniff) >= sniffLen {
				hr.sniffed = true
			}
		}
	}
	return n, err
}

// Sum returns the hex-encoded content hash of everything read so far.
func (hr *HashingReader) Sum() string {
	return hex.EncodeToString(hr.h.Sum(nil))
}

// Sniff returns the leading bytes recorded for MIME detection.
func (hr *HashingReader) Sniff() []byte {
	return hr.sniff
}

// HashBytes computes the content hash of an in-memory buffer directly;
// tests use it as a reference for HashingReader.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
