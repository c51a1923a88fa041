package ntt

import "github.com/gabriel-vasile/mimetype"

// SniffMIME returns a best-effort MIME type for the given leading
// bytes, or "" if detection fails. Never returns an error — per spec
// §4.1, MIME detection never fails the copy.
func SniffMIME(sniff []byte) string {
	if len(sniff) == 0 {
		return ""
	}
	mt := mimetype.Detect(sniff)
	if mt == nil {
		return ""
	}
	return mt.String()
}
