// Package idcodec turns a logical row id into a string safe to use as a
// remote document key, and back. Logical ids may contain characters the
// store forbids in a key segment (notably "/"); percent-encoding is applied
// symmetrically on every write and lookup, and undone on every read before
// a row is handed back to the adapter.
package idcodec

import "net/url"

// Encode returns the document-key-safe form of a logical row id.
func Encode(id string) string {
	return url.PathEscape(id)
}

// Decode recovers the logical row id from an encoded document key segment.
// A key that was never percent-encoded (legacy data, or an id containing no
// reserved characters) decodes to itself unchanged.
func Decode(encoded string) string {
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return encoded
	}
	return decoded
}
