package follows

import (
	"bytes"
	"fmt"
)

const sep = 0x00

// makeKey joins parts with a single NUL byte, the encoding the teacher's
// record and index keys use throughout.
func makeKey(parts ...string) []byte {
	out := make([]byte, 0, len(parts)*8)
	for i, p := range parts {
		if i > 0 {
			out = append(out, sep)
		}
		out = append(out, p...)
	}
	return out
}

// makeKeyPrefix is makeKey with a trailing NUL, so that a prefix scan for
// "a" never matches a sibling key "ab".
func makeKeyPrefix(parts ...string) []byte {
	return append(makeKey(parts...), sep)
}

// splitKey reverses makeKey, returning every NUL-delimited part.
func splitKey(raw []byte) ([]string, error) {
	fields := bytes.Split(raw, []byte{sep})
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out, nil
}

var errMalformedKey = func(raw []byte) error {
	return fmt.Errorf("%w: %q", ErrMalformedKey, raw)
}
