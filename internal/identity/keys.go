package identity

import (
	"bytes"
	"fmt"
)

const sep = 0x00

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

func makeKeyPrefix(parts ...string) []byte {
	return append(makeKey(parts...), sep)
}

func splitKey(raw []byte) []string {
	fields := bytes.Split(raw, []byte{sep})
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

var errMalformedKey = func(raw []byte) error {
	return fmt.Errorf("%w: %q", ErrMalformedKey, raw)
}
