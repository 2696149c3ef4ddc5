package follows

import "errors"

var (
	// ErrMalformedKey is returned when a key read back from the follows
	// directories does not split into the expected number of NUL-joined
	// parts.
	ErrMalformedKey = errors.New("follows: malformed key")
	// ErrMalformedRecord is returned when a records-table value does not
	// split into exactly actor and subject.
	ErrMalformedRecord = errors.New("follows: malformed record")
)
