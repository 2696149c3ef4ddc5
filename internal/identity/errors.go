package identity

import "errors"

// ErrMalformedKey is returned when a key read back from the identity
// directories does not split into the expected number of NUL-joined parts.
var ErrMalformedKey = errors.New("identity: malformed key")
