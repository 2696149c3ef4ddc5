// Package atcbor decodes the DAG-CBOR representation of content identifiers
// as they appear embedded in AT Protocol repository blocks: a CBOR tag 42
// wrapping a byte string whose first byte is the multibase-identity marker
// 0x00, followed by the binary CID itself.
package atcbor

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
)

const (
	cidTag              = 42
	multibaseIdentity   = 0x00
	majorTypeTag        = 6
	majorTypeByteString = 2
)

var (
	ErrNotTagged42      = errors.New("atcbor: cbor value is not tagged 42")
	ErrMissingIdentity  = errors.New("atcbor: tagged byte string missing leading multibase-identity byte")
	ErrMalformedCID     = errors.New("atcbor: malformed cid bytes")
)

// ReadCID reads one DAG-CBOR CID value (tag 42 wrapping an identity-prefixed
// byte string) from br and returns the decoded CID.
func ReadCID(br *bufio.Reader) (cid.Cid, error) {
	maj, extra, err := cbg.CborReadHeader(br)
	if err != nil {
		return cid.Undef, fmt.Errorf("atcbor: reading tag header: %w", err)
	}
	if maj != majorTypeTag || extra != cidTag {
		return cid.Undef, ErrNotTagged42
	}

	bmaj, blen, err := cbg.CborReadHeader(br)
	if err != nil {
		return cid.Undef, fmt.Errorf("atcbor: reading byte string header: %w", err)
	}
	if bmaj != majorTypeByteString {
		return cid.Undef, fmt.Errorf("%w: expected byte string, got major type %d", ErrMalformedCID, bmaj)
	}

	buf := make([]byte, blen)
	if _, err := io.ReadFull(br, buf); err != nil {
		return cid.Undef, fmt.Errorf("atcbor: reading cid bytes: %w", err)
	}

	return DecodeBytes(buf)
}

// DecodeBytes decodes the identity-prefixed binary form used by DAG-CBOR:
// a leading 0x00 byte followed by a canonical CID (version | codec | multihash).
func DecodeBytes(buf []byte) (cid.Cid, error) {
	if len(buf) == 0 || buf[0] != multibaseIdentity {
		return cid.Undef, ErrMissingIdentity
	}

	c, err := cid.Cast(buf[1:])
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %w", ErrMalformedCID, err)
	}

	return c, nil
}
