package atcbor

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"
)

func testCID(t *testing.T, data string) cid.Cid {
	t.Helper()
	mh, err := multihash.Sum([]byte(data), multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.DagCBOR, mh)
}

func encodeTagged(c cid.Cid) []byte {
	b := c.Bytes()
	body := make([]byte, 0, len(b)+1)
	body = append(body, multibaseIdentity)
	body = append(body, b...)

	var buf bytes.Buffer
	// major type 6 (tag), tag value 42 fits in one extra byte (0xd8 0x2a)
	buf.WriteByte(0xd8)
	buf.WriteByte(42)

	// major type 2 (byte string), length as minimal-width header
	n := len(body)
	switch {
	case n < 24:
		buf.WriteByte(byte(0x40 | n))
	case n < 256:
		buf.WriteByte(0x58)
		buf.WriteByte(byte(n))
	default:
		panic("test fixture too large")
	}
	buf.Write(body)

	return buf.Bytes()
}

func TestReadCID_RoundTrip(t *testing.T) {
	t.Parallel()

	c := testCID(t, "hello world")
	raw := encodeTagged(c)

	got, err := ReadCID(bufio.NewReader(bytes.NewReader(raw)))
	require.NoError(t, err)
	require.True(t, c.Equals(got))
}

func TestReadCID_NotTagged42(t *testing.T) {
	t.Parallel()

	// major type 0 (unsigned int) instead of a tag
	raw := []byte{0x01}
	_, err := ReadCID(bufio.NewReader(bytes.NewReader(raw)))
	require.ErrorIs(t, err, ErrNotTagged42)
}

func TestDecodeBytes_MissingIdentityPrefix(t *testing.T) {
	t.Parallel()

	c := testCID(t, "x")
	raw := c.Bytes() // no leading 0x00
	_, err := DecodeBytes(raw)
	require.ErrorIs(t, err, ErrMissingIdentity)
}

func TestDecodeBytes_Malformed(t *testing.T) {
	t.Parallel()

	_, err := DecodeBytes([]byte{0x00, 0xff, 0xff})
	require.ErrorIs(t, err, ErrMalformedCID)
}
