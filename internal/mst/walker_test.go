package mst

import (
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"
)

type fakeBlocks map[cid.Cid][]byte

func (f fakeBlocks) GetByCID(c cid.Cid) ([]byte, bool) {
	b, ok := f[c]
	return b, ok
}

func fakeCID(t *testing.T, seed string) cid.Cid {
	t.Helper()
	mh, err := multihash.Sum([]byte(seed), multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, mh)
}

// encodeNode hand-assembles the CBOR map {l: <left|null>, e: [...]} that
// decodeNode expects, mirroring the wire shape a real repository produces.
func encodeNode(t *testing.T, left *cid.Cid, entries []entry) []byte {
	t.Helper()

	var buf []byte
	buf = appendMapHeader(buf, 2)
	buf = appendTextString(buf, "l")
	if left == nil {
		buf = append(buf, 0xf6)
	} else {
		buf = appendTaggedCID(buf, *left)
	}
	buf = appendTextString(buf, "e")
	buf = appendArrayHeader(buf, len(entries))
	for _, e := range entries {
		buf = appendMapHeader(buf, 4)
		buf = appendTextString(buf, "p")
		buf = appendUint(buf, e.prefixLen)
		buf = appendTextString(buf, "k")
		buf = appendByteString(buf, e.keySuffix)
		buf = appendTextString(buf, "v")
		buf = appendTaggedCID(buf, e.value)
		buf = appendTextString(buf, "t")
		if e.right == nil {
			buf = append(buf, 0xf6)
		} else {
			buf = appendTaggedCID(buf, *e.right)
		}
	}

	return buf
}

func appendMapHeader(buf []byte, n int) []byte   { return appendHeader(buf, 5, uint64(n)) }
func appendArrayHeader(buf []byte, n int) []byte { return appendHeader(buf, 4, uint64(n)) }

func appendTextString(buf []byte, s string) []byte {
	buf = appendHeader(buf, 3, uint64(len(s)))
	return append(buf, s...)
}

func appendByteString(buf []byte, b []byte) []byte {
	buf = appendHeader(buf, 2, uint64(len(b)))
	return append(buf, b...)
}

func appendUint(buf []byte, v uint64) []byte {
	return appendHeader(buf, 0, v)
}

func appendTaggedCID(buf []byte, c cid.Cid) []byte {
	buf = appendHeader(buf, 6, 42)
	body := append([]byte{0x00}, c.Bytes()...)
	buf = appendHeader(buf, 2, uint64(len(body)))
	return append(buf, body...)
}

// appendHeader writes a minimal CBOR major-type/argument header. Small
// enough argument values (<24) fit directly; larger ones use the 1-byte
// follow-on form, sufficient for these tests' fixture sizes.
func appendHeader(buf []byte, major byte, n uint64) []byte {
	if n < 24 {
		return append(buf, major<<5|byte(n))
	}
	if n < 256 {
		return append(buf, major<<5|24, byte(n))
	}
	b := make([]byte, 3)
	b[0] = major<<5 | 25
	b[1] = byte(n >> 8)
	b[2] = byte(n)
	return append(buf, b...)
}

func TestWalk_PrefixCompression(t *testing.T) {
	t.Parallel()

	c1 := fakeCID(t, "v1")
	c2 := fakeCID(t, "v2")

	key1 := "app.bsky.graph.follow/aaa"
	node := encodeNode(t, nil, []entry{
		{prefixLen: 0, keySuffix: []byte(key1), value: c1},
		{prefixLen: 22, keySuffix: []byte("bbb"), value: c2},
	})

	nodeCID := fakeCID(t, "node")
	blocks := fakeBlocks{nodeCID: node}

	got, err := Walk(blocks, nodeCID, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got["app.bsky.graph.follow/aaa"].Equals(c1))
	require.True(t, got["app.bsky.graph.follow/bbb"].Equals(c2))
}

func TestWalk_LeftSubtreeAndRightSubtree(t *testing.T) {
	t.Parallel()

	leftVal := fakeCID(t, "left-val")
	rootVal := fakeCID(t, "root-val")
	rightVal := fakeCID(t, "right-val")

	leftNode := encodeNode(t, nil, []entry{{prefixLen: 0, keySuffix: []byte("aaa"), value: leftVal}})
	leftNodeCID := fakeCID(t, "left-node")

	rightNode := encodeNode(t, nil, []entry{{prefixLen: 0, keySuffix: []byte("ccc"), value: rightVal}})
	rightNodeCID := fakeCID(t, "right-node")

	rootNode := encodeNode(t, &leftNodeCID, []entry{
		{prefixLen: 0, keySuffix: []byte("bbb"), value: rootVal, right: &rightNodeCID},
	})
	rootCID := fakeCID(t, "root-node")

	blocks := fakeBlocks{
		leftNodeCID:  leftNode,
		rightNodeCID: rightNode,
		rootCID:      rootNode,
	}

	got, err := Walk(blocks, rootCID, false)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.True(t, got["aaa"].Equals(leftVal))
	require.True(t, got["bbb"].Equals(rootVal))
	require.True(t, got["ccc"].Equals(rightVal))
}

func TestWalk_MissingCID(t *testing.T) {
	t.Parallel()

	missing := fakeCID(t, "missing")
	blocks := fakeBlocks{}

	_, err := Walk(blocks, missing, false)
	require.ErrorIs(t, err, ErrMissingCID)
}

func TestWalk_IgnoreMissing(t *testing.T) {
	t.Parallel()

	missing := fakeCID(t, "missing")
	blocks := fakeBlocks{}

	got, err := Walk(blocks, missing, true)
	require.NoError(t, err)
	require.Empty(t, got)
}
