package repo

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	gocar "github.com/ipld/go-car"
	carutil "github.com/ipld/go-car/util"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"
)

func cidOf(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, mh)
}

func appendHeader(buf []byte, major byte, n uint64) []byte {
	switch {
	case n < 24:
		return append(buf, major<<5|byte(n))
	case n < 256:
		return append(buf, major<<5|24, byte(n))
	default:
		b := make([]byte, 3)
		b[0] = major<<5 | 25
		b[1] = byte(n >> 8)
		b[2] = byte(n)
		return append(buf, b...)
	}
}

func appendText(buf []byte, s string) []byte {
	buf = appendHeader(buf, 3, uint64(len(s)))
	return append(buf, s...)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendHeader(buf, 2, uint64(len(b)))
	return append(buf, b...)
}

func appendTaggedCID(buf []byte, c cid.Cid) []byte {
	buf = appendHeader(buf, 6, 42)
	body := append([]byte{0x00}, c.Bytes()...)
	buf = appendHeader(buf, 2, uint64(len(body)))
	return append(buf, body...)
}

// buildSingleEntryNode builds the raw bytes of an MST node with no left
// subtree and one entry, matching what internal/mst's decoder expects.
func buildSingleEntryNode(key string, value cid.Cid) []byte {
	var buf []byte
	buf = appendHeader(buf, 5, 2)
	buf = appendText(buf, "l")
	buf = append(buf, 0xf6)
	buf = appendText(buf, "e")
	buf = appendHeader(buf, 4, 1)
	buf = appendHeader(buf, 5, 4)
	buf = appendText(buf, "p")
	buf = appendHeader(buf, 0, 0)
	buf = appendText(buf, "k")
	buf = appendBytes(buf, []byte(key))
	buf = appendText(buf, "v")
	buf = appendTaggedCID(buf, value)
	buf = appendText(buf, "t")
	buf = append(buf, 0xf6)
	return buf
}

func buildSignedCommit(did string, data cid.Cid) []byte {
	var buf []byte
	buf = appendHeader(buf, 5, 5)
	buf = appendText(buf, "did")
	buf = appendText(buf, did)
	buf = appendText(buf, "version")
	buf = appendHeader(buf, 0, 3)
	buf = appendText(buf, "prev")
	buf = append(buf, 0xf6)
	buf = appendText(buf, "data")
	buf = appendTaggedCID(buf, data)
	buf = appendText(buf, "sig")
	buf = appendBytes(buf, []byte("sig-bytes"))
	return buf
}

func writeCARBytes(t *testing.T, roots []cid.Cid, blocks map[cid.Cid][]byte) []byte {
	t.Helper()

	headerBytes, err := cbor.DumpObject(&gocar.CarHeader{Roots: roots, Version: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, carutil.LdWrite(&buf, headerBytes))
	for c, b := range blocks {
		require.NoError(t, carutil.LdWrite(&buf, c.Bytes(), b))
	}

	return buf.Bytes()
}

func TestLoad_EndToEnd(t *testing.T) {
	t.Parallel()

	recordBytes := []byte("record-block")
	recordCID := cidOf(t, recordBytes)

	nodeBytes := buildSingleEntryNode("app.bsky.graph.follow/r1", recordCID)
	nodeCID := cidOf(t, nodeBytes)

	commitBytes := buildSignedCommit("did:plc:alice", nodeCID)
	commitCID := cidOf(t, commitBytes)

	raw := writeCARBytes(t, []cid.Cid{commitCID}, map[cid.Cid][]byte{
		commitCID: commitBytes,
		nodeCID:   nodeBytes,
		recordCID: recordBytes,
	})

	bs, err := Load(bytes.NewReader(raw), Options{})
	require.NoError(t, err)
	require.Equal(t, "did:plc:alice", bs.Commit.DID)

	got, ok := bs.Get("app.bsky.graph.follow/r1")
	require.True(t, ok)
	require.Equal(t, recordBytes, got)

	_, ok = bs.Get("does-not-exist")
	require.False(t, ok)
}

func TestLoad_NoRoots(t *testing.T) {
	t.Parallel()

	raw := writeCARBytes(t, nil, nil)
	_, err := Load(bytes.NewReader(raw), Options{})
	require.ErrorIs(t, err, ErrNoRoots)
}

func TestLoad_MissingRootCID(t *testing.T) {
	t.Parallel()

	phantom := cidOf(t, []byte("phantom"))
	raw := writeCARBytes(t, []cid.Cid{phantom}, nil)

	_, err := Load(bytes.NewReader(raw), Options{})
	require.ErrorIs(t, err, ErrMissingRootCID)
}
