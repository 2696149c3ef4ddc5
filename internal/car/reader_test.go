package car

import (
	"bytes"
	"io"
	"testing"

	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	gocar "github.com/ipld/go-car"
	carutil "github.com/ipld/go-car/util"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"
)

func blockCID(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.DagCBOR, mh)
}

func writeCAR(t *testing.T, roots []cid.Cid, blocks []Block) []byte {
	t.Helper()

	headerBytes, err := cbor.DumpObject(&gocar.CarHeader{Roots: roots, Version: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, carutil.LdWrite(&buf, headerBytes))

	for _, b := range blocks {
		require.NoError(t, carutil.LdWrite(&buf, b.Cid.Bytes(), b.Bytes))
	}

	return buf.Bytes()
}

func TestReader_ReadsBlocksInOrder(t *testing.T) {
	t.Parallel()

	b1 := []byte("block one")
	b2 := []byte("block two")
	c1 := blockCID(t, b1)
	c2 := blockCID(t, b2)

	raw := writeCAR(t, []cid.Cid{c1}, []Block{{Cid: c1, Bytes: b1}, {Cid: c2, Bytes: b2}})

	r, err := NewReader(bytes.NewReader(raw), Options{})
	require.NoError(t, err)
	require.Equal(t, []cid.Cid{c1}, r.Roots)

	blocks, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.True(t, c1.Equals(blocks[0].Cid))
	require.Equal(t, b1, blocks[0].Bytes)
	require.True(t, c2.Equals(blocks[1].Cid))
	require.Equal(t, b2, blocks[1].Bytes)
}

func TestReader_ValidateBlockHash_Mismatch(t *testing.T) {
	t.Parallel()

	data := []byte("original")
	c := blockCID(t, data)

	raw := writeCAR(t, []cid.Cid{c}, []Block{{Cid: c, Bytes: []byte("tampered")}})

	r, err := NewReader(bytes.NewReader(raw), Options{ValidateBlockHash: true})
	require.NoError(t, err)

	_, err = r.Next()
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestReader_ValidateBlockHash_OK(t *testing.T) {
	t.Parallel()

	data := []byte("matches")
	c := blockCID(t, data)

	raw := writeCAR(t, []cid.Cid{c}, []Block{{Cid: c, Bytes: data}})

	r, err := NewReader(bytes.NewReader(raw), Options{ValidateBlockHash: true})
	require.NoError(t, err)

	b, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, data, b.Bytes)

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReader_TruncatedHeader(t *testing.T) {
	t.Parallel()

	_, err := NewReader(bytes.NewReader(nil), Options{})
	require.Error(t, err)
}
