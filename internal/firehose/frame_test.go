package firehose

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"
)

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

func testCID(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, mh)
}

func buildHeader(op int64, typ string) []byte {
	var buf []byte
	buf = appendHeader(buf, 5, 2)
	buf = appendText(buf, "op")
	buf = appendHeader(buf, 0, uint64(op))
	buf = appendText(buf, "t")
	buf = appendText(buf, typ)
	return buf
}

func buildCommitBody(seq int64, repo string, ops [][3]string, blocks []byte) []byte {
	var buf []byte
	buf = appendHeader(buf, 5, 5)
	buf = appendText(buf, "seq")
	buf = appendHeader(buf, 0, uint64(seq))
	buf = appendText(buf, "repo")
	buf = appendText(buf, repo)
	buf = appendText(buf, "time")
	buf = appendText(buf, "2024-01-01T00:00:00Z")
	buf = appendText(buf, "blocks")
	buf = appendBytes(buf, blocks)
	buf = appendText(buf, "ops")
	buf = appendHeader(buf, 4, uint64(len(ops)))
	for _, op := range ops {
		action, path, cidStr := op[0], op[1], op[2]
		fieldCount := uint64(2)
		if cidStr != "" {
			fieldCount = 3
		}
		buf = appendHeader(buf, 5, fieldCount)
		buf = appendText(buf, "action")
		buf = appendText(buf, action)
		buf = appendText(buf, "path")
		buf = appendText(buf, path)
		if cidStr != "" {
			c, err := cid.Decode(cidStr)
			if err != nil {
				panic(err)
			}
			buf = appendText(buf, "cid")
			buf = appendTaggedCID(buf, c)
		}
	}
	return buf
}

func TestDecodeFrame_Commit(t *testing.T) {
	t.Parallel()

	opCID := testCID(t, []byte("op-cid"))
	frame := append(buildHeader(1, "#commit"), buildCommitBody(42, "did:plc:alice", [][3]string{
		{"create", "app.bsky.graph.follow/3k", opCID.String()},
	}, []byte("inline-car"))...)

	f, err := decodeFrame(frame)
	require.NoError(t, err)
	require.NotNil(t, f.Commit)
	require.Equal(t, int64(42), f.Commit.Seq)
	require.Equal(t, "did:plc:alice", f.Commit.Repo)
	require.Len(t, f.Commit.Ops, 1)
	require.Equal(t, "create", f.Commit.Ops[0].Action)
	require.Equal(t, "app.bsky.graph.follow/3k", f.Commit.Ops[0].Path)
	require.NotNil(t, f.Commit.Ops[0].CID)
	require.True(t, opCID.Equals(*f.Commit.Ops[0].CID))
	require.Equal(t, []byte("inline-car"), f.Commit.Blocks)
}

func TestDecodeFrame_ErrorOp(t *testing.T) {
	t.Parallel()

	var body []byte
	body = appendHeader(body, 5, 2)
	body = appendText(body, "error")
	body = appendText(body, "ConsumerTooSlow")
	body = appendText(body, "message")
	body = appendText(body, "you fell behind")

	var header []byte
	header = appendHeader(header, 5, 1)
	header = appendText(header, "op")
	header = appendHeader(header, 1, 0) // negative int -1

	frame := append(header, body...)

	_, err := decodeFrame(frame)
	require.ErrorIs(t, err, ErrFirehoseError)
}

func TestReadFollowRecord(t *testing.T) {
	t.Parallel()

	var buf []byte
	buf = appendHeader(buf, 5, 2)
	buf = appendText(buf, "subject")
	buf = appendText(buf, "did:plc:bob")
	buf = appendText(buf, "createdAt")
	buf = appendText(buf, "2024-01-01T00:00:00Z")

	rec, err := ReadFollowRecord(buf)
	require.NoError(t, err)
	require.Equal(t, "did:plc:bob", rec.Subject)
}

func TestReadHeader_Malformed(t *testing.T) {
	t.Parallel()

	br := bufio.NewReader(bytes.NewReader([]byte{0x00})) // a bare uint, not a map
	_, err := ReadHeader(br)
	require.ErrorIs(t, err, ErrMalformed)
}
