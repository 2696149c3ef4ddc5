// Package car streams a CAR v1 file: a DAG-CBOR header naming the root CIDs,
// followed by a sequence of length-prefixed (CID, bytes) blocks.
package car

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/ipld/go-car"
	carutil "github.com/ipld/go-car/util"
	"github.com/multiformats/go-multihash"
)

var (
	ErrTruncated     = errors.New("car: truncated stream")
	ErrHeaderMalformed = errors.New("car: malformed header")
	ErrBlockMalformed  = errors.New("car: malformed block")
	ErrHashMismatch    = errors.New("car: block hash does not match its cid")
)

// Block is one (CID, bytes) pair read from a CAR stream.
type Block struct {
	Cid   cid.Cid
	Bytes []byte
}

// Options controls the behavior of Read.
type Options struct {
	// ValidateBlockHash requires that each block's CID multihash equal the
	// hash of its bytes; a mismatch fails the stream with ErrHashMismatch.
	ValidateBlockHash bool
}

// Reader reads successive blocks from a CAR v1 stream after having already
// parsed its header.
type Reader struct {
	r     io.Reader
	opts  Options
	Roots []cid.Cid
}

// NewReader parses the CAR header from r and returns a Reader positioned at
// the first block.
func NewReader(r io.Reader, opts Options) (*Reader, error) {
	headerBytes, err := carutil.LdRead(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrHeaderMalformed, err)
	}

	var hdr car.CarHeader
	if err := cbor.DecodeInto(headerBytes, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeaderMalformed, err)
	}
	if hdr.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported car version %d", ErrHeaderMalformed, hdr.Version)
	}

	return &Reader{r: r, opts: opts, Roots: hdr.Roots}, nil
}

// Next returns the next block, or io.EOF once the stream is exhausted.
func (cr *Reader) Next() (Block, error) {
	chunk, err := carutil.LdRead(cr.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Block{}, io.EOF
		}
		return Block{}, fmt.Errorf("%w: %w", ErrTruncated, err)
	}

	n, c, err := cid.CidFromBytes(chunk)
	if err != nil {
		return Block{}, fmt.Errorf("%w: %w", ErrBlockMalformed, err)
	}
	data := chunk[n:]

	if cr.opts.ValidateBlockHash {
		decoded, err := multihash.Decode(c.Hash())
		if err != nil {
			return Block{}, fmt.Errorf("%w: %w", ErrBlockMalformed, err)
		}

		sum, err := multihash.Sum(data, decoded.Code, decoded.Length)
		if err != nil {
			return Block{}, fmt.Errorf("%w: %w", ErrBlockMalformed, err)
		}
		if !bytes.Equal(sum, c.Hash()) {
			return Block{}, ErrHashMismatch
		}
	}

	return Block{Cid: c, Bytes: data}, nil
}

// ReadAll drains the reader, returning every block in stream order.
func (cr *Reader) ReadAll() ([]Block, error) {
	var blocks []Block
	for {
		b, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return blocks, nil
		}
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
}
