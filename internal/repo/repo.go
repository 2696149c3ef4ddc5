// Package repo composes the CID reader, CAR reader, and MST walker into the
// single entry point a caller actually needs: turning a repository's CAR
// byte stream into a queryable Blockstore.
package repo

import (
	"errors"
	"fmt"
	"io"

	"github.com/follownet/skymirror/internal/car"
	"github.com/follownet/skymirror/internal/mst"
	"github.com/ipfs/go-cid"
)

var (
	ErrNoRoots          = errors.New("repo: car has no roots")
	ErrMissingRootCID   = errors.New("repo: root commit block missing from car")
	ErrMalformedCommit  = errors.New("repo: malformed signed commit")
)

// Blockstore is the immutable result of a successful repository load: the
// full key -> value-CID map derived from the MST, and every block the CAR
// carried.
type Blockstore struct {
	Commit *SignedCommit

	mst    map[string]cid.Cid
	blocks map[cid.Cid][]byte
}

// Get returns the raw bytes of the block whose MST key is key.
func (b *Blockstore) Get(key string) ([]byte, bool) {
	c, ok := b.mst[key]
	if !ok {
		return nil, false
	}
	return b.GetByCID(c)
}

// GetByCID returns the raw bytes of the block with the given CID.
func (b *Blockstore) GetByCID(c cid.Cid) ([]byte, bool) {
	raw, ok := b.blocks[c]
	return raw, ok
}

// Keys returns every MST key, in no particular order.
func (b *Blockstore) Keys() []string {
	out := make([]string, 0, len(b.mst))
	for k := range b.mst {
		out = append(out, k)
	}
	return out
}

// KeysAndCIDs returns every (key, value CID) pair in the MST.
func (b *Blockstore) KeysAndCIDs() map[string]cid.Cid {
	return b.mst
}

// CIDs returns every CID present in the underlying block map.
func (b *Blockstore) CIDs() []cid.Cid {
	out := make([]cid.Cid, 0, len(b.blocks))
	for c := range b.blocks {
		out = append(out, c)
	}
	return out
}

// Options controls how a repository is loaded.
type Options struct {
	// ValidateBlockHash is forwarded to the CAR reader.
	ValidateBlockHash bool
	// MSTIgnoreMissing is forwarded to the MST walker.
	MSTIgnoreMissing bool
}

// Load drives r to completion, decodes its first root as a signed commit,
// and walks the MST rooted at the commit's data CID to produce a Blockstore.
func Load(r io.Reader, opts Options) (*Blockstore, error) {
	cr, err := car.NewReader(r, car.Options{ValidateBlockHash: opts.ValidateBlockHash})
	if err != nil {
		return nil, err
	}

	blocks := make(map[cid.Cid][]byte)
	for {
		b, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		blocks[b.Cid] = b.Bytes
	}

	if len(cr.Roots) == 0 {
		return nil, ErrNoRoots
	}
	rootCID := cr.Roots[0]

	rootBytes, ok := blocks[rootCID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRootCID, rootCID)
	}

	commit, err := decodeSignedCommit(rootBytes)
	if err != nil {
		return nil, err
	}

	bs := &Blockstore{Commit: commit, blocks: blocks}

	walked, err := mst.Walk(bs, commit.Data, opts.MSTIgnoreMissing)
	if err != nil {
		return nil, err
	}
	bs.mst = walked

	return bs, nil
}
