// Package mst reconstructs the full key to value-CID mapping stored in an
// AT Protocol repository's Merkle Search Tree, given the block map produced
// by the CAR reader and the root node's CID.
package mst

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
)

var ErrMissingCID = errors.New("mst: block missing from block map")

// BlockSource is the minimal capability the walker needs: look up a block's
// raw bytes by CID. github.com/follownet/skymirror/internal/repo.Blockstore
// satisfies this directly.
type BlockSource interface {
	GetByCID(c cid.Cid) ([]byte, bool)
}

// Walk reconstructs the full key -> value CID mapping by walking the tree
// rooted at root, in order. When ignoreMissing is true, a subtree whose
// root CID is absent from blocks contributes nothing instead of failing.
func Walk(blocks BlockSource, root cid.Cid, ignoreMissing bool) (map[string]cid.Cid, error) {
	out := make(map[string]cid.Cid)
	if err := walk(blocks, root, ignoreMissing, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func walk(blocks BlockSource, root cid.Cid, ignoreMissing bool, _ []byte, out map[string]cid.Cid) error {
	raw, ok := blocks.GetByCID(root)
	if !ok {
		if ignoreMissing {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrMissingCID, root)
	}

	nd, err := decodeNode(raw)
	if err != nil {
		return err
	}

	if nd.left != nil {
		if err := walk(blocks, *nd.left, ignoreMissing, nil, out); err != nil {
			return err
		}
	}

	var prevKey []byte
	for _, e := range nd.entries {
		fullKey, err := fullKey(prevKey, e.prefixLen, e.keySuffix)
		if err != nil {
			return err
		}

		out[string(fullKey)] = e.value
		prevKey = fullKey

		if e.right != nil {
			if err := walk(blocks, *e.right, ignoreMissing, nil, out); err != nil {
				return err
			}
		}
	}

	return nil
}

// fullKey computes prevKey[0:prefixLen] ++ keySuffix, the prefix-compression
// rule every MST node entry encodes its key with.
func fullKey(prevKey []byte, prefixLen uint64, keySuffix []byte) ([]byte, error) {
	if prefixLen > uint64(len(prevKey)) {
		return nil, fmt.Errorf("%w: prefix length %d exceeds previous key length %d", ErrMalformedNode, prefixLen, len(prevKey))
	}

	full := make([]byte, 0, prefixLen+uint64(len(keySuffix)))
	full = append(full, prevKey[:prefixLen]...)
	full = append(full, keySuffix...)

	return full, nil
}
