package mst

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/follownet/skymirror/internal/atcbor"
	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
)

const (
	majorUint       = 0
	majorByteString = 2
	majorTextString = 3
	majorArray      = 4
	majorMap        = 5
	majorSimple     = 7

	simpleNull = 22
)

var ErrMalformedNode = errors.New("mst: malformed node")

// entry is one (prefix_len, key_suffix, value, right) row of a node, in the
// order it appears on the wire.
type entry struct {
	prefixLen uint64
	keySuffix []byte
	value     cid.Cid
	right     *cid.Cid
}

// node is the decoded form of a single MST block: an optional left subtree
// CID and an ordered list of entries.
type node struct {
	left    *cid.Cid
	entries []entry
}

func decodeNode(raw []byte) (*node, error) {
	br := bufio.NewReader(bytes.NewReader(raw))

	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("%w: reading node map header: %w", ErrMalformedNode, err)
	}
	if maj != majorMap {
		return nil, fmt.Errorf("%w: expected map, got major type %d", ErrMalformedNode, maj)
	}

	var nd node
	for i := uint64(0); i < n; i++ {
		key, err := readTextString(br)
		if err != nil {
			return nil, fmt.Errorf("%w: reading field key: %w", ErrMalformedNode, err)
		}

		switch key {
		case "l":
			c, err := readOptionalCID(br)
			if err != nil {
				return nil, fmt.Errorf("%w: reading left: %w", ErrMalformedNode, err)
			}
			nd.left = c

		case "e":
			entries, err := readEntries(br)
			if err != nil {
				return nil, fmt.Errorf("%w: reading entries: %w", ErrMalformedNode, err)
			}
			nd.entries = entries

		default:
			if err := skipValue(br); err != nil {
				return nil, fmt.Errorf("%w: skipping unknown field %q: %w", ErrMalformedNode, key, err)
			}
		}
	}

	return &nd, nil
}

func readEntries(br *bufio.Reader) ([]entry, error) {
	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return nil, err
	}
	if maj != majorArray {
		return nil, fmt.Errorf("expected array, got major type %d", maj)
	}

	entries := make([]entry, 0, n)
	for i := uint64(0); i < n; i++ {
		e, err := readEntry(br)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

func readEntry(br *bufio.Reader) (entry, error) {
	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return entry{}, err
	}
	if maj != majorMap {
		return entry{}, fmt.Errorf("expected map, got major type %d", maj)
	}

	var e entry
	for i := uint64(0); i < n; i++ {
		key, err := readTextString(br)
		if err != nil {
			return entry{}, err
		}

		switch key {
		case "p":
			v, err := readUint(br)
			if err != nil {
				return entry{}, fmt.Errorf("reading p: %w", err)
			}
			e.prefixLen = v

		case "k":
			v, err := readByteString(br)
			if err != nil {
				return entry{}, fmt.Errorf("reading k: %w", err)
			}
			e.keySuffix = v

		case "v":
			v, err := atcbor.ReadCID(br)
			if err != nil {
				return entry{}, fmt.Errorf("reading v: %w", err)
			}
			e.value = v

		case "t":
			v, err := readOptionalCID(br)
			if err != nil {
				return entry{}, fmt.Errorf("reading t: %w", err)
			}
			e.right = v

		default:
			if err := skipValue(br); err != nil {
				return entry{}, fmt.Errorf("skipping unknown entry field %q: %w", key, err)
			}
		}
	}

	return e, nil
}

func readTextString(br *bufio.Reader) (string, error) {
	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return "", err
	}
	if maj != majorTextString {
		return "", fmt.Errorf("expected text string, got major type %d", maj)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

func readByteString(br *bufio.Reader) ([]byte, error) {
	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return nil, err
	}
	if maj != majorByteString {
		return nil, fmt.Errorf("expected byte string, got major type %d", maj)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

func readUint(br *bufio.Reader) (uint64, error) {
	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return 0, err
	}
	if maj != majorUint {
		return 0, fmt.Errorf("expected unsigned int, got major type %d", maj)
	}

	return n, nil
}

// readOptionalCID reads either a CBOR null or a tag-42 wrapped CID.
func readOptionalCID(br *bufio.Reader) (*cid.Cid, error) {
	peek, err := br.Peek(1)
	if err != nil {
		return nil, err
	}

	if peek[0] == 0xf6 { // major 7, simple value 22 (null)
		if _, _, err := cbg.CborReadHeader(br); err != nil {
			return nil, err
		}
		return nil, nil
	}

	c, err := atcbor.ReadCID(br)
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// skipValue discards one CBOR value of unknown shape, used for forward
// compatibility with node/entry fields this decoder does not consume.
func skipValue(br *bufio.Reader) error {
	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return err
	}

	switch maj {
	case majorUint, 1: // unsigned/negative int: value already consumed by header
		return nil
	case majorByteString, majorTextString:
		_, err := io.CopyN(io.Discard, br, int64(n))
		return err
	case majorArray:
		for i := uint64(0); i < n; i++ {
			if err := skipValue(br); err != nil {
				return err
			}
		}
		return nil
	case majorMap:
		for i := uint64(0); i < n*2; i++ {
			if err := skipValue(br); err != nil {
				return err
			}
		}
		return nil
	case 6: // tag: skip the tagged value
		return skipValue(br)
	case majorSimple:
		if n == simpleNull || n < 20 {
			return nil
		}
		return nil
	default:
		return fmt.Errorf("mst: cannot skip major type %d", maj)
	}
}
