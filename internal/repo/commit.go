package repo

import (
	"bufio"
	"bytes"
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
	majorMap        = 5
)

// SignedCommit is the root block of a repository: the MST root plus the
// signature and previous-commit pointer the core preserves but never
// verifies.
type SignedCommit struct {
	DID     string
	Version uint8
	Prev    *cid.Cid
	Data    cid.Cid
	Sig     []byte
}

func decodeSignedCommit(raw []byte) (*SignedCommit, error) {
	br := bufio.NewReader(bytes.NewReader(raw))

	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("%w: reading commit map header: %w", ErrMalformedCommit, err)
	}
	if maj != majorMap {
		return nil, fmt.Errorf("%w: expected map, got major type %d", ErrMalformedCommit, maj)
	}

	var sc SignedCommit
	var haveData bool

	for i := uint64(0); i < n; i++ {
		key, err := readTextString(br)
		if err != nil {
			return nil, fmt.Errorf("%w: reading field key: %w", ErrMalformedCommit, err)
		}

		switch key {
		case "did":
			v, err := readTextString(br)
			if err != nil {
				return nil, fmt.Errorf("%w: reading did: %w", ErrMalformedCommit, err)
			}
			sc.DID = v

		case "version":
			v, err := readUint(br)
			if err != nil {
				return nil, fmt.Errorf("%w: reading version: %w", ErrMalformedCommit, err)
			}
			sc.Version = uint8(v)

		case "prev":
			v, err := readOptionalCID(br)
			if err != nil {
				return nil, fmt.Errorf("%w: reading prev: %w", ErrMalformedCommit, err)
			}
			sc.Prev = v

		case "data":
			v, err := atcbor.ReadCID(br)
			if err != nil {
				return nil, fmt.Errorf("%w: reading data: %w", ErrMalformedCommit, err)
			}
			sc.Data = v
			haveData = true

		case "sig":
			v, err := readByteString(br)
			if err != nil {
				return nil, fmt.Errorf("%w: reading sig: %w", ErrMalformedCommit, err)
			}
			sc.Sig = v

		default:
			if err := skipValue(br); err != nil {
				return nil, fmt.Errorf("%w: skipping unknown field %q: %w", ErrMalformedCommit, key, err)
			}
		}
	}

	if !haveData {
		return nil, fmt.Errorf("%w: missing required data field", ErrMalformedCommit)
	}

	return &sc, nil
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

func readOptionalCID(br *bufio.Reader) (*cid.Cid, error) {
	peek, err := br.Peek(1)
	if err != nil {
		return nil, err
	}
	if peek[0] == 0xf6 {
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

func skipValue(br *bufio.Reader) error {
	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return err
	}

	switch maj {
	case 0, 1:
		return nil
	case majorByteString, majorTextString:
		_, err := io.ReadFull(br, make([]byte, n))
		return err
	case 4:
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
	case 6:
		return skipValue(br)
	case 7:
		return nil
	default:
		return fmt.Errorf("repo: cannot skip major type %d", maj)
	}
}

