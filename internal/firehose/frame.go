// Package firehose maintains a resumable websocket subscription to an
// AT-Protocol relay's repo event stream and applies follow-graph effects to
// the follows mirror store as they arrive.
package firehose

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
	majorNegInt     = 1
	majorByteString = 2
	majorTextString = 3
	majorArray      = 4
	majorMap        = 5
	majorSimple     = 7

	simpleFalse = 20
	simpleTrue  = 21
	simpleNull  = 22
)

var (
	// ErrFirehoseError is returned when the relay sends an op == -1 error
	// frame; it terminates the stream.
	ErrFirehoseError = errors.New("firehose: relay sent error frame")
	// ErrUnknownOp is returned for any header op other than 1 or -1.
	ErrUnknownOp  = errors.New("firehose: unknown frame op")
	ErrMalformed  = errors.New("firehose: malformed frame")
)

// Header is the first of the two concatenated DAG-CBOR values in every
// frame.
type Header struct {
	Op   int64
	Type string
}

// RepoOp is one entry of a #commit frame's ops array.
type RepoOp struct {
	Action string
	Path   string
	CID    *cid.Cid
}

// Commit is the body of a #commit frame.
type Commit struct {
	Seq    int64
	Repo   string
	Ops    []RepoOp
	Blocks []byte
	Time   string
}

// Tombstone is the body of a #tombstone frame.
type Tombstone struct {
	Seq  int64
	DID  string
	Time string
}

// Handle is the body of a #handle frame.
type Handle struct {
	Seq    int64
	DID    string
	Handle string
	Time   string
}

// Migrate is the body of a #migrate frame.
type Migrate struct {
	Seq       int64
	DID       string
	MigrateTo string
	Time      string
}

// Info is the body of an #info frame. It carries no seq.
type Info struct {
	Name    string
	Message string
}

// ErrorBody is the body of an op == -1 error frame.
type ErrorBody struct {
	Error   string
	Message string
}

// ReadHeader decodes the frame's leading {op, t} map.
func ReadHeader(br *bufio.Reader) (Header, error) {
	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return Header{}, fmt.Errorf("%w: reading header map: %w", ErrMalformed, err)
	}
	if maj != majorMap {
		return Header{}, fmt.Errorf("%w: expected map for header, got major type %d", ErrMalformed, maj)
	}

	var h Header
	for i := uint64(0); i < n; i++ {
		key, err := readTextString(br)
		if err != nil {
			return Header{}, fmt.Errorf("%w: reading header field key: %w", ErrMalformed, err)
		}

		switch key {
		case "op":
			v, err := readInt(br)
			if err != nil {
				return Header{}, fmt.Errorf("%w: reading op: %w", ErrMalformed, err)
			}
			h.Op = v
		case "t":
			v, err := readOptionalTextString(br)
			if err != nil {
				return Header{}, fmt.Errorf("%w: reading t: %w", ErrMalformed, err)
			}
			h.Type = v
		default:
			if err := skipValue(br); err != nil {
				return Header{}, fmt.Errorf("%w: skipping header field %q: %w", ErrMalformed, key, err)
			}
		}
	}

	return h, nil
}

// ReadErrorBody decodes the body of an op == -1 frame.
func ReadErrorBody(br *bufio.Reader) (ErrorBody, error) {
	var body ErrorBody
	err := readStringMap(br, map[string]*string{
		"error":   &body.Error,
		"message": &body.Message,
	})
	return body, err
}

// ReadCommit decodes a #commit frame body.
func ReadCommit(br *bufio.Reader) (Commit, error) {
	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return Commit{}, fmt.Errorf("%w: reading commit map header: %w", ErrMalformed, err)
	}
	if maj != majorMap {
		return Commit{}, fmt.Errorf("%w: expected map for commit body, got major type %d", ErrMalformed, maj)
	}

	var c Commit
	for i := uint64(0); i < n; i++ {
		key, err := readTextString(br)
		if err != nil {
			return Commit{}, fmt.Errorf("%w: reading commit field key: %w", ErrMalformed, err)
		}

		switch key {
		case "seq":
			v, err := readInt(br)
			if err != nil {
				return Commit{}, fmt.Errorf("%w: reading seq: %w", ErrMalformed, err)
			}
			c.Seq = v
		case "repo":
			v, err := readTextString(br)
			if err != nil {
				return Commit{}, fmt.Errorf("%w: reading repo: %w", ErrMalformed, err)
			}
			c.Repo = v
		case "time":
			v, err := readTextString(br)
			if err != nil {
				return Commit{}, fmt.Errorf("%w: reading time: %w", ErrMalformed, err)
			}
			c.Time = v
		case "blocks":
			v, err := readByteString(br)
			if err != nil {
				return Commit{}, fmt.Errorf("%w: reading blocks: %w", ErrMalformed, err)
			}
			c.Blocks = v
		case "ops":
			v, err := readRepoOps(br)
			if err != nil {
				return Commit{}, fmt.Errorf("%w: reading ops: %w", ErrMalformed, err)
			}
			c.Ops = v
		default:
			if err := skipValue(br); err != nil {
				return Commit{}, fmt.Errorf("%w: skipping commit field %q: %w", ErrMalformed, key, err)
			}
		}
	}

	return c, nil
}

func readRepoOps(br *bufio.Reader) ([]RepoOp, error) {
	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return nil, err
	}
	if maj != majorArray {
		return nil, fmt.Errorf("expected array for ops, got major type %d", maj)
	}

	ops := make([]RepoOp, 0, n)
	for i := uint64(0); i < n; i++ {
		op, err := readRepoOp(br)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	return ops, nil
}

func readRepoOp(br *bufio.Reader) (RepoOp, error) {
	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return RepoOp{}, err
	}
	if maj != majorMap {
		return RepoOp{}, fmt.Errorf("expected map for op, got major type %d", maj)
	}

	var op RepoOp
	for i := uint64(0); i < n; i++ {
		key, err := readTextString(br)
		if err != nil {
			return RepoOp{}, err
		}

		switch key {
		case "action":
			v, err := readTextString(br)
			if err != nil {
				return RepoOp{}, err
			}
			op.Action = v
		case "path":
			v, err := readTextString(br)
			if err != nil {
				return RepoOp{}, err
			}
			op.Path = v
		case "cid":
			v, err := readOptionalCID(br)
			if err != nil {
				return RepoOp{}, err
			}
			op.CID = v
		default:
			if err := skipValue(br); err != nil {
				return RepoOp{}, err
			}
		}
	}

	return op, nil
}

// ReadTombstone decodes a #tombstone frame body.
func ReadTombstone(br *bufio.Reader) (Tombstone, error) {
	var t Tombstone
	err := readGenericMap(br, func(key string, br *bufio.Reader) error {
		switch key {
		case "seq":
			v, err := readInt(br)
			t.Seq = v
			return err
		case "did":
			v, err := readTextString(br)
			t.DID = v
			return err
		case "time":
			v, err := readTextString(br)
			t.Time = v
			return err
		default:
			return skipValue(br)
		}
	})
	return t, err
}

// ReadHandle decodes a #handle frame body.
func ReadHandle(br *bufio.Reader) (Handle, error) {
	var h Handle
	err := readGenericMap(br, func(key string, br *bufio.Reader) error {
		switch key {
		case "seq":
			v, err := readInt(br)
			h.Seq = v
			return err
		case "did":
			v, err := readTextString(br)
			h.DID = v
			return err
		case "handle":
			v, err := readTextString(br)
			h.Handle = v
			return err
		case "time":
			v, err := readTextString(br)
			h.Time = v
			return err
		default:
			return skipValue(br)
		}
	})
	return h, err
}

// ReadMigrate decodes a #migrate frame body.
func ReadMigrate(br *bufio.Reader) (Migrate, error) {
	var m Migrate
	err := readGenericMap(br, func(key string, br *bufio.Reader) error {
		switch key {
		case "seq":
			v, err := readInt(br)
			m.Seq = v
			return err
		case "did":
			v, err := readTextString(br)
			m.DID = v
			return err
		case "migrateTo":
			v, err := readOptionalTextString(br)
			m.MigrateTo = v
			return err
		case "time":
			v, err := readTextString(br)
			m.Time = v
			return err
		default:
			return skipValue(br)
		}
	})
	return m, err
}

// ReadInfo decodes an #info frame body.
func ReadInfo(br *bufio.Reader) (Info, error) {
	var info Info
	err := readGenericMap(br, func(key string, br *bufio.Reader) error {
		switch key {
		case "name":
			v, err := readTextString(br)
			info.Name = v
			return err
		case "message":
			v, err := readOptionalTextString(br)
			info.Message = v
			return err
		default:
			return skipValue(br)
		}
	})
	return info, err
}

// FollowRecord is the decoded payload of an app.bsky.graph.follow record
// block.
type FollowRecord struct {
	Subject   string
	CreatedAt string
}

// ReadFollowRecord decodes a follow record block's bytes.
func ReadFollowRecord(raw []byte) (FollowRecord, error) {
	br := bufio.NewReader(bytes.NewReader(raw))

	var rec FollowRecord
	err := readGenericMap(br, func(key string, br *bufio.Reader) error {
		switch key {
		case "subject":
			v, err := readTextString(br)
			rec.Subject = v
			return err
		case "createdAt":
			v, err := readTextString(br)
			rec.CreatedAt = v
			return err
		default:
			return skipValue(br)
		}
	})
	return rec, err
}

func readGenericMap(br *bufio.Reader, fn func(key string, br *bufio.Reader) error) error {
	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return fmt.Errorf("%w: reading map header: %w", ErrMalformed, err)
	}
	if maj != majorMap {
		return fmt.Errorf("%w: expected map, got major type %d", ErrMalformed, maj)
	}

	for i := uint64(0); i < n; i++ {
		key, err := readTextString(br)
		if err != nil {
			return fmt.Errorf("%w: reading field key: %w", ErrMalformed, err)
		}
		if err := fn(key, br); err != nil {
			return fmt.Errorf("%w: reading field %q: %w", ErrMalformed, key, err)
		}
	}

	return nil
}

func readStringMap(br *bufio.Reader, fields map[string]*string) error {
	return readGenericMap(br, func(key string, br *bufio.Reader) error {
		dst, ok := fields[key]
		if !ok {
			return skipValue(br)
		}
		v, err := readTextString(br)
		*dst = v
		return err
	})
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

func readOptionalTextString(br *bufio.Reader) (string, error) {
	peek, err := br.Peek(1)
	if err != nil {
		return "", err
	}
	if peek[0] == 0xf6 {
		_, _, err := cbg.CborReadHeader(br)
		return "", err
	}
	return readTextString(br)
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

func readInt(br *bufio.Reader) (int64, error) {
	maj, n, err := cbg.CborReadHeader(br)
	if err != nil {
		return 0, err
	}
	switch maj {
	case majorUint:
		return int64(n), nil
	case majorNegInt:
		return -1 - int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got major type %d", maj)
	}
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
	case majorUint, majorNegInt:
		return nil
	case majorByteString, majorTextString:
		_, err := io.ReadFull(br, make([]byte, n))
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
	case 6:
		return skipValue(br)
	case majorSimple:
		return nil
	default:
		return fmt.Errorf("firehose: cannot skip major type %d", maj)
	}
}
