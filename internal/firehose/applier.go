package firehose

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/follownet/skymirror/internal/car"
	"github.com/follownet/skymirror/internal/follows"
	"github.com/ipfs/go-cid"
)

const followCollection = "app.bsky.graph.follow"

// Apply applies one decoded frame's effects to the follows mirror store
// under tx and reports the seq to advance the cursor to, if any. advance is
// false only for #info frames, which commit nothing.
func Apply(tx fdb.Transaction, dirs follows.Dirs, f Frame, log *slog.Logger) (seq int64, advance bool, err error) {
	switch {
	case f.Info != nil:
		log.Info("firehose info", "name", f.Info.Name, "message", f.Info.Message)
		return 0, false, nil

	case f.Commit != nil:
		applyCommit(tx, dirs, f.Commit, log)
		return f.Commit.Seq, true, nil

	case f.Tombstone != nil:
		if err := follows.DeleteActor(tx, dirs, f.Tombstone.DID); err != nil {
			return 0, false, err
		}
		return f.Tombstone.Seq, true, nil

	case f.Handle != nil:
		return f.Handle.Seq, true, nil

	case f.Migrate != nil:
		return f.Migrate.Seq, true, nil

	default:
		return 0, false, nil
	}
}

func applyCommit(tx fdb.Transaction, dirs follows.Dirs, c *Commit, log *slog.Logger) {
	for _, op := range c.Ops {
		collection, rkey, ok := splitPath(op.Path)
		if !ok || collection != followCollection {
			continue
		}

		switch op.Action {
		case "create", "update":
			applyCreate(tx, dirs, c, op, rkey, log)
		case "delete":
			if err := follows.DeleteFollow(tx, dirs, rkey); err != nil {
				log.Warn("failed to delete follow", "repo", c.Repo, "rkey", rkey, "err", err)
			}
		}
	}
}

func applyCreate(tx fdb.Transaction, dirs follows.Dirs, c *Commit, op RepoOp, rkey string, log *slog.Logger) {
	if op.CID == nil {
		return
	}

	blocks, err := readInlineCAR(c.Blocks)
	if err != nil {
		log.Error("failed to parse inline car", "repo", c.Repo, "rkey", rkey, "err", err)
		return
	}

	raw, ok := blocks[*op.CID]
	if !ok {
		return
	}

	rec, err := ReadFollowRecord(raw)
	if err != nil {
		log.Error("failed to decode follow record", "repo", c.Repo, "rkey", rkey, "err", err)
		return
	}

	follows.AddFollow(tx, dirs, rkey, c.Repo, rec.Subject)
}

// readInlineCAR drains a firehose commit's inline CAR into a CID -> bytes
// map, validating each block's hash. This is the asymmetric half of the
// block-hash-validation split: the crawl path's full-repo fetch does not
// validate (see internal/crawl).
func readInlineCAR(raw []byte) (map[cid.Cid][]byte, error) {
	cr, err := car.NewReader(bytes.NewReader(raw), car.Options{ValidateBlockHash: true})
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

	return blocks, nil
}

func splitPath(path string) (collection, rkey string, ok bool) {
	i := strings.IndexByte(path, '/')
	if i < 0 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}
