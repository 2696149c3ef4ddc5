// Package follows mirrors AT-Protocol "follow" edges into three related
// FoundationDB tables: a records table keyed by rkey, and two NUL-joined
// index tables that make both forward (followees) and reverse (followers)
// lookups a cheap prefix scan.
package follows

import (
	"fmt"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/apple/foundationdb/bindings/go/src/fdb/directory"
)

// rawKey prepends dir's prefix to a raw, non-tuple-encoded key. Mirror-store
// keys are NUL-joined byte strings, not FDB tuples, so prefix scans behave
// exactly like the reference implementation's.
func rawKey(dir directory.DirectorySubspace, suffix []byte) fdb.Key {
	out := make([]byte, 0, len(dir.Bytes())+len(suffix))
	out = append(out, dir.Bytes()...)
	out = append(out, suffix...)
	return fdb.Key(out)
}

func makeRecord(actor, subject string) []byte {
	return makeKey(actor, subject)
}

func parseRecord(raw []byte) (actor, subject string, err error) {
	parts, _ := splitKey(raw)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedRecord, raw)
	}
	return parts[0], parts[1], nil
}

// AddFollow upserts the (actor, subject) edge under rkey. Idempotent: calling
// it again with the same arguments leaves the store unchanged.
func AddFollow(tx fdb.Transaction, dirs Dirs, rkey, actor, subject string) {
	tx.Set(rawKey(dirs.Records, []byte(rkey)), makeRecord(actor, subject))
	tx.Set(rawKey(dirs.IdxAS, makeKey(actor, subject, rkey)), nil)
	tx.Set(rawKey(dirs.IdxSA, makeKey(subject, actor, rkey)), nil)
}

// DeleteFollow removes the edge stored under rkey. A no-op if rkey is absent.
func DeleteFollow(tx fdb.Transaction, dirs Dirs, rkey string) error {
	raw, err := tx.Get(rawKey(dirs.Records, []byte(rkey))).Get()
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}

	actor, subject, err := parseRecord(raw)
	if err != nil {
		return fmt.Errorf("follows: delete_follow %q: %w", rkey, err)
	}

	tx.Clear(rawKey(dirs.Records, []byte(rkey)))
	tx.Clear(rawKey(dirs.IdxAS, makeKey(actor, subject, rkey)))
	tx.Clear(rawKey(dirs.IdxSA, makeKey(subject, actor, rkey)))

	return nil
}

// prefixRange builds the [prefix, prefix+0xff) range under dir for suffix.
func prefixRange(dir directory.DirectorySubspace, suffix []byte) fdb.KeyRange {
	begin := rawKey(dir, suffix)
	end := rawKey(dir, append(append([]byte{}, suffix...), 0xff))
	return fdb.KeyRange{Begin: begin, End: end}
}

// pruneIndex deletes every row in dir whose key starts with prefix and
// returns the rkey (third key part) of each deleted row.
func pruneIndex(tx fdb.Transaction, dir directory.DirectorySubspace, prefix []byte) ([]string, error) {
	var rkeys []string

	iter := tx.GetRange(prefixRange(dir, prefix), fdb.RangeOptions{}).Iterator()
	for iter.Advance() {
		kv, err := iter.Get()
		if err != nil {
			return nil, fmt.Errorf("follows: iterating index: %w", err)
		}

		suffix := kv.Key[len(dir.Bytes()):]
		parts, _ := splitKey(suffix)
		if len(parts) != 3 {
			return nil, errMalformedKey(suffix)
		}
		rkeys = append(rkeys, parts[2])
		tx.Clear(kv.Key)
	}

	return rkeys, nil
}

// DeleteActor removes actor and every edge touching it, incoming or
// outgoing, plus its records rows.
func DeleteActor(tx fdb.Transaction, dirs Dirs, actor string) error {
	prefix := makeKeyPrefix(actor)

	var rkeys []string
	fromAS, err := pruneIndex(tx, dirs.IdxAS, prefix)
	if err != nil {
		return err
	}
	rkeys = append(rkeys, fromAS...)

	fromSA, err := pruneIndex(tx, dirs.IdxSA, prefix)
	if err != nil {
		return err
	}
	rkeys = append(rkeys, fromSA...)

	// A self-follow (actor == subject) shows up in both scans.
	seen := make(map[string]bool, len(rkeys))
	for _, rkey := range rkeys {
		if seen[rkey] {
			continue
		}
		seen[rkey] = true

		raw, err := tx.Get(rawKey(dirs.Records, []byte(rkey))).Get()
		if err != nil {
			return err
		}
		if raw == nil {
			return fmt.Errorf("%w: records row missing for rkey %q", ErrMalformedKey, rkey)
		}

		a, s, err := parseRecord(raw)
		if err != nil {
			return fmt.Errorf("follows: delete_actor %q: %w", actor, err)
		}

		tx.Clear(rawKey(dirs.Records, []byte(rkey)))
		tx.Clear(rawKey(dirs.IdxAS, makeKey(a, s, rkey)))
		tx.Clear(rawKey(dirs.IdxSA, makeKey(s, a, rkey)))
	}

	return nil
}

// Follow is one observed (rkey, subject) edge, as produced by decoding a
// full repository snapshot.
type Follow struct {
	RKey    string
	Subject string
}

// ReplaceActorFollows atomically replaces every outgoing edge for actor with
// observed, as derived from a single full-repository crawl. Unlike
// DeleteActor, only actor's outgoing edges are touched: edges where actor is
// the subject (its followers) are left alone.
func ReplaceActorFollows(tx fdb.Transaction, dirs Dirs, actor string, observed []Follow) error {
	rkeys, err := pruneIndex(tx, dirs.IdxAS, makeKeyPrefix(actor))
	if err != nil {
		return err
	}

	for _, rkey := range rkeys {
		raw, err := tx.Get(rawKey(dirs.Records, []byte(rkey))).Get()
		if err != nil {
			return err
		}
		if raw == nil {
			continue
		}

		_, subject, err := parseRecord(raw)
		if err != nil {
			return fmt.Errorf("follows: replace_actor_follows %q: %w", actor, err)
		}

		tx.Clear(rawKey(dirs.Records, []byte(rkey)))
		tx.Clear(rawKey(dirs.IdxSA, makeKey(subject, actor, rkey)))
	}

	for _, f := range observed {
		AddFollow(tx, dirs, f.RKey, actor, f.Subject)
	}

	return nil
}

// scanSecondPart prefix-scans dir by prefix and extracts the second
// NUL-joined key part of every matching row.
func scanSecondPart(tx fdb.ReadTransaction, dir directory.DirectorySubspace, prefix []byte) ([]string, error) {
	var out []string

	iter := tx.GetRange(prefixRange(dir, prefix), fdb.RangeOptions{}).Iterator()
	for iter.Advance() {
		kv, err := iter.Get()
		if err != nil {
			return nil, fmt.Errorf("follows: iterating index: %w", err)
		}

		suffix := kv.Key[len(dir.Bytes()):]
		parts, _ := splitKey(suffix)
		if len(parts) < 2 {
			return nil, errMalformedKey(suffix)
		}
		out = append(out, parts[1])
	}

	return out, nil
}

// GetFollowees returns every subject actor follows.
func GetFollowees(tx fdb.ReadTransaction, dirs Dirs, actor string) ([]string, error) {
	return scanSecondPart(tx, dirs.IdxAS, makeKeyPrefix(actor))
}

// GetFollowers returns every actor that follows subject.
func GetFollowers(tx fdb.ReadTransaction, dirs Dirs, subject string) ([]string, error) {
	return scanSecondPart(tx, dirs.IdxSA, makeKeyPrefix(subject))
}

// IsFollowing reports whether actor follows subject.
func IsFollowing(tx fdb.ReadTransaction, dirs Dirs, actor, subject string) (bool, error) {
	iter := tx.GetRange(prefixRange(dirs.IdxAS, makeKeyPrefix(actor, subject)), fdb.RangeOptions{Limit: 1}).Iterator()
	if !iter.Advance() {
		return false, nil
	}
	if _, err := iter.Get(); err != nil {
		return false, fmt.Errorf("follows: is_following: %w", err)
	}

	return true, nil
}
