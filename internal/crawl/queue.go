package crawl

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/apple/foundationdb/bindings/go/src/fdb/directory"
)

const errorValueSep = "\x00"

func rawKey(dir directory.DirectorySubspace, suffix []byte) fdb.Key {
	out := make([]byte, 0, len(dir.Bytes())+len(suffix))
	out = append(out, dir.Bytes()...)
	out = append(out, suffix...)
	return fdb.Key(out)
}

func fullRange(dir directory.DirectorySubspace) fdb.KeyRange {
	return fdb.KeyRange{
		Begin: rawKey(dir, nil),
		End:   rawKey(dir, []byte{0xff}),
	}
}

// Enqueue inserts did into the queued set. Idempotent within queued:
// re-enqueuing a DID already queued overwrites the same key. The pending and
// errored sets are not checked, so a DID held there also gains a queued entry.
func Enqueue(tx fdb.Transaction, dirs Dirs, did string) {
	tx.Set(rawKey(dirs.Queued, []byte(did)), nil)
}

// Pop atomically removes one DID from queued and inserts it into pending,
// the "first key, skip-locked" work-stealing pattern. ok is false if queued
// is empty.
func Pop(tx fdb.Transaction, dirs Dirs) (did string, ok bool, err error) {
	iter := tx.GetRange(fullRange(dirs.Queued), fdb.RangeOptions{Limit: 1}).Iterator()
	if !iter.Advance() {
		return "", false, nil
	}

	kv, err := iter.Get()
	if err != nil {
		return "", false, fmt.Errorf("crawl: pop: %w", err)
	}

	did = string(kv.Key[len(dirs.Queued.Bytes()):])
	tx.Clear(kv.Key)
	tx.Set(rawKey(dirs.Pending, []byte(did)), nil)

	return did, true, nil
}

// RequeuePending moves every pending DID back into queued in one
// transaction. Called once at startup: any DID left pending across a
// restart was incompletely processed.
func RequeuePending(tx fdb.Transaction, dirs Dirs) error {
	iter := tx.GetRange(fullRange(dirs.Pending), fdb.RangeOptions{}).Iterator()
	for iter.Advance() {
		kv, err := iter.Get()
		if err != nil {
			return fmt.Errorf("crawl: requeue_pending: %w", err)
		}

		did := kv.Key[len(dirs.Pending.Bytes()):]
		tx.Clear(kv.Key)
		tx.Set(rawKey(dirs.Queued, did), nil)
	}

	return nil
}

// FinishPending removes did from pending after it has been fully processed
// (either successfully merged or recorded as errored).
func FinishPending(tx fdb.Transaction, dirs Dirs, did string) {
	tx.Clear(rawKey(dirs.Pending, []byte(did)))
}

// MarkErrored records reason against did and removes it from pending.
func MarkErrored(tx fdb.Transaction, dirs Dirs, did, reason string) {
	value := time.Now().UTC().Format(time.RFC3339Nano) + errorValueSep + reason
	tx.Set(rawKey(dirs.Errored, []byte(did)), []byte(value))
	FinishPending(tx, dirs, did)
}

// ErroredEntry is one recorded crawl failure.
type ErroredEntry struct {
	DID        string
	RecordedAt time.Time
	Reason     string
}

func parseErroredValue(did string, raw []byte) ErroredEntry {
	s := string(raw)
	i := strings.Index(s, errorValueSep)
	if i < 0 {
		return ErroredEntry{DID: did, Reason: s}
	}

	t, _ := time.Parse(time.RFC3339Nano, s[:i])
	return ErroredEntry{DID: did, RecordedAt: t, Reason: s[i+len(errorValueSep):]}
}

// CountQueued, CountPending, and CountErrored report the size of each set.
func CountQueued(tx fdb.ReadTransaction, dirs Dirs) (int, error)  { return countRange(tx, dirs.Queued) }
func CountPending(tx fdb.ReadTransaction, dirs Dirs) (int, error) { return countRange(tx, dirs.Pending) }
func CountErrored(tx fdb.ReadTransaction, dirs Dirs) (int, error) { return countRange(tx, dirs.Errored) }

func countRange(tx fdb.ReadTransaction, dir directory.DirectorySubspace) (int, error) {
	n := 0
	iter := tx.GetRange(fullRange(dir), fdb.RangeOptions{}).Iterator()
	for iter.Advance() {
		if _, err := iter.Get(); err != nil {
			return 0, fmt.Errorf("crawl: counting directory: %w", err)
		}
		n++
	}
	return n, nil
}

// ListErrored returns the limit oldest-recorded errored entries. A limit of
// 0 returns every entry.
func ListErrored(tx fdb.ReadTransaction, dirs Dirs, limit int) ([]ErroredEntry, error) {
	var out []ErroredEntry

	iter := tx.GetRange(fullRange(dirs.Errored), fdb.RangeOptions{}).Iterator()
	for iter.Advance() {
		kv, err := iter.Get()
		if err != nil {
			return nil, fmt.Errorf("crawl: list_errored: %w", err)
		}

		did := string(kv.Key[len(dirs.Errored.Bytes()):])
		out = append(out, parseErroredValue(did, kv.Value))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}
