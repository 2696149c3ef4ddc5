package identity

import (
	"fmt"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/apple/foundationdb/bindings/go/src/fdb/directory"
)

func rawKey(dir directory.DirectorySubspace, suffix []byte) fdb.Key {
	out := make([]byte, 0, len(dir.Bytes())+len(suffix))
	out = append(out, dir.Bytes()...)
	out = append(out, suffix...)
	return fdb.Key(out)
}

func prefixRange(dir directory.DirectorySubspace, suffix []byte) fdb.KeyRange {
	begin := rawKey(dir, suffix)
	end := rawKey(dir, append(append([]byte{}, suffix...), 0xff))
	return fdb.KeyRange{Begin: begin, End: end}
}

// AddDID records every (did, aka) pair in both directions. Idempotent.
func AddDID(tx fdb.Transaction, dirs Dirs, did string, akas []string) {
	for _, aka := range akas {
		tx.Set(rawKey(dirs.DidAka, makeKey(did, aka)), nil)
		tx.Set(rawKey(dirs.AkaDid, makeKey(aka, did)), nil)
	}
}

// DeleteDID removes did and every aka it was associated with.
func DeleteDID(tx fdb.Transaction, dirs Dirs, did string) error {
	var akas []string

	iter := tx.GetRange(prefixRange(dirs.DidAka, makeKeyPrefix(did)), fdb.RangeOptions{}).Iterator()
	for iter.Advance() {
		kv, err := iter.Get()
		if err != nil {
			return fmt.Errorf("identity: iterating did_aka: %w", err)
		}

		suffix := kv.Key[len(dirs.DidAka.Bytes()):]
		parts := splitKey(suffix)
		if len(parts) != 2 {
			return errMalformedKey(suffix)
		}
		akas = append(akas, parts[1])
		tx.Clear(kv.Key)
	}

	for _, aka := range akas {
		tx.Clear(rawKey(dirs.AkaDid, makeKey(aka, did)))
	}

	return nil
}

func scanSecondPart(tx fdb.ReadTransaction, dir directory.DirectorySubspace, prefix []byte) ([]string, error) {
	var out []string

	iter := tx.GetRange(prefixRange(dir, prefix), fdb.RangeOptions{}).Iterator()
	for iter.Advance() {
		kv, err := iter.Get()
		if err != nil {
			return nil, fmt.Errorf("identity: iterating index: %w", err)
		}

		suffix := kv.Key[len(dir.Bytes()):]
		parts := splitKey(suffix)
		if len(parts) < 2 {
			return nil, errMalformedKey(suffix)
		}
		out = append(out, parts[1])
	}

	return out, nil
}

// GetAkas returns every aka recorded for did.
func GetAkas(tx fdb.ReadTransaction, dirs Dirs, did string) ([]string, error) {
	return scanSecondPart(tx, dirs.DidAka, makeKeyPrefix(did))
}

// GetDids returns every did recorded under aka.
func GetDids(tx fdb.ReadTransaction, dirs Dirs, aka string) ([]string, error) {
	return scanSecondPart(tx, dirs.AkaDid, makeKeyPrefix(aka))
}
