package crawl

import "github.com/apple/foundationdb/bindings/go/src/fdb"

var cursorKeySuffix = []byte("cursor")

func cursorKey(dirs Dirs) fdb.Key {
	return rawKey(dirs.Meta, cursorKeySuffix)
}

// GetCursor returns the list-repos enumeration cursor, if one has been
// persisted yet.
func GetCursor(tx fdb.ReadTransaction, dirs Dirs) (string, bool, error) {
	raw, err := tx.Get(cursorKey(dirs)).Get()
	if err != nil {
		return "", false, err
	}
	if raw == nil {
		return "", false, nil
	}
	return string(raw), true, nil
}

// SetCursor persists the list-repos enumeration cursor.
func SetCursor(tx fdb.Transaction, dirs Dirs, cursor string) {
	tx.Set(cursorKey(dirs), []byte(cursor))
}
