package plcingest

import "github.com/apple/foundationdb/bindings/go/src/fdb"

var cursorKeySuffix = []byte("after")

func cursorKey(dirs Dirs) fdb.Key {
	out := make([]byte, 0, len(dirs.Meta.Bytes())+len(cursorKeySuffix))
	out = append(out, dirs.Meta.Bytes()...)
	out = append(out, cursorKeySuffix...)
	return fdb.Key(out)
}

// GetCursor returns the export stream's "after" cursor, if one has been
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

// SetCursor persists cursor as the new "after" resume point.
func SetCursor(tx fdb.Transaction, dirs Dirs, cursor string) {
	tx.Set(cursorKey(dirs), []byte(cursor))
}
