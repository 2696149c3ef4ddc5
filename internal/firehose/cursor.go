package firehose

import (
	"encoding/binary"
	"fmt"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/apple/foundationdb/bindings/go/src/fdb/directory"
)

var cursorKeySuffix = []byte("cursor")

func cursorKey(dir directory.DirectorySubspace) fdb.Key {
	return fdb.Key(append(append([]byte{}, dir.Bytes()...), cursorKeySuffix...))
}

// GetCursor reads the durably stored sequence number, if any.
func GetCursor(tx fdb.ReadTransaction, dir directory.DirectorySubspace) (int64, bool, error) {
	raw, err := tx.Get(cursorKey(dir)).Get()
	if err != nil {
		return 0, false, err
	}
	if raw == nil {
		return 0, false, nil
	}
	if len(raw) != 8 {
		return 0, false, fmt.Errorf("firehose: malformed cursor value (%d bytes)", len(raw))
	}

	return int64(binary.LittleEndian.Uint64(raw)), true, nil
}

// SetCursor durably stores seq as the new resume point.
func SetCursor(tx fdb.Transaction, dir directory.DirectorySubspace, seq int64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(seq))
	tx.Set(cursorKey(dir), buf)
}
