package follows

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/follownet/skymirror/internal/store"
)

// ImportCSV streams (actor, subject) pairs from r, one per CSV row with no
// header, and calls AddFollow for each with a synthesized rkey "csv:<line>"
// (1-indexed), one row per transaction. It returns the number of rows
// imported.
func ImportCSV(db *store.DB, dirs Dirs, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2

	var n int
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, fmt.Errorf("follows: reading csv row %d: %w", n+1, err)
		}

		n++
		actor, subject := row[0], row[1]
		rkey := fmt.Sprintf("csv:%d", n)

		if _, err := store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
			AddFollow(tx, dirs, rkey, actor, subject)
			return nil, nil
		}); err != nil {
			return n, fmt.Errorf("follows: importing csv row %d: %w", n, err)
		}
	}

	return n, nil
}
