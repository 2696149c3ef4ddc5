package plcingest

import (
	"fmt"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/follownet/skymirror/internal/identity"
)

func identityDirs(dirs Dirs) identity.Dirs {
	return identity.Dirs{DidAka: dirs.DidAka, AkaDid: dirs.AkaDid}
}

// Apply mirrors one decoded export entry into the identity directories:
// a plc_operation (or normalized legacy create) unions its filtered
// also-known-as list onto the DID, a plc_tombstone deletes the DID and every
// aka recorded for it. Unrecognized operation types are ignored.
func Apply(tx fdb.Transaction, dirs Dirs, e entry) error {
	switch {
	case e.tombstoned:
		if err := identity.DeleteDID(tx, identityDirs(dirs), e.DID); err != nil {
			return fmt.Errorf("plcingest: deleting %s: %w", e.DID, err)
		}
	case e.plcOp != nil:
		identity.AddDID(tx, identityDirs(dirs), e.DID, filterAkas(e.plcOp.AlsoKnownAs))
	}

	return nil
}
