// Package identity mirrors PLC directory operations: the bidirectional
// mapping between a DID and its "also known as" handles.
package identity

import "github.com/apple/foundationdb/bindings/go/src/fdb/directory"

// Dirs is the subset of store.Dirs this package reads and writes.
type Dirs struct {
	DidAka directory.DirectorySubspace
	AkaDid directory.DirectorySubspace
}
