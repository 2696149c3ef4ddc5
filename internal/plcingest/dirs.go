package plcingest

import "github.com/apple/foundationdb/bindings/go/src/fdb/directory"

// Dirs is the subset of store.Dirs this package reads and writes: the
// identity directories it mirrors into, plus its own cursor.
type Dirs struct {
	DidAka directory.DirectorySubspace
	AkaDid directory.DirectorySubspace
	Meta   directory.DirectorySubspace
}
