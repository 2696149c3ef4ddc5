package follows

import "github.com/apple/foundationdb/bindings/go/src/fdb/directory"

// Dirs is the subset of store.Dirs this package reads and writes. Callers
// construct it from a store.DB's opened directories.
type Dirs struct {
	Records directory.DirectorySubspace
	IdxAS   directory.DirectorySubspace
	IdxSA   directory.DirectorySubspace
}
