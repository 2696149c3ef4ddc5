// Package crawl enumerates every repo a PDS hosts, fetches each one's full
// repository snapshot, and replaces the follows mirror's view of that actor
// with what the snapshot actually contains.
package crawl

import "github.com/apple/foundationdb/bindings/go/src/fdb/directory"

// Dirs is the subset of the store's directory layout this package owns.
type Dirs struct {
	Queued  directory.DirectorySubspace
	Pending directory.DirectorySubspace
	Errored directory.DirectorySubspace
	Meta    directory.DirectorySubspace
}
