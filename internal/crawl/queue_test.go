package crawl_test

import (
	"sync"
	"testing"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/apple/foundationdb/bindings/go/src/fdb/directory"
	"github.com/follownet/skymirror/internal/crawl"
	"github.com/follownet/skymirror/internal/store"
	"github.com/follownet/skymirror/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

var (
	setupOnce sync.Once
	testingDB *store.DB
)

func testStore(t *testing.T) *store.DB {
	t.Helper()
	tracer := otel.Tracer("test")

	var err error
	setupOnce.Do(func() {
		testingDB, err = store.Open(tracer, store.Config{
			ClusterFile: "../../skymirror.cluster",
			APIVersion:  730,
		})
	})
	require.NoError(t, err)
	return testingDB
}

// testDirs opens a fresh, uniquely-named set of crawl directories per test,
// since Pop consumes the lexicographically first key in the whole queued
// directory: sharing one set of directories across tests (as follows_test.go
// and identity_test.go do, where every operation is scoped by a random
// actor/DID) would let tests steal each other's queued entries.
func testDirs(t *testing.T) crawl.Dirs {
	t.Helper()
	db := testStore(t)

	root := []string{"test_crawl", testutil.RandString(16)}
	open := func(name string) directory.DirectorySubspace {
		ds, err := directory.CreateOrOpen(db.Raw(), append(append([]string{}, root...), name), nil)
		require.NoError(t, err)
		return ds
	}

	return crawl.Dirs{
		Queued:  open("queued"),
		Pending: open("pending"),
		Errored: open("errored"),
		Meta:    open("meta"),
	}
}

func freshDID(t *testing.T) string {
	t.Helper()
	return "did:plc:" + testutil.RandString(16)
}

func TestPop_MovesQueuedToPending(t *testing.T) {
	t.Parallel()
	db := testStore(t)
	dirs := testDirs(t)

	did := freshDID(t)
	_, err := store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
		crawl.Enqueue(tx, dirs, did)
		return nil, nil
	})
	require.NoError(t, err)

	popped, err := store.Transact(db.Raw(), func(tx fdb.Transaction) (string, error) {
		d, ok, err := crawl.Pop(tx, dirs)
		require.True(t, ok)
		return d, err
	})
	require.NoError(t, err)
	require.Equal(t, did, popped)

	_, err = store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
		crawl.FinishPending(tx, dirs, did)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestRequeuePending_MovesBackToQueued(t *testing.T) {
	t.Parallel()
	db := testStore(t)
	dirs := testDirs(t)

	did := freshDID(t)
	_, err := store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
		crawl.Enqueue(tx, dirs, did)
		d, ok, err := crawl.Pop(tx, dirs)
		require.True(t, ok)
		require.Equal(t, did, d)
		return nil, err
	})
	require.NoError(t, err)

	_, err = store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
		return nil, crawl.RequeuePending(tx, dirs)
	})
	require.NoError(t, err)

	popped, err := store.Transact(db.Raw(), func(tx fdb.Transaction) (string, error) {
		d, ok, err := crawl.Pop(tx, dirs)
		require.True(t, ok)
		return d, err
	})
	require.NoError(t, err)
	require.Equal(t, did, popped, "did should be the only queued entry in this test's isolated directories")

	_, err = store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
		crawl.FinishPending(tx, dirs, did)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestMarkErrored_ListErrored_OldestFirst(t *testing.T) {
	t.Parallel()
	db := testStore(t)
	dirs := testDirs(t)

	didA := freshDID(t)
	didB := freshDID(t)

	_, err := store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
		crawl.MarkErrored(tx, dirs, didA, "first failure")
		return nil, nil
	})
	require.NoError(t, err)

	_, err = store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
		crawl.MarkErrored(tx, dirs, didB, "second failure")
		return nil, nil
	})
	require.NoError(t, err)

	entries, err := store.ReadTransact(db.Raw(), func(tx fdb.ReadTransaction) ([]crawl.ErroredEntry, error) {
		return crawl.ListErrored(tx, dirs, 0)
	})
	require.NoError(t, err)

	var sawA, sawB int
	for i, e := range entries {
		if e.DID == didA {
			sawA = i
		}
		if e.DID == didB {
			sawB = i
		}
	}
	require.Less(t, sawA, sawB, "didA was recorded first and must sort before didB")
}

func TestCounts(t *testing.T) {
	t.Parallel()
	db := testStore(t)
	dirs := testDirs(t)

	did := freshDID(t)
	before, err := store.ReadTransact(db.Raw(), func(tx fdb.ReadTransaction) (int, error) {
		return crawl.CountQueued(tx, dirs)
	})
	require.NoError(t, err)

	_, err = store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
		crawl.Enqueue(tx, dirs, did)
		return nil, nil
	})
	require.NoError(t, err)

	after, err := store.ReadTransact(db.Raw(), func(tx fdb.ReadTransaction) (int, error) {
		return crawl.CountQueued(tx, dirs)
	})
	require.NoError(t, err)
	require.Equal(t, before+1, after)
}
