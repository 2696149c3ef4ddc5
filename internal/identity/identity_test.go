package identity_test

import (
	"sort"
	"sync"
	"testing"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/follownet/skymirror/internal/identity"
	"github.com/follownet/skymirror/internal/store"
	"github.com/follownet/skymirror/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

var (
	setupOnce sync.Once

	// Should be retrieved via testStore(t); don't use this directly.
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
	require.NotNil(t, testingDB)

	return testingDB
}

func testDirs(t *testing.T) identity.Dirs {
	t.Helper()
	db := testStore(t)
	return identity.Dirs{
		DidAka: db.Dirs.PLCDidAka,
		AkaDid: db.Dirs.PLCAkaDid,
	}
}

func freshDID(t *testing.T) string {
	t.Helper()
	return "did:plc:" + testutil.RandString(16)
}

func TestPLCRename(t *testing.T) {
	t.Parallel()
	db := testStore(t)
	dirs := testDirs(t)

	did := freshDID(t)
	alice := "at://" + testutil.RandString(10)
	allie := "at://" + testutil.RandString(10)

	_, err := store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
		identity.AddDID(tx, dirs, did, []string{alice})
		return nil, nil
	})
	require.NoError(t, err)

	_, err = store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
		identity.AddDID(tx, dirs, did, []string{allie})
		return nil, nil
	})
	require.NoError(t, err)

	akas, err := store.ReadTransact(db.Raw(), func(tx fdb.ReadTransaction) ([]string, error) {
		return identity.GetAkas(tx, dirs, did)
	})
	require.NoError(t, err)
	sort.Strings(akas)
	want := []string{alice, allie}
	sort.Strings(want)
	require.Equal(t, want, akas)

	_, err = store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
		return nil, identity.DeleteDID(tx, dirs, did)
	})
	require.NoError(t, err)

	akas, err = store.ReadTransact(db.Raw(), func(tx fdb.ReadTransaction) ([]string, error) {
		return identity.GetAkas(tx, dirs, did)
	})
	require.NoError(t, err)
	require.Empty(t, akas)

	dids, err := store.ReadTransact(db.Raw(), func(tx fdb.ReadTransaction) ([]string, error) {
		return identity.GetDids(tx, dirs, alice)
	})
	require.NoError(t, err)
	require.Empty(t, dids)
}

func TestGetDids_ReverseLookup(t *testing.T) {
	t.Parallel()
	db := testStore(t)
	dirs := testDirs(t)

	did := freshDID(t)
	aka := "at://" + testutil.RandString(10)

	_, err := store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
		identity.AddDID(tx, dirs, did, []string{aka})
		return nil, nil
	})
	require.NoError(t, err)

	dids, err := store.ReadTransact(db.Raw(), func(tx fdb.ReadTransaction) ([]string, error) {
		return identity.GetDids(tx, dirs, aka)
	})
	require.NoError(t, err)
	require.Equal(t, []string{did}, dids)
}
