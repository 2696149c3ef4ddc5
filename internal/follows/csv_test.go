package follows_test

import (
	"strings"
	"testing"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/follownet/skymirror/internal/follows"
	"github.com/follownet/skymirror/internal/store"
	"github.com/stretchr/testify/require"
)

func TestImportCSV(t *testing.T) {
	t.Parallel()
	db := testStore(t)
	dirs := testDirs(t)

	actor := freshActor(t)
	subjectA := freshActor(t)
	subjectB := freshActor(t)

	csv := actor + "," + subjectA + "\n" + actor + "," + subjectB + "\n"

	n, err := follows.ImportCSV(db, dirs, strings.NewReader(csv))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	followees, err := store.ReadTransact(db.Raw(), func(tx fdb.ReadTransaction) ([]string, error) {
		return follows.GetFollowees(tx, dirs, actor)
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{subjectA, subjectB}, followees)
}

func TestImportCSV_MalformedRow(t *testing.T) {
	t.Parallel()
	db := testStore(t)
	dirs := testDirs(t)

	n, err := follows.ImportCSV(db, dirs, strings.NewReader("only-one-field\n"))
	require.Error(t, err)
	require.Equal(t, 0, n)
}
