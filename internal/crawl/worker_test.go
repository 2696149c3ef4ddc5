package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitRecordKey(t *testing.T) {
	t.Parallel()

	collection, rkey, ok := splitRecordKey("app.bsky.graph.follow/3k2x5y7z")
	require.True(t, ok)
	require.Equal(t, "app.bsky.graph.follow", collection)
	require.Equal(t, "3k2x5y7z", rkey)

	_, _, ok = splitRecordKey("no-slash-here")
	require.False(t, ok)
}
