package plcingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExportURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://plc.directory/export?limit=1000", exportURL("https://plc.directory", ""))
	require.Equal(t, "https://plc.directory/export?after=2024-01-01T00:00:00Z&limit=1000", exportURL("https://plc.directory", "2024-01-01T00:00:00Z"))
}

func TestFetchExport_SplitsLines(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("line one\nline two\n"))
	}))
	defer srv.Close()

	lines, err := fetchExport(context.Background(), srv.Client(), srv.URL, "")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("line one"), []byte("line two")}, lines)
}

func TestFetchExport_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := fetchExport(context.Background(), srv.Client(), srv.URL, "")
	require.Error(t, err)
}
