package plcingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	requestTimeout = 10 * time.Second
	batchTimeout   = 30 * time.Second
)

const exportLimit = 1000

func exportURL(host, after string) string {
	url := host + "/export?"
	if after != "" {
		url += "after=" + after + "&"
	}
	return url + fmt.Sprintf("limit=%d", exportLimit)
}

// fetchExport GETs one page of the export stream and splits it into its
// constituent NDJSON lines, dropping any trailing blank line.
func fetchExport(ctx context.Context, client *http.Client, host, after string) ([][]byte, error) {
	batchCtx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	reqCtx, reqCancel := context.WithTimeout(batchCtx, requestTimeout)
	defer reqCancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, exportURL(host, after), nil)
	if err != nil {
		return nil, fmt.Errorf("plcingest: building export request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plcingest: export request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plcingest: export returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("plcingest: reading export body: %w", err)
	}

	lines := bytes.Split(body, []byte("\n"))
	if len(lines) > 0 && len(bytes.TrimSpace(lines[len(lines)-1])) == 0 {
		lines = lines[:len(lines)-1]
	}

	return lines, nil
}
