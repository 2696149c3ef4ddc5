package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/follownet/skymirror/internal/repo"
)

const (
	requestTimeout = 10 * time.Minute
	taskTimeout    = 30 * time.Minute
)

// ErrMissingRootCID mirrors repo.ErrMissingRootCID: "commit root not in car"
// is the one transient condition retried in-process (see worker.go).
var ErrMissingRootCID = repo.ErrMissingRootCID

func getRepoURL(pdsHost, did string) string {
	q := url.Values{}
	q.Set("did", did)
	return pdsHost + "/xrpc/com.atproto.sync.getRepo?" + q.Encode()
}

// fetchRepo GETs the full repository snapshot for did and decodes it into a
// Blockstore, without inline block-hash validation (the asymmetric half of
// the validation split; see internal/firehose.readInlineCAR for the
// validated half).
func fetchRepo(ctx context.Context, client *http.Client, pdsHost, did string) (*repo.Blockstore, error) {
	taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	reqCtx, reqCancel := context.WithTimeout(taskCtx, requestTimeout)
	defer reqCancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, getRepoURL(pdsHost, did), nil)
	if err != nil {
		return nil, fmt.Errorf("crawl: building getRepo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawl: fetching repo for %s: %w", did, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crawl: getRepo for %s returned status %d", did, resp.StatusCode)
	}

	bs, err := repo.Load(resp.Body, repo.Options{ValidateBlockHash: false, MSTIgnoreMissing: true})
	if err != nil {
		return nil, fmt.Errorf("crawl: loading repo for %s: %w", did, err)
	}

	return bs, nil
}

// isMissingRootCID reports whether err is the transient "commit root not in
// car" condition the worker retries up to 5 times.
func isMissingRootCID(err error) bool {
	return errors.Is(err, repo.ErrMissingRootCID)
}
