package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/follownet/skymirror/internal/store"
)

const listReposLimit = 1000

type listReposOutput struct {
	Cursor string        `json:"cursor"`
	Repos  []listRepoRow `json:"repos"`
}

type listRepoRow struct {
	DID  string `json:"did"`
	Head string `json:"head"`
}

func listReposURL(pdsHost, cursor string) string {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", listReposLimit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return pdsHost + "/xrpc/com.atproto.sync.listRepos?" + q.Encode()
}

// enumerate pages the PDS's list-repos endpoint to completion, enqueuing
// every DID it sees and persisting the pagination cursor so a restart
// resumes where it left off. It is a single task, run once at startup.
func enumerate(ctx context.Context, db *store.DB, dirs Dirs, client *http.Client, limiter *RateLimiter, pdsHost string, wake *notifier, log *slog.Logger) error {
	cursor, _, err := store.ReadTransact(db.Raw(), func(tx fdb.ReadTransaction) (string, error) {
		c, _, err := GetCursor(tx, dirs)
		return c, err
	})
	if err != nil {
		return fmt.Errorf("crawl: reading enumeration cursor: %w", err)
	}

	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, listReposURL(pdsHost, cursor), nil)
		if err != nil {
			return fmt.Errorf("crawl: building listRepos request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("crawl: listRepos request failed: %w", err)
		}

		var out listReposOutput
		decodeErr := json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("crawl: listRepos returned status %d", resp.StatusCode)
		}
		if decodeErr != nil {
			return fmt.Errorf("crawl: decoding listRepos response: %w", decodeErr)
		}

		_, err = store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
			for _, r := range out.Repos {
				Enqueue(tx, dirs, r.DID)
			}
			SetCursor(tx, dirs, out.Cursor)
			return nil, nil
		})
		if err != nil {
			return fmt.Errorf("crawl: enqueuing listRepos batch: %w", err)
		}

		log.Info("enumerated repos", "batch", len(out.Repos), "cursor", out.Cursor)
		wake.broadcast()

		cursor = out.Cursor
		if cursor == "" {
			return nil
		}
	}
}
