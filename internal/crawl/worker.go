package crawl

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/follownet/skymirror/internal/firehose"
	"github.com/follownet/skymirror/internal/follows"
	"github.com/follownet/skymirror/internal/metrics"
	"github.com/follownet/skymirror/internal/repo"
	"github.com/follownet/skymirror/internal/store"
)

const maxMissingRootRetries = 5

const followCollection = "app.bsky.graph.follow"

type popResult struct {
	did string
	ok  bool
}

// worker pops DIDs off the crawl queue and crawls them, one at a time, until
// ctx is cancelled. The atomic Pop guarantees at most one worker ever holds
// a given DID.
type worker struct {
	db          *store.DB
	dirs        Dirs
	followsDirs follows.Dirs
	client      *http.Client
	limiter     *RateLimiter
	pdsHost     string
	wake        *notifier
	log         *slog.Logger
}

func (w *worker) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := store.Transact(w.db.Raw(), func(tx fdb.Transaction) (popResult, error) {
			did, ok, err := Pop(tx, w.dirs)
			return popResult{did, ok}, err
		})
		if err != nil {
			w.log.Error("failed to pop crawl queue", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if !res.ok {
			select {
			case <-ctx.Done():
				return nil
			case <-w.wake.wait():
			case <-time.After(5 * time.Second):
			}
			continue
		}

		w.crawlOne(ctx, res.did)
	}
}

func (w *worker) crawlOne(ctx context.Context, did string) {
	start := time.Now()

	var bs *repo.Blockstore
	var err error

	for attempt := 0; attempt < maxMissingRootRetries; attempt++ {
		if err = w.limiter.Wait(ctx); err != nil {
			break
		}

		bs, err = fetchRepo(ctx, w.client, w.pdsHost, did)
		if err == nil || !isMissingRootCID(err) {
			break
		}

		w.log.Warn("commit root not in car, retrying", "did", did, "attempt", attempt+1)
	}

	if err != nil {
		w.recordError(did, err)
		metrics.CrawlRepos.WithLabelValues(metrics.StatusError).Inc()
		return
	}

	observed := extractFollows(bs)

	_, err = store.Transact(w.db.Raw(), func(tx fdb.Transaction) (any, error) {
		if err := follows.ReplaceActorFollows(tx, w.followsDirs, did, observed); err != nil {
			return nil, err
		}
		FinishPending(tx, w.dirs, did)
		return nil, nil
	})
	if err != nil {
		w.recordError(did, err)
		metrics.CrawlRepos.WithLabelValues(metrics.StatusError).Inc()
		return
	}

	metrics.CrawlRepos.WithLabelValues(metrics.StatusOK).Inc()
	metrics.CrawlRepoDuration.Observe(time.Since(start).Seconds())
	w.log.Info("crawled repo", "did", did, "follows", len(observed))
}

func (w *worker) recordError(did string, err error) {
	w.log.Error("crawl failed", "did", did, "err", err)

	if _, txErr := store.Transact(w.db.Raw(), func(tx fdb.Transaction) (any, error) {
		MarkErrored(tx, w.dirs, did, err.Error())
		return nil, nil
	}); txErr != nil {
		w.log.Error("failed to record crawl error", "did", did, "err", txErr)
	}
}

// extractFollows scans every MST key in bs for app.bsky.graph.follow
// records and decodes each one, skipping keys outside that collection and
// records that fail to decode.
func extractFollows(bs *repo.Blockstore) []follows.Follow {
	var out []follows.Follow

	for _, key := range bs.Keys() {
		collection, rkey, ok := splitRecordKey(key)
		if !ok || collection != followCollection {
			continue
		}

		raw, ok := bs.Get(key)
		if !ok {
			continue
		}

		rec, err := firehose.ReadFollowRecord(raw)
		if err != nil {
			continue
		}

		out = append(out, follows.Follow{RKey: rkey, Subject: rec.Subject})
	}

	return out
}

func splitRecordKey(key string) (collection, rkey string, ok bool) {
	i := strings.IndexByte(key, '/')
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}
