package crawl

import (
	"context"
	"time"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/follownet/skymirror/internal/metrics"
	"github.com/follownet/skymirror/internal/store"
)

// Status is a point-in-time snapshot of the crawl scheduler's state.
type Status struct {
	Queued  int
	Pending int
	Errored int

	OldestErrored []ErroredEntry
}

// Report reads a Status snapshot, including the oldestErrored oldest
// recorded errors. A oldestErrored of 0 returns every errored entry.
func Report(db *store.DB, dirs Dirs, oldestErrored int) (Status, error) {
	return store.ReadTransact(db.Raw(), func(tx fdb.ReadTransaction) (Status, error) {
		var s Status
		var err error

		if s.Queued, err = CountQueued(tx, dirs); err != nil {
			return Status{}, err
		}
		if s.Pending, err = CountPending(tx, dirs); err != nil {
			return Status{}, err
		}
		if s.Errored, err = CountErrored(tx, dirs); err != nil {
			return Status{}, err
		}
		if s.OldestErrored, err = ListErrored(tx, dirs, oldestErrored); err != nil {
			return Status{}, err
		}

		return s, nil
	})
}

// RunGaugeRefresh updates the crawl_queued_total/crawl_pending_total/
// crawl_errored_total Prometheus gauges on interval until ctx is cancelled.
func RunGaugeRefresh(ctx context.Context, db *store.DB, dirs Dirs, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh := func() {
		s, err := Report(db, dirs, 0)
		if err != nil {
			return
		}
		metrics.CrawlQueued.Set(float64(s.Queued))
		metrics.CrawlPending.Set(float64(s.Pending))
		metrics.CrawlErrored.Set(float64(s.Errored))
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
