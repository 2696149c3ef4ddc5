package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/bluesky-social/indigo/util"
	"github.com/follownet/skymirror/internal/follows"
	"github.com/follownet/skymirror/internal/metrics"
	"github.com/follownet/skymirror/internal/store"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRateLimit       = 3000
	defaultRateLimitWindow = 5 * time.Minute
	defaultNumWorkers      = 8
)

// notifier is a broadcast wakeup signal, the Go equivalent of
// tokio::sync::Notify::notify_waiters: every call to wait returns a channel
// that closes the next time broadcast is called.
type notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{})}
}

func (n *notifier) wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

func (n *notifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}

// Args configures a crawl run.
type Args struct {
	PDSHost              string
	NumWorkers           int
	OnlyCrawlQueuedRepos bool
	MetricsAddr          string

	RateLimit       int64
	RateLimitWindow time.Duration

	FDB store.Config
}

type runner struct {
	log      *slog.Logger
	shutOnce sync.Once
}

func (r *runner) shutdown(cancel context.CancelFunc) {
	r.shutOnce.Do(func() {
		r.log.Info("shutdown initiated")
		cancel()
	})
}

// Run opens the store, recovers any incompletely-processed repos from a
// prior run, then starts the enumeration loop and worker pool until ctx is
// cancelled or the process receives SIGINT/SIGTERM.
func Run(ctx context.Context, args *Args) error {
	if err := metrics.InitTracing(ctx, "skymirror.crawl"); err != nil {
		return err
	}

	tracer := otel.Tracer("skymirror.crawl")
	db, err := store.Open(tracer, args.FDB)
	if err != nil {
		return err
	}

	r := &runner{log: slog.Default().With(slog.String("component", "crawl"))}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go metrics.RunServer(ctx, cancel, args.MetricsAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ctx.Done():
		case <-sig:
			r.log.Info("received shutdown signal")
			r.shutdown(cancel)
		}
	}()

	dirs := Dirs{
		Queued:  db.Dirs.CrawlQueued,
		Pending: db.Dirs.CrawlPending,
		Errored: db.Dirs.CrawlErrored,
		Meta:    db.Dirs.CrawlMeta,
	}
	followsDirs := follows.Dirs{
		Records: db.Dirs.FollowsRecords,
		IdxAS:   db.Dirs.FollowsIdxAS,
		IdxSA:   db.Dirs.FollowsIdxSA,
	}

	if _, err := store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
		return nil, RequeuePending(tx, dirs)
	}); err != nil {
		return fmt.Errorf("crawl: recovering pending repos at startup: %w", err)
	}

	rateLimit := args.RateLimit
	if rateLimit == 0 {
		rateLimit = defaultRateLimit
	}
	rateLimitWindow := args.RateLimitWindow
	if rateLimitWindow == 0 {
		rateLimitWindow = defaultRateLimitWindow
	}
	limiter, stopLimiter := NewRateLimiter(rateLimit, rateLimitWindow)
	defer stopLimiter()

	numWorkers := args.NumWorkers
	if numWorkers == 0 {
		numWorkers = defaultNumWorkers
	}

	client := util.RobustHTTPClient()
	wake := newNotifier()
	wake.broadcast() // no worker is waiting yet; each worker pops before it first waits, so requeued entries are drained regardless

	go RunGaugeRefresh(ctx, db, dirs, 30*time.Second)

	g, gctx := errgroup.WithContext(ctx)

	for i := range numWorkers {
		w := &worker{
			db:          db,
			dirs:        dirs,
			followsDirs: followsDirs,
			client:      client,
			limiter:     limiter,
			pdsHost:     args.PDSHost,
			wake:        wake,
			log:         r.log.With(slog.Int("worker", i)),
		}
		g.Go(func() error { return w.run(gctx) })
	}

	if !args.OnlyCrawlQueuedRepos {
		g.Go(func() error {
			return enumerate(gctx, db, dirs, client, limiter, args.PDSHost, wake, r.log)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	r.log.Info("crawl shutdown complete")
	return nil
}
