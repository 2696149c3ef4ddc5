package plcingest

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
	"github.com/follownet/skymirror/internal/metrics"
	"github.com/follownet/skymirror/internal/store"
	"go.opentelemetry.io/otel"
)

const (
	defaultRateLimit       = 500
	defaultRateLimitWindow = 5 * time.Minute
)

// Args configures a PLC directory ingestion run.
type Args struct {
	Host        string
	MetricsAddr string

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

// Run opens the store and polls the PLC directory's export endpoint,
// mirroring every entry into internal/identity, until ctx is cancelled or
// the process receives SIGINT/SIGTERM.
func Run(ctx context.Context, args *Args) error {
	if err := metrics.InitTracing(ctx, "skymirror.plcingest"); err != nil {
		return err
	}

	tracer := otel.Tracer("skymirror.plcingest")
	db, err := store.Open(tracer, args.FDB)
	if err != nil {
		return err
	}

	r := &runner{log: slog.Default().With(slog.String("component", "plcingest"))}

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
		DidAka: db.Dirs.PLCDidAka,
		AkaDid: db.Dirs.PLCAkaDid,
		Meta:   db.Dirs.PLCMeta,
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

	client := util.RobustHTTPClient()

	if err := ingestLoop(ctx, db, dirs, client, limiter, args.Host, r.log); err != nil && ctx.Err() == nil {
		return err
	}

	r.log.Info("plc ingester shutdown complete")
	return nil
}

// ingestLoop pages the export endpoint forever, applying each entry and
// advancing the persisted cursor in the same transaction as its mutation.
func ingestLoop(ctx context.Context, db *store.DB, dirs Dirs, client *http.Client, limiter *RateLimiter, host string, log *slog.Logger) error {
	after, _, err := store.ReadTransact(db.Raw(), func(tx fdb.ReadTransaction) (string, error) {
		c, _, err := GetCursor(tx, dirs)
		return c, err
	})
	if err != nil {
		return fmt.Errorf("plcingest: reading cursor: %w", err)
	}

	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		lines, err := fetchExport(ctx, client, host, after)
		if err != nil {
			return err
		}

		for _, line := range lines {
			start := time.Now()

			e, decodeErr := decodeEntry(line)

			status := metrics.StatusOK
			var applyErr error
			if decodeErr != nil {
				applyErr = fmt.Errorf("plcingest: decoding entry: %w", decodeErr)
			} else {
				_, applyErr = store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
					if err := Apply(tx, dirs, e); err != nil {
						return nil, err
					}
					if e.CreatedAt != "" {
						SetCursor(tx, dirs, e.CreatedAt)
					}
					return nil, nil
				})
			}

			if applyErr != nil {
				status = metrics.StatusError
				log.Error("failed to apply plc entry", "err", applyErr)
			} else if decodeErr == nil {
				after = e.CreatedAt
			}

			opType := "unknown"
			if decodeErr == nil {
				opType = e.opType
			}
			metrics.PLCEntries.WithLabelValues(opType, status).Inc()
			metrics.PLCEntryDuration.Observe(time.Since(start).Seconds())

			if applyErr != nil {
				return applyErr
			}
		}

		log.Info("ingested plc export batch", "batch", len(lines), "after", after)
	}
}
