package firehose

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"time"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/follownet/skymirror/internal/follows"
	"github.com/follownet/skymirror/internal/metrics"
	"github.com/follownet/skymirror/internal/store"
	"go.opentelemetry.io/otel"
)

// Args configures a firehose ingestion run.
type Args struct {
	Host        string
	MetricsAddr string

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

// Run opens the store, connects to the firehose, and applies frames to the
// follows mirror until ctx is cancelled or the process receives SIGINT/SIGTERM.
func Run(ctx context.Context, args *Args) error {
	if err := metrics.InitTracing(ctx, "skymirror.firehose"); err != nil {
		return err
	}

	tracer := otel.Tracer("skymirror.firehose")
	db, err := store.Open(tracer, args.FDB)
	if err != nil {
		return err
	}

	r := &runner{log: slog.Default().With(slog.String("component", "firehose"))}

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

	dirs := follows.Dirs{
		Records: db.Dirs.FollowsRecords,
		IdxAS:   db.Dirs.FollowsIdxAS,
		IdxSA:   db.Dirs.FollowsIdxSA,
	}

	client := New(r.log)

	type cursorResult struct {
		seq  int64
		have bool
	}

	getCursor := func() (int64, bool) {
		res, err := store.ReadTransact(db.Raw(), func(tx fdb.ReadTransaction) (cursorResult, error) {
			seq, have, err := GetCursor(tx, db.Dirs.FirehoseMeta)
			return cursorResult{seq, have}, err
		})
		if err != nil {
			r.log.Error("failed to read firehose cursor, starting from live tail", "err", err)
			return 0, false
		}
		return res.seq, res.have
	}

	handle := func(ctx context.Context, f Frame) error {
		ctx, span := tracer.Start(ctx, "firehose.handle")
		start := time.Now()

		_, err := store.Transact(db.Raw(), func(tx fdb.Transaction) (any, error) {
			seq, advance, err := Apply(tx, dirs, f, r.log)
			if err != nil {
				return nil, err
			}
			if advance {
				SetCursor(tx, db.Dirs.FirehoseMeta, seq)
			}
			return nil, nil
		})

		status := metrics.StatusOK
		if err != nil {
			status = metrics.StatusError
		}
		metrics.IngestMessages.WithLabelValues(f.Header.Type, status).Inc()
		metrics.IngestMessageDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
		metrics.SpanEnd(span, err)

		return err
	}

	if err := client.Run(ctx, args.Host, getCursor, handle); err != nil {
		return err
	}

	r.log.Info("firehose ingester shutdown complete")
	return nil
}
