package main

import (
	"context"
	"fmt"
	"time"

	"github.com/follownet/skymirror/internal/crawl"
	"github.com/follownet/skymirror/internal/store"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"
)

func crawlCmd() *cli.Command {
	return &cli.Command{
		Name:        "crawl",
		Description: "Crawl PDS repositories and mirror their follow graphs",
		Commands: []*cli.Command{
			crawlRunCmd(),
			crawlStatusCmd(),
		},
	}
}

func crawlRunCmd() *cli.Command {
	return &cli.Command{
		Name:        "run",
		Description: "Enumerate and crawl every repo a PDS hosts",
		Flags: append(fdbFlags,
			&cli.StringFlag{
				Name:     "pds-host",
				Usage:    "Base URL of the PDS to crawl",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "num-workers",
				Usage: "Number of concurrent crawl workers (0 = default)",
			},
			&cli.BoolFlag{
				Name:  "only-crawl-queued-repos",
				Usage: "Skip enumeration and only drain the existing queue",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Bind address of the metrics/pprof HTTP server (empty string to disable)",
				Value: "0.0.0.0:6062",
			},
			&cli.IntFlag{
				Name:  "rate-limit",
				Usage: "Maximum requests per rate-limit-window against the PDS (0 = default)",
			},
			&cli.DurationFlag{
				Name:  "rate-limit-window",
				Usage: "Rate limit window (0 = default)",
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			return crawl.Run(ctx, &crawl.Args{
				PDSHost:              c.String("pds-host"),
				NumWorkers:           c.Int("num-workers"),
				OnlyCrawlQueuedRepos: c.Bool("only-crawl-queued-repos"),
				MetricsAddr:          c.String("metrics-addr"),
				RateLimit:            int64(c.Int("rate-limit")),
				RateLimitWindow:      c.Duration("rate-limit-window"),
				FDB: store.Config{
					ClusterFile: c.String("fdb-cluster-file"),
					APIVersion:  c.Int("fdb-api-version"),
				},
			})
		},
	}
}

func crawlStatusCmd() *cli.Command {
	return &cli.Command{
		Name:        "status",
		Description: "Report queued/pending/errored counts and the oldest failures",
		Flags: append(fdbFlags,
			&cli.IntFlag{
				Name:  "oldest-errored",
				Usage: "Number of oldest errored entries to print (0 = all)",
				Value: 10,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			db, err := crawlStatusStore(c)
			if err != nil {
				return err
			}

			dirs := crawl.Dirs{
				Queued:  db.Dirs.CrawlQueued,
				Pending: db.Dirs.CrawlPending,
				Errored: db.Dirs.CrawlErrored,
				Meta:    db.Dirs.CrawlMeta,
			}

			status, err := crawl.Report(db, dirs, c.Int("oldest-errored"))
			if err != nil {
				return err
			}

			fmt.Printf("queued:  %d\n", status.Queued)
			fmt.Printf("pending: %d\n", status.Pending)
			fmt.Printf("errored: %d\n", status.Errored)
			for _, e := range status.OldestErrored {
				fmt.Printf("  %s  %s  %s\n", e.RecordedAt.Format(time.RFC3339), e.DID, e.Reason)
			}

			return nil
		},
	}
}

func crawlStatusStore(c *cli.Command) (*store.DB, error) {
	db, err := store.Open(otel.Tracer("skymirror.crawl.status"), store.Config{
		ClusterFile: c.String("fdb-cluster-file"),
		APIVersion:  c.Int("fdb-api-version"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return db, nil
}
