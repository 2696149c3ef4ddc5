package main

import (
	"context"

	"github.com/follownet/skymirror/internal/plcingest"
	"github.com/follownet/skymirror/internal/store"
	"github.com/urfave/cli/v3"
)

func plcCmd() *cli.Command {
	return &cli.Command{
		Name:        "plc",
		Description: "Mirror the PLC directory's also-known-as handles",
		Commands: []*cli.Command{
			plcIngestCmd(),
		},
	}
}

func plcIngestCmd() *cli.Command {
	return &cli.Command{
		Name:        "ingest",
		Description: "Poll the PLC directory's export stream and mirror it into the identity store",
		Flags: append(fdbFlags,
			&cli.StringFlag{
				Name:  "plc-host",
				Usage: "Base URL of the PLC directory",
				Value: "https://plc.directory",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Bind address of the metrics/pprof HTTP server (empty string to disable)",
				Value: "0.0.0.0:6064",
			},
			&cli.IntFlag{
				Name:  "rate-limit",
				Usage: "Maximum requests per rate-limit-window against the directory (0 = default)",
			},
			&cli.DurationFlag{
				Name:  "rate-limit-window",
				Usage: "Rate limit window (0 = default)",
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			return plcingest.Run(ctx, &plcingest.Args{
				Host:            c.String("plc-host"),
				MetricsAddr:     c.String("metrics-addr"),
				RateLimit:       int64(c.Int("rate-limit")),
				RateLimitWindow: c.Duration("rate-limit-window"),
				FDB: store.Config{
					ClusterFile: c.String("fdb-cluster-file"),
					APIVersion:  c.Int("fdb-api-version"),
				},
			})
		},
	}
}
