package main

import (
	"context"
	"time"

	"github.com/follownet/skymirror/internal/queryserver"
	"github.com/follownet/skymirror/internal/store"
	"github.com/urfave/cli/v3"
)

func queryCmd() *cli.Command {
	return &cli.Command{
		Name:        "query",
		Description: "Serve read-only lookups over the follows and identity mirrors",
		Commands: []*cli.Command{
			queryServeCmd(),
		},
	}
}

func queryServeCmd() *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Description: "Run the query HTTP server",
		Flags: append(fdbFlags,
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Bind address of the primary HTTP server",
				Value: "0.0.0.0:8090",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Bind address of the metrics/pprof HTTP server (empty string to disable)",
				Value: "0.0.0.0:6065",
			},
			&cli.DurationFlag{
				Name:  "read-timeout",
				Usage: "Primary HTTP server read timeout",
				Value: 5 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "write-timeout",
				Usage: "Primary HTTP server write timeout",
				Value: 5 * time.Second,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			return queryserver.Run(ctx, &queryserver.Args{
				Addr:         c.String("addr"),
				MetricsAddr:  c.String("metrics-addr"),
				ReadTimeout:  c.Duration("read-timeout"),
				WriteTimeout: c.Duration("write-timeout"),
				FDB: store.Config{
					ClusterFile: c.String("fdb-cluster-file"),
					APIVersion:  c.Int("fdb-api-version"),
				},
			})
		},
	}
}
