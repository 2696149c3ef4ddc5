package main

import (
	"context"

	"github.com/follownet/skymirror/internal/firehose"
	"github.com/follownet/skymirror/internal/store"
	"github.com/urfave/cli/v3"
)

func firehoseCmd() *cli.Command {
	return &cli.Command{
		Name:        "firehose",
		Description: "Ingest the AT Protocol firehose",
		Commands: []*cli.Command{
			firehoseRunCmd(),
		},
	}
}

func firehoseRunCmd() *cli.Command {
	return &cli.Command{
		Name:        "run",
		Description: "Subscribe to a relay's firehose and apply follow-graph changes as they happen",
		Flags: append(fdbFlags,
			&cli.StringFlag{
				Name:  "firehose-host",
				Usage: "Base URL of the relay to subscribe to",
				Value: "wss://bsky.network",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Bind address of the metrics/pprof HTTP server (empty string to disable)",
				Value: "0.0.0.0:6063",
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			return firehose.Run(ctx, &firehose.Args{
				Host:        c.String("firehose-host"),
				MetricsAddr: c.String("metrics-addr"),
				FDB: store.Config{
					ClusterFile: c.String("fdb-cluster-file"),
					APIVersion:  c.Int("fdb-api-version"),
				},
			})
		},
	}
}
