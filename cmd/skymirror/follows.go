package main

import (
	"context"
	"fmt"
	"os"

	"github.com/follownet/skymirror/internal/follows"
	"github.com/follownet/skymirror/internal/store"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"
)

func followsCmd() *cli.Command {
	return &cli.Command{
		Name:        "follows",
		Description: "Operate on the follows mirror directly",
		Commands: []*cli.Command{
			followsImportCSVCmd(),
		},
	}
}

func followsImportCSVCmd() *cli.Command {
	return &cli.Command{
		Name:        "import-csv",
		Description: "Bulk-load (actor,subject) follow edges from a header-less CSV file",
		Flags: append(fdbFlags,
			&cli.StringFlag{
				Name:     "csv-path",
				Usage:    "Path to the CSV file to import",
				Required: true,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			f, err := os.Open(c.String("csv-path"))
			if err != nil {
				return fmt.Errorf("failed to open csv file: %w", err)
			}
			defer f.Close() //nolint:errcheck

			db, err := store.Open(otel.Tracer("skymirror.follows.import-csv"), store.Config{
				ClusterFile: c.String("fdb-cluster-file"),
				APIVersion:  c.Int("fdb-api-version"),
			})
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}

			dirs := follows.Dirs{
				Records: db.Dirs.FollowsRecords,
				IdxAS:   db.Dirs.FollowsIdxAS,
				IdxSA:   db.Dirs.FollowsIdxSA,
			}

			n, err := follows.ImportCSV(db, dirs, f)
			if err != nil {
				return fmt.Errorf("failed to import csv after %d rows: %w", n, err)
			}

			fmt.Printf("imported %d follow edges\n", n)
			return nil
		},
	}
}
