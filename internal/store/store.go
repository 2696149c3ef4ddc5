// Package store owns the FoundationDB client and the directory/transact
// plumbing every mirror-store package (follows, identity, crawl, firehose
// cursor) builds on, generalized from the teacher's single-purpose FDB
// client into a shared, multi-directory one.
package store

import (
	"context"
	"fmt"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/apple/foundationdb/bindings/go/src/fdb/directory"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the FDB client.
type Config struct {
	ClusterFile string
	APIVersion  int
}

// Dirs is every named directory subspace a component in this module reads
// or writes, opened once at startup and handed to the package that owns it.
type Dirs struct {
	FollowsRecords directory.DirectorySubspace
	FollowsIdxAS   directory.DirectorySubspace
	FollowsIdxSA   directory.DirectorySubspace

	PLCDidAka directory.DirectorySubspace
	PLCAkaDid directory.DirectorySubspace
	PLCMeta   directory.DirectorySubspace

	CrawlQueued  directory.DirectorySubspace
	CrawlPending directory.DirectorySubspace
	CrawlErrored directory.DirectorySubspace
	CrawlMeta    directory.DirectorySubspace

	FirehoseMeta directory.DirectorySubspace
}

// DB is the shared FDB handle plus the opened directory layout.
type DB struct {
	tracer trace.Tracer
	db     fdb.Database

	Dirs Dirs
}

// Open sets the FDB API version, opens the database from cfg, pings it,
// and creates-or-opens every directory this module uses.
func Open(tracer trace.Tracer, cfg Config) (*DB, error) {
	if err := fdb.APIVersion(cfg.APIVersion); err != nil {
		return nil, fmt.Errorf("store: failed to set fdb api version: %w", err)
	}

	d, err := fdb.OpenDatabase(cfg.ClusterFile)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open fdb database from %q: %w", cfg.ClusterFile, err)
	}

	db := &DB{tracer: tracer, db: d}

	if err := db.db.Options().SetTransactionTimeout(5000); err != nil {
		return nil, fmt.Errorf("store: failed to set transaction timeout: %w", err)
	}
	if err := db.db.Options().SetTransactionRetryLimit(100); err != nil {
		return nil, fmt.Errorf("store: failed to set transaction retry limit: %w", err)
	}

	if _, err := db.db.ReadTransact(func(tx fdb.ReadTransaction) (any, error) {
		return tx.Get(fdb.Key("PING")).Get()
	}); err != nil {
		return nil, fmt.Errorf("store: failed to ping database: %w", err)
	}

	open := func(path ...string) (directory.DirectorySubspace, error) {
		ds, err := directory.CreateOrOpen(db.db, path, nil)
		if err != nil {
			return nil, fmt.Errorf("store: failed to open directory %v: %w", path, err)
		}
		return ds, nil
	}

	var err2 error
	mustOpen := func(path ...string) directory.DirectorySubspace {
		if err2 != nil {
			return nil
		}
		ds, err := open(path...)
		if err != nil {
			err2 = err
		}
		return ds
	}

	db.Dirs = Dirs{
		FollowsRecords: mustOpen("follows", "records"),
		FollowsIdxAS:   mustOpen("follows", "idx_as"),
		FollowsIdxSA:   mustOpen("follows", "idx_sa"),
		PLCDidAka:      mustOpen("plc", "did_aka"),
		PLCAkaDid:      mustOpen("plc", "aka_did"),
		PLCMeta:        mustOpen("plc", "meta"),
		CrawlQueued:    mustOpen("crawl", "queued"),
		CrawlPending:   mustOpen("crawl", "pending"),
		CrawlErrored:   mustOpen("crawl", "errored"),
		CrawlMeta:      mustOpen("crawl", "meta"),
		FirehoseMeta:   mustOpen("firehose", "meta"),
	}
	if err2 != nil {
		return nil, err2
	}

	return db, nil
}

// Raw exposes the underlying fdb.Database for packages that need to open
// their own transactions directly (most do, via Transact/ReadTransact below).
func (db *DB) Raw() fdb.Database {
	return db.db
}

// Ping verifies connectivity to the cluster.
func (db *DB) Ping(ctx context.Context) error {
	_, span := db.tracer.Start(ctx, "store.Ping")
	defer span.End()

	_, err := ReadTransact(db.db, func(tx fdb.ReadTransaction) ([]byte, error) {
		return tx.Get(fdb.Key("PING")).Get()
	})

	return err
}

// Transact runs fn as a write transaction and casts its result to T.
func Transact[T any](db fdb.Database, fn func(tx fdb.Transaction) (T, error)) (T, error) {
	var zero T

	resI, err := db.Transact(func(tx fdb.Transaction) (any, error) {
		return fn(tx)
	})
	if err != nil {
		return zero, err
	}

	// Common case: fn only has side effects and returns nil, nil.
	if resI == nil {
		return zero, nil
	}

	res, ok := resI.(T)
	if !ok {
		return zero, fmt.Errorf("store: failed to cast transaction result %T to %T", resI, zero)
	}

	return res, nil
}

// ReadTransact runs fn as a read transaction and casts its result to T.
func ReadTransact[T any](db fdb.Database, fn func(tx fdb.ReadTransaction) (T, error)) (T, error) {
	var zero T

	resI, err := db.ReadTransact(func(tx fdb.ReadTransaction) (any, error) {
		return fn(tx)
	})
	if err != nil {
		return zero, err
	}

	if resI == nil {
		return zero, nil
	}

	res, ok := resI.(T)
	if !ok {
		return zero, fmt.Errorf("store: failed to cast read transaction result %T to %T", resI, zero)
	}

	return res, nil
}
