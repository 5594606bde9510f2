// Package runtime wires a single Control Tower process: namespace
// metadata storage, the log storage engine (memlog or pebblelog), the
// topic router, one tower.Worker per partition with its own data cache,
// and the admin HTTP surface. Grounded on the prior single-node runtime's
// internal/runtime/runtime.go (Open/Close/CheckHealth/DB/Config single
// wiring point), generalized from a single pebble.DB facade into the
// full Control Tower collaborator graph.
package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlexxNica/RocketSpeed/internal/admin"
	cfgpkg "github.com/AlexxNica/RocketSpeed/internal/config"
	"github.com/AlexxNica/RocketSpeed/internal/datacache"
	"github.com/AlexxNica/RocketSpeed/internal/logstorage"
	"github.com/AlexxNica/RocketSpeed/internal/logstorage/memlog"
	"github.com/AlexxNica/RocketSpeed/internal/logstorage/pebblelog"
	"github.com/AlexxNica/RocketSpeed/internal/metrics"
	"github.com/AlexxNica/RocketSpeed/internal/model"
	"github.com/AlexxNica/RocketSpeed/internal/namespace"
	"github.com/AlexxNica/RocketSpeed/internal/router"
	pebblestore "github.com/AlexxNica/RocketSpeed/internal/storage/pebble"
	"github.com/AlexxNica/RocketSpeed/internal/topictailer"
	"github.com/AlexxNica/RocketSpeed/internal/tower"
	"github.com/AlexxNica/RocketSpeed/internal/transport/ssetransport"
	logpkg "github.com/AlexxNica/RocketSpeed/pkg/log"
)

// StorageEngine selects the logstorage.Storage backing each worker shard.
type StorageEngine string

const (
	// StorageMemory backs every shard with an in-process memlog.Storage;
	// history does not survive a restart.
	StorageMemory StorageEngine = "memory"
	// StoragePebble backs every shard with its own pebblelog.Storage,
	// durable on disk under DataDir/shard-<n>.
	StoragePebble StorageEngine = "pebble"
)

// Options configures a Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
	Storage StorageEngine
	// Partitions is the number of tower.Worker shards to run. Each shard
	// owns a disjoint subset of logs (see internal/tower's package doc on
	// why one logstorage.Storage instance can back only one worker).
	Partitions int
	AdminAddr  string
}

func (o Options) withDefaults() Options {
	if o.Partitions <= 0 {
		o.Partitions = 1
	}
	if o.Storage == "" {
		o.Storage = StorageMemory
	}
	if o.AdminAddr == "" {
		o.AdminAddr = ":8080"
	}
	return o
}

// Runtime is a fully wired Control Tower process.
type Runtime struct {
	db      *pebblestore.DB
	config  cfgpkg.Config
	route   *router.HashRouter
	pool    *tower.Pool
	sse     *ssetransport.Transport
	metrics *metrics.Registry
	admin   *admin.Server
	log     logpkg.Logger

	adminAddr string
	storages  []io_Closer
}

// io_Closer avoids importing io just for one interface used internally.
type io_Closer interface{ Close() error }

// Open wires every collaborator and returns a Runtime that is not yet
// serving; Run starts the workers and the admin listener. Close releases
// the log storages and the namespace DB.
func Open(opts Options, log logpkg.Logger) (*Runtime, error) {
	opts = opts.withDefaults()

	reg := metrics.New()

	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync, Metrics: reg.NewPebbleHook("namespace")})
	if err != nil {
		return nil, fmt.Errorf("open namespace db: %w", err)
	}

	route := router.NewHashRouter(1, opts.Partitions)
	sse := ssetransport.New()

	workers := make([]*tower.Worker, 0, opts.Partitions)
	var storages []io_Closer
	for i := 0; i < opts.Partitions; i++ {
		storage, err := openShard(opts, i, reg)
		if err != nil {
			closeAll(storages)
			_ = db.Close()
			return nil, fmt.Errorf("open shard %d: %w", i, err)
		}
		if c, ok := storage.(io_Closer); ok {
			storages = append(storages, c)
		}

		cache := datacache.New(
			int(opts.Config.Tower.CacheSize),
			opts.Config.Tower.CacheBlockSize,
			opts.Config.Tower.BloomBitsPerMsg,
			opts.Config.Tower.CacheDataFromSystemNamespaces,
		)
		tOpts := topictailer.Options{
			ReadersPerRoom:           opts.Config.Tower.ReadersPerRoom,
			MaxSubscriptionLag:       model.SeqNo(opts.Config.Tower.MaxSubscriptionLag),
			MaxFindTimeRequests:      opts.Config.Tower.MaxFindTimeRequests,
			MinReaderRestartDuration: opts.Config.Tower.MinReaderRestartDuration,
			MaxReaderRestartDuration: opts.Config.Tower.MaxReaderRestartDuration,
		}
		name := fmt.Sprintf("worker-%d", i)
		w := tower.NewWorker(name, tOpts, storage, route, sse, cache, log, opts.Config.Tower.TimerInterval, int64(i))
		workers = append(workers, w)
	}

	pool := tower.NewPool(route, workers)
	adminSrv := admin.New(opts.Config, pool, sse, reg, db, log)

	return &Runtime{
		db:        db,
		config:    opts.Config,
		route:     route,
		pool:      pool,
		sse:       sse,
		metrics:   reg,
		admin:     adminSrv,
		log:       log.WithComponent("runtime"),
		adminAddr: opts.AdminAddr,
		storages:  storages,
	}, nil
}

func openShard(opts Options, i int, reg *metrics.Registry) (logstorage.Storage, error) {
	switch opts.Storage {
	case StoragePebble:
		shardDir := opts.DataDir
		if shardDir != "" {
			shardDir = fmt.Sprintf("%s/shard-%d", shardDir, i)
		}
		dbLabel := fmt.Sprintf("log_shard_%d", i)
		return pebblelog.Open(pebblestore.Options{DataDir: shardDir, Fsync: opts.Fsync, Metrics: reg.NewPebbleHook(dbLabel)}, true)
	case StorageMemory, "":
		return memlog.New(true), nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q", opts.Storage)
	}
}

func closeAll(storages []io_Closer) {
	for _, s := range storages {
		_ = s.Close()
	}
}

// Run starts the worker pool and the admin HTTP server, blocking until
// ctx is canceled.
func (r *Runtime) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		r.pool.Run(ctx)
	}()
	go func() {
		errCh <- r.admin.ListenAndServe(ctx, r.addr())
	}()
	select {
	case <-ctx.Done():
		r.admin.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

func (r *Runtime) addr() string { return r.adminAddr }

// Close releases every resource Open acquired.
func (r *Runtime) Close() error {
	var firstErr error
	closeAll(r.storages)
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			firstErr = err
		}
	}
	return firstErr
}

// CheckHealth performs a simple liveness check against the namespace db.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// EnsureNamespace creates a namespace record if absent.
func (r *Runtime) EnsureNamespace(name string) (namespace.Meta, error) {
	return namespace.EnsureNamespace(r.db, name)
}

// DB exposes the underlying namespace-metadata DB for advanced use.
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Pool returns the worker pool, for callers embedding Runtime in a test
// harness that wants to subscribe/unsubscribe directly.
func (r *Runtime) Pool() *tower.Pool { return r.pool }
