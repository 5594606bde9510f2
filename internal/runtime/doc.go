// Package runtime wires storage, config, workers and the admin server into
// a single Control Tower process. It exposes Open/Run/Close, a basic
// health check, and accessors for the namespace DB, config and worker pool.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg}, logger)
//	defer rt.Close()
//	// Health
//	_ = rt.CheckHealth(context.Background())
//	// Serve the workers and the admin HTTP API until ctx is canceled
//	_ = rt.Run(ctx)
package runtime
