// Package config provides loading and environment overlay for the Control
// Tower's runtime configuration: namespace admission policy and
// TowerOptions. It exposes a Default() baseline, JSON file loading with
// Load, and environment overrides with FromEnv.
//
// Example:
//
//	cfg := config.Default()
//	// Optionally load from file and overlay env vars
//	if fileCfg, err := config.Load("/etc/tower.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	// Pass cfg into runtime.Options
//	rt, _ := runtime.Open(runtime.Options{DataDir: "/var/lib/tower", Fsync: pebblestore.FsyncModeAlways, Config: cfg}, logger)
//	defer rt.Close()
package config
