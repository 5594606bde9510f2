// Command tower is the Control Tower's single-binary CLI, grounded on
// the prior single-node runtime's cmd/flo/main.go (logger constructed once in main,
// env-driven flag defaults, cobra subcommands), narrowed to the
// operations the control plane exposes: serve, stats, cache clear/resize.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "github.com/AlexxNica/RocketSpeed/internal/config"
	"github.com/AlexxNica/RocketSpeed/internal/runtime"
	pebblestore "github.com/AlexxNica/RocketSpeed/internal/storage/pebble"
	logpkg "github.com/AlexxNica/RocketSpeed/pkg/log"
)

func main() {
	level := os.Getenv("TOWER_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "tower",
		Short: "RocketSpeed Control Tower CLI",
		Long:  "tower is a single-binary Control Tower runtime: a pub/sub topic-tailing service sitting between an append-only log store and subscriber transports.",
	}

	rootCmd.AddCommand(newServeCmd(logger))
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newNamespaceCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd(logger logpkg.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Control Tower server",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			adminAddr, _ := cmd.Flags().GetString("admin")
			storageName, _ := cmd.Flags().GetString("storage")
			partitions, _ := cmd.Flags().GetInt("partitions")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			configPath, _ := cmd.Flags().GetString("config")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfgpkg.FromEnv(&cfg)

			var engine runtime.StorageEngine
			switch storageName {
			case "pebble":
				engine = runtime.StoragePebble
			case "memory", "":
				engine = runtime.StorageMemory
			default:
				return fmt.Errorf("invalid --storage; use memory|pebble")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := runtime.Open(runtime.Options{
				DataDir:    dataDir,
				Fsync:      mode,
				Config:     cfg,
				Storage:    engine,
				Partitions: partitions,
				AdminAddr:  adminAddr,
			}, logger)
			if err != nil {
				return fmt.Errorf("open runtime: %w", err)
			}
			defer rt.Close()

			logger.Infof("tower serving on %s (storage=%s partitions=%d)", adminAddr, storageName, partitions)
			if err := rt.Run(ctx); err != nil {
				return fmt.Errorf("runtime error: %w", err)
			}
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	cmd.Flags().String("data-dir", "", "Data directory for durable storage (pebble engine only)")
	cmd.Flags().String("admin", envOr("TOWER_ADMIN_ADDR", ":8080"), "Admin HTTP listen address")
	cmd.Flags().String("storage", envOr("TOWER_STORAGE", "memory"), "Log storage engine: memory|pebble")
	cmd.Flags().Int("partitions", 1, "Number of worker shards")
	cmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never (pebble engine only)")
	cmd.Flags().String("config", os.Getenv("TOWER_CONFIG"), "Path to a JSON config file")
	return cmd
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-worker statistics from a running tower",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(apiURL() + "/v1/stats")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			var out []map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return err
			}
			b, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(b))
			return nil
		},
	}
	return cmd
}

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{Use: "cache", Short: "Cache administration"}
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear every worker's data cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Post(apiURL()+"/v1/cache/clear", "application/json", nil)
			if err != nil {
				return err
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			fmt.Println("status:", resp.Status)
			return nil
		},
	}
	resizeCmd := &cobra.Command{
		Use:   "resize",
		Short: "Resize every worker's data cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			bytes, _ := cmd.Flags().GetInt("bytes")
			body := strings.NewReader(fmt.Sprintf(`{"bytes": %d}`, bytes))
			resp, err := http.Post(apiURL()+"/v1/cache/resize", "application/json", body)
			if err != nil {
				return err
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			fmt.Println("status:", resp.Status)
			return nil
		},
	}
	resizeCmd.Flags().Int("bytes", 0, "New cache capacity in bytes")
	cacheCmd.AddCommand(clearCmd, resizeCmd)
	return cacheCmd
}

func newNamespaceCmd() *cobra.Command {
	nsCmd := &cobra.Command{Use: "namespace", Short: "Namespace operations"}
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Admit a namespace (namespaces are also created on first subscribe)",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			resp, err := http.Get(fmt.Sprintf("%s/v1/subscribe?namespace=%s&topic=__probe__", apiURL(), name))
			if err != nil {
				return err
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			fmt.Println("status:", resp.Status)
			return nil
		},
	}
	createCmd.Flags().String("name", "default", "Namespace name")
	nsCmd.AddCommand(createCmd)
	return nsCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func apiURL() string {
	return envOr("TOWER_ADMIN_URL", "http://127.0.0.1:8080")
}
