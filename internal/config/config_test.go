package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if !cfg.AllowAutoCreateNamespaces {
		t.Fatalf("default allow auto create should be true")
	}
	if cfg.DefaultNamespaceName != "default" {
		t.Fatalf("default ns name")
	}
	if cfg.NamespaceDefaults.Partitions != 16 {
		t.Fatalf("partitions default")
	}
	if cfg.Tower.ReadersPerRoom != 2 {
		t.Fatalf("readers per room default")
	}
	if cfg.Tower.MaxSubscriptionLag != 10000 {
		t.Fatalf("max subscription lag default")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "flo.json")
	data := []byte(`{"allowAutoCreateNamespaces":false,"defaultNamespaceName":"prod","namespaceDefaults":{"partitions":32,"payloadMaxBytes":2048,"headersMaxBytes":1024}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AllowAutoCreateNamespaces {
		t.Fatalf("expected false")
	}
	if cfg.DefaultNamespaceName != "prod" {
		t.Fatalf("expected prod")
	}
	if cfg.NamespaceDefaults.Partitions != 32 {
		t.Fatalf("expected 32")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("TOWER_ALLOW_AUTO_CREATE_NAMESPACES", "false")
	os.Setenv("TOWER_DEFAULT_NAMESPACE_NAME", "staging")
	os.Setenv("TOWER_NAMESPACE_DEFAULTS_PARTITIONS", "24")
	t.Cleanup(func() {
		os.Unsetenv("TOWER_ALLOW_AUTO_CREATE_NAMESPACES")
		os.Unsetenv("TOWER_DEFAULT_NAMESPACE_NAME")
		os.Unsetenv("TOWER_NAMESPACE_DEFAULTS_PARTITIONS")
	})
	FromEnv(&cfg)
	if cfg.AllowAutoCreateNamespaces {
		t.Fatalf("env override bool")
	}
	if cfg.DefaultNamespaceName != "staging" {
		t.Fatalf("env override name")
	}
	if cfg.NamespaceDefaults.Partitions != 24 {
		t.Fatalf("env override partitions")
	}
}

func TestFromEnvTowerOptions(t *testing.T) {
	cfg := Default()
	os.Setenv("TOWER_READERS_PER_ROOM", "4")
	os.Setenv("TOWER_MAX_SUBSCRIPTION_LAG", "500")
	os.Setenv("TOWER_CACHE_SIZE", "1048576")
	t.Cleanup(func() {
		os.Unsetenv("TOWER_READERS_PER_ROOM")
		os.Unsetenv("TOWER_MAX_SUBSCRIPTION_LAG")
		os.Unsetenv("TOWER_CACHE_SIZE")
	})
	FromEnv(&cfg)
	if cfg.Tower.ReadersPerRoom != 4 {
		t.Fatalf("env override readers per room")
	}
	if cfg.Tower.MaxSubscriptionLag != 500 {
		t.Fatalf("env override max subscription lag")
	}
	if cfg.Tower.CacheSize != 1048576 {
		t.Fatalf("env override cache size")
	}
}
