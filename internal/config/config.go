package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level configuration loaded from file/env. It carries
// both the namespace-admission policy and the Control Tower's own
// tunables (TowerOptions).
type Config struct {
	AllowAutoCreateNamespaces bool              `json:"allowAutoCreateNamespaces"`
	DefaultNamespaceName      string            `json:"defaultNamespaceName"`
	NamespaceNameRegex        string            `json:"namespaceNameRegex"`
	NamespaceDefaults         NamespaceDefaults `json:"namespaceDefaults"`
	MaxNamespaces             int               `json:"maxNamespaces"`
	AllowedNamespaces         []string          `json:"allowedNamespaces"`

	Tower TowerOptions `json:"tower"`
}

// NamespaceDefaults captures per-namespace baseline limits used by the
// namespace registry's admission checks.
type NamespaceDefaults struct {
	Partitions      int `json:"partitions"`
	PayloadMaxBytes int `json:"payloadMaxBytes"`
	HeadersMaxBytes int `json:"headersMaxBytes"`
}

// TowerOptions holds the Control Tower's recognized configuration options
// (field names translated to Go idiom).
type TowerOptions struct {
	ReadersPerRoom                int           `json:"readersPerRoom"`
	MaxSubscriptionLag            uint64        `json:"maxSubscriptionLag"`
	StorageToRoomQueueSize        int           `json:"storageToRoomQueueSize"`
	RoomToClientQueueSize         int           `json:"roomToClientQueueSize"`
	MaxFindTimeRequests           int           `json:"maxFindTimeRequests"`
	CacheSize                     int64         `json:"cacheSize"`
	CacheBlockSize                int           `json:"cacheBlockSize"`
	BloomBitsPerMsg               uint          `json:"bloomBitsPerMsg"`
	CacheDataFromSystemNamespaces bool          `json:"cacheDataFromSystemNamespaces"`
	TimerInterval                 time.Duration `json:"timerInterval"`
	MinReaderRestartDuration      time.Duration `json:"minReaderRestartDuration"`
	MaxReaderRestartDuration      time.Duration `json:"maxReaderRestartDuration"`
}

// DefaultTowerOptions returns built-in defaults for TowerOptions.
func DefaultTowerOptions() TowerOptions {
	return TowerOptions{
		ReadersPerRoom:                2,
		MaxSubscriptionLag:            10000,
		StorageToRoomQueueSize:        1000,
		RoomToClientQueueSize:         1000,
		MaxFindTimeRequests:           100,
		CacheSize:                     0,
		CacheBlockSize:                1024,
		BloomBitsPerMsg:               10,
		CacheDataFromSystemNamespaces: false,
		TimerInterval:                 100 * time.Millisecond,
		MinReaderRestartDuration:      30 * time.Second,
		MaxReaderRestartDuration:      60 * time.Second,
	}
}

// Default returns built-in defaults for the whole Config.
func Default() Config {
	return Config{
		AllowAutoCreateNamespaces: true,
		DefaultNamespaceName:      "default",
		NamespaceNameRegex:        "[a-z0-9-_]{1,64}",
		NamespaceDefaults: NamespaceDefaults{
			Partitions:      16,
			PayloadMaxBytes: 1 << 20,
			HeadersMaxBytes: 16 << 10,
		},
		Tower: DefaultTowerOptions(),
	}
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults. YAML is not supported.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	ext := filepath.Ext(path)
	switch ext {
	case ".yaml", ".yml":
		return Config{}, errors.New("yaml config not supported; use JSON")
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
