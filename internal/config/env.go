package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays TOWER_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("TOWER_ALLOW_AUTO_CREATE_NAMESPACES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowAutoCreateNamespaces = b
		}
	}
	if v := os.Getenv("TOWER_DEFAULT_NAMESPACE_NAME"); v != "" {
		cfg.DefaultNamespaceName = v
	}
	if v := os.Getenv("TOWER_NAMESPACE_NAME_REGEX"); v != "" {
		cfg.NamespaceNameRegex = v
	}
	if v := os.Getenv("TOWER_NAMESPACE_DEFAULTS_PARTITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NamespaceDefaults.Partitions = n
		}
	}
	if v := os.Getenv("TOWER_NAMESPACE_DEFAULTS_PAYLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NamespaceDefaults.PayloadMaxBytes = n
		}
	}
	if v := os.Getenv("TOWER_NAMESPACE_DEFAULTS_HEADERS_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NamespaceDefaults.HeadersMaxBytes = n
		}
	}
	if v := os.Getenv("TOWER_MAX_NAMESPACES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxNamespaces = n
		}
	}
	if v := os.Getenv("TOWER_ALLOWED_NAMESPACES"); v != "" {
		parts := strings.Split(v, ",")
		cfg.AllowedNamespaces = nil
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.AllowedNamespaces = append(cfg.AllowedNamespaces, p)
			}
		}
	}
	fromEnvTowerOptions(&cfg.Tower)
}

// fromEnvTowerOptions overlays TowerOptions from TOWER_* environment variables.
func fromEnvTowerOptions(t *TowerOptions) {
	if v := os.Getenv("TOWER_READERS_PER_ROOM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			t.ReadersPerRoom = n
		}
	}
	if v := os.Getenv("TOWER_MAX_SUBSCRIPTION_LAG"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			t.MaxSubscriptionLag = n
		}
	}
	if v := os.Getenv("TOWER_STORAGE_TO_ROOM_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			t.StorageToRoomQueueSize = n
		}
	}
	if v := os.Getenv("TOWER_ROOM_TO_CLIENT_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			t.RoomToClientQueueSize = n
		}
	}
	if v := os.Getenv("TOWER_MAX_FIND_TIME_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			t.MaxFindTimeRequests = n
		}
	}
	if v := os.Getenv("TOWER_CACHE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			t.CacheSize = n
		}
	}
	if v := os.Getenv("TOWER_CACHE_BLOCK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			t.CacheBlockSize = n
		}
	}
	if v := os.Getenv("TOWER_BLOOM_BITS_PER_MSG"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			t.BloomBitsPerMsg = uint(n)
		}
	}
	if v := os.Getenv("TOWER_CACHE_DATA_FROM_SYSTEM_NAMESPACES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			t.CacheDataFromSystemNamespaces = b
		}
	}
	if v := os.Getenv("TOWER_TIMER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			t.TimerInterval = d
		}
	}
	if v := os.Getenv("TOWER_MIN_READER_RESTART_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			t.MinReaderRestartDuration = d
		}
	}
	if v := os.Getenv("TOWER_MAX_READER_RESTART_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			t.MaxReaderRestartDuration = d
		}
	}
}
