package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/pior/minicache"
	"github.com/pior/minicache/protocol"
	"github.com/pior/minicache/store"
)

// config is the resolved daemon configuration.
type config struct {
	Server        *minicache.Config
	Shards        int
	StatsInterval time.Duration
	LogDebug      bool
	LogPretty     bool
	Preload       []preloadEntry
}

type preloadEntry struct {
	Key   string
	Flags uint32
	Value string
}

func defaultDaemonConfig() *config {
	return &config{
		Server: minicache.DefaultConfig(),
		Shards: store.DefaultShardCount,
	}
}

type fileConfig struct {
	Addr            string `toml:"addr"`
	MaxSessions     int32  `toml:"max_sessions"`
	ReadBufferSize  int    `toml:"read_buffer_size"`
	WriteBufferSize int    `toml:"write_buffer_size"`
	IdleTimeout     string `toml:"idle_timeout"`
	Shards          int    `toml:"shards"`
	StatsInterval   string `toml:"stats_interval"`

	Log struct {
		Debug  bool `toml:"debug"`
		Pretty bool `toml:"pretty"`
	} `toml:"log"`

	Preload []filePreload `toml:"preload"`
}

type filePreload struct {
	Key   string `toml:"key"`
	Flags uint32 `toml:"flags"`
	Value string `toml:"value"`
}

// loadConfig resolves the daemon configuration. An empty path yields the
// defaults.
func loadConfig(path string) (*config, error) {
	cfg := defaultDaemonConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	md, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if md.IsDefined("addr") {
		cfg.Server.Addr = strings.TrimSpace(raw.Addr)
	}
	if md.IsDefined("max_sessions") {
		cfg.Server.MaxSessions = raw.MaxSessions
	}
	if md.IsDefined("read_buffer_size") {
		cfg.Server.ReadBufferSize = raw.ReadBufferSize
	}
	if md.IsDefined("write_buffer_size") {
		cfg.Server.WriteBufferSize = raw.WriteBufferSize
	}
	if md.IsDefined("idle_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.IdleTimeout))
		if err != nil {
			return nil, fmt.Errorf("parse idle_timeout: %w", err)
		}
		cfg.Server.IdleTimeout = d
	}
	if md.IsDefined("shards") {
		cfg.Shards = raw.Shards
	}
	if md.IsDefined("stats_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.StatsInterval))
		if err != nil {
			return nil, fmt.Errorf("parse stats_interval: %w", err)
		}
		cfg.StatsInterval = d
	}
	if md.IsDefined("log", "debug") {
		cfg.LogDebug = raw.Log.Debug
	}
	if md.IsDefined("log", "pretty") {
		cfg.LogPretty = raw.Log.Pretty
	}

	for _, p := range raw.Preload {
		if err := protocol.ValidateKey([]byte(p.Key)); err != nil {
			return nil, fmt.Errorf("preload key %q: %w", p.Key, err)
		}
		cfg.Preload = append(cfg.Preload, preloadEntry(p))
	}

	return cfg, nil
}
