// Command minicached runs a minimal read-only cache server speaking the
// memcached GET text protocol. Entries are loaded at startup from the
// preload section of the configuration file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pior/minicache"
	"github.com/pior/minicache/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a TOML configuration file")
		addr       = flag.String("addr", "", "Listen address (overrides the configuration file)")
		debug      = flag.Bool("debug", false, "Enable debug logging")
		pretty     = flag.Bool("pretty", false, "Human readable log output")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := newLogger(*debug || cfg.LogDebug, *pretty || cfg.LogPretty)
	cfg.Server.Logger = &logger

	st := store.NewSharded(cfg.Shards)
	for _, p := range cfg.Preload {
		st.Insert([]byte(p.Key), store.Entry{Flags: p.Flags, Value: []byte(p.Value)})
	}
	logger.Info().Int("entries", st.Len()).Int("shards", cfg.Shards).Msg("store ready")

	srv, err := minicache.NewServer(st, cfg.Server)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StatsInterval > 0 {
		go statsLoop(ctx, srv, logger, cfg.StatsInterval)
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	srv.Close()
	logStats(srv, logger)
}

func newLogger(debug, pretty bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", "minicached").Logger()
}

func statsLoop(ctx context.Context, srv *minicache.Server, logger zerolog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logStats(srv, logger)
		}
	}
}

func logStats(srv *minicache.Server, logger zerolog.Logger) {
	stats := srv.Stats()
	pool := srv.PoolStats()
	logger.Info().
		Uint64("accepted", stats.AcceptedConnections).
		Uint64("rejected", stats.RejectedConnections).
		Uint64("session_errors", stats.SessionErrors).
		Uint64("hits", stats.Protocol.GetHits).
		Uint64("misses", stats.Protocol.GetMisses).
		Uint64("replies", stats.Protocol.Replies).
		Uint64("discarded_bytes", stats.Protocol.DiscardedBytes).
		Uint64("flushed_bytes", stats.Protocol.FlushedBytes).
		Int32("active_sessions", pool.ActiveSessions).
		Int32("idle_sessions", pool.IdleSessions).
		Msg("stats")
}
