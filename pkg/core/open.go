package core

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/saorsa-labs/fae/pkg/config"
	"github.com/saorsa-labs/fae/pkg/host"
	"github.com/saorsa-labs/fae/pkg/kv"
)

// Open parses an init config payload and assembles a runtime over the
// default backend: a badger kv store (in-memory when no data_dir is
// configured, on disk under data_dir otherwise), the scheduler task
// store, and the YAML config store.
//
// The returned runtime is in the created state; the caller starts,
// drives and eventually closes it. Close releases the stores.
func Open(configJSON string) (*host.Runtime, error) {
	cfg, err := host.ParseConfig(configJSON)
	if err != nil {
		return nil, err
	}

	log := host.SlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))

	store, err := openKV(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cfgStore, err := config.Open(cfg.DataDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	handler := NewHandler(store, cfgStore)
	rt := host.NewRuntime(cfg, handler, log)
	handler.BindEmitter(rt.Emitter())
	return rt, nil
}

func openKV(dataDir string) (kv.Store, error) {
	opts := kv.BadgerOptions{InMemory: dataDir == ""}
	if dataDir != "" {
		opts.Dir = filepath.Join(dataDir, "kv")
	}
	store, err := kv.OpenBadger(opts)
	if err != nil {
		return nil, fmt.Errorf("core: open kv store: %w", err)
	}
	return store, nil
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
