package cli

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tillsync/tillsync/internal/config"
	"github.com/tillsync/tillsync/internal/engine"
	"github.com/tillsync/tillsync/internal/registry"
	"github.com/tillsync/tillsync/internal/remote"
	"github.com/tillsync/tillsync/internal/store"
)

// openStore loads the configuration, compiles the entity registry and opens
// the local database. Callers own the returned store and must Close it.
func openStore(configPath string) (*config.Config, *store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	reg, err := registry.CompileFile(cfg.Registry.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("compiling registry: %w", err)
	}
	slog.Debug("registry compiled", "entities", reg.Len())

	st, err := store.Open(cfg.Database.Path, reg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, st, nil
}

// buildEngine assembles a sync engine from an opened store and its config.
func buildEngine(cfg *config.Config, st *store.Store, metrics prometheus.Registerer) (*engine.Engine, error) {
	policy, err := engine.PolicyByName(cfg.Sync.ConflictPolicy)
	if err != nil {
		return nil, err
	}

	client := remote.NewRESTClient(cfg.Remote.URL, cfg.Remote.APIKey, cfg.Remote.Timeout)

	opts := []engine.Option{
		engine.WithConflictPolicy(policy),
		engine.WithPushBatchSize(cfg.Sync.PushBatchSize),
	}
	if metrics != nil {
		opts = append(opts, engine.WithMetrics(metrics))
	}
	return engine.New(st, client, opts...), nil
}
