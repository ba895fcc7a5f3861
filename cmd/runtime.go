package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/gradewise/internal/app"
	"github.com/abhisek/gradewise/internal/catalog"
	"github.com/abhisek/gradewise/internal/config"
	"github.com/abhisek/gradewise/internal/logger"
	"github.com/abhisek/gradewise/internal/store"
)

// runtime holds what a command opened; Close releases it in reverse.
type runtime struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *store.Store
	catalog *catalog.Catalog
	engine  *app.Engine
}

// loadConfig reads the config file and applies the --db and --catalog
// flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.DB = p
	}
	if p, _ := cmd.Flags().GetString("catalog"); p != "" {
		cfg.Catalog = p
	}
	return cfg, nil
}

// resolveDBPath returns the configured database path, then the default
// XDG path.
func resolveDBPath(cfg *config.Config) (string, error) {
	if cfg.DB != "" {
		return cfg.DB, store.EnsureDir(cfg.DB)
	}
	return store.DefaultDBPath()
}

// openStore is enough for commands that only read stored events.
func openStore(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	rt := &runtime{cfg: cfg, log: log}

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	rt.store, err = store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return rt, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog == "" {
		return catalog.Sample()
	}
	return catalog.Load(cfg.Catalog)
}

// openEngine opens the store and catalog and builds the engine on them.
func openEngine(cmd *cobra.Command, opts ...app.Option) (*runtime, error) {
	rt, err := openStore(cmd)
	if err != nil {
		return nil, err
	}
	rt.catalog, err = loadCatalog(rt.cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	rt.engine, err = app.New(cmd.Context(), rt.cfg, rt.catalog, rt.store, rt.log, opts...)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.engine != nil {
		rt.engine.Close()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.log.Warn("closing database", zap.Error(err))
		}
	}
	_ = rt.log.Sync()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
