package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-rent-must-flow/internal/amortization"
	"github.com/Veraticus/the-rent-must-flow/internal/combinations"
	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/config"
	"github.com/Veraticus/the-rent-must-flow/internal/engine"
	"github.com/Veraticus/the-rent-must-flow/internal/storage"
)

// app carries the configuration of one invocation.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	cfgFile string
}

// services are the wired components a command works with.
type services struct {
	store     *storage.SQLiteStorage
	engine    *engine.ClassificationEngine
	registry  *combinations.Registry
	scheduler *amortization.Scheduler
}

func newApp() *app {
	return &app{v: viper.New()}
}

func (a *app) bindFlag(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", flag.Name, err))
	}
}

func (a *app) initConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if err := common.SetupLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	a.cfg = cfg

	slog.Debug("Configuration loaded",
		"database", cfg.DatabasePath,
		"property_id", cfg.PropertyID)
	return nil
}

func (a *app) property() int64 {
	return a.cfg.PropertyID
}

// openStorage opens the configured database, migrating it when migrate is set.
func (a *app) openStorage(ctx context.Context, migrate bool) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(a.cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return store, nil
}

// withServices wires storage, the amortization scheduler, the classification
// engine and the combination registry, then runs fn.
func (a *app) withServices(ctx context.Context, fn func(*services) error) error {
	store, err := a.openStorage(ctx, true)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	scheduler := amortization.NewScheduler(store)
	return fn(&services{
		store:     store,
		scheduler: scheduler,
		engine:    engine.New(store).WithRecalculator(scheduler),
		registry:  combinations.NewRegistry(store).WithRecalculator(scheduler),
	})
}
