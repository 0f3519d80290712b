package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/config"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/cost"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/db"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/migrate"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/registry"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/world"
)

// App is the composition root: it opens the workspace databases, runs
// migrations, and wires the three components together. Both cmd/nx and
// the HTTP server start from here.
type App struct {
	Config   *config.Config
	World    world.Store
	Registry registry.Registry
	Cost     *cost.Tracker

	conns []*sql.DB
}

type Options struct {
	Workspace string
	// Config overrides file loading when set. Tests and embedders use it.
	Config *config.Config
}

// New boots the workspace. A missing nexus.yml is not an error: defaults
// apply. An unreadable or invalid one is logged and likewise degrades to
// defaults, so a typo in the config never takes coordination down.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.LoadOptional(opts.Workspace)
		if err != nil {
			log.Warn().Err(err).Str("path", config.Path(opts.Workspace)).
				Msg("config unreadable, continuing with defaults")
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = config.Default(projectName(opts.Workspace))
	}

	a := &App{Config: cfg}
	worldDB, err := a.open(opts.Workspace, db.WorldDB, migrate.SetWorld)
	if err != nil {
		return nil, err
	}
	registryDB, err := a.open(opts.Workspace, db.RegistryDB, migrate.SetRegistry)
	if err != nil {
		return nil, err
	}
	costDB, err := a.open(opts.Workspace, db.CostDB, migrate.SetCost)
	if err != nil {
		return nil, err
	}

	w := world.New(worldDB)
	r := registry.New(registryDB)
	w.Directory = r
	r.Tasks = w
	a.World = w
	a.Registry = r
	a.Cost = cost.New(costDB, cfg)

	if len(cfg.Roster) > 0 {
		added, err := a.Registry.SeedRoster(ctx, cfg.Roster)
		if err != nil {
			log.Warn().Err(err).Msg("roster seed failed, registry continues unseeded")
		} else if added > 0 {
			log.Info().Int("agents", added).Msg("seeded roster from config")
		}
	}
	return a, nil
}

// open opens one workspace database and migrates it, tracking the
// connection for Close. On failure everything opened so far is closed.
func (a *App) open(workspace, name, set string) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace}, name)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	a.conns = append(a.conns, conn)
	if err := migrate.Migrate(conn, set); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate %s: %w", name, err)
	}
	return conn, nil
}

// Close releases all database connections.
func (a *App) Close() error {
	var errs []error
	for _, conn := range a.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.conns = nil
	return errors.Join(errs...)
}

func projectName(workspace string) string {
	if workspace == "" {
		if wd, err := os.Getwd(); err == nil {
			workspace = wd
		}
	}
	if abs, err := filepath.Abs(workspace); err == nil {
		workspace = abs
	}
	name := filepath.Base(workspace)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "nexus"
	}
	return name
}
