package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const workspaceDir = ".nexus"

// Canonical database file names inside the workspace directory. Each
// component owns exactly one file.
const (
	WorldDB    = "world.db"
	RegistryDB = "registry.db"
	CostDB     = "cost.db"
)

type Config struct {
	Workspace string
}

// QueryObserver receives a short label each time a store runs a SQL
// statement. Tests install one to assert how many statements an
// operation issues; nil disables it.
type QueryObserver func(label string)

func filePath(workspace, name string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, workspaceDir, name)
}

// EnsureWorkspace creates the workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens one of the workspace SQLite files with foreign keys on.
func Open(cfg Config, name string) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", filePath(cfg.Workspace, name))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Path returns the on-disk path of a workspace database file.
func Path(workspace, name string) string {
	return filePath(workspace, name)
}
