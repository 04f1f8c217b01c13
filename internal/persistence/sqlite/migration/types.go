package migration

import (
	"context"
	"io/fs"
	"time"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     string // numeric, e.g. "001"
	Description string
	SQL         string
	FilePath    string
	Checksum    string
}

// Scanner reads migration files from a filesystem.
type Scanner interface {
	// ScanMigrations returns the migrations under dir ordered by version.
	ScanMigrations(fsys fs.FS, dir string) ([]Migration, error)
	ValidateFileName(filename string) error
}

// Executor applies migrations and tracks the applied versions.
type Executor interface {
	// ExecuteMigration runs a migration and records it in one transaction.
	ExecuteMigration(ctx context.Context, migration Migration) (time.Duration, error)
	InitializeVersionTable(ctx context.Context) error
	IsVersionApplied(ctx context.Context, version string) (bool, error)
	GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error)
}

// Status describes the schema state of a database.
type Status struct {
	CurrentVersion    string
	PendingCount      int
	AppliedMigrations []AppliedMigration
	PendingMigrations []Migration
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}
