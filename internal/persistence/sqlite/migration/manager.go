package migration

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
)

// Manager applies pending migrations in version order.
type Manager struct {
	scanner  Scanner
	executor Executor
	fsys     fs.FS
	dir      string
	logger   *slog.Logger
}

// NewManager builds a Manager reading migrations from dir inside fsys.
func NewManager(scanner Scanner, executor Executor, fsys fs.FS, dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		scanner:  scanner,
		executor: executor,
		fsys:     fsys,
		dir:      dir,
		logger:   logger.With("component", "migration"),
	}
}

// Run applies every pending migration. It stops at the first failure; the
// failed migration leaves no trace because it runs in one transaction.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return fmt.Errorf("initialize version table: %w", err)
	}

	pending, err := m.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		m.logger.DebugContext(ctx, "schema up to date")
		return nil
	}

	for i, migration := range pending {
		logger := m.logger.With("version", migration.Version, "description", migration.Description)
		elapsed, err := m.executor.ExecuteMigration(ctx, migration)
		if err != nil {
			logger.ErrorContext(ctx, "migration failed", "error", err)
			return NewMigrationError(migration.Version, migration.FilePath, "execute migration",
				fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}
		logger.InfoContext(ctx, "migration applied", "elapsed", elapsed, "position", i+1, "total", len(pending))
	}
	return nil
}

// Pending returns the migrations not yet applied after checking that the
// available versions form a gapless sequence covering every applied one.
func (m *Manager) Pending(ctx context.Context) ([]Migration, error) {
	available, err := m.scanner.ScanMigrations(m.fsys, m.dir)
	if err != nil {
		return nil, fmt.Errorf("scan migrations: %w", err)
	}
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return nil, fmt.Errorf("initialize version table: %w", err)
	}
	applied, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("get applied versions: %w", err)
	}
	if err := validateSequence(available, applied); err != nil {
		return nil, err
	}

	done := make(map[int]bool, len(applied))
	for _, a := range applied {
		done[versionNumber(a.Version)] = true
	}
	var pending []Migration
	for _, migration := range available {
		if !done[versionNumber(migration.Version)] {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

// Status reports the current version and pending work.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	pending, err := m.Pending(ctx)
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("get applied versions: %w", err)
	}

	status := Status{
		PendingCount:      len(pending),
		AppliedMigrations: applied,
		PendingMigrations: pending,
	}
	highest := -1
	for _, a := range applied {
		if n := versionNumber(a.Version); n > highest {
			highest = n
			status.CurrentVersion = a.Version
		}
	}
	return status, nil
}

func validateSequence(available []Migration, applied []AppliedMigration) error {
	present := make(map[int]bool, len(available))
	for i, migration := range available {
		n, err := strconv.Atoi(migration.Version)
		if err != nil {
			return NewMigrationError(migration.Version, migration.FilePath, "validate sequence",
				fmt.Errorf("%w: version '%s' is not numeric", ErrInvalidVersion, migration.Version))
		}
		if i > 0 && n != versionNumber(available[i-1].Version)+1 {
			return fmt.Errorf("%w: missing migration version %03d in sequence", ErrVersionConflict, versionNumber(available[i-1].Version)+1)
		}
		present[n] = true
	}

	for _, a := range applied {
		n, err := strconv.Atoi(a.Version)
		if err != nil {
			return NewDatabaseError(a.Version, "", "validate sequence",
				fmt.Errorf("%w: applied version '%s' is not numeric", ErrVersionTableCorrupt, a.Version))
		}
		if !present[n] {
			return fmt.Errorf("%w: applied migration %03d not found in available migrations", ErrVersionConflict, n)
		}
	}
	return nil
}
