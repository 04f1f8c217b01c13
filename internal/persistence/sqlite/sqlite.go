package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/telescope-scheduler/internal/persistence"
	"github.com/example/telescope-scheduler/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationDir = "migrations"

// Storage bundles the SQLite repositories over one connection pool.
type Storage struct {
	pool *ConnectionPool

	Users         *UserRepository
	Telescopes    *TelescopeRepository
	Appointments  *AppointmentRepository
	Subscriptions *SubscriptionRepository
	Sessions      *SessionRepository
}

var (
	_ persistence.UserRepository         = (*UserRepository)(nil)
	_ persistence.TelescopeRepository    = (*TelescopeRepository)(nil)
	_ persistence.AppointmentRepository  = (*AppointmentRepository)(nil)
	_ persistence.SubscriptionRepository = (*SubscriptionRepository)(nil)
	_ persistence.SessionRepository      = (*SessionRepository)(nil)
)

// Open connects to the database described by config.
func Open(config migration.SQLiteConfig) (*Storage, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return &Storage{
		pool:          pool,
		Users:         NewUserRepository(pool),
		Telescopes:    NewTelescopeRepository(pool),
		Appointments:  NewAppointmentRepository(pool),
		Subscriptions: NewSubscriptionRepository(pool),
		Sessions:      NewSessionRepository(pool),
	}, nil
}

// OpenPath connects to the database file at path with production settings.
func OpenPath(path string) (*Storage, error) {
	return Open(migration.DefaultSQLiteConfig(path))
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context, logger *slog.Logger) error {
	if err := s.migrator(logger).Run(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// MigrationStatus reports applied and pending migrations.
func (s *Storage) MigrationStatus(ctx context.Context, logger *slog.Logger) (migration.Status, error) {
	return s.migrator(logger).Status(ctx)
}

func (s *Storage) migrator(logger *slog.Logger) *migration.Manager {
	return migration.NewManager(
		migration.NewScanner(),
		migration.NewSQLiteExecutor(s.pool.DB()),
		migrationFiles,
		migrationDir,
		logger,
	)
}
