package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/telescope-scheduler/internal/persistence"
	"github.com/example/telescope-scheduler/internal/persistence/sqlite"
	"github.com/example/telescope-scheduler/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides repository access backed by a temporary SQLite storage
// instance for integration-style persistence tests.
type SQLiteHarness struct {
	Users         persistence.UserRepository
	Telescopes    persistence.TelescopeRepository
	Appointments  persistence.AppointmentRepository
	Subscriptions persistence.SubscriptionRepository
	Sessions      persistence.SessionRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "telescope.db")
	storage, err := sqlite.Open(migration.TempFileTestSQLiteConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background(), nil); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Users:         storage.Users,
		Telescopes:    storage.Telescopes,
		Appointments:  storage.Appointments,
		Subscriptions: storage.Subscriptions,
		Sessions:      storage.Sessions,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedUser registers the fixture's account.
func (h *SQLiteHarness) SeedUser(tb testing.TB, fixture UserFixture) {
	tb.Helper()
	if err := h.Users.CreateAccount(context.Background(), fixture.Account()); err != nil {
		tb.Fatalf("failed to seed user %s: %v", fixture.ID, err)
	}
}

// SeedTelescope stores the fixture's telescope.
func (h *SQLiteHarness) SeedTelescope(tb testing.TB, fixture TelescopeFixture) {
	tb.Helper()
	if err := h.Telescopes.CreateTelescope(context.Background(), fixture.Persistence()); err != nil {
		tb.Fatalf("failed to seed telescope %s: %v", fixture.ID, err)
	}
}

// SeedAppointment stores the fixture's appointment through a reservation.
func (h *SQLiteHarness) SeedAppointment(tb testing.TB, fixture AppointmentFixture) {
	tb.Helper()
	ctx := context.Background()
	err := h.Appointments.WithinReservation(ctx, func(tx persistence.ReservationTx) error {
		return tx.CreateAppointment(ctx, fixture.Persistence())
	})
	if err != nil {
		tb.Fatalf("failed to seed appointment %s: %v", fixture.ID, err)
	}
}
