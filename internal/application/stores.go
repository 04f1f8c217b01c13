package application

import (
	"context"
	"errors"
	"time"

	"github.com/example/telescope-scheduler/internal/persistence"
)

// errRollback aborts a reservation transaction after validation failed inside it.
var errRollback = errors.New("application: reservation rolled back")

// RoleStore resolves identities and their roles for the authorizer.
type RoleStore interface {
	GetUser(ctx context.Context, id string) (User, error)
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
}

// UserDirectory exposes the user lookups needed by appointment commands.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// TelescopeCatalog exposes telescope lookups and writes.
type TelescopeCatalog interface {
	GetTelescope(ctx context.Context, id string) (Telescope, error)
	ListTelescopes(ctx context.Context) ([]Telescope, error)
	CreateTelescope(ctx context.Context, telescope Telescope) (Telescope, error)
	TelescopeNameExists(ctx context.Context, name string) (bool, error)
}

// AppointmentStore exposes appointment reads and the reservation transaction.
type AppointmentStore interface {
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	ListAppointmentsForUser(ctx context.Context, userID string) ([]Appointment, error)
	ListAppointmentsByStatus(ctx context.Context, status AppointmentStatus) ([]Appointment, error)
	// WithinReservation runs fn inside a single write transaction that holds
	// the store's write lock from the first read until commit. Returning an
	// error from fn rolls the transaction back and is returned unchanged.
	WithinReservation(ctx context.Context, fn func(tx ReservationTx) error) error
}

// ReservationTx is the transactional view used to check conflicts and time
// caps against the same snapshot that receives the write.
type ReservationTx interface {
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	FindOverlapping(ctx context.Context, telescopeID string, start, end time.Time, statuses []AppointmentStatus) ([]Appointment, error)
	ListForUserByStatus(ctx context.Context, userID string, statuses []AppointmentStatus) ([]Appointment, error)
	AllottedTimeCap(ctx context.Context, userID string) (AllottedTimeCap, error)
	CreateAppointment(ctx context.Context, appointment Appointment) error
	// TransitionStatus moves the appointment to to only when its current
	// status is one of from. It reports whether a row changed.
	TransitionStatus(ctx context.Context, id string, from []AppointmentStatus, to AppointmentStatus, at time.Time) (bool, error)
	CreateSubscription(ctx context.Context, subscription Subscription) error
	DeleteSubscriptionsForAppointment(ctx context.Context, appointmentID string) error
}

// RFDataStore exposes captured samples.
type RFDataStore interface {
	ListRFData(ctx context.Context, appointmentID string) ([]RFData, error)
}

// TopicCreator prepares the notification topic for a scheduled appointment.
type TopicCreator interface {
	CreateTopic(ctx context.Context, name string) error
}

// AccountStore exposes the user account writes needed by user commands.
type AccountStore interface {
	GetUser(ctx context.Context, id string) (User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	RegisterUser(ctx context.Context, registration Registration) error
	GetActivationToken(ctx context.Context, token string) (ActivationToken, error)
	ActivateUser(ctx context.Context, tokenID, userID string, at time.Time) error
	SetCategory(ctx context.Context, userID string, category Role, limit *time.Duration) error
	SetAllottedTime(ctx context.Context, userID string, limit *time.Duration) error
	AllottedTimeCap(ctx context.Context, userID string) (AllottedTimeCap, error)
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
}

// Registration bundles everything written when an account is created.
type Registration struct {
	User         User
	PasswordHash string
	Roles        []Role
	Cap          AllottedTimeCap
	Token        ActivationToken
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
