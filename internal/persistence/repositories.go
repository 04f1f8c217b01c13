package persistence

import (
	"context"
	"time"
)

// UserRepository stores accounts, roles, caps and activation tokens.
type UserRepository interface {
	CreateAccount(ctx context.Context, account NewAccount) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	ListRoles(ctx context.Context, userID string) ([]string, error)
	GrantRole(ctx context.Context, userID, role string) error
	// ReplaceCategory swaps the user's category role for category and
	// writes limit as the new cap, in one transaction.
	ReplaceCategory(ctx context.Context, userID, category string, categories []string, limit *time.Duration) error
	GetAllottedTimeCap(ctx context.Context, userID string) (AllottedTimeCap, error)
	SetAllottedTimeCap(ctx context.Context, userID string, limit *time.Duration) error
	GetActivationToken(ctx context.Context, token string) (ActivationToken, error)
	// ActivateUser marks the user active and deletes the token.
	ActivateUser(ctx context.Context, tokenID, userID string, at time.Time) error
	ListExpiredActivationTokens(ctx context.Context, now time.Time) ([]ActivationToken, error)
	// ExpireActivationToken deletes the token and its owner when the owner
	// is still inactive. It reports whether the owner was deleted.
	ExpireActivationToken(ctx context.Context, tokenID, userID string) (bool, error)
}

// TelescopeRepository stores the instrument catalog.
type TelescopeRepository interface {
	CreateTelescope(ctx context.Context, telescope Telescope) error
	GetTelescope(ctx context.Context, id string) (Telescope, error)
	ListTelescopes(ctx context.Context) ([]Telescope, error)
	TelescopeNameExists(ctx context.Context, name string) (bool, error)
}

// AppointmentRepository stores appointments and their captured data.
type AppointmentRepository interface {
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	ListAppointmentsForUser(ctx context.Context, userID string) ([]Appointment, error)
	ListAppointmentsByStatus(ctx context.Context, statuses []string) ([]Appointment, error)
	ListEndedBefore(ctx context.Context, statuses []string, now time.Time) ([]Appointment, error)
	ListStartedBefore(ctx context.Context, status string, now time.Time) ([]Appointment, error)
	TransitionStatus(ctx context.Context, id string, from []string, to string, at time.Time) (bool, error)
	// CompleteAppointment writes samples and sets COMPLETED in one
	// transaction when the current status is one of from.
	CompleteAppointment(ctx context.Context, id string, from []string, samples []RFData, at time.Time) (bool, error)
	ListRFData(ctx context.Context, appointmentID string) ([]RFData, error)
	// WithinReservation runs fn in a write transaction that holds the
	// database write lock from its first statement.
	WithinReservation(ctx context.Context, fn func(tx ReservationTx) error) error
}

// ReservationTx is the transactional view of the appointment tables.
type ReservationTx interface {
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	FindOverlapping(ctx context.Context, telescopeID string, start, end time.Time, statuses []string) ([]Appointment, error)
	ListForUserByStatus(ctx context.Context, userID string, statuses []string) ([]Appointment, error)
	GetAllottedTimeCap(ctx context.Context, userID string) (AllottedTimeCap, error)
	CreateAppointment(ctx context.Context, appointment Appointment) error
	TransitionStatus(ctx context.Context, id string, from []string, to string, at time.Time) (bool, error)
	CreateSubscription(ctx context.Context, subscription Subscription) error
	DeleteSubscriptionsForAppointment(ctx context.Context, appointmentID string) error
}

// SubscriptionRepository stores notification subscriptions.
type SubscriptionRepository interface {
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	MarkSubscriptionStarted(ctx context.Context, id string) (bool, error)
	DeleteSubscription(ctx context.Context, id string) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	UpdateSession(ctx context.Context, session Session) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}
