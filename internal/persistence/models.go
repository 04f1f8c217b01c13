package persistence

import "time"

// User represents an account row together with its credential hash.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AllottedTimeCap stores the per-user ceiling. A nil Limit is unlimited.
type AllottedTimeCap struct {
	UserID string
	Limit  *time.Duration
}

// ActivationToken unlocks a newly registered account.
type ActivationToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// NewAccount bundles the rows written when an account is registered.
type NewAccount struct {
	User  User
	Roles []string
	Cap   AllottedTimeCap
	Token ActivationToken
}

// Telescope represents a bookable instrument.
type Telescope struct {
	ID        string
	Name      string
	Location  string
	Online    bool
	CreatedAt time.Time
}

// Appointment represents a reservation row. Target holds the encoded
// observation target for Type.
type Appointment struct {
	ID          string
	UserID      string
	TelescopeID string
	Start       time.Time
	End         time.Time
	Public      bool
	Priority    string
	Type        string
	Status      string
	Target      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RFData represents one captured sample.
type RFData struct {
	ID            string
	AppointmentID string
	CapturedAt    time.Time
	Intensity     int64
}

// Subscription tracks notifications owed for a scheduled appointment.
type Subscription struct {
	ID            string
	AppointmentID string
	UserID        string
	Topic         string
	Status        string
	CreatedAt     time.Time
}

// Session represents an authentication session persisted for a user.
type Session struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}
