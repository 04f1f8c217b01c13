package application

import (
	"slices"
	"time"
)

// Role is a capability granted to a user. Roles are additive; every check
// names the set it accepts.
type Role string

const (
	RoleGuest      Role = "GUEST"
	RoleUser       Role = "USER"
	RoleMember     Role = "MEMBER"
	RoleStudent    Role = "STUDENT"
	RoleResearcher Role = "RESEARCHER"
	RoleAlumni     Role = "ALUMNI"
	RoleOther      Role = "OTHER"
	RoleAdmin      Role = "ADMIN"
)

// CategoryRoles lists the roles that describe a user's category of service.
var CategoryRoles = []Role{RoleGuest, RoleStudent, RoleResearcher, RoleMember, RoleAlumni, RoleOther}

// IsCategory reports whether the role is a category of service.
func (r Role) IsCategory() bool {
	return slices.Contains(CategoryRoles, r)
}

// Principal identifies the caller of a wrapper method. Roles are resolved
// from the role store on every call and are never trusted from the caller.
type Principal struct {
	UserID string
}

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusRequested  AppointmentStatus = "REQUESTED"
	StatusScheduled  AppointmentStatus = "SCHEDULED"
	StatusInProgress AppointmentStatus = "IN_PROGRESS"
	StatusCompleted  AppointmentStatus = "COMPLETED"
	StatusCanceled   AppointmentStatus = "CANCELED"
)

// NonTerminalStatuses are the statuses that still hold or request telescope time.
var NonTerminalStatuses = []AppointmentStatus{StatusRequested, StatusScheduled, StatusInProgress}

// ActiveStatuses are the statuses that count against the allotted time cap.
var ActiveStatuses = []AppointmentStatus{StatusScheduled, StatusInProgress}

// IsTerminal reports whether no further transition is possible.
func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Valid reports enum membership.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusScheduled, StatusInProgress, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Priority orders the manual review queue. It never preempts.
type Priority string

const (
	PriorityPrimary   Priority = "PRIMARY"
	PrioritySecondary Priority = "SECONDARY"
)

// Valid reports enum membership.
func (p Priority) Valid() bool {
	return p == PriorityPrimary || p == PrioritySecondary
}

// AppointmentType selects the observation mode and the shape of its target.
type AppointmentType string

const (
	TypePoint         AppointmentType = "POINT"
	TypeCelestialBody AppointmentType = "CELESTIAL_BODY"
	TypeDriftScan     AppointmentType = "DRIFT_SCAN"
	TypeRasterScan    AppointmentType = "RASTER_SCAN"
	TypeFreeControl   AppointmentType = "FREE_CONTROL"
)

// Valid reports enum membership.
func (t AppointmentType) Valid() bool {
	switch t {
	case TypePoint, TypeCelestialBody, TypeDriftScan, TypeRasterScan, TypeFreeControl:
		return true
	}
	return false
}

// AutoApprovable reports whether an appointment of this type may be
// scheduled without admin review when it passes the conflict check.
func (t AppointmentType) AutoApprovable() bool {
	return t.Valid() && t != TypeFreeControl
}

// Appointment is a reservation of telescope time.
type Appointment struct {
	ID          string
	UserID      string
	TelescopeID string
	Start       time.Time
	End         time.Time
	Public      bool
	Priority    Priority
	Type        AppointmentType
	Status      AppointmentStatus
	Target      Target
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Duration returns the reserved interval length.
func (a Appointment) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

// Telescope is a bookable instrument.
type Telescope struct {
	ID        string
	Name      string
	Location  string
	Online    bool
	CreatedAt time.Time
}

// User is an account known to the facility.
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// AllottedTimeCap is the per-user ceiling on SCHEDULED and IN_PROGRESS time.
// A nil Limit means unlimited.
type AllottedTimeCap struct {
	UserID string
	Limit  *time.Duration
}

// Allows reports whether adding requested to used stays within the cap.
func (c AllottedTimeCap) Allows(used, requested time.Duration) bool {
	if c.Limit == nil {
		return true
	}
	return used+requested <= *c.Limit
}

// RFData is one captured sample belonging to a completed appointment.
type RFData struct {
	ID            string
	AppointmentID string
	CapturedAt    time.Time
	Intensity     int64
}

// ActivationToken unlocks a newly registered account.
type ActivationToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// SubscriptionStatus tracks which notifications were already published.
type SubscriptionStatus string

const (
	SubscriptionSubscribed SubscriptionStatus = "SUBSCRIBED"
	SubscriptionStarted    SubscriptionStatus = "STARTED"
)

// Subscription links a scheduled appointment to its notification topic.
type Subscription struct {
	ID            string
	AppointmentID string
	UserID        string
	Topic         string
	Status        SubscriptionStatus
	CreatedAt     time.Time
}

// Session represents an authenticated session issued to a user.
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

// LoginRequest carries the credentials presented by "login".
type LoginRequest struct {
	Email       string
	Password    string
	Fingerprint string
}

// RefreshRequest names the live token to rotate. A non-empty Fingerprint
// replaces the one stored on the session.
type RefreshRequest struct {
	Token       string
	Fingerprint string
}

// SessionGrant is handed back by login and refresh. Roles and Category
// describe the account at the moment of issue and are informational:
// authorization resolves them again on every call.
type SessionGrant struct {
	User     User
	Session  Session
	Category Role
	Roles    []Role
}
