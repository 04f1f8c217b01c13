package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/telescope-scheduler/internal/persistence"
)

var (
	userCounter        uint64
	telescopeCounter   uint64
	appointmentCounter uint64
	sessionCounter     uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic account that can be materialised
// for persistence tests.
type UserFixture struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Active       bool
	Roles        []string
	Limit        *time.Duration
	Token        string
	TokenExpiry  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns an active GUEST account with a five hour cap.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	limit := 5 * time.Hour
	fixture := UserFixture{
		ID:           id,
		Email:        fmt.Sprintf("%s@example.com", id),
		FirstName:    "User",
		LastName:     fmt.Sprintf("%03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		Active:       true,
		Roles:        []string{"USER", "GUEST"},
		Limit:        &limit,
		Token:        fmt.Sprintf("activation-%03d", idx),
		TokenExpiry:  created.Add(24 * time.Hour),
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserInactive marks the account as awaiting activation.
func WithUserInactive() UserOption {
	return func(f *UserFixture) {
		f.Active = false
	}
}

// WithUserRoles replaces the generated roles.
func WithUserRoles(roles ...string) UserOption {
	return func(f *UserFixture) {
		f.Roles = append([]string(nil), roles...)
	}
}

// WithUserLimit sets the allotted time cap. A nil limit is unlimited.
func WithUserLimit(limit *time.Duration) UserOption {
	return func(f *UserFixture) {
		f.Limit = limit
	}
}

// WithUserToken overrides the activation token and its expiry.
func WithUserToken(token string, expiresAt time.Time) UserOption {
	return func(f *UserFixture) {
		f.Token = token
		f.TokenExpiry = expiresAt
	}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		FirstName:    f.FirstName,
		LastName:     f.LastName,
		PasswordHash: f.PasswordHash,
		Active:       f.Active,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// Account returns every row written when the fixture registers.
func (f UserFixture) Account() persistence.NewAccount {
	var limit *time.Duration
	if f.Limit != nil {
		l := *f.Limit
		limit = &l
	}
	return persistence.NewAccount{
		User:  f.Persistence(),
		Roles: append([]string(nil), f.Roles...),
		Cap:   persistence.AllottedTimeCap{UserID: f.ID, Limit: limit},
		Token: persistence.ActivationToken{
			ID:        "token-" + f.ID,
			UserID:    f.ID,
			Token:     f.Token,
			ExpiresAt: f.TokenExpiry,
		},
	}
}

// --------------------------- Telescope fixtures ---------------------------

// TelescopeFixture represents a deterministic telescope record.
type TelescopeFixture struct {
	ID        string
	Name      string
	Location  string
	Online    bool
	CreatedAt time.Time
}

// TelescopeOption configures the generated telescope fixture.
type TelescopeOption func(*TelescopeFixture)

// NewTelescopeFixture returns an online telescope fixture.
func NewTelescopeFixture(opts ...TelescopeOption) TelescopeFixture {
	idx := atomic.AddUint64(&telescopeCounter, 1)
	fixture := TelescopeFixture{
		ID:        fmt.Sprintf("telescope-%03d", idx),
		Name:      fmt.Sprintf("Dish %03d", idx),
		Location:  "Observatory Ridge",
		Online:    true,
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithTelescopeID overrides the generated telescope ID.
func WithTelescopeID(id string) TelescopeOption {
	return func(f *TelescopeFixture) {
		f.ID = id
	}
}

// WithTelescopeName overrides the generated name.
func WithTelescopeName(name string) TelescopeOption {
	return func(f *TelescopeFixture) {
		f.Name = name
	}
}

// WithTelescopeOffline marks the telescope as unavailable.
func WithTelescopeOffline() TelescopeOption {
	return func(f *TelescopeFixture) {
		f.Online = false
	}
}

// Persistence returns the fixture as a persistence.Telescope value.
func (f TelescopeFixture) Persistence() persistence.Telescope {
	return persistence.Telescope{
		ID:        f.ID,
		Name:      f.Name,
		Location:  f.Location,
		Online:    f.Online,
		CreatedAt: f.CreatedAt,
	}
}

// -------------------------- Appointment fixtures --------------------------

// AppointmentFixture represents a deterministic appointment record.
type AppointmentFixture struct {
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

// AppointmentOption configures the generated appointment fixture.
type AppointmentOption func(*AppointmentFixture)

// NewAppointmentFixture returns a one hour SCHEDULED point observation
// starting a day after ReferenceTime.
func NewAppointmentFixture(opts ...AppointmentOption) AppointmentFixture {
	idx := atomic.AddUint64(&appointmentCounter, 1)
	start := referenceTime.Add(24 * time.Hour)
	fixture := AppointmentFixture{
		ID:          fmt.Sprintf("appointment-%03d", idx),
		UserID:      "user-001",
		TelescopeID: "telescope-001",
		Start:       start,
		End:         start.Add(time.Hour),
		Priority:    "SECONDARY",
		Type:        "POINT",
		Status:      "SCHEDULED",
		Target:      `{"right_ascension":10.5,"declination":20.25}`,
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithAppointmentID overrides the generated ID.
func WithAppointmentID(id string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.ID = id
	}
}

// WithAppointmentOwner sets the booking user and telescope.
func WithAppointmentOwner(userID, telescopeID string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.UserID = userID
		f.TelescopeID = telescopeID
	}
}

// WithAppointmentWindow sets the start and end of the appointment.
func WithAppointmentWindow(start, end time.Time) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.Start = start
		f.End = end
	}
}

// WithAppointmentStatus sets the lifecycle status.
func WithAppointmentStatus(status string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.Status = status
	}
}

// WithAppointmentPublic sets the public flag.
func WithAppointmentPublic(public bool) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.Public = public
	}
}

// Persistence returns the fixture as a persistence.Appointment value.
func (f AppointmentFixture) Persistence() persistence.Appointment {
	return persistence.Appointment{
		ID:          f.ID,
		UserID:      f.UserID,
		TelescopeID: f.TelescopeID,
		Start:       f.Start,
		End:         f.End,
		Public:      f.Public,
		Priority:    f.Priority,
		Type:        f.Type,
		Status:      f.Status,
		Target:      f.Target,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// ----------------------------- Session fixtures -------------------------

// SessionFixture represents a deterministic session record.
type SessionFixture struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a deterministic session fixture with optional overrides.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := SessionFixture{
		ID:          fmt.Sprintf("session-%03d", idx),
		UserID:      fmt.Sprintf("user-%03d", idx),
		Token:       fmt.Sprintf("token-%03d", idx),
		Fingerprint: fmt.Sprintf("fingerprint-%03d", idx),
		ExpiresAt:   referenceTime.Add(8 * time.Hour),
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionUserID sets the user ID.
func WithSessionUserID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.UserID = id
	}
}

// WithSessionToken overrides the token value.
func WithSessionToken(token string) SessionOption {
	return func(f *SessionFixture) {
		f.Token = token
	}
}

// WithSessionExpiresAt sets the expiration timestamp.
func WithSessionExpiresAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.ExpiresAt = t
	}
}

// Persistence returns the fixture as a persistence.Session value.
func (f SessionFixture) Persistence() persistence.Session {
	var revoked *time.Time
	if f.RevokedAt != nil {
		t := *f.RevokedAt
		revoked = &t
	}
	return persistence.Session{
		ID:          f.ID,
		UserID:      f.UserID,
		Token:       f.Token,
		Fingerprint: f.Fingerprint,
		ExpiresAt:   f.ExpiresAt,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
		RevokedAt:   revoked,
	}
}
