package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/telescope-scheduler/internal/scheduler"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func hours(h float64) *time.Duration {
	d := time.Duration(h * float64(time.Hour))
	return &d
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// memoryStore is an in-memory implementation of every store the commands
// use. WithinReservation holds the store lock for the whole callback and
// restores a snapshot when the callback fails.
type memoryStore struct {
	mu sync.Mutex

	users         map[string]User
	passwords     map[string]string
	roles         map[string][]Role
	caps          map[string]AllottedTimeCap
	tokens        map[string]ActivationToken
	telescopes    map[string]Telescope
	appointments  map[string]Appointment
	subscriptions map[string]Subscription
	rfdata        map[string][]RFData

	topics    []string
	topicErr  error
	lookupErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:         make(map[string]User),
		passwords:     make(map[string]string),
		roles:         make(map[string][]Role),
		caps:          make(map[string]AllottedTimeCap),
		tokens:        make(map[string]ActivationToken),
		telescopes:    make(map[string]Telescope),
		appointments:  make(map[string]Appointment),
		subscriptions: make(map[string]Subscription),
		rfdata:        make(map[string][]RFData),
	}
}

func (s *memoryStore) addUser(id string, limit *time.Duration, roles ...Role) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := User{ID: id, Email: id + "@example.com", FirstName: "Test", LastName: id, Active: true}
	s.users[id] = user
	s.roles[id] = slices.Clone(roles)
	s.caps[id] = AllottedTimeCap{UserID: id, Limit: limit}
	return user
}

func (s *memoryStore) addTelescope(id string, online bool) Telescope {
	s.mu.Lock()
	defer s.mu.Unlock()
	telescope := Telescope{ID: id, Name: "Dish " + id, Location: "Ridge", Online: online}
	s.telescopes[id] = telescope
	return telescope
}

func (s *memoryStore) put(appointment Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments[appointment.ID] = appointment
}

func (s *memoryStore) appointment(id string) (Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	return a, ok
}

func (s *memoryStore) subscriptionsFor(appointmentID string) []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Subscription
	for _, sub := range s.subscriptions {
		if sub.AppointmentID == appointmentID {
			out = append(out, sub)
		}
	}
	return out
}

func (s *memoryStore) createdTopics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.topics)
}

func (s *memoryStore) countAppointments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appointments)
}

// dump renders every table so tests can assert that nothing was written.
func (s *memoryStore) dump() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("users=%v roles=%v caps=%v tokens=%v telescopes=%v appointments=%v subscriptions=%v rfdata=%v topics=%v",
		s.users, s.roles, s.caps, s.tokens, s.telescopes, s.appointments, s.subscriptions, s.rfdata, s.topics)
}

// RoleStore, UserDirectory and AccountStore.

func (s *memoryStore) GetUser(ctx context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return User{}, s.lookupErr
	}
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *memoryStore) RolesForUser(ctx context.Context, userID string) ([]Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.roles[userID]), nil
}

func (s *memoryStore) EmailExists(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) RegisterUser(ctx context.Context, registration Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := registration.User.ID
	if _, exists := s.users[id]; exists {
		return fmt.Errorf("user %s: %w", id, ErrAlreadyExists)
	}
	s.users[id] = registration.User
	s.passwords[id] = registration.PasswordHash
	s.roles[id] = slices.Clone(registration.Roles)
	s.caps[id] = registration.Cap
	if registration.Token.Token != "" {
		s.tokens[registration.Token.Token] = registration.Token
	}
	return nil
}

func (s *memoryStore) GetActivationToken(ctx context.Context, token string) (ActivationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, ok := s.tokens[token]
	if !ok {
		return ActivationToken{}, ErrNotFound
	}
	return found, nil
}

func (s *memoryStore) ActivateUser(ctx context.Context, tokenID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.Active = true
	user.UpdatedAt = at
	s.users[userID] = user
	for key, token := range s.tokens {
		if token.ID == tokenID {
			delete(s.tokens, key)
		}
	}
	return nil
}

func (s *memoryStore) SetCategory(ctx context.Context, userID string, category Role, limit *time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return ErrNotFound
	}
	roles := slices.DeleteFunc(slices.Clone(s.roles[userID]), Role.IsCategory)
	s.roles[userID] = append(roles, category)
	s.caps[userID] = AllottedTimeCap{UserID: userID, Limit: limit}
	return nil
}

func (s *memoryStore) SetAllottedTime(ctx context.Context, userID string, limit *time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps[userID] = AllottedTimeCap{UserID: userID, Limit: limit}
	return nil
}

func (s *memoryStore) AllottedTimeCap(ctx context.Context, userID string) (AllottedTimeCap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit, ok := s.caps[userID]
	if !ok {
		return AllottedTimeCap{}, ErrNotFound
	}
	return limit, nil
}

// TelescopeCatalog.

func (s *memoryStore) GetTelescope(ctx context.Context, id string) (Telescope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	telescope, ok := s.telescopes[id]
	if !ok {
		return Telescope{}, ErrNotFound
	}
	return telescope, nil
}

func (s *memoryStore) ListTelescopes(ctx context.Context) ([]Telescope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Collect(maps.Values(s.telescopes)), nil
}

func (s *memoryStore) CreateTelescope(ctx context.Context, telescope Telescope) (Telescope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telescopes[telescope.ID] = telescope
	return telescope, nil
}

func (s *memoryStore) TelescopeNameExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, telescope := range s.telescopes {
		if telescope.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// AppointmentStore and RFDataStore.

func (s *memoryStore) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appointment, ok := s.appointments[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return appointment, nil
}

func (s *memoryStore) ListAppointmentsForUser(ctx context.Context, userID string) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Appointment
	for _, appointment := range s.appointments {
		if appointment.UserID == userID {
			out = append(out, appointment)
		}
	}
	return out, nil
}

func (s *memoryStore) ListAppointmentsByStatus(ctx context.Context, status AppointmentStatus) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Appointment
	for _, appointment := range s.appointments {
		if appointment.Status == status {
			out = append(out, appointment)
		}
	}
	return out, nil
}

func (s *memoryStore) WithinReservation(ctx context.Context, fn func(tx ReservationTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appointments := maps.Clone(s.appointments)
	subscriptions := maps.Clone(s.subscriptions)
	if err := fn(&memoryTx{store: s}); err != nil {
		s.appointments = appointments
		s.subscriptions = subscriptions
		return err
	}
	return nil
}

func (s *memoryStore) ListRFData(ctx context.Context, appointmentID string) ([]RFData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rfdata[appointmentID]), nil
}

// TopicCreator.

func (s *memoryStore) CreateTopic(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topicErr != nil {
		return s.topicErr
	}
	s.topics = append(s.topics, name)
	return nil
}

// memoryTx runs with the store lock already held.
type memoryTx struct {
	store *memoryStore
}

func (tx *memoryTx) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	appointment, ok := tx.store.appointments[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return appointment, nil
}

func (tx *memoryTx) FindOverlapping(ctx context.Context, telescopeID string, start, end time.Time, statuses []AppointmentStatus) ([]Appointment, error) {
	var out []Appointment
	for _, appointment := range tx.store.appointments {
		if appointment.TelescopeID != telescopeID || !slices.Contains(statuses, appointment.Status) {
			continue
		}
		if scheduler.Overlaps(start, end, appointment.Start, appointment.End) {
			out = append(out, appointment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) ListForUserByStatus(ctx context.Context, userID string, statuses []AppointmentStatus) ([]Appointment, error) {
	var out []Appointment
	for _, appointment := range tx.store.appointments {
		if appointment.UserID == userID && slices.Contains(statuses, appointment.Status) {
			out = append(out, appointment)
		}
	}
	return out, nil
}

func (tx *memoryTx) AllottedTimeCap(ctx context.Context, userID string) (AllottedTimeCap, error) {
	limit, ok := tx.store.caps[userID]
	if !ok {
		return AllottedTimeCap{}, ErrNotFound
	}
	return limit, nil
}

func (tx *memoryTx) CreateAppointment(ctx context.Context, appointment Appointment) error {
	if _, exists := tx.store.appointments[appointment.ID]; exists {
		return fmt.Errorf("appointment %s: %w", appointment.ID, ErrAlreadyExists)
	}
	tx.store.appointments[appointment.ID] = appointment
	return nil
}

func (tx *memoryTx) TransitionStatus(ctx context.Context, id string, from []AppointmentStatus, to AppointmentStatus, at time.Time) (bool, error) {
	appointment, ok := tx.store.appointments[id]
	if !ok || !slices.Contains(from, appointment.Status) {
		return false, nil
	}
	appointment.Status = to
	appointment.UpdatedAt = at
	tx.store.appointments[id] = appointment
	return true, nil
}

func (tx *memoryTx) CreateSubscription(ctx context.Context, subscription Subscription) error {
	tx.store.subscriptions[subscription.ID] = subscription
	return nil
}

func (tx *memoryTx) DeleteSubscriptionsForAppointment(ctx context.Context, appointmentID string) error {
	for id, sub := range tx.store.subscriptions {
		if sub.AppointmentID == appointmentID {
			delete(tx.store.subscriptions, id)
		}
	}
	return nil
}

// capture records the result handed to a wrapper continuation.
type capture[T any] struct {
	result Result[T]
	calls  int
}

func (c *capture[T]) then(result Result[T]) {
	c.result = result
	c.calls++
}

func (c *capture[T]) value() (T, bool) {
	if c.calls == 0 {
		var zero T
		return zero, false
	}
	return c.result.Value()
}
