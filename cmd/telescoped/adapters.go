package main

import (
	"context"
	"fmt"
	"time"

	"github.com/example/telescope-scheduler/internal/application"
	"github.com/example/telescope-scheduler/internal/persistence"
)

type accountStoreAdapter struct {
	repo persistence.UserRepository
}

func newAccountStoreAdapter(repo persistence.UserRepository) *accountStoreAdapter {
	return &accountStoreAdapter{repo: repo}
}

func (a *accountStoreAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	model, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(model), nil
}

func (a *accountStoreAdapter) EmailExists(ctx context.Context, email string) (bool, error) {
	return a.repo.EmailExists(ctx, email)
}

func (a *accountStoreAdapter) RegisterUser(ctx context.Context, registration application.Registration) error {
	return a.repo.CreateAccount(ctx, persistence.NewAccount{
		User:  toPersistenceUser(registration.User, registration.PasswordHash),
		Roles: roleNames(registration.Roles),
		Cap: persistence.AllottedTimeCap{
			UserID: registration.Cap.UserID,
			Limit:  cloneDuration(registration.Cap.Limit),
		},
		Token: persistence.ActivationToken(registration.Token),
	})
}

func (a *accountStoreAdapter) GetActivationToken(ctx context.Context, token string) (application.ActivationToken, error) {
	model, err := a.repo.GetActivationToken(ctx, token)
	if err != nil {
		return application.ActivationToken{}, err
	}
	return application.ActivationToken(model), nil
}

func (a *accountStoreAdapter) ActivateUser(ctx context.Context, tokenID, userID string, at time.Time) error {
	return a.repo.ActivateUser(ctx, tokenID, userID, at)
}

func (a *accountStoreAdapter) SetCategory(ctx context.Context, userID string, category application.Role, limit *time.Duration) error {
	return a.repo.ReplaceCategory(ctx, userID, string(category), roleNames(application.CategoryRoles), limit)
}

func (a *accountStoreAdapter) SetAllottedTime(ctx context.Context, userID string, limit *time.Duration) error {
	return a.repo.SetAllottedTimeCap(ctx, userID, limit)
}

func (a *accountStoreAdapter) AllottedTimeCap(ctx context.Context, userID string) (application.AllottedTimeCap, error) {
	model, err := a.repo.GetAllottedTimeCap(ctx, userID)
	if err != nil {
		return application.AllottedTimeCap{}, err
	}
	return application.AllottedTimeCap{UserID: model.UserID, Limit: cloneDuration(model.Limit)}, nil
}

func (a *accountStoreAdapter) RolesForUser(ctx context.Context, userID string) ([]application.Role, error) {
	names, err := a.repo.ListRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles := make([]application.Role, len(names))
	for i, name := range names {
		roles[i] = application.Role(name)
	}
	return roles, nil
}

// credentialStoreAdapter adds the login lookup to the account adapter.
type credentialStoreAdapter struct {
	*accountStoreAdapter
}

func newCredentialStoreAdapter(repo persistence.UserRepository) *credentialStoreAdapter {
	return &credentialStoreAdapter{accountStoreAdapter: newAccountStoreAdapter(repo)}
}

func (a *credentialStoreAdapter) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	model, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{
		User:         toApplicationUser(model),
		PasswordHash: model.PasswordHash,
	}, nil
}

type telescopeCatalogAdapter struct {
	repo persistence.TelescopeRepository
}

func newTelescopeCatalogAdapter(repo persistence.TelescopeRepository) *telescopeCatalogAdapter {
	return &telescopeCatalogAdapter{repo: repo}
}

func (a *telescopeCatalogAdapter) GetTelescope(ctx context.Context, id string) (application.Telescope, error) {
	model, err := a.repo.GetTelescope(ctx, id)
	if err != nil {
		return application.Telescope{}, err
	}
	return application.Telescope(model), nil
}

func (a *telescopeCatalogAdapter) ListTelescopes(ctx context.Context) ([]application.Telescope, error) {
	models, err := a.repo.ListTelescopes(ctx)
	if err != nil {
		return nil, err
	}
	telescopes := make([]application.Telescope, len(models))
	for i, model := range models {
		telescopes[i] = application.Telescope(model)
	}
	return telescopes, nil
}

func (a *telescopeCatalogAdapter) CreateTelescope(ctx context.Context, telescope application.Telescope) (application.Telescope, error) {
	if err := a.repo.CreateTelescope(ctx, persistence.Telescope(telescope)); err != nil {
		return application.Telescope{}, err
	}
	return telescope, nil
}

func (a *telescopeCatalogAdapter) TelescopeNameExists(ctx context.Context, name string) (bool, error) {
	return a.repo.TelescopeNameExists(ctx, name)
}

type appointmentStoreAdapter struct {
	repo persistence.AppointmentRepository
}

func newAppointmentStoreAdapter(repo persistence.AppointmentRepository) *appointmentStoreAdapter {
	return &appointmentStoreAdapter{repo: repo}
}

func (a *appointmentStoreAdapter) GetAppointment(ctx context.Context, id string) (application.Appointment, error) {
	model, err := a.repo.GetAppointment(ctx, id)
	if err != nil {
		return application.Appointment{}, err
	}
	return toApplicationAppointment(model)
}

func (a *appointmentStoreAdapter) ListAppointmentsForUser(ctx context.Context, userID string) ([]application.Appointment, error) {
	models, err := a.repo.ListAppointmentsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toApplicationAppointments(models)
}

func (a *appointmentStoreAdapter) ListAppointmentsByStatus(ctx context.Context, status application.AppointmentStatus) ([]application.Appointment, error) {
	models, err := a.repo.ListAppointmentsByStatus(ctx, []string{string(status)})
	if err != nil {
		return nil, err
	}
	return toApplicationAppointments(models)
}

func (a *appointmentStoreAdapter) WithinReservation(ctx context.Context, fn func(tx application.ReservationTx) error) error {
	return a.repo.WithinReservation(ctx, func(tx persistence.ReservationTx) error {
		return fn(&reservationTxAdapter{tx: tx})
	})
}

func (a *appointmentStoreAdapter) ListRFData(ctx context.Context, appointmentID string) ([]application.RFData, error) {
	models, err := a.repo.ListRFData(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	samples := make([]application.RFData, len(models))
	for i, model := range models {
		samples[i] = application.RFData(model)
	}
	return samples, nil
}

// ListPastEnd, ListStartedBefore, TransitionStatus and CompleteAppointment
// serve the completion sweep.
func (a *appointmentStoreAdapter) ListPastEnd(ctx context.Context, statuses []application.AppointmentStatus, now time.Time) ([]application.Appointment, error) {
	models, err := a.repo.ListEndedBefore(ctx, statusNames(statuses), now)
	if err != nil {
		return nil, err
	}
	return toApplicationAppointments(models)
}

func (a *appointmentStoreAdapter) ListStartedBefore(ctx context.Context, status application.AppointmentStatus, now time.Time) ([]application.Appointment, error) {
	models, err := a.repo.ListStartedBefore(ctx, string(status), now)
	if err != nil {
		return nil, err
	}
	return toApplicationAppointments(models)
}

func (a *appointmentStoreAdapter) TransitionStatus(ctx context.Context, id string, from []application.AppointmentStatus, to application.AppointmentStatus, at time.Time) (bool, error) {
	return a.repo.TransitionStatus(ctx, id, statusNames(from), string(to), at)
}

func (a *appointmentStoreAdapter) CompleteAppointment(ctx context.Context, id string, from []application.AppointmentStatus, samples []application.RFData, at time.Time) (bool, error) {
	models := make([]persistence.RFData, len(samples))
	for i, sample := range samples {
		models[i] = persistence.RFData(sample)
	}
	return a.repo.CompleteAppointment(ctx, id, statusNames(from), models, at)
}

type reservationTxAdapter struct {
	tx persistence.ReservationTx
}

func (a *reservationTxAdapter) GetAppointment(ctx context.Context, id string) (application.Appointment, error) {
	model, err := a.tx.GetAppointment(ctx, id)
	if err != nil {
		return application.Appointment{}, err
	}
	return toApplicationAppointment(model)
}

func (a *reservationTxAdapter) FindOverlapping(ctx context.Context, telescopeID string, start, end time.Time, statuses []application.AppointmentStatus) ([]application.Appointment, error) {
	models, err := a.tx.FindOverlapping(ctx, telescopeID, start, end, statusNames(statuses))
	if err != nil {
		return nil, err
	}
	return toApplicationAppointments(models)
}

func (a *reservationTxAdapter) ListForUserByStatus(ctx context.Context, userID string, statuses []application.AppointmentStatus) ([]application.Appointment, error) {
	models, err := a.tx.ListForUserByStatus(ctx, userID, statusNames(statuses))
	if err != nil {
		return nil, err
	}
	return toApplicationAppointments(models)
}

func (a *reservationTxAdapter) AllottedTimeCap(ctx context.Context, userID string) (application.AllottedTimeCap, error) {
	model, err := a.tx.GetAllottedTimeCap(ctx, userID)
	if err != nil {
		return application.AllottedTimeCap{}, err
	}
	return application.AllottedTimeCap{UserID: model.UserID, Limit: cloneDuration(model.Limit)}, nil
}

func (a *reservationTxAdapter) CreateAppointment(ctx context.Context, appointment application.Appointment) error {
	model, err := toPersistenceAppointment(appointment)
	if err != nil {
		return err
	}
	return a.tx.CreateAppointment(ctx, model)
}

func (a *reservationTxAdapter) TransitionStatus(ctx context.Context, id string, from []application.AppointmentStatus, to application.AppointmentStatus, at time.Time) (bool, error) {
	return a.tx.TransitionStatus(ctx, id, statusNames(from), string(to), at)
}

func (a *reservationTxAdapter) CreateSubscription(ctx context.Context, subscription application.Subscription) error {
	return a.tx.CreateSubscription(ctx, toPersistenceSubscription(subscription))
}

func (a *reservationTxAdapter) DeleteSubscriptionsForAppointment(ctx context.Context, appointmentID string) error {
	return a.tx.DeleteSubscriptionsForAppointment(ctx, appointmentID)
}

type subscriptionStoreAdapter struct {
	subscriptions persistence.SubscriptionRepository
	appointments  *appointmentStoreAdapter
}

func newSubscriptionStoreAdapter(subscriptions persistence.SubscriptionRepository, appointments persistence.AppointmentRepository) *subscriptionStoreAdapter {
	return &subscriptionStoreAdapter{subscriptions: subscriptions, appointments: newAppointmentStoreAdapter(appointments)}
}

func (a *subscriptionStoreAdapter) ListSubscriptions(ctx context.Context) ([]application.Subscription, error) {
	models, err := a.subscriptions.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	subscriptions := make([]application.Subscription, len(models))
	for i, model := range models {
		subscriptions[i] = toApplicationSubscription(model)
	}
	return subscriptions, nil
}

func (a *subscriptionStoreAdapter) GetAppointment(ctx context.Context, id string) (application.Appointment, error) {
	return a.appointments.GetAppointment(ctx, id)
}

func (a *subscriptionStoreAdapter) MarkSubscriptionStarted(ctx context.Context, id string) (bool, error) {
	return a.subscriptions.MarkSubscriptionStarted(ctx, id)
}

func (a *subscriptionStoreAdapter) DeleteSubscription(ctx context.Context, id string) error {
	return a.subscriptions.DeleteSubscription(ctx, id)
}

type tokenStoreAdapter struct {
	repo persistence.UserRepository
}

func newTokenStoreAdapter(repo persistence.UserRepository) *tokenStoreAdapter {
	return &tokenStoreAdapter{repo: repo}
}

func (a *tokenStoreAdapter) ListExpiredActivationTokens(ctx context.Context, now time.Time) ([]application.ActivationToken, error) {
	models, err := a.repo.ListExpiredActivationTokens(ctx, now)
	if err != nil {
		return nil, err
	}
	tokens := make([]application.ActivationToken, len(models))
	for i, model := range models {
		tokens[i] = application.ActivationToken(model)
	}
	return tokens, nil
}

func (a *tokenStoreAdapter) ExpireActivationToken(ctx context.Context, token application.ActivationToken) (bool, error) {
	return a.repo.ExpireActivationToken(ctx, token.ID, token.UserID)
}

type sessionRepositoryAdapter struct {
	repo persistence.SessionRepository
}

func newSessionRepositoryAdapter(repo persistence.SessionRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{repo: repo}
}

func (a *sessionRepositoryAdapter) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.CreateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, token string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, token)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) UpdateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.UpdateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (application.Session, error) {
	stored, err := a.repo.RevokeSession(ctx, token, revokedAt)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	return a.repo.DeleteExpiredSessions(ctx, reference)
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:        model.ID,
		Email:     model.Email,
		FirstName: model.FirstName,
		LastName:  model.LastName,
		Active:    model.Active,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func toPersistenceUser(user application.User, passwordHash string) persistence.User {
	return persistence.User{
		ID:           user.ID,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		PasswordHash: passwordHash,
		Active:       user.Active,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func toApplicationAppointment(model persistence.Appointment) (application.Appointment, error) {
	typ := application.AppointmentType(model.Type)
	target, err := application.DecodeTarget(typ, model.Target)
	if err != nil {
		return application.Appointment{}, fmt.Errorf("appointment %s: %w", model.ID, err)
	}
	return application.Appointment{
		ID:          model.ID,
		UserID:      model.UserID,
		TelescopeID: model.TelescopeID,
		Start:       model.Start,
		End:         model.End,
		Public:      model.Public,
		Priority:    application.Priority(model.Priority),
		Type:        typ,
		Status:      application.AppointmentStatus(model.Status),
		Target:      target,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}, nil
}

func toApplicationAppointments(models []persistence.Appointment) ([]application.Appointment, error) {
	appointments := make([]application.Appointment, 0, len(models))
	for _, model := range models {
		appointment, err := toApplicationAppointment(model)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, appointment)
	}
	return appointments, nil
}

func toPersistenceAppointment(appointment application.Appointment) (persistence.Appointment, error) {
	target, err := application.EncodeTarget(appointment.Target)
	if err != nil {
		return persistence.Appointment{}, err
	}
	return persistence.Appointment{
		ID:          appointment.ID,
		UserID:      appointment.UserID,
		TelescopeID: appointment.TelescopeID,
		Start:       appointment.Start,
		End:         appointment.End,
		Public:      appointment.Public,
		Priority:    string(appointment.Priority),
		Type:        string(appointment.Type),
		Status:      string(appointment.Status),
		Target:      target,
		CreatedAt:   appointment.CreatedAt,
		UpdatedAt:   appointment.UpdatedAt,
	}, nil
}

func toApplicationSubscription(model persistence.Subscription) application.Subscription {
	return application.Subscription{
		ID:            model.ID,
		AppointmentID: model.AppointmentID,
		UserID:        model.UserID,
		Topic:         model.Topic,
		Status:        application.SubscriptionStatus(model.Status),
		CreatedAt:     model.CreatedAt,
	}
}

func toPersistenceSubscription(subscription application.Subscription) persistence.Subscription {
	return persistence.Subscription{
		ID:            subscription.ID,
		AppointmentID: subscription.AppointmentID,
		UserID:        subscription.UserID,
		Topic:         subscription.Topic,
		Status:        string(subscription.Status),
		CreatedAt:     subscription.CreatedAt,
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:          model.ID,
		UserID:      model.UserID,
		Token:       model.Token,
		Fingerprint: model.Fingerprint,
		ExpiresAt:   model.ExpiresAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
		RevokedAt:   cloneTime(model.RevokedAt),
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:          session.ID,
		UserID:      session.UserID,
		Token:       session.Token,
		Fingerprint: session.Fingerprint,
		ExpiresAt:   session.ExpiresAt,
		CreatedAt:   session.CreatedAt,
		UpdatedAt:   session.UpdatedAt,
		RevokedAt:   cloneTime(session.RevokedAt),
	}
}

func roleNames(roles []application.Role) []string {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return names
}

func statusNames(statuses []application.AppointmentStatus) []string {
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return names
}

func cloneDuration(value *time.Duration) *time.Duration {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
