package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AppointmentFactoryConfig lists the collaborators appointment commands need.
type AppointmentFactoryConfig struct {
	Users        UserDirectory
	Telescopes   TelescopeCatalog
	Appointments AppointmentStore
	Topics       TopicCreator
	IDGenerator  func() string
	Now          func() time.Time
	TopicPrefix  string
	Logger       *slog.Logger
}

// AppointmentFactory assembles appointment commands.
type AppointmentFactory struct {
	deps *appointmentDeps
}

// NewAppointmentFactory wires dependencies for appointment commands.
func NewAppointmentFactory(cfg AppointmentFactoryConfig) *AppointmentFactory {
	idGenerator := cfg.IDGenerator
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AppointmentFactory{deps: &appointmentDeps{
		users:        cfg.Users,
		telescopes:   cfg.Telescopes,
		appointments: cfg.Appointments,
		topics:       cfg.Topics,
		idGenerator:  idGenerator,
		now:          now,
		topicPrefix:  cfg.TopicPrefix,
		logger:       defaultLogger(cfg.Logger),
	}}
}

func (f *AppointmentFactory) Create(req CreateAppointmentRequest) *CreateAppointmentCommand {
	return &CreateAppointmentCommand{request: req, deps: f.deps}
}

func (f *AppointmentFactory) ApproveDeny(req ApproveDenyRequest) *ApproveDenyAppointmentCommand {
	return &ApproveDenyAppointmentCommand{request: req, deps: f.deps}
}

func (f *AppointmentFactory) Cancel(appointmentID string) *CancelAppointmentCommand {
	return &CancelAppointmentCommand{appointmentID: appointmentID, deps: f.deps}
}

func (f *AppointmentFactory) Retrieve(appointmentID string) *RetrieveAppointmentCommand {
	return &RetrieveAppointmentCommand{appointmentID: appointmentID, deps: f.deps}
}

func (f *AppointmentFactory) ListForUser(userID string) *ListAppointmentsForUserCommand {
	return &ListAppointmentsForUserCommand{userID: userID, deps: f.deps}
}

func (f *AppointmentFactory) ListRequested() *ListRequestedAppointmentsCommand {
	return &ListRequestedAppointmentsCommand{deps: f.deps}
}

// AppointmentWrapper gates appointment commands behind role checks.
type AppointmentWrapper struct {
	factory      *AppointmentFactory
	appointments AppointmentStore
	access       authorizer
	logger       *slog.Logger
}

// NewAppointmentWrapper builds a wrapper around factory.
func NewAppointmentWrapper(factory *AppointmentFactory, roles RoleStore, logger *slog.Logger) *AppointmentWrapper {
	logger = defaultLogger(logger)
	return &AppointmentWrapper{
		factory:      factory,
		appointments: factory.deps.appointments,
		access:       newAuthorizer(roles, logger),
		logger:       logger,
	}
}

// Create requires USER. Booking on behalf of another user requires ADMIN.
// An empty UserID books for the caller.
func (w *AppointmentWrapper) Create(ctx context.Context, caller *Principal, req CreateAppointmentRequest, then func(Result[Appointment])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "AppointmentWrapper", "Create", "telescope_id", req.TelescopeID)

	resolved, report, err := w.access.requireAny(ctx, caller, RoleUser, RoleAdmin)
	if err != nil {
		return nil, abort(ctx, logger, err)
	}
	if report != nil {
		return deny(ctx, logger, report), nil
	}

	if req.UserID == "" {
		req.UserID = resolved.user.ID
	}
	if req.UserID != resolved.user.ID && !resolved.hasAny(RoleAdmin) {
		return deny(ctx, logger, &AccessReport{
			MissingRoles:    []Role{RoleAdmin},
			InvalidResource: true,
			Reason:          "booking for another user",
		}), nil
	}
	return nil, dispatch(ctx, logger.With("user_id", req.UserID), Command[Appointment](w.factory.Create(req)), then)
}

// ApproveDeny requires ADMIN.
func (w *AppointmentWrapper) ApproveDeny(ctx context.Context, caller *Principal, req ApproveDenyRequest, then func(Result[Appointment])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "AppointmentWrapper", "ApproveDeny",
		"appointment_id", req.AppointmentID, "approve", req.Approve)

	_, report, err := w.access.requireAny(ctx, caller, RoleAdmin)
	if err != nil {
		return nil, abort(ctx, logger, err)
	}
	if report != nil {
		return deny(ctx, logger, report), nil
	}
	return nil, dispatch(ctx, logger, Command[Appointment](w.factory.ApproveDeny(req)), then)
}

// ListRequested requires ADMIN.
func (w *AppointmentWrapper) ListRequested(ctx context.Context, caller *Principal, then func(Result[[]Appointment])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "AppointmentWrapper", "ListRequested")

	_, report, err := w.access.requireAny(ctx, caller, RoleAdmin)
	if err != nil {
		return nil, abort(ctx, logger, err)
	}
	if report != nil {
		return deny(ctx, logger, report), nil
	}
	return nil, dispatch(ctx, logger, Command[[]Appointment](w.factory.ListRequested()), then)
}

// Retrieve admits the owner, any USER for a public appointment, and ADMIN.
func (w *AppointmentWrapper) Retrieve(ctx context.Context, caller *Principal, appointmentID string, then func(Result[Appointment])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "AppointmentWrapper", "Retrieve", "appointment_id", appointmentID)

	report, err := authorizeAppointment(ctx, w.access, w.appointments, caller, appointmentID, true)
	if err != nil {
		return nil, abort(ctx, logger, err)
	}
	if report != nil {
		return deny(ctx, logger, report), nil
	}
	return nil, dispatch(ctx, logger, Command[Appointment](w.factory.Retrieve(appointmentID)), then)
}

// Cancel admits the owner and ADMIN.
func (w *AppointmentWrapper) Cancel(ctx context.Context, caller *Principal, appointmentID string, then func(Result[Appointment])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "AppointmentWrapper", "Cancel", "appointment_id", appointmentID)

	report, err := authorizeAppointment(ctx, w.access, w.appointments, caller, appointmentID, false)
	if err != nil {
		return nil, abort(ctx, logger, err)
	}
	if report != nil {
		return deny(ctx, logger, report), nil
	}
	return nil, dispatch(ctx, logger, Command[Appointment](w.factory.Cancel(appointmentID)), then)
}

// ListForUser admits the user themselves and ADMIN.
func (w *AppointmentWrapper) ListForUser(ctx context.Context, caller *Principal, userID string, then func(Result[[]Appointment])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "AppointmentWrapper", "ListForUser", "user_id", userID)

	_, report, err := w.access.requireOwnerOrAdmin(ctx, caller, userID, false)
	if err != nil {
		return nil, abort(ctx, logger, err)
	}
	if report != nil {
		return deny(ctx, logger, report), nil
	}
	return nil, dispatch(ctx, logger, Command[[]Appointment](w.factory.ListForUser(userID)), then)
}

// authorizeAppointment resolves the owner of appointmentID before checking
// roles. A missing appointment only requires an authenticated USER so the
// command can report the reference error.
func authorizeAppointment(ctx context.Context, access authorizer, appointments AppointmentStore, caller *Principal, appointmentID string, publicRead bool) (*AccessReport, error) {
	if caller == nil {
		_, report, err := access.resolve(ctx, caller, []Role{RoleUser, RoleAdmin})
		return report, err
	}

	if appointmentID == "" {
		_, report, err := access.requireAny(ctx, caller, RoleUser, RoleAdmin)
		return report, err
	}

	appointment, err := appointments.GetAppointment(ctx, appointmentID)
	if err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("resolve owner of appointment %s: %w", appointmentID, err)
		}
		_, report, err := access.requireAny(ctx, caller, RoleUser, RoleAdmin)
		return report, err
	}

	_, report, err := access.requireOwnerOrAdmin(ctx, caller, appointment.UserID, publicRead && appointment.Public)
	return report, err
}
