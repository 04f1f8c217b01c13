package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/telescope-scheduler/internal/scheduler"
)

// RequestMode selects how a new appointment enters the lifecycle.
type RequestMode string

const (
	// ModeSchedule schedules the appointment immediately when it has no
	// conflict and its type allows auto-approval; otherwise it is queued.
	ModeSchedule RequestMode = "SCHEDULE"
	// ModeRequest always queues the appointment for admin review.
	ModeRequest RequestMode = "REQUEST"
)

// CreateAppointmentRequest captures caller provided appointment fields.
// Start and End are truncated to whole milliseconds, the precision
// appointments are stored with.
type CreateAppointmentRequest struct {
	UserID      string    `validate:"required"`
	TelescopeID string    `validate:"required"`
	Start       time.Time `validate:"required"`
	End         time.Time `validate:"required"`
	Public      bool
	Priority    Priority
	Type        AppointmentType `validate:"required"`
	Target      Target          `validate:"required"`
	Mode        RequestMode
}

var createAppointmentFields = map[string]Tag{
	"UserID":      TagAppointmentUserID,
	"TelescopeID": TagAppointmentTelescopeID,
	"Start":       TagAppointmentStartTime,
	"End":         TagAppointmentEndTime,
	"Type":        TagAppointmentType,
	"Target":      TagAppointmentTarget,
}

// ApproveDenyRequest captures an admin decision on a queued appointment.
type ApproveDenyRequest struct {
	AppointmentID string `validate:"required"`
	Approve       bool
}

type appointmentIDRequest struct {
	AppointmentID string `validate:"required"`
}

type userIDRequest struct {
	UserID string `validate:"required"`
}

var appointmentIDFields = map[string]Tag{"AppointmentID": TagAppointmentID}

// CreateAppointmentCommand validates and reserves a new appointment.
type CreateAppointmentCommand struct {
	request CreateAppointmentRequest
	deps    *appointmentDeps
}

// Execute runs the presence, reference, domain and reservation checks in
// order and persists the appointment when all pass.
func (c *CreateAppointmentCommand) Execute(ctx context.Context) (Result[Appointment], error) {
	req := c.request
	req.Start = req.Start.Truncate(time.Millisecond)
	req.End = req.End.Truncate(time.Millisecond)
	vErr := &ValidationError{}

	checkRequest(req, createAppointmentFields, vErr)

	if req.UserID != "" {
		if _, err := c.deps.users.GetUser(ctx, req.UserID); err != nil {
			if !isNotFound(err) {
				return Result[Appointment]{}, fmt.Errorf("lookup user %s: %w", req.UserID, err)
			}
			vErr.Put(TagAppointmentUserNotFound, fmt.Sprintf("user %s does not exist", req.UserID))
		}
	}

	var telescope Telescope
	if req.TelescopeID != "" {
		found, err := c.deps.telescopes.GetTelescope(ctx, req.TelescopeID)
		switch {
		case err == nil:
			telescope = found
		case isNotFound(err):
			vErr.Put(TagAppointmentTelescopeNotFound, fmt.Sprintf("telescope %s does not exist", req.TelescopeID))
		default:
			return Result[Appointment]{}, fmt.Errorf("lookup telescope %s: %w", req.TelescopeID, err)
		}
	}

	now := c.deps.now()
	priority := req.Priority
	if priority == "" {
		priority = PrioritySecondary
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeSchedule
	}

	if telescope.ID != "" && !telescope.Online {
		vErr.Put(TagAppointmentTelescopeOffline, fmt.Sprintf("telescope %s is offline", telescope.Name))
	}
	validateInterval(req.Start, req.End, now, vErr)
	if !priority.Valid() {
		vErr.Put(TagAppointmentPriority, fmt.Sprintf("priority %q is not one of PRIMARY, SECONDARY", priority))
	}
	if mode != ModeSchedule && mode != ModeRequest {
		vErr.Put(TagAppointmentMode, fmt.Sprintf("mode %q is not one of SCHEDULE, REQUEST", mode))
	}
	if req.Type != "" {
		if !req.Type.Valid() {
			vErr.Put(TagAppointmentType, fmt.Sprintf("type %q is not a supported appointment type", req.Type))
		} else if req.Target != nil {
			validateTarget(req.Type, req.Target, vErr)
		}
	}

	if vErr.HasErrors() {
		return Failure[Appointment](vErr), nil
	}

	appointment := Appointment{
		ID:          c.deps.idGenerator(),
		UserID:      req.UserID,
		TelescopeID: req.TelescopeID,
		Start:       req.Start,
		End:         req.End,
		Public:      req.Public,
		Priority:    priority,
		Type:        req.Type,
		Status:      StatusRequested,
		Target:      req.Target,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var subscription *Subscription
	err := c.deps.appointments.WithinReservation(ctx, func(tx ReservationTx) error {
		conflicts, err := findConflicts(ctx, tx, appointment, NonTerminalStatuses)
		if err != nil {
			return err
		}
		if err := checkAllottedTime(ctx, tx, appointment, vErr); err != nil {
			return err
		}
		if vErr.HasErrors() {
			return errRollback
		}

		if mode == ModeSchedule && appointment.Type.AutoApprovable() && len(conflicts) == 0 {
			appointment.Status = StatusScheduled
		}
		if err := tx.CreateAppointment(ctx, appointment); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		if appointment.Status == StatusScheduled {
			sub := c.deps.newSubscription(appointment, now)
			if err := tx.CreateSubscription(ctx, sub); err != nil {
				return fmt.Errorf("create subscription: %w", err)
			}
			subscription = &sub
		}
		return nil
	})
	if errors.Is(err, errRollback) {
		return Failure[Appointment](vErr), nil
	}
	if err != nil {
		return Result[Appointment]{}, err
	}

	c.deps.createTopic(ctx, subscription)
	return Success(appointment), nil
}

// ApproveDenyAppointmentCommand applies an admin decision to a REQUESTED appointment.
type ApproveDenyAppointmentCommand struct {
	request ApproveDenyRequest
	deps    *appointmentDeps
}

// Execute approves or denies the appointment. Approval re-checks conflicts
// against SCHEDULED and IN_PROGRESS appointments and the owner's time cap.
func (c *ApproveDenyAppointmentCommand) Execute(ctx context.Context) (Result[Appointment], error) {
	req := c.request
	vErr := &ValidationError{}

	checkRequest(req, appointmentIDFields, vErr)
	if vErr.HasErrors() {
		return Failure[Appointment](vErr), nil
	}

	existing, err := c.deps.appointments.GetAppointment(ctx, req.AppointmentID)
	if err != nil {
		if !isNotFound(err) {
			return Result[Appointment]{}, fmt.Errorf("lookup appointment %s: %w", req.AppointmentID, err)
		}
		vErr.Put(TagAppointmentNotFound, fmt.Sprintf("appointment %s does not exist", req.AppointmentID))
		return Failure[Appointment](vErr), nil
	}

	now := c.deps.now()
	requireStatus(existing, vErr, StatusRequested)
	if req.Approve && !existing.Start.After(now) {
		vErr.Put(TagAppointmentTime, "appointment start time has already passed")
	}
	if vErr.HasErrors() {
		return Failure[Appointment](vErr), nil
	}

	target := StatusCanceled
	if req.Approve {
		target = StatusScheduled
	}

	var (
		updated      Appointment
		subscription *Subscription
	)
	err = c.deps.appointments.WithinReservation(ctx, func(tx ReservationTx) error {
		current, err := tx.GetAppointment(ctx, req.AppointmentID)
		if err != nil {
			return fmt.Errorf("reload appointment %s: %w", req.AppointmentID, err)
		}
		requireStatus(current, vErr, StatusRequested)
		if vErr.HasErrors() {
			return errRollback
		}

		if req.Approve {
			conflicts, err := findConflicts(ctx, tx, current, ActiveStatuses)
			if err != nil {
				return err
			}
			for _, conflict := range conflicts {
				vErr.Put(TagAppointmentConflict, fmt.Sprintf("overlaps appointment %s from %s to %s",
					conflict.WithAppointmentID, conflict.Start.Format(time.RFC3339), conflict.End.Format(time.RFC3339)))
			}
			if err := checkAllottedTime(ctx, tx, current, vErr); err != nil {
				return err
			}
			if vErr.HasErrors() {
				return errRollback
			}
		}

		changed, err := tx.TransitionStatus(ctx, current.ID, []AppointmentStatus{StatusRequested}, target, now)
		if err != nil {
			return fmt.Errorf("transition appointment %s: %w", current.ID, err)
		}
		if !changed {
			vErr.Put(TagAppointmentStatus, "appointment is no longer awaiting review")
			return errRollback
		}

		current.Status = target
		current.UpdatedAt = now
		updated = current

		if target == StatusScheduled {
			sub := c.deps.newSubscription(current, now)
			if err := tx.CreateSubscription(ctx, sub); err != nil {
				return fmt.Errorf("create subscription: %w", err)
			}
			subscription = &sub
		}
		return nil
	})
	if errors.Is(err, errRollback) {
		return Failure[Appointment](vErr), nil
	}
	if err != nil {
		return Result[Appointment]{}, err
	}

	c.deps.createTopic(ctx, subscription)
	return Success(updated), nil
}

// CancelAppointmentCommand withdraws a REQUESTED or SCHEDULED appointment.
type CancelAppointmentCommand struct {
	appointmentID string
	deps          *appointmentDeps
}

func (c *CancelAppointmentCommand) Execute(ctx context.Context) (Result[Appointment], error) {
	vErr := &ValidationError{}
	existing, ok, err := c.deps.lookup(ctx, c.appointmentID, vErr)
	if err != nil || !ok {
		return resultOrError[Appointment](vErr, err)
	}

	requireStatus(existing, vErr, StatusRequested, StatusScheduled)
	if vErr.HasErrors() {
		return Failure[Appointment](vErr), nil
	}

	now := c.deps.now()
	err = c.deps.appointments.WithinReservation(ctx, func(tx ReservationTx) error {
		changed, err := tx.TransitionStatus(ctx, existing.ID, []AppointmentStatus{StatusRequested, StatusScheduled}, StatusCanceled, now)
		if err != nil {
			return fmt.Errorf("cancel appointment %s: %w", existing.ID, err)
		}
		if !changed {
			vErr.Put(TagAppointmentStatus, "appointment can no longer be canceled")
			return errRollback
		}
		return tx.DeleteSubscriptionsForAppointment(ctx, existing.ID)
	})
	if errors.Is(err, errRollback) {
		return Failure[Appointment](vErr), nil
	}
	if err != nil {
		return Result[Appointment]{}, err
	}

	existing.Status = StatusCanceled
	existing.UpdatedAt = now
	return Success(existing), nil
}

// RetrieveAppointmentCommand loads one appointment.
type RetrieveAppointmentCommand struct {
	appointmentID string
	deps          *appointmentDeps
}

func (c *RetrieveAppointmentCommand) Execute(ctx context.Context) (Result[Appointment], error) {
	vErr := &ValidationError{}
	appointment, ok, err := c.deps.lookup(ctx, c.appointmentID, vErr)
	if err != nil || !ok {
		return resultOrError[Appointment](vErr, err)
	}
	return Success(appointment), nil
}

// ListAppointmentsForUserCommand lists every appointment owned by a user,
// ordered by start time.
type ListAppointmentsForUserCommand struct {
	userID string
	deps   *appointmentDeps
}

func (c *ListAppointmentsForUserCommand) Execute(ctx context.Context) (Result[[]Appointment], error) {
	vErr := &ValidationError{}
	checkRequest(userIDRequest{UserID: c.userID}, map[string]Tag{"UserID": TagAppointmentUserID}, vErr)
	if vErr.HasErrors() {
		return Failure[[]Appointment](vErr), nil
	}

	if _, err := c.deps.users.GetUser(ctx, c.userID); err != nil {
		if !isNotFound(err) {
			return Result[[]Appointment]{}, fmt.Errorf("lookup user %s: %w", c.userID, err)
		}
		vErr.Put(TagAppointmentUserNotFound, fmt.Sprintf("user %s does not exist", c.userID))
		return Failure[[]Appointment](vErr), nil
	}

	appointments, err := c.deps.appointments.ListAppointmentsForUser(ctx, c.userID)
	if err != nil {
		return Result[[]Appointment]{}, fmt.Errorf("list appointments for %s: %w", c.userID, err)
	}

	ordered := make([]Appointment, len(appointments))
	copy(ordered, appointments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start.Equal(ordered[j].Start) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].Start.Before(ordered[j].Start)
	})
	return Success(ordered), nil
}

// ListRequestedAppointmentsCommand returns the admin review queue: PRIMARY
// requests first, then by start time.
type ListRequestedAppointmentsCommand struct {
	deps *appointmentDeps
}

func (c *ListRequestedAppointmentsCommand) Execute(ctx context.Context) (Result[[]Appointment], error) {
	requested, err := c.deps.appointments.ListAppointmentsByStatus(ctx, StatusRequested)
	if err != nil {
		return Result[[]Appointment]{}, fmt.Errorf("list requested appointments: %w", err)
	}

	queue := make([]Appointment, len(requested))
	copy(queue, requested)
	sort.SliceStable(queue, func(i, j int) bool {
		pi, pj := queue[i].Priority == PriorityPrimary, queue[j].Priority == PriorityPrimary
		if pi != pj {
			return pi
		}
		if !queue[i].Start.Equal(queue[j].Start) {
			return queue[i].Start.Before(queue[j].Start)
		}
		return queue[i].ID < queue[j].ID
	})
	return Success(queue), nil
}

// appointmentDeps are the collaborators shared by every appointment command.
type appointmentDeps struct {
	users        UserDirectory
	telescopes   TelescopeCatalog
	appointments AppointmentStore
	topics       TopicCreator
	idGenerator  func() string
	now          func() time.Time
	topicPrefix  string
	logger       *slog.Logger
}

func (d *appointmentDeps) lookup(ctx context.Context, id string, vErr *ValidationError) (Appointment, bool, error) {
	checkRequest(appointmentIDRequest{AppointmentID: id}, appointmentIDFields, vErr)
	if vErr.HasErrors() {
		return Appointment{}, false, nil
	}
	appointment, err := d.appointments.GetAppointment(ctx, id)
	if err != nil {
		if !isNotFound(err) {
			return Appointment{}, false, fmt.Errorf("lookup appointment %s: %w", id, err)
		}
		vErr.Put(TagAppointmentNotFound, fmt.Sprintf("appointment %s does not exist", id))
		return Appointment{}, false, nil
	}
	return appointment, true, nil
}

// TopicName returns the notification topic used for an appointment.
func TopicName(prefix, appointmentID string) string {
	return prefix + "appointment-" + appointmentID
}

func (d *appointmentDeps) newSubscription(appointment Appointment, now time.Time) Subscription {
	return Subscription{
		ID:            d.idGenerator(),
		AppointmentID: appointment.ID,
		UserID:        appointment.UserID,
		Topic:         TopicName(d.topicPrefix, appointment.ID),
		Status:        SubscriptionSubscribed,
		CreatedAt:     now,
	}
}

// createTopic runs after commit. A failure is logged and left to the
// publisher, which delivers to the topic name regardless.
func (d *appointmentDeps) createTopic(ctx context.Context, subscription *Subscription) {
	if subscription == nil || d.topics == nil {
		return
	}
	if err := d.topics.CreateTopic(ctx, subscription.Topic); err != nil {
		serviceLogger(ctx, d.logger, "AppointmentFactory", "CreateTopic",
			"appointment_id", subscription.AppointmentID,
			"topic", subscription.Topic,
		).WarnContext(ctx, "failed to create notification topic", "error", err)
	}
}

func validateInterval(start, end, now time.Time, vErr *ValidationError) {
	if start.IsZero() || end.IsZero() {
		return
	}
	if !start.Before(end) {
		vErr.Put(TagAppointmentTime, "start time must be before end time")
	}
	if !start.After(now) {
		vErr.Put(TagAppointmentTime, "start time must be in the future")
	}
}

func requireStatus(appointment Appointment, vErr *ValidationError, allowed ...AppointmentStatus) {
	for _, status := range allowed {
		if appointment.Status == status {
			return
		}
	}
	names := make([]string, len(allowed))
	for i, status := range allowed {
		names[i] = string(status)
	}
	vErr.Put(TagAppointmentStatus, fmt.Sprintf("appointment is %s; expected %s", appointment.Status, strings.Join(names, " or ")))
}

func findConflicts(ctx context.Context, tx ReservationTx, candidate Appointment, statuses []AppointmentStatus) ([]scheduler.Conflict, error) {
	overlapping, err := tx.FindOverlapping(ctx, candidate.TelescopeID, candidate.Start, candidate.End, statuses)
	if err != nil {
		return nil, fmt.Errorf("find overlapping appointments: %w", err)
	}
	existing := make([]scheduler.Reservation, len(overlapping))
	for i, a := range overlapping {
		existing[i] = toReservation(a)
	}
	return scheduler.DetectConflicts(existing, toReservation(candidate)), nil
}

func checkAllottedTime(ctx context.Context, tx ReservationTx, candidate Appointment, vErr *ValidationError) error {
	limit, err := tx.AllottedTimeCap(ctx, candidate.UserID)
	if err != nil {
		if isNotFound(err) {
			vErr.Put(TagAppointmentAllottedTime, "user has no allotted time")
			return nil
		}
		return fmt.Errorf("load allotted time for %s: %w", candidate.UserID, err)
	}

	active, err := tx.ListForUserByStatus(ctx, candidate.UserID, ActiveStatuses)
	if err != nil {
		return fmt.Errorf("list active appointments for %s: %w", candidate.UserID, err)
	}
	reservations := make([]scheduler.Reservation, 0, len(active))
	for _, a := range active {
		if a.ID == candidate.ID {
			continue
		}
		reservations = append(reservations, toReservation(a))
	}

	allotment := scheduler.CheckAllotment(limit.Limit, reservations, candidate.Duration())
	if allotment.Exceeded() {
		vErr.Put(TagAppointmentAllottedTime, fmt.Sprintf("requested %s exceeds allotted time cap of %s (%s remaining)",
			allotment.Requested, *allotment.Limit, allotment.Remaining()))
	}
	return nil
}

func toReservation(a Appointment) scheduler.Reservation {
	return scheduler.Reservation{
		ID:          a.ID,
		UserID:      a.UserID,
		TelescopeID: a.TelescopeID,
		Start:       a.Start,
		End:         a.End,
	}
}

func resultOrError[T any](vErr *ValidationError, err error) (Result[T], error) {
	if err != nil {
		return Result[T]{}, err
	}
	return Failure[T](vErr), nil
}
