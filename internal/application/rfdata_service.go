package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// RetrieveRFDataCommand loads the samples captured for a completed appointment.
type RetrieveRFDataCommand struct {
	appointmentID string
	appointments  AppointmentStore
	samples       RFDataStore
}

func (c *RetrieveRFDataCommand) Execute(ctx context.Context) (Result[[]RFData], error) {
	vErr := &ValidationError{}
	checkRequest(appointmentIDRequest{AppointmentID: c.appointmentID}, map[string]Tag{"AppointmentID": TagRFDataAppointmentID}, vErr)
	if vErr.HasErrors() {
		return Failure[[]RFData](vErr), nil
	}

	appointment, err := c.appointments.GetAppointment(ctx, c.appointmentID)
	if err != nil {
		if !isNotFound(err) {
			return Result[[]RFData]{}, fmt.Errorf("lookup appointment %s: %w", c.appointmentID, err)
		}
		vErr.Put(TagRFDataAppointmentNotFound, fmt.Sprintf("appointment %s does not exist", c.appointmentID))
		return Failure[[]RFData](vErr), nil
	}
	if appointment.Status != StatusCompleted {
		vErr.Put(TagRFDataAppointmentStatus, fmt.Sprintf("appointment is %s; data exists only for COMPLETED appointments", appointment.Status))
		return Failure[[]RFData](vErr), nil
	}

	samples, err := c.samples.ListRFData(ctx, c.appointmentID)
	if err != nil {
		return Result[[]RFData]{}, fmt.Errorf("list rf data for %s: %w", c.appointmentID, err)
	}
	ordered := make([]RFData, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CapturedAt.Before(ordered[j].CapturedAt)
	})
	return Success(ordered), nil
}

// RFDataFactory assembles RF data commands.
type RFDataFactory struct {
	appointments AppointmentStore
	samples      RFDataStore
}

// NewRFDataFactory wires dependencies for RF data commands.
func NewRFDataFactory(appointments AppointmentStore, samples RFDataStore) *RFDataFactory {
	return &RFDataFactory{appointments: appointments, samples: samples}
}

func (f *RFDataFactory) Retrieve(appointmentID string) *RetrieveRFDataCommand {
	return &RetrieveRFDataCommand{appointmentID: appointmentID, appointments: f.appointments, samples: f.samples}
}

// RFDataWrapper gates RF data reads with the same rules as appointment reads.
type RFDataWrapper struct {
	factory *RFDataFactory
	access  authorizer
	logger  *slog.Logger
}

// NewRFDataWrapper builds a wrapper around factory.
func NewRFDataWrapper(factory *RFDataFactory, roles RoleStore, logger *slog.Logger) *RFDataWrapper {
	logger = defaultLogger(logger)
	return &RFDataWrapper{factory: factory, access: newAuthorizer(roles, logger), logger: logger}
}

// Retrieve admits the owner, any USER for a public appointment, and ADMIN.
func (w *RFDataWrapper) Retrieve(ctx context.Context, caller *Principal, appointmentID string, then func(Result[[]RFData])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "RFDataWrapper", "Retrieve", "appointment_id", appointmentID)

	report, err := authorizeAppointment(ctx, w.access, w.factory.appointments, caller, appointmentID, true)
	if err != nil {
		return nil, abort(ctx, logger, err)
	}
	if report != nil {
		return deny(ctx, logger, report), nil
	}
	return nil, dispatch(ctx, logger, Command[[]RFData](w.factory.Retrieve(appointmentID)), then)
}
