package sweep

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/example/telescope-scheduler/internal/application"
)

// SampleInterval is the spacing of synthesized RF samples.
const SampleInterval = time.Minute

// CompletionStore is the appointment access needed by the completion sweep.
type CompletionStore interface {
	// ListPastEnd returns appointments in one of statuses whose end is at or before now.
	ListPastEnd(ctx context.Context, statuses []application.AppointmentStatus, now time.Time) ([]application.Appointment, error)
	// ListStartedBefore returns appointments in status whose start is at or before now.
	ListStartedBefore(ctx context.Context, status application.AppointmentStatus, now time.Time) ([]application.Appointment, error)
	TransitionStatus(ctx context.Context, id string, from []application.AppointmentStatus, to application.AppointmentStatus, at time.Time) (bool, error)
	// CompleteAppointment stores samples and marks the appointment COMPLETED in
	// one transaction, only when its status is still one of from.
	CompleteAppointment(ctx context.Context, id string, from []application.AppointmentStatus, samples []application.RFData, at time.Time) (bool, error)
}

// CompletionSweep advances appointments whose window has opened or closed.
type CompletionSweep struct {
	store       CompletionStore
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewCompletionSweep wires the completion sweep.
func NewCompletionSweep(store CompletionStore, idGenerator func() string, now func() time.Time, logger *slog.Logger) *CompletionSweep {
	if now == nil {
		now = time.Now
	}
	return &CompletionSweep{store: store, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *CompletionSweep) Name() string { return "completion" }

// Run completes finished appointments, starts opened ones and lapses stale
// requests. Only listing failures are returned.
func (s *CompletionSweep) Run(ctx context.Context) error {
	logger := sweepLogger(ctx, s.logger, s.Name())
	now := s.now()

	finished, err := s.store.ListPastEnd(ctx, application.ActiveStatuses, now)
	if err != nil {
		return fmt.Errorf("list finished appointments: %w", err)
	}
	completed := 0
	for _, appointment := range finished {
		samples := SynthesizeRFData(appointment, s.idGenerator)
		changed, err := s.store.CompleteAppointment(ctx, appointment.ID, application.ActiveStatuses, samples, now)
		if err != nil {
			logger.ErrorContext(ctx, "failed to complete appointment", "appointment_id", appointment.ID, "error", err)
			continue
		}
		if changed {
			completed++
		}
	}

	opened, err := s.store.ListStartedBefore(ctx, application.StatusScheduled, now)
	if err != nil {
		return fmt.Errorf("list started appointments: %w", err)
	}
	started := 0
	for _, appointment := range opened {
		if !appointment.End.After(now) {
			continue
		}
		changed, err := s.store.TransitionStatus(ctx, appointment.ID,
			[]application.AppointmentStatus{application.StatusScheduled}, application.StatusInProgress, now)
		if err != nil {
			logger.ErrorContext(ctx, "failed to start appointment", "appointment_id", appointment.ID, "error", err)
			continue
		}
		if changed {
			started++
		}
	}

	stale, err := s.store.ListStartedBefore(ctx, application.StatusRequested, now)
	if err != nil {
		return fmt.Errorf("list lapsed requests: %w", err)
	}
	lapsed := 0
	for _, appointment := range stale {
		changed, err := s.store.TransitionStatus(ctx, appointment.ID,
			[]application.AppointmentStatus{application.StatusRequested}, application.StatusCanceled, now)
		if err != nil {
			logger.ErrorContext(ctx, "failed to lapse request", "appointment_id", appointment.ID, "error", err)
			continue
		}
		if changed {
			lapsed++
		}
	}

	logger.InfoContext(ctx, "sweep finished", "completed", completed, "started", started, "lapsed", lapsed)
	return nil
}

// SynthesizeRFData produces one sample per minute across [Start, End). The
// intensities are derived from the appointment id so a retry produces the
// same series.
func SynthesizeRFData(appointment application.Appointment, idGenerator func() string) []application.RFData {
	if !appointment.Start.Before(appointment.End) {
		return nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(appointment.ID))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	count := int((appointment.End.Sub(appointment.Start) + SampleInterval - 1) / SampleInterval)
	samples := make([]application.RFData, 0, count)
	for at := appointment.Start; at.Before(appointment.End); at = at.Add(SampleInterval) {
		var id string
		if idGenerator != nil {
			id = idGenerator()
		}
		samples = append(samples, application.RFData{
			ID:            id,
			AppointmentID: appointment.ID,
			CapturedAt:    at,
			Intensity:     200 + rng.Int64N(800),
		})
	}
	return samples
}
