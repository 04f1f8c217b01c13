package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/telescope-scheduler/internal/persistence"
)

func newAppointment(id, userID, telescopeID, status string, start time.Time, length time.Duration) persistence.Appointment {
	return persistence.Appointment{
		ID:          id,
		UserID:      userID,
		TelescopeID: telescopeID,
		Start:       start,
		End:         start.Add(length),
		Priority:    "SECONDARY",
		Type:        "POINT",
		Status:      status,
		Target:      `{"right_ascension":1.5,"declination":-0.5}`,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
}

func insertAppointment(t *testing.T, storage *Storage, a persistence.Appointment) {
	t.Helper()

	err := storage.Appointments.WithinReservation(context.Background(), func(tx persistence.ReservationTx) error {
		return tx.CreateAppointment(context.Background(), a)
	})
	if err != nil {
		t.Fatalf("CreateAppointment(%s) failed: %v", a.ID, err)
	}
}

func setupAppointmentStorage(t *testing.T) *Storage {
	t.Helper()

	storage := newTestStorage(t)
	seedAccount(t, storage, "user-1", "alice@example.com", true, durationPtr(5*time.Hour))
	seedAccount(t, storage, "user-2", "bob@example.com", true, nil)
	seedTelescope(t, storage, "tel-1", "Dish")
	seedTelescope(t, storage, "tel-2", "Horn")
	return storage
}

func TestAppointmentRepository_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := setupAppointmentStorage(t)
	want := newAppointment("appt-1", "user-1", "tel-1", "SCHEDULED", baseTime.Add(time.Hour), 30*time.Minute)
	want.Public = true
	insertAppointment(t, storage, want)

	got, err := storage.Appointments.GetAppointment(ctx, "appt-1")
	if err != nil {
		t.Fatalf("GetAppointment failed: %v", err)
	}
	if got.UserID != want.UserID || got.TelescopeID != want.TelescopeID || got.Status != want.Status || got.Target != want.Target {
		t.Fatalf("unexpected appointment: %+v", got)
	}
	if !got.Start.Equal(want.Start) || !got.End.Equal(want.End) || !got.Public {
		t.Fatalf("unexpected window or visibility: %+v", got)
	}

	if _, err := storage.Appointments.GetAppointment(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppointmentRepository_RejectsInvertedWindow(t *testing.T) {
	t.Parallel()

	storage := setupAppointmentStorage(t)
	a := newAppointment("appt-1", "user-1", "tel-1", "REQUESTED", baseTime, 0)

	err := storage.Appointments.WithinReservation(context.Background(), func(tx persistence.ReservationTx) error {
		return tx.CreateAppointment(context.Background(), a)
	})
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestReservationTx_FindOverlappingIsHalfOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := setupAppointmentStorage(t)
	start := baseTime.Add(time.Hour)
	insertAppointment(t, storage, newAppointment("booked", "user-1", "tel-1", "SCHEDULED", start, time.Hour))
	insertAppointment(t, storage, newAppointment("canceled", "user-1", "tel-1", "CANCELED", start, time.Hour))
	insertAppointment(t, storage, newAppointment("other-scope", "user-1", "tel-2", "SCHEDULED", start, time.Hour))

	active := []string{"SCHEDULED", "IN_PROGRESS"}
	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int
	}{
		{name: "touching before", start: start.Add(-time.Hour), end: start, want: 0},
		{name: "touching after", start: start.Add(time.Hour), end: start.Add(2 * time.Hour), want: 0},
		{name: "inside", start: start.Add(10 * time.Minute), end: start.Add(20 * time.Minute), want: 1},
		{name: "straddling end", start: start.Add(59 * time.Minute), end: start.Add(2 * time.Hour), want: 1},
	}

	for _, tc := range cases {
		var found []persistence.Appointment
		err := storage.Appointments.WithinReservation(ctx, func(tx persistence.ReservationTx) error {
			var err error
			found, err = tx.FindOverlapping(ctx, "tel-1", tc.start, tc.end, active)
			return err
		})
		if err != nil {
			t.Fatalf("%s: FindOverlapping failed: %v", tc.name, err)
		}
		if len(found) != tc.want {
			t.Fatalf("%s: expected %d overlaps, got %d", tc.name, tc.want, len(found))
		}
		if tc.want == 1 && found[0].ID != "booked" {
			t.Fatalf("%s: expected booked appointment, got %s", tc.name, found[0].ID)
		}
	}
}

func TestReservationTx_ErrorRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := setupAppointmentStorage(t)
	abort := errors.New("abort")

	err := storage.Appointments.WithinReservation(ctx, func(tx persistence.ReservationTx) error {
		if err := tx.CreateAppointment(ctx, newAppointment("appt-1", "user-1", "tel-1", "SCHEDULED", baseTime, time.Hour)); err != nil {
			return err
		}
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("expected abort error, got %v", err)
	}
	if _, err := storage.Appointments.GetAppointment(ctx, "appt-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected appointment to be rolled back, got %v", err)
	}
}

func TestReservationTx_SerializesCompetingWriters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := setupAppointmentStorage(t)
	start := baseTime.Add(time.Hour)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs <- storage.Appointments.WithinReservation(ctx, func(tx persistence.ReservationTx) error {
				overlapping, err := tx.FindOverlapping(ctx, "tel-1", start, start.Add(time.Hour), []string{"SCHEDULED"})
				if err != nil || len(overlapping) > 0 {
					return err
				}
				return tx.CreateAppointment(ctx, newAppointment(id, "user-2", "tel-1", "SCHEDULED", start, time.Hour))
			})
		}(i, id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("reservation failed: %v", err)
		}
	}

	scheduled, err := storage.Appointments.ListAppointmentsByStatus(ctx, []string{"SCHEDULED"})
	if err != nil {
		t.Fatalf("ListAppointmentsByStatus failed: %v", err)
	}
	if len(scheduled) != 1 {
		t.Fatalf("expected exactly one scheduled appointment, got %d", len(scheduled))
	}
}

func TestAppointmentRepository_TransitionStatusIsConditional(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := setupAppointmentStorage(t)
	insertAppointment(t, storage, newAppointment("appt-1", "user-1", "tel-1", "REQUESTED", baseTime, time.Hour))

	changed, err := storage.Appointments.TransitionStatus(ctx, "appt-1", []string{"REQUESTED"}, "SCHEDULED", baseTime.Add(time.Minute))
	if err != nil || !changed {
		t.Fatalf("expected transition, got changed=%v err=%v", changed, err)
	}
	changed, err = storage.Appointments.TransitionStatus(ctx, "appt-1", []string{"REQUESTED"}, "CANCELED", baseTime.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	if changed {
		t.Fatal("expected stale transition to be refused")
	}

	got, err := storage.Appointments.GetAppointment(ctx, "appt-1")
	if err != nil {
		t.Fatalf("GetAppointment failed: %v", err)
	}
	if got.Status != "SCHEDULED" || !got.UpdatedAt.Equal(baseTime.Add(time.Minute)) {
		t.Fatalf("unexpected appointment after transitions: %+v", got)
	}
}

func TestAppointmentRepository_CompleteAppointment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := setupAppointmentStorage(t)
	insertAppointment(t, storage, newAppointment("appt-1", "user-1", "tel-1", "IN_PROGRESS", baseTime, 2*time.Minute))
	samples := []persistence.RFData{
		{ID: "rf-2", AppointmentID: "appt-1", CapturedAt: baseTime.Add(time.Minute), Intensity: 300},
		{ID: "rf-1", AppointmentID: "appt-1", CapturedAt: baseTime, Intensity: 250},
	}

	ended, err := storage.Appointments.ListEndedBefore(ctx, []string{"SCHEDULED", "IN_PROGRESS"}, baseTime.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("ListEndedBefore failed: %v", err)
	}
	if len(ended) != 1 {
		t.Fatalf("expected one ended appointment, got %d", len(ended))
	}

	completed, err := storage.Appointments.CompleteAppointment(ctx, "appt-1", []string{"SCHEDULED", "IN_PROGRESS"}, samples, baseTime.Add(3*time.Minute))
	if err != nil || !completed {
		t.Fatalf("expected completion, got completed=%v err=%v", completed, err)
	}
	completed, err = storage.Appointments.CompleteAppointment(ctx, "appt-1", []string{"SCHEDULED", "IN_PROGRESS"}, samples, baseTime.Add(4*time.Minute))
	if err != nil {
		t.Fatalf("second CompleteAppointment failed: %v", err)
	}
	if completed {
		t.Fatal("expected second completion to be a no-op")
	}

	data, err := storage.Appointments.ListRFData(ctx, "appt-1")
	if err != nil {
		t.Fatalf("ListRFData failed: %v", err)
	}
	if len(data) != 2 || data[0].ID != "rf-1" || data[1].Intensity != 300 {
		t.Fatalf("unexpected rf data: %+v", data)
	}
}

func TestAppointmentRepository_CompleteAppointmentInBatches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := setupAppointmentStorage(t)
	insertAppointment(t, storage, newAppointment("long", "user-1", "tel-1", "IN_PROGRESS", baseTime, 24*time.Hour))
	insertAppointment(t, storage, newAppointment("dup", "user-1", "tel-1", "IN_PROGRESS", baseTime.Add(48*time.Hour), time.Hour))

	samples := make([]persistence.RFData, 2*rfDataBatch+7)
	for i := range samples {
		samples[i] = persistence.RFData{
			ID:         fmt.Sprintf("rf-%04d", i),
			CapturedAt: baseTime.Add(time.Duration(i) * time.Minute),
			Intensity:  int64(200 + i),
		}
	}
	completed, err := storage.Appointments.CompleteAppointment(ctx, "long", []string{"IN_PROGRESS"}, samples, baseTime.Add(25*time.Hour))
	if err != nil || !completed {
		t.Fatalf("expected completion, got completed=%v err=%v", completed, err)
	}
	data, err := storage.Appointments.ListRFData(ctx, "long")
	if err != nil {
		t.Fatalf("ListRFData failed: %v", err)
	}
	if len(data) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(data))
	}
	last := data[len(data)-1]
	if last.ID != samples[len(samples)-1].ID || last.AppointmentID != "long" || last.Intensity != samples[len(samples)-1].Intensity {
		t.Fatalf("unexpected last sample: %+v", last)
	}

	// A failure in a later batch must roll back the earlier batches and the status change.
	clash := make([]persistence.RFData, rfDataBatch+1)
	for i := range clash {
		clash[i] = persistence.RFData{ID: fmt.Sprintf("dup-%04d", i), CapturedAt: baseTime.Add(48*time.Hour + time.Duration(i)*time.Second)}
	}
	clash[rfDataBatch].ID = "rf-0000"
	if _, err := storage.Appointments.CompleteAppointment(ctx, "dup", []string{"IN_PROGRESS"}, clash, baseTime.Add(50*time.Hour)); err == nil {
		t.Fatal("expected duplicate sample id to fail the completion")
	}
	if data, err := storage.Appointments.ListRFData(ctx, "dup"); err != nil || len(data) != 0 {
		t.Fatalf("expected no samples after rollback, got %d (err %v)", len(data), err)
	}
	got, err := storage.Appointments.GetAppointment(ctx, "dup")
	if err != nil || got.Status != "IN_PROGRESS" {
		t.Fatalf("expected status to roll back, got %+v (err %v)", got, err)
	}
}

func TestAppointmentRepository_ListStartedBefore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := setupAppointmentStorage(t)
	insertAppointment(t, storage, newAppointment("past", "user-1", "tel-1", "REQUESTED", baseTime, time.Hour))
	insertAppointment(t, storage, newAppointment("future", "user-1", "tel-1", "REQUESTED", baseTime.Add(2*time.Hour), time.Hour))

	started, err := storage.Appointments.ListStartedBefore(ctx, "REQUESTED", baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("ListStartedBefore failed: %v", err)
	}
	if len(started) != 1 || started[0].ID != "past" {
		t.Fatalf("unexpected started appointments: %+v", started)
	}

	mine, err := storage.Appointments.ListAppointmentsForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListAppointmentsForUser failed: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != "past" {
		t.Fatalf("unexpected user appointments: %+v", mine)
	}
}
