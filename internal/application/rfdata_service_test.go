package application

import (
	"context"
	"testing"
	"time"
)

func TestRFDataRetrieve(t *testing.T) {
	t.Parallel()

	h := newAppointmentHarness(t)
	ctx := context.Background()
	rfdata := NewRFDataWrapper(NewRFDataFactory(h.store, h.store), h.store, discardLogger)

	done := h.seed("done", "alice", StatusCompleted, -3*time.Hour, time.Hour, PrioritySecondary)
	pending := h.seed("pending", "alice", StatusScheduled, 24*time.Hour, time.Hour, PrioritySecondary)
	h.store.mu.Lock()
	h.store.rfdata[done.ID] = []RFData{
		{ID: "s3", AppointmentID: done.ID, CapturedAt: done.Start.Add(2 * time.Minute), Intensity: 30},
		{ID: "s1", AppointmentID: done.ID, CapturedAt: done.Start, Intensity: 10},
		{ID: "s2", AppointmentID: done.ID, CapturedAt: done.Start.Add(time.Minute), Intensity: 20},
	}
	h.store.mu.Unlock()

	var got capture[[]RFData]
	if _, err := rfdata.Retrieve(ctx, h.alice, done.ID, got.then); err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	samples, ok := got.value()
	if !ok || len(samples) != 3 {
		t.Fatalf("expected three samples, got %#v (%v)", samples, got.result.Errors())
	}
	for i, id := range []string{"s1", "s2", "s3"} {
		if samples[i].ID != id {
			t.Fatalf("expected samples ordered by capture time, got %#v", samples)
		}
	}

	report, err := rfdata.Retrieve(ctx, h.bob, done.ID, got.then)
	if err != nil || report == nil || !report.InvalidResource {
		t.Fatalf("expected bob to be denied a private appointment, got %+v (err %v)", report, err)
	}

	if _, err := rfdata.Retrieve(ctx, h.alice, pending.ID, got.then); err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	expectTags(t, got.result.Errors(), TagRFDataAppointmentStatus)

	if _, err := rfdata.Retrieve(ctx, h.admin, "ghost", got.then); err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	expectTags(t, got.result.Errors(), TagRFDataAppointmentNotFound)
}

func TestRFDataRejectedForDeniedAppointment(t *testing.T) {
	t.Parallel()

	h := newAppointmentHarness(t)
	ctx := context.Background()
	rfdata := NewRFDataWrapper(NewRFDataFactory(h.store, h.store), h.store, discardLogger)

	request := pointRequest(24*time.Hour, time.Hour)
	request.Mode = ModeRequest
	queued := h.mustCreate(t, h.alice, request)

	var decided capture[Appointment]
	if _, err := h.wrapper.ApproveDeny(ctx, h.admin, ApproveDenyRequest{AppointmentID: queued.ID}, decided.then); err != nil {
		t.Fatalf("ApproveDeny returned error: %v", err)
	}
	if appointment, ok := decided.value(); !ok || appointment.Status != StatusCanceled {
		t.Fatalf("expected denial to cancel, got %#v", appointment)
	}

	var got capture[[]RFData]
	if _, err := rfdata.Retrieve(ctx, h.alice, queued.ID, got.then); err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	expectTags(t, got.result.Errors(), TagRFDataAppointmentStatus)
}
