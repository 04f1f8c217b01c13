package scheduler

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd time.Time
		want                       bool
	}{
		{"partial overlap", at(10, 0), at(11, 0), at(10, 30), at(11, 30), true},
		{"contained", at(10, 0), at(12, 0), at(10, 30), at(11, 0), true},
		{"identical", at(10, 0), at(11, 0), at(10, 0), at(11, 0), true},
		{"touching end is free", at(10, 0), at(11, 0), at(11, 0), at(12, 0), false},
		{"touching start is free", at(11, 0), at(12, 0), at(10, 0), at(11, 0), false},
		{"disjoint", at(8, 0), at(9, 0), at(10, 0), at(11, 0), false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd); got != tc.want {
				t.Fatalf("Overlaps() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDetectConflicts(t *testing.T) {
	t.Parallel()

	existing := []Reservation{
		{ID: "a-1", UserID: "alice", TelescopeID: "t-1", Start: at(10, 0), End: at(11, 0)},
		{ID: "a-2", UserID: "bob", TelescopeID: "t-2", Start: at(10, 0), End: at(11, 0)},
		{ID: "a-3", UserID: "carol", TelescopeID: "t-1", Start: at(11, 15), End: at(12, 0)},
	}

	t.Run("telescope overlap produces conflict", func(t *testing.T) {
		t.Parallel()
		candidate := Reservation{UserID: "dave", TelescopeID: "t-1", Start: at(10, 30), End: at(11, 30)}
		conflicts := DetectConflicts(existing, candidate)
		if len(conflicts) != 2 {
			t.Fatalf("expected 2 conflicts, got %d: %+v", len(conflicts), conflicts)
		}
		if conflicts[0].WithAppointmentID != "a-1" || conflicts[1].WithAppointmentID != "a-3" {
			t.Fatalf("expected conflicts ordered by start, got %+v", conflicts)
		}
		if conflicts[0].Type != ConflictTypeTelescope {
			t.Fatalf("expected telescope conflict, got %s", conflicts[0].Type)
		}
	})

	t.Run("different telescopes never conflict", func(t *testing.T) {
		t.Parallel()
		candidate := Reservation{UserID: "dave", TelescopeID: "t-3", Start: at(10, 0), End: at(11, 0)}
		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %+v", conflicts)
		}
	})

	t.Run("own reservations do not block", func(t *testing.T) {
		t.Parallel()
		candidate := Reservation{UserID: "alice", TelescopeID: "t-1", Start: at(10, 15), End: at(10, 45)}
		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts for own reservation, got %+v", conflicts)
		}
	})

	t.Run("candidate is not compared with itself", func(t *testing.T) {
		t.Parallel()
		candidate := existing[0]
		candidate.UserID = "someone-else"
		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected no self conflict, got %+v", conflicts)
		}
	})

	t.Run("non-overlapping reservations yield no conflicts", func(t *testing.T) {
		t.Parallel()
		candidate := Reservation{UserID: "dave", TelescopeID: "t-1", Start: at(11, 0), End: at(11, 15)}
		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %+v", conflicts)
		}
	})
}

func TestCheckAllotment(t *testing.T) {
	t.Parallel()

	active := []Reservation{
		{Start: at(8, 0), End: at(9, 0)},
		{Start: at(12, 0), End: at(12, 30)},
	}

	limit := 2 * time.Hour
	if a := CheckAllotment(&limit, active, 30*time.Minute); a.Exceeded() {
		t.Fatalf("expected 2h to fit exactly, got used=%s", a.Used)
	}
	if a := CheckAllotment(&limit, active, 31*time.Minute); !a.Exceeded() {
		t.Fatalf("expected request beyond limit to be rejected")
	}

	zero := time.Duration(0)
	a := CheckAllotment(&zero, nil, 30*time.Minute)
	if !a.Exceeded() {
		t.Fatalf("expected zero cap to reject any request")
	}
	if a.Remaining() != 0 {
		t.Fatalf("expected no remaining time, got %s", a.Remaining())
	}

	if a := CheckAllotment(nil, active, 100*time.Hour); a.Exceeded() {
		t.Fatalf("expected unlimited cap to accept any request")
	}
}
