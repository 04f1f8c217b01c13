package scheduler

import (
	"sort"
	"time"
)

// Reservation is the slice of an appointment the conflict detector needs.
type Reservation struct {
	ID          string
	UserID      string
	TelescopeID string
	Start       time.Time
	End         time.Time
}

// Duration returns the reserved interval length.
func (r Reservation) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// ConflictType describes the type of conflict detected between reservations.
type ConflictType string

const (
	// ConflictTypeTelescope indicates the telescope is double-booked.
	ConflictTypeTelescope ConflictType = "telescope"
)

// Conflict details an overlapping reservation that callers can present to users.
type Conflict struct {
	WithAppointmentID string
	TelescopeID       string
	Type              ConflictType
	Start             time.Time
	End               time.Time
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// DetectConflicts identifies reservations in existing that block candidate.
// Reservations on other telescopes never conflict, and a user's own
// reservations do not block each other. Callers pass only reservations whose
// status still holds the telescope.
func DetectConflicts(existing []Reservation, candidate Reservation) []Conflict {
	var conflicts []Conflict
	for _, other := range existing {
		if other.ID == candidate.ID && other.ID != "" {
			continue
		}
		if other.TelescopeID != candidate.TelescopeID {
			continue
		}
		if candidate.UserID != "" && other.UserID == candidate.UserID {
			continue
		}
		if !Overlaps(candidate.Start, candidate.End, other.Start, other.End) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			WithAppointmentID: other.ID,
			TelescopeID:       other.TelescopeID,
			Type:              ConflictTypeTelescope,
			Start:             other.Start,
			End:               other.End,
		})
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		if conflicts[i].Start.Equal(conflicts[j].Start) {
			return conflicts[i].WithAppointmentID < conflicts[j].WithAppointmentID
		}
		return conflicts[i].Start.Before(conflicts[j].Start)
	})
	return conflicts
}
