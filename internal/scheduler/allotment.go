package scheduler

import "time"

// UsedTime sums the durations of reservations that count against a cap.
func UsedTime(reservations []Reservation) time.Duration {
	var total time.Duration
	for _, r := range reservations {
		if d := r.Duration(); d > 0 {
			total += d
		}
	}
	return total
}

// Allotment is the outcome of checking a request against a time cap.
type Allotment struct {
	Limit     *time.Duration
	Used      time.Duration
	Requested time.Duration
}

// Exceeded reports whether granting the request would pass the limit.
// A nil limit is unlimited.
func (a Allotment) Exceeded() bool {
	if a.Limit == nil {
		return false
	}
	return a.Used+a.Requested > *a.Limit
}

// Remaining returns the time still available before the request is applied.
// It is never negative.
func (a Allotment) Remaining() time.Duration {
	if a.Limit == nil {
		return time.Duration(1<<63 - 1)
	}
	if rem := *a.Limit - a.Used; rem > 0 {
		return rem
	}
	return 0
}

// CheckAllotment evaluates a request of the given duration for the owner of
// active against limit.
func CheckAllotment(limit *time.Duration, active []Reservation, requested time.Duration) Allotment {
	return Allotment{Limit: limit, Used: UsedTime(active), Requested: requested}
}
