package application

import (
	"errors"
	"fmt"
	"slices"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	populated := &ValidationError{}
	populated.Put(TagAppointmentStartTime, "start is required")
	populated.Put(TagAppointmentStartTime, "start must be in the future")
	want := "validation failed: appointment.start_time: start is required; start must be in the future"
	if got := populated.Error(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestValidationError_AccumulatesEveryMessage(t *testing.T) {
	t.Parallel()

	vErr := &ValidationError{}
	if vErr.HasErrors() || !vErr.IsEmpty() {
		t.Fatal("expected a fresh accumulator to be empty")
	}

	vErr.Put(TagAppointmentEndTime, "end is required")
	vErr.Put(TagAppointmentConflict, "overlaps appointment a")
	vErr.Put(TagAppointmentConflict, "overlaps appointment b")

	if !vErr.HasErrors() || vErr.Len() != 3 {
		t.Fatalf("expected three messages, got %d", vErr.Len())
	}
	if !slices.Equal(vErr.Tags(), []Tag{TagAppointmentEndTime, TagAppointmentConflict}) {
		t.Fatalf("expected first-seen tag order, got %v", vErr.Tags())
	}
	if got := vErr.Messages(TagAppointmentConflict); len(got) != 2 || got[1] != "overlaps appointment b" {
		t.Fatalf("expected both conflict messages, got %v", got)
	}
	if vErr.Has(TagAppointmentTarget) {
		t.Fatal("unexpected target tag")
	}

	messages := vErr.Messages(TagAppointmentConflict)
	messages[0] = "mutated"
	if vErr.Messages(TagAppointmentConflict)[0] == "mutated" {
		t.Fatal("Messages must return a copy")
	}
}

func TestValidationError_Merge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.Put(TagUserEmail, "email is required")

	other := &ValidationError{}
	other.Put(TagUserEmail, "email is malformed")
	other.Put(TagUserPassword, "password is too short")

	base.Merge(other)
	base.Merge(nil)

	if base.Len() != 3 || len(base.Messages(TagUserEmail)) != 2 {
		t.Fatalf("unexpected merge result: %v", base.Error())
	}
}

func TestTagKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tag  Tag
		want TagKind
	}{
		{TagAppointmentStartTime, KindField},
		{TagAppointmentTelescopeNotFound, KindReference},
		{TagAppointmentConflict, KindDomain},
		{TagAppointmentAllottedTime, KindDomain},
		{TagUserAllottedTimeDefault, KindInvariant},
		{Tag("unclassified"), KindField},
	}
	for _, tc := range cases {
		if got := tc.tag.Kind(); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.tag, tc.want, got)
		}
	}
	if TagKind(42).String() != "unknown" {
		t.Fatal("expected unknown label for out of range kind")
	}
}

func TestResult(t *testing.T) {
	t.Parallel()

	ok := Success(7)
	if value, present := ok.Value(); !present || value != 7 || !ok.Succeeded() || ok.Errors() != nil {
		t.Fatalf("unexpected success result: %+v", ok)
	}

	vErr := &ValidationError{}
	vErr.Put(TagTelescopeName, "name is required")
	failed := Failure[int](vErr)
	if failed.Succeeded() || !failed.Errors().Has(TagTelescopeName) {
		t.Fatalf("unexpected failure result: %+v", failed)
	}

	value := 3
	if _, err := NewResult(&value, vErr); !errors.Is(err, ErrInvalidResult) {
		t.Fatalf("expected ErrInvalidResult for both parts, got %v", err)
	}
	if _, err := NewResult[int](nil, &ValidationError{}); !errors.Is(err, ErrInvalidResult) {
		t.Fatalf("expected ErrInvalidResult for neither part, got %v", err)
	}
	built, err := NewResult[int](nil, vErr)
	if err != nil || built.Succeeded() {
		t.Fatalf("expected failure result, got %+v (err %v)", built, err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected Failure with empty errors to panic")
		}
	}()
	_ = Failure[int](&ValidationError{})
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	vErr := &ValidationError{}
	vErr.Put(TagUserEmail, "bad")

	cases := map[string]error{
		"":                    nil,
		"unauthorized":        fmt.Errorf("wrapped: %w", ErrUnauthorized),
		"not_found":           ErrNotFound,
		"invalid_credentials": ErrInvalidCredentials,
		"session_expired":     ErrSessionExpired,
		"validation":          vErr,
		"unexpected":          errors.New("boom"),
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Errorf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
