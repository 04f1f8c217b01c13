package application

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique attribute is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidResult is returned when a Result is built with both or neither outcome populated.
	ErrInvalidResult = errors.New("application: result must carry exactly one of value or errors")
)

// TagKind classifies a tag so callers can render different messaging.
type TagKind int

const (
	// KindField covers missing or malformed request fields.
	KindField TagKind = iota
	// KindReference covers ids that name a record which does not exist.
	KindReference
	// KindDomain covers conflicts, allotted time and status transitions.
	KindDomain
	// KindInvariant covers deployment defects such as unseeded lookup tables.
	KindInvariant
)

func (k TagKind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindReference:
		return "reference"
	case KindDomain:
		return "domain"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Tag names a validation failure for a specific entity attribute or rule.
type Tag string

// Appointment tags.
const (
	TagAppointmentID                Tag = "appointment.id"
	TagAppointmentNotFound          Tag = "appointment.not_found"
	TagAppointmentUserID            Tag = "appointment.user_id"
	TagAppointmentUserNotFound      Tag = "appointment.user_not_found"
	TagAppointmentTelescopeID       Tag = "appointment.telescope_id"
	TagAppointmentTelescopeNotFound Tag = "appointment.telescope_not_found"
	TagAppointmentTelescopeOffline  Tag = "appointment.telescope_offline"
	TagAppointmentStartTime         Tag = "appointment.start_time"
	TagAppointmentEndTime           Tag = "appointment.end_time"
	TagAppointmentTime              Tag = "appointment.time"
	TagAppointmentType              Tag = "appointment.type"
	TagAppointmentPriority          Tag = "appointment.priority"
	TagAppointmentMode              Tag = "appointment.mode"
	TagAppointmentTarget            Tag = "appointment.target"
	TagAppointmentStatus            Tag = "appointment.status"
	TagAppointmentConflict          Tag = "appointment.conflict"
	TagAppointmentAllottedTime      Tag = "appointment.allotted_time"
)

// User tags.
const (
	TagUserID                      Tag = "user.id"
	TagUserNotFound                Tag = "user.not_found"
	TagUserEmail                   Tag = "user.email"
	TagUserEmailTaken              Tag = "user.email_taken"
	TagUserFirstName               Tag = "user.first_name"
	TagUserLastName                Tag = "user.last_name"
	TagUserPassword                Tag = "user.password"
	TagUserCategory                Tag = "user.category"
	TagUserAllottedTime            Tag = "user.allotted_time"
	TagUserAllottedTimeDefault     Tag = "user.allotted_time_default"
	TagUserActivationToken         Tag = "user.activation_token"
	TagUserActivationTokenNotFound Tag = "user.activation_token_not_found"
	TagUserActivationTokenExpired  Tag = "user.activation_token_expired"
	TagUserAlreadyActive           Tag = "user.already_active"
)

// Telescope tags.
const (
	TagTelescopeName      Tag = "telescope.name"
	TagTelescopeNameTaken Tag = "telescope.name_taken"
	TagTelescopeLocation  Tag = "telescope.location"
)

// RF data tags.
const (
	TagRFDataAppointmentID       Tag = "rf_data.appointment_id"
	TagRFDataAppointmentNotFound Tag = "rf_data.appointment_not_found"
	TagRFDataAppointmentStatus   Tag = "rf_data.appointment_status"
)

// TagInvariantRequest reports a request that could not be inspected at all.
const TagInvariantRequest Tag = "request"

var tagKinds = map[Tag]TagKind{
	TagInvariantRequest:             KindInvariant,
	TagAppointmentNotFound:          KindReference,
	TagAppointmentUserNotFound:      KindReference,
	TagAppointmentTelescopeNotFound: KindReference,
	TagAppointmentTelescopeOffline:  KindDomain,
	TagAppointmentTime:              KindDomain,
	TagAppointmentStatus:            KindDomain,
	TagAppointmentConflict:          KindDomain,
	TagAppointmentAllottedTime:      KindDomain,
	TagUserNotFound:                 KindReference,
	TagUserEmailTaken:               KindDomain,
	TagUserAllottedTimeDefault:      KindInvariant,
	TagUserActivationTokenNotFound:  KindReference,
	TagUserActivationTokenExpired:   KindDomain,
	TagUserAlreadyActive:            KindDomain,
	TagTelescopeNameTaken:           KindDomain,
	TagRFDataAppointmentNotFound:    KindReference,
	TagRFDataAppointmentStatus:      KindDomain,
}

// Kind reports the category the tag belongs to. Tags without an explicit
// classification are field errors.
func (t Tag) Kind() TagKind {
	if kind, ok := tagKinds[t]; ok {
		return kind
	}
	return KindField
}

// ValidationError accumulates every validation failure found in a single pass.
// Multiple messages recorded for the same tag are all retained.
type ValidationError struct {
	entries map[Tag][]string
	order   []Tag
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.order) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(v.order))
	for _, tag := range v.order {
		parts = append(parts, fmt.Sprintf("%s: %s", tag, strings.Join(v.entries[tag], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Put records a message for tag without overwriting earlier messages.
func (v *ValidationError) Put(tag Tag, message string) {
	if v.entries == nil {
		v.entries = make(map[Tag][]string)
	}
	if _, ok := v.entries[tag]; !ok {
		v.order = append(v.order, tag)
	}
	v.entries[tag] = append(v.entries[tag], message)
}

// HasErrors reports whether any validation failure was recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.order) > 0
}

// IsEmpty reports whether validation passed.
func (v *ValidationError) IsEmpty() bool {
	return !v.HasErrors()
}

// Has reports whether at least one message exists for tag.
func (v *ValidationError) Has(tag Tag) bool {
	if v == nil {
		return false
	}
	_, ok := v.entries[tag]
	return ok
}

// Messages returns the messages recorded for tag in insertion order.
func (v *ValidationError) Messages(tag Tag) []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.entries[tag]))
	copy(out, v.entries[tag])
	return out
}

// Tags returns every tag with at least one message, in first-seen order.
func (v *ValidationError) Tags() []Tag {
	if v == nil {
		return nil
	}
	out := make([]Tag, len(v.order))
	copy(out, v.order)
	return out
}

// Len returns the total number of recorded messages.
func (v *ValidationError) Len() int {
	if v == nil {
		return 0
	}
	n := 0
	for _, msgs := range v.entries {
		n += len(msgs)
	}
	return n
}

// Merge appends every entry from other into the receiver.
func (v *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for _, tag := range other.order {
		for _, msg := range other.entries[tag] {
			v.Put(tag, msg)
		}
	}
}
