package booking

import "errors"

var (
	// ErrNotFound means the referenced appointment does not exist.
	ErrNotFound = errors.New("appointment not found")

	// ErrSlotUnavailable is the single outward signal for every eligibility
	// failure and for detected-and-compensated races. The specific cause is
	// logged internally but deliberately not exposed to callers.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrInvalidInput means a required field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition means the appointment's current status does not
	// allow the requested operation.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// denyReason is the structured internal cause behind ErrSlotUnavailable.
type denyReason int

const (
	denyNone denyReason = iota
	denyPractitionerUnknown
	denyPractitionerInactive
	denyStartInPast
	denyTooSoon
	denyTooFar
	denyNoWindow
	denyOutsideWindow
	denyConflict
)

func (d denyReason) String() string {
	switch d {
	case denyNone:
		return "none"
	case denyPractitionerUnknown:
		return "practitioner_unknown"
	case denyPractitionerInactive:
		return "practitioner_inactive"
	case denyStartInPast:
		return "start_in_past"
	case denyTooSoon:
		return "below_min_advance"
	case denyTooFar:
		return "beyond_max_advance"
	case denyNoWindow:
		return "no_window_for_weekday"
	case denyOutsideWindow:
		return "outside_window"
	case denyConflict:
		return "time_conflict"
	}
	return "unknown"
}
