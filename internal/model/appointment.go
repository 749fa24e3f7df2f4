package model

import "time"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusCompleted   Status = "completed"
	StatusNoShow      Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCancelled, StatusRescheduled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether no further operation may move the appointment.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Blocking reports whether the appointment occupies its time slot for
// conflict purposes. Only scheduled and confirmed appointments block.
func (s Status) Blocking() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

type Appointment struct {
	ID              string
	PatientID       string
	PractitionerID  string
	StartTime       time.Time
	DurationMinutes int
	Status          Status
	Notes           string
	CancelReason    string
	ConfirmedAt     *time.Time
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a *Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(a.Duration())
}
