package outbox

import (
	"encoding/json"
	"time"

	"github.com/agendaclin/agendaclin/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventAppointmentBooked      = "clinic.appointment.booked.v1"
	EventAppointmentConfirmed   = "clinic.appointment.confirmed.v1"
	EventAppointmentCancelled   = "clinic.appointment.cancelled.v1"
	EventAppointmentRescheduled = "clinic.appointment.rescheduled.v1"
)

type appointmentPayload struct {
	AppointmentID   string     `json:"appointment_id"`
	PatientID       string     `json:"patient_id"`
	PractitionerID  string     `json:"practitioner_id"`
	StartTime       time.Time  `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}

// AppointmentEvent snapshots the appointment into an outbox envelope for the
// given event type.
func AppointmentEvent(eventType string, a *model.Appointment) (Event, error) {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID:   a.ID,
		PatientID:       a.PatientID,
		PractitionerID:  a.PractitionerID,
		StartTime:       a.StartTime,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		CancelReason:    a.CancelReason,
		ConfirmedAt:     a.ConfirmedAt,
		CancelledAt:     a.CancelledAt,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
