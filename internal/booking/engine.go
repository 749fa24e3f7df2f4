package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agendaclin/agendaclin/internal/model"
	"github.com/agendaclin/agendaclin/internal/storage"
)

// AppointmentStore is the persistence surface the engine books against.
// Every method commits independently; the create flow relies on that to run
// its validate → commit → re-validate → compensate sequence.
type AppointmentStore interface {
	Insert(ctx context.Context, a *model.Appointment) error
	GetByID(ctx context.Context, id string) (*model.Appointment, error)
	Update(ctx context.Context, a *model.Appointment) error
	Delete(ctx context.Context, id string) error
	ListBlocking(ctx context.Context, practitionerID string, before time.Time) ([]model.Appointment, error)
	ListBlockingInRange(ctx context.Context, practitionerID string, from, to time.Time) ([]model.Appointment, error)
}

// Directory is the read-only practitioner lookup.
type Directory interface {
	GetByID(ctx context.Context, id string) (*model.Practitioner, error)
	ListActive(ctx context.Context, practitionerID, specialtyID string) ([]model.Practitioner, error)
}

// Calendar is the read-only recurring-availability lookup.
type Calendar interface {
	WindowFor(ctx context.Context, practitionerID string, weekday time.Weekday) (*model.AvailabilityWindow, error)
	WindowsFor(ctx context.Context, practitionerID string) ([]model.AvailabilityWindow, error)
}

// Policy carries the booking-horizon and slot-density configuration. It is
// injected at construction so tests can vary it freely.
type Policy struct {
	MinAdvance      time.Duration
	MaxAdvance      time.Duration
	DefaultDuration time.Duration
	SlotInterval    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MinAdvance:      24 * time.Hour,
		MaxAdvance:      90 * 24 * time.Hour,
		DefaultDuration: 30 * time.Minute,
		SlotInterval:    30 * time.Minute,
	}
}

type Engine struct {
	appointments AppointmentStore
	directory    Directory
	calendar     Calendar
	policy       Policy
	logger       *slog.Logger
	loc          *time.Location
	now          func() time.Time
}

// Option adjusts engine construction; only tests need one today.
type Option func(*Engine)

// WithClock replaces the wall clock, pinning "now" in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(appointments AppointmentStore, directory Directory, calendar Calendar, policy Policy, logger *slog.Logger, loc *time.Location, opts ...Option) *Engine {
	if loc == nil {
		loc = time.Local
	}
	e := &Engine{
		appointments: appointments,
		directory:    directory,
		calendar:     calendar,
		policy:       policy,
		logger:       logger,
		loc:          loc,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// allowedTransitions is the explicit state machine. cancelled, completed and
// no_show are terminal. completed/no_show are reachable only through direct
// data mutation; no operation sets them.
var allowedTransitions = map[model.Status]map[model.Status]bool{
	model.StatusScheduled: {
		model.StatusConfirmed:   true,
		model.StatusCancelled:   true,
		model.StatusRescheduled: true,
		model.StatusCompleted:   true,
		model.StatusNoShow:      true,
	},
	model.StatusConfirmed: {
		model.StatusCancelled: true,
		model.StatusCompleted: true,
		model.StatusNoShow:    true,
	},
	model.StatusRescheduled: {
		model.StatusConfirmed:   true,
		model.StatusCancelled:   true,
		model.StatusRescheduled: true,
		model.StatusCompleted:   true,
		model.StatusNoShow:      true,
	},
}

func canTransition(from, to model.Status) bool {
	return allowedTransitions[from][to]
}

type CreateRequest struct {
	PatientID       string
	PractitionerID  string
	Start           time.Time
	DurationMinutes int
	Notes           string
}

// Create books a new appointment. Race safety is a double check: validate,
// commit, re-validate excluding the fresh row, and delete the row if a
// concurrent booking slipped in between. A unique violation on insert is the
// storage-level second defense and is authoritative on its own.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*model.Appointment, error) {
	if req.PatientID == "" || req.PractitionerID == "" || req.Start.IsZero() {
		return nil, ErrInvalidInput
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = int(e.policy.DefaultDuration / time.Minute)
	}

	deny, err := e.checkEligibility(ctx, req.PractitionerID, req.Start, time.Duration(duration)*time.Minute, "")
	if err != nil {
		return nil, err
	}
	if deny != denyNone {
		e.logger.Warn("booking denied",
			"reason", deny.String(),
			"practitioner_id", req.PractitionerID,
			"patient_id", req.PatientID,
			"start", req.Start,
		)
		return nil, ErrSlotUnavailable
	}

	appt := &model.Appointment{
		ID:              uuid.NewString(),
		PatientID:       req.PatientID,
		PractitionerID:  req.PractitionerID,
		StartTime:       req.Start,
		DurationMinutes: duration,
		Status:          model.StatusScheduled,
		Notes:           strings.TrimSpace(req.Notes),
	}

	if err := e.appointments.Insert(ctx, appt); err != nil {
		if storage.IsUniqueViolation(err) {
			// The constraint already decided; re-validate once so the log
			// records whether the slot still looks taken.
			deny, verr := e.checkEligibility(ctx, req.PractitionerID, req.Start, appt.Duration(), "")
			e.logger.Warn("booking rejected by storage constraint",
				"practitioner_id", req.PractitionerID,
				"start", req.Start,
				"revalidation", deny.String(),
				"revalidation_err", verr,
			)
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	// Re-validate excluding the row just committed. A failure now means a
	// concurrent booking won the slot and this row is the duplicate.
	deny, err = e.checkEligibility(ctx, req.PractitionerID, req.Start, appt.Duration(), appt.ID)
	if err != nil || deny != denyNone {
		if derr := e.appointments.Delete(ctx, appt.ID); derr != nil {
			e.logger.Error("failed to remove duplicate appointment",
				"appointment_id", appt.ID, "err", derr)
		}
		if err != nil {
			return nil, err
		}
		e.logger.Warn("concurrent booking detected after commit",
			"reason", deny.String(),
			"appointment_id", appt.ID,
			"practitioner_id", req.PractitionerID,
			"start", req.Start,
		)
		return nil, ErrSlotUnavailable
	}

	e.logger.Info("appointment created",
		"appointment_id", appt.ID,
		"practitioner_id", appt.PractitionerID,
		"patient_id", appt.PatientID,
		"start", appt.StartTime,
	)
	return appt, nil
}

// Reschedule moves the existing row to a new start and marks it rescheduled.
// The row is mutated in place; no new appointment is created. Unlike Create
// there is no post-commit re-validation.
func (e *Engine) Reschedule(ctx context.Context, appointmentID string, newStart time.Time, reason string) (*model.Appointment, error) {
	if appointmentID == "" || newStart.IsZero() {
		return nil, ErrInvalidInput
	}
	appt, err := e.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !canTransition(appt.Status, model.StatusRescheduled) {
		return nil, ErrInvalidTransition
	}

	deny, err := e.checkEligibility(ctx, appt.PractitionerID, newStart, appt.Duration(), "")
	if err != nil {
		return nil, err
	}
	if deny != denyNone {
		e.logger.Warn("reschedule denied",
			"reason", deny.String(),
			"appointment_id", appt.ID,
			"new_start", newStart,
		)
		return nil, ErrSlotUnavailable
	}

	previous := appt.StartTime
	appt.StartTime = newStart
	appt.Status = model.StatusRescheduled
	if reason != "" {
		appt.Notes = strings.TrimSpace(appt.Notes + "\nRescheduled: " + reason)
	}
	if err := e.appointments.Update(ctx, appt); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	e.logger.Info("appointment rescheduled",
		"appointment_id", appt.ID,
		"previous_start", previous,
		"new_start", newStart,
	)
	return appt, nil
}

// Cancel marks the appointment cancelled with the given reason. Cancelling an
// already-cancelled appointment is a no-op returning the row unchanged.
func (e *Engine) Cancel(ctx context.Context, appointmentID, reason string) (*model.Appointment, error) {
	if appointmentID == "" || reason == "" {
		return nil, ErrInvalidInput
	}
	appt, err := e.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status == model.StatusCancelled {
		return appt, nil
	}
	if !canTransition(appt.Status, model.StatusCancelled) {
		return nil, ErrInvalidTransition
	}

	now := e.now()
	appt.Status = model.StatusCancelled
	appt.CancelReason = reason
	appt.CancelledAt = &now
	if err := e.appointments.Update(ctx, appt); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	e.logger.Info("appointment cancelled", "appointment_id", appt.ID)
	return appt, nil
}

// Confirm marks the appointment confirmed. Confirming an already-confirmed
// appointment is a no-op returning the row unchanged.
func (e *Engine) Confirm(ctx context.Context, appointmentID string) (*model.Appointment, error) {
	if appointmentID == "" {
		return nil, ErrInvalidInput
	}
	appt, err := e.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status == model.StatusConfirmed {
		return appt, nil
	}
	if !canTransition(appt.Status, model.StatusConfirmed) {
		return nil, ErrInvalidTransition
	}

	now := e.now()
	appt.Status = model.StatusConfirmed
	appt.ConfirmedAt = &now
	if err := e.appointments.Update(ctx, appt); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	e.logger.Info("appointment confirmed", "appointment_id", appt.ID)
	return appt, nil
}

func (e *Engine) Get(ctx context.Context, appointmentID string) (*model.Appointment, error) {
	if appointmentID == "" {
		return nil, ErrInvalidInput
	}
	return e.load(ctx, appointmentID)
}

func (e *Engine) load(ctx context.Context, appointmentID string) (*model.Appointment, error) {
	appt, err := e.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}
