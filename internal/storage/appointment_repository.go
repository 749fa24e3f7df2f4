package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agendaclin/agendaclin/internal/model"
	"github.com/agendaclin/agendaclin/libs/db"
)

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const appointmentColumns = `
	id::text, patient_id::text, practitioner_id::text, start_time, duration_minutes,
	status, COALESCE(notes, ''), COALESCE(cancel_reason, ''),
	confirmed_at, cancelled_at, created_at, updated_at`

// Insert commits the appointment row immediately. A concurrent booking of the
// same practitioner/start surfaces here as a unique violation (IsUniqueViolation).
func (r *AppointmentRepository) Insert(ctx context.Context, a *model.Appointment) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, practitioner_id, start_time, duration_minutes, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, a.ID, a.PatientID, a.PractitionerID, a.StartTime, a.DurationMinutes, a.Status, a.Notes).
		Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (*model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// Update persists every mutable field of the appointment.
func (r *AppointmentRepository) Update(ctx context.Context, a *model.Appointment) error {
	return r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2,
			status = $3,
			notes = $4,
			cancel_reason = $5,
			confirmed_at = $6,
			cancelled_at = $7,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.StartTime, a.Status, a.Notes, a.CancelReason, a.ConfirmedAt, a.CancelledAt).
		Scan(&a.UpdatedAt)
}

// Delete removes the row outright. Used only by the create compensation path;
// regular cancellation keeps the row and flips its status.
func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	return err
}

// ListBlocking returns scheduled/confirmed appointments for the practitioner
// starting before the given instant, ordered chronologically.
func (r *AppointmentRepository) ListBlocking(ctx context.Context, practitionerID string, before time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
			AND status IN ('scheduled', 'confirmed')
			AND start_time < $2
		ORDER BY start_time ASC
	`, practitionerID, before)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// ListBlockingInRange returns scheduled/confirmed appointments whose interval
// intersects [from, to). Slot generation loads a practitioner's whole range
// once instead of re-querying per candidate.
func (r *AppointmentRepository) ListBlockingInRange(ctx context.Context, practitionerID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
			AND status IN ('scheduled', 'confirmed')
			AND start_time < $3
			AND start_time + make_interval(mins => duration_minutes) > $2
		ORDER BY start_time ASC
	`, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

type AppointmentFilter struct {
	PractitionerID string
	PatientID      string
	Status         model.Status
	Offset         int
	Limit          int
}

func (r *AppointmentRepository) List(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR practitioner_id::text = $1)
			AND ($2 = '' OR patient_id::text = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY start_time ASC
		OFFSET $4 LIMIT $5
	`, f.PractitionerID, f.PatientID, string(f.Status), f.Offset, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PractitionerID,
		&a.StartTime,
		&a.DurationMinutes,
		&a.Status,
		&a.Notes,
		&a.CancelReason,
		&a.ConfirmedAt,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
