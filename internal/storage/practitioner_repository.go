package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/agendaclin/agendaclin/internal/model"
	"github.com/agendaclin/agendaclin/libs/db"
)

type PractitionerRepository struct {
	pool *db.Pool
}

func NewPractitionerRepository(pool *db.Pool) *PractitionerRepository {
	return &PractitionerRepository{pool: pool}
}

const practitionerColumns = `
	p.id::text, p.name, p.license_number, COALESCE(p.phone, ''), COALESCE(p.email, ''),
	p.specialty_id::text, COALESCE(s.name, ''), p.active, p.created_at`

func (r *PractitionerRepository) Create(ctx context.Context, p *model.Practitioner) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO practitioners (id, name, license_number, phone, email, specialty_id, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, p.ID, p.Name, p.LicenseNumber, p.Phone, p.Email, p.SpecialtyID, p.Active).
		Scan(&p.CreatedAt)
}

func (r *PractitionerRepository) GetByID(ctx context.Context, id string) (*model.Practitioner, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+practitionerColumns+`
		FROM practitioners p
		LEFT JOIN specialties s ON s.id = p.specialty_id
		WHERE p.id = $1
	`, id)
	return scanPractitioner(row)
}

// ListActive resolves the candidate set for slot generation: active
// practitioners, optionally narrowed to one id and/or one specialty.
// Ordering is stable so repeated listings yield identical sequences.
func (r *PractitionerRepository) ListActive(ctx context.Context, practitionerID, specialtyID string) ([]model.Practitioner, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+practitionerColumns+`
		FROM practitioners p
		LEFT JOIN specialties s ON s.id = p.specialty_id
		WHERE p.active
			AND ($1 = '' OR p.id::text = $1)
			AND ($2 = '' OR p.specialty_id::text = $2)
		ORDER BY p.name ASC, p.id ASC
	`, practitionerID, specialtyID)
	if err != nil {
		return nil, err
	}
	return collectPractitioners(rows)
}

func (r *PractitionerRepository) List(ctx context.Context, specialtyID string, includeInactive bool) ([]model.Practitioner, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+practitionerColumns+`
		FROM practitioners p
		LEFT JOIN specialties s ON s.id = p.specialty_id
		WHERE ($1 = '' OR p.specialty_id::text = $1)
			AND ($2 OR p.active)
		ORDER BY p.name ASC, p.id ASC
	`, specialtyID, includeInactive)
	if err != nil {
		return nil, err
	}
	return collectPractitioners(rows)
}

func (r *PractitionerRepository) ListSpecialties(ctx context.Context) ([]model.Specialty, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, COALESCE(description, ''), active
		FROM specialties
		WHERE active
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specialties []model.Specialty
	for rows.Next() {
		var s model.Specialty
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Active); err != nil {
			return nil, err
		}
		specialties = append(specialties, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return specialties, nil
}

// -- Availability windows --

func (r *PractitionerRepository) CreateWindow(ctx context.Context, w *model.AvailabilityWindow) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_windows (id, practitioner_id, weekday, start_time, end_time, active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, w.ID, w.PractitionerID, int(w.Weekday), clockToTime(w.Start), clockToTime(w.End), w.Active)
	return err
}

// WindowFor returns the first active window for the weekday, or nil when the
// practitioner does not attend that day. When several windows exist for the
// same weekday only the oldest is consulted.
func (r *PractitionerRepository) WindowFor(ctx context.Context, practitionerID string, weekday time.Weekday) (*model.AvailabilityWindow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id::text, practitioner_id::text, weekday, start_time, end_time, active
		FROM availability_windows
		WHERE practitioner_id = $1 AND weekday = $2 AND active
		ORDER BY created_at ASC
		LIMIT 1
	`, practitionerID, int(weekday))
	w, err := scanWindow(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

// WindowsFor returns all active windows for the practitioner ordered by
// weekday then age, so the first entry per weekday is the one WindowFor
// would pick.
func (r *PractitionerRepository) WindowsFor(ctx context.Context, practitionerID string) ([]model.AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, practitioner_id::text, weekday, start_time, end_time, active
		FROM availability_windows
		WHERE practitioner_id = $1 AND active
		ORDER BY weekday ASC, created_at ASC
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []model.AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, *w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return windows, nil
}

func scanPractitioner(row pgx.Row) (*model.Practitioner, error) {
	var p model.Practitioner
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.LicenseNumber,
		&p.Phone,
		&p.Email,
		&p.SpecialtyID,
		&p.SpecialtyName,
		&p.Active,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPractitioners(rows pgx.Rows) ([]model.Practitioner, error) {
	defer rows.Close()
	var practitioners []model.Practitioner
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, err
		}
		practitioners = append(practitioners, *p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return practitioners, nil
}

func scanWindow(row pgx.Row) (*model.AvailabilityWindow, error) {
	var w model.AvailabilityWindow
	var weekday int
	var start, end pgtype.Time
	err := row.Scan(&w.ID, &w.PractitionerID, &weekday, &start, &end, &w.Active)
	if err != nil {
		return nil, err
	}
	w.Weekday = time.Weekday(weekday)
	w.Start = timeToClock(start)
	w.End = timeToClock(end)
	return &w, nil
}

func clockToTime(d time.Duration) pgtype.Time {
	return pgtype.Time{Microseconds: d.Microseconds(), Valid: true}
}

func timeToClock(t pgtype.Time) time.Duration {
	return time.Duration(t.Microseconds) * time.Microsecond
}
