package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agendaclin/agendaclin/internal/model"
	"github.com/agendaclin/agendaclin/libs/db"
)

type PatientRepository struct {
	pool *db.Pool
}

func NewPatientRepository(pool *db.Pool) *PatientRepository {
	return &PatientRepository{pool: pool}
}

const patientColumns = `
	id::text, name, phone, COALESCE(email, ''), birth_date, created_at`

// Create inserts a patient. Phone numbers are unique; a duplicate surfaces
// as a unique violation.
func (r *PatientRepository) Create(ctx context.Context, p *model.Patient) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, phone, email, birth_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, p.ID, p.Name, p.Phone, p.Email, p.BirthDate).Scan(&p.CreatedAt)
}

func (r *PatientRepository) GetByID(ctx context.Context, id string) (*model.Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

// GetByPhone serves the upstream chat-booking flow, which identifies
// returning patients by phone number.
func (r *PatientRepository) GetByPhone(ctx context.Context, phone string) (*model.Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+patientColumns+`
		FROM patients
		WHERE phone = $1
	`, phone)
	return scanPatient(row)
}

func (r *PatientRepository) List(ctx context.Context, offset, limit int) ([]model.Patient, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+patientColumns+`
		FROM patients
		ORDER BY name ASC, id ASC
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []model.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, *p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return patients, nil
}

func scanPatient(row pgx.Row) (*model.Patient, error) {
	var p model.Patient
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.BirthDate, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
