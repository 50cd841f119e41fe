package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const (
	clinicColumns  = `id, name, address, phone, email, city, state, postal_code, opening_hours, is_active, created_at, updated_at`
	doctorColumns  = `id, user_id, clinic_id, name, specialty, license_number, consultation_duration, is_active, created_at, updated_at`
	patientColumns = `id, user_id, name, email, phone, birth_date, is_active, created_at, updated_at`
)

var clinicSortColumns = map[string]string{
	"name":       "name",
	"city":       "city",
	"created_at": "created_at",
}

var doctorSortColumns = map[string]string{
	"name":                  "name",
	"specialty":             "specialty",
	"consultation_duration": "consultation_duration",
	"created_at":            "created_at",
}

// Helpers

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Address,
		&c.Phone,
		&c.Email,
		&c.City,
		&c.State,
		&c.PostalCode,
		&c.OpeningHours,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}
	return &c, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.ClinicID,
		&d.Name,
		&d.Specialty,
		&d.LicenseNumber,
		&d.ConsultationDuration,
		&d.IsActive,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.BirthDate,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Lookups only return active records; inactive ones read as not found.

func (r *PgRepository) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clinicColumns+` FROM clinics WHERE id = $1 AND is_active`, id)
	return scanClinic(row)
}

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1 AND is_active`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1 AND is_active`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE user_id = $1 AND is_active
		ORDER BY created_at
		LIMIT 1
	`, userID)
	return scanPatient(row)
}

func (r *PgRepository) ListClinics(ctx context.Context, f ClinicFilter) ([]Clinic, int, error) {
	limit, offset := db.Pagination(f.Page, f.Limit)

	q := db.NewQuery(`SELECT `+clinicColumns+` FROM clinics`).
		Where("is_active").
		WhereIf(f.City != "", "city = ?", f.City).
		WhereIf(f.Search != "", "name ILIKE ?", "%"+f.Search+"%")

	countSQL, countArgs := q.BuildCount()
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clinics: %w", err)
	}

	order := db.SortColumn(f.OrderBy, clinicSortColumns, "name") + " " + db.SortDirection(defaultDir(f.Dir, "asc"))
	sql, args := q.OrderBy(order).Page(limit, offset).Build()

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list clinics: %w", err)
	}
	defer rows.Close()

	var result []Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (r *PgRepository) ListDoctorsByClinic(ctx context.Context, clinicID uuid.UUID) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE clinic_id = $1 AND is_active
		ORDER BY name
	`, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, int, error) {
	limit, offset := db.Pagination(f.Page, f.Limit)

	search := "%" + f.Search + "%"
	q := db.NewQuery(`SELECT `+doctorColumns+` FROM doctors`).
		Where("is_active").
		WhereIf(f.ClinicID != nil, "clinic_id = ?", f.ClinicID).
		WhereIf(f.Specialty != "", "specialty ILIKE ?", f.Specialty).
		WhereIf(f.Search != "", "(name ILIKE ? OR license_number ILIKE ?)", search, search)

	countSQL, countArgs := q.BuildCount()
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}

	order := db.SortColumn(f.OrderBy, doctorSortColumns, "name") + " " + db.SortDirection(defaultDir(f.Dir, "asc"))
	sql, args := q.OrderBy(order).Page(limit, offset).Build()

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (r *PgRepository) ListSpecialties(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, "specialties", `
		SELECT DISTINCT specialty FROM doctors
		WHERE is_active AND specialty <> ''
		ORDER BY specialty
	`)
}

func (r *PgRepository) ListCities(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, "cities", `
		SELECT DISTINCT city FROM clinics
		WHERE is_active AND city <> ''
		ORDER BY city
	`)
}

func (r *PgRepository) distinct(ctx context.Context, what, sql string) ([]string, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	return values, nil
}

func defaultDir(dir, def string) string {
	if dir == "" {
		return def
	}
	return dir
}
