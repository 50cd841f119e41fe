package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/scheduling"
)

// SQLSTATE raised by the appointments_no_overlap exclusion constraint.
const exclusionViolation = "23P01"

const appointmentColumns = `id, patient_id, doctor_id, clinic_id, appointment_date, appointment_time, duration,
	status, reason, notes, cancellation_reason, created_by, cancelled_by, is_active, created_at, updated_at`

var appointmentSortColumns = map[string]string{
	"appointment_date": "appointment_date",
	"appointment_time": "appointment_time",
	"created_at":       "created_at",
	"status":           "status",
}

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db dbtx
}

type PgRepository struct {
	queries
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{queries: queries{db: pool}, pool: pool}
}

// Helpers

func clockParam(c scheduling.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: c.Duration().Microseconds(), Valid: true}
}

func clockValue(t pgtype.Time) scheduling.Clock {
	return scheduling.ClockFromDuration(time.Duration(t.Microseconds) * time.Microsecond)
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var at pgtype.Time

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ClinicID,
		&a.Date,
		&at,
		&a.Duration,
		&a.Status,
		&a.Reason,
		&a.Notes,
		&a.CancellationReason,
		&a.CreatedBy,
		&a.CancelledBy,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Time = clockValue(at)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
		return fmt.Errorf("%w: %s", ErrConcurrencyConflict, pgErr.ConstraintName)
	}
	return err
}

// Ledger

func (q *queries) OccupiedIntervals(ctx context.Context, doctorID uuid.UUID, date time.Time, exclude *uuid.UUID) ([]scheduling.Interval, error) {
	rows, err := q.db.Query(ctx, `
		SELECT appointment_time, duration
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status <> 'cancelled'
		  AND is_active
		  AND ($3::uuid IS NULL OR id <> $3)
		ORDER BY appointment_time
	`, doctorID, date, exclude)
	if err != nil {
		return nil, fmt.Errorf("load occupied intervals: %w", err)
	}
	defer rows.Close()

	var result []scheduling.Interval
	for rows.Next() {
		var at pgtype.Time
		var duration int
		if err := rows.Scan(&at, &duration); err != nil {
			return nil, err
		}
		result = append(result, scheduling.IntervalOf(clockValue(at), duration))
	}

	return result, rows.Err()
}

func (q *queries) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND is_active
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (q *queries) InsertAppointment(ctx context.Context, a *Appointment) error {
	row := q.db.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, clinic_id, appointment_date, appointment_time, duration,
			status, reason, notes, created_by, is_active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, true, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.PatientID, a.DoctorID, a.ClinicID, a.Date, clockParam(a.Time), a.Duration,
		a.Status, a.Reason, a.Notes, a.CreatedBy)

	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("insert appointment: %w", mapWriteError(err))
	}
	a.IsActive = true
	return nil
}

func (q *queries) UpdateAppointment(ctx context.Context, a *Appointment) error {
	row := q.db.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date = $2,
		    appointment_time = $3,
		    status = $4,
		    notes = $5,
		    cancellation_reason = $6,
		    cancelled_by = $7,
		    is_active = $8,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.Date, clockParam(a.Time), a.Status, a.Notes, a.CancellationReason, a.CancelledBy, a.IsActive)

	if err := row.Scan(&a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return fmt.Errorf("update appointment: %w", mapWriteError(err))
	}
	return nil
}

func (q *queries) AppendHistory(ctx context.Context, h *HistoryEntry) error {
	row := q.db.QueryRow(ctx, `
		INSERT INTO appointment_history (appointment_id, previous_status, new_status, reason, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at
	`, h.AppointmentID, h.PreviousStatus, h.NewStatus, h.Reason, h.ChangedBy)

	if err := row.Scan(&h.ID, &h.CreatedAt); err != nil {
		return fmt.Errorf("insert appointment history: %w", err)
	}
	return nil
}

// Reads

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND is_active
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, previous_status, new_status, reason, changed_by, created_at
		FROM appointment_history
		WHERE appointment_id = $1
		ORDER BY created_at, id
	`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list appointment history: %w", err)
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.AppointmentID, &h.PreviousStatus, &h.NewStatus, &h.Reason, &h.ChangedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, h)
	}

	return result, rows.Err()
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, int, error) {
	limit, offset := db.Pagination(f.Page, f.Limit)

	q := db.NewQuery(`SELECT `+appointmentColumns+` FROM appointments`).
		Where("is_active").
		WhereIf(f.Status != "", "status = ?", f.Status).
		WhereIf(len(f.Statuses) > 0, "status = ANY(?)", statusStrings(f.Statuses)).
		WhereIf(f.DoctorID != nil, "doctor_id = ?", f.DoctorID).
		WhereIf(f.PatientID != nil, "patient_id = ?", f.PatientID).
		WhereIf(f.ClinicID != nil, "clinic_id = ?", f.ClinicID).
		WhereIf(f.DateFrom != nil, "appointment_date >= ?", f.DateFrom).
		WhereIf(f.DateTo != nil, "appointment_date <= ?", f.DateTo)

	countSQL, countArgs := q.BuildCount()
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	col := db.SortColumn(f.OrderBy, appointmentSortColumns, "appointment_date")
	dir := db.SortDirection(f.Dir)
	order := col + " " + dir
	if col == "appointment_date" {
		order += ", appointment_time " + dir
	}

	sql, args := q.OrderBy(order).Page(limit, offset).Build()
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	result, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *PgRepository) Stats(ctx context.Context, f StatsFilter, today time.Time) (*Stats, error) {
	q := db.NewQuery(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'scheduled'),
		       COUNT(*) FILTER (WHERE status = 'confirmed'),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'cancelled'),
		       COUNT(*) FILTER (WHERE status = 'no_show'),
		       COUNT(*) FILTER (WHERE appointment_date = ?),
		       COUNT(*) FILTER (WHERE appointment_date > ? AND status IN ('scheduled', 'confirmed'))
		FROM appointments`, today, today).
		Where("is_active").
		Where("appointment_date >= ?", f.Period.Since(today)).
		WhereIf(f.ClinicID != nil, "clinic_id = ?", f.ClinicID).
		WhereIf(f.DoctorID != nil, "doctor_id = ?", f.DoctorID)

	sql, args := q.Build()

	var s Stats
	err := r.pool.QueryRow(ctx, sql, args...).Scan(
		&s.Total,
		&s.Scheduled,
		&s.Confirmed,
		&s.Completed,
		&s.Cancelled,
		&s.NoShow,
		&s.Today,
		&s.Upcoming,
	)
	if err != nil {
		return nil, fmt.Errorf("appointment stats: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) ClinicStats(ctx context.Context, clinicID uuid.UUID, today time.Time) (*ClinicStats, error) {
	s := ClinicStats{ClinicID: clinicID}
	err := r.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM doctors WHERE clinic_id = $1 AND is_active),
		       COUNT(DISTINCT patient_id),
		       COUNT(*) FILTER (WHERE appointment_date = $2),
		       COUNT(*) FILTER (WHERE appointment_date >= $2 AND status IN ('scheduled', 'confirmed')),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM appointments
		WHERE clinic_id = $1 AND is_active
	`, clinicID, today).Scan(
		&s.Doctors,
		&s.Patients,
		&s.Today,
		&s.Upcoming,
		&s.Completed,
		&s.Cancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("clinic stats: %w", err)
	}
	return &s, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func (r *PgRepository) ListConfirmedThrough(ctx context.Context, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
		  AND is_active
		  AND appointment_date <= $1
		ORDER BY appointment_date, appointment_time
	`, date)
	if err != nil {
		return nil, fmt.Errorf("list confirmed appointments: %w", err)
	}
	return collectAppointments(rows)
}

// Schedule

func scanEntries(rows pgx.Rows) ([]scheduling.Entry, error) {
	defer rows.Close()

	var result []scheduling.Entry
	for rows.Next() {
		var e scheduling.Entry
		var start, end pgtype.Time
		if err := rows.Scan(&e.DoctorID, &e.DayOfWeek, &start, &end, &e.Active); err != nil {
			return nil, err
		}
		e.Start = clockValue(start)
		e.End = clockValue(end)
		result = append(result, e)
	}

	return result, rows.Err()
}

func (r *PgRepository) ScheduleEntries(ctx context.Context, doctorID uuid.UUID, weekday scheduling.Weekday) ([]scheduling.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT doctor_id, day_of_week, start_time, end_time, is_active
		FROM doctor_schedules
		WHERE doctor_id = $1 AND day_of_week = $2 AND is_active
		ORDER BY start_time, id
	`, doctorID, int(weekday))
	if err != nil {
		return nil, fmt.Errorf("load schedule entries: %w", err)
	}
	return scanEntries(rows)
}

func (r *PgRepository) ListSchedule(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT doctor_id, day_of_week, start_time, end_time, is_active
		FROM doctor_schedules
		WHERE doctor_id = $1
		ORDER BY day_of_week, start_time, id
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}
	return scanEntries(rows)
}

// ReplaceSchedule swaps the doctor's whole weekly schedule atomically.
func (r *PgRepository) ReplaceSchedule(ctx context.Context, doctorID uuid.UUID, entries []scheduling.Entry) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM doctor_schedules WHERE doctor_id = $1`, doctorID); err != nil {
			return fmt.Errorf("clear schedule: %w", err)
		}

		if len(entries) == 0 {
			return nil
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"doctor_schedules"},
			[]string{"doctor_id", "day_of_week", "start_time", "end_time", "is_active"},
			pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
				e := entries[i]
				return []any{doctorID, int16(e.DayOfWeek), clockParam(e.Start), clockParam(e.End), e.Active}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("insert schedule: %w", err)
		}
		return nil
	})
}

// Transactions

func (r *PgRepository) WithDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(Ledger) error) error {
	key := doctorID.String() + ":" + date.Format(scheduling.DateLayout)

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("lock doctor day: %w", err)
		}
		return fn(&queries{db: tx})
	})
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(Ledger) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&queries{db: tx})
	})
}
