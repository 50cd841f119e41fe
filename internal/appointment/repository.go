package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/scheduling"
)

// Ledger is the part of the store that reads and writes appointments.
// Inside WithDoctorDay or WithTx every call shares one transaction.
type Ledger interface {
	// OccupiedIntervals returns the intervals of active, non-cancelled
	// appointments of the doctor on date, skipping exclude when set.
	OccupiedIntervals(ctx context.Context, doctorID uuid.UUID, date time.Time, exclude *uuid.UUID) ([]scheduling.Interval, error)

	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error
	AppendHistory(ctx context.Context, h *HistoryEntry) error
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	Ledger

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, int, error)
	Stats(ctx context.Context, f StatsFilter, today time.Time) (*Stats, error)
	ClinicStats(ctx context.Context, clinicID uuid.UUID, today time.Time) (*ClinicStats, error)

	// No-show worker
	ListConfirmedThrough(ctx context.Context, date time.Time) ([]Appointment, error)

	// Weekly schedule
	ScheduleEntries(ctx context.Context, doctorID uuid.UUID, weekday scheduling.Weekday) ([]scheduling.Entry, error)
	ListSchedule(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Entry, error)
	ReplaceSchedule(ctx context.Context, doctorID uuid.UUID, entries []scheduling.Entry) error

	// WithDoctorDay runs fn in one transaction that holds the doctor's
	// lock for date until it commits or rolls back.
	WithDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(Ledger) error) error
	WithTx(ctx context.Context, fn func(Ledger) error) error
}

// Directory resolves the entities an appointment refers to.
type Directory interface {
	GetClinic(ctx context.Context, id uuid.UUID) (*directory.Clinic, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
	GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*directory.Patient, error)
}

type SlotCache interface {
	Get(ctx context.Context, doctorID uuid.UUID, date time.Time, duration int) ([]scheduling.Slot, bool, error)
	Set(ctx context.Context, doctorID uuid.UUID, date time.Time, duration int, slots []scheduling.Slot) error
	InvalidateDay(ctx context.Context, doctorID uuid.UUID, date time.Time) error
	InvalidateDoctor(ctx context.Context, doctorID uuid.UUID) error
}
