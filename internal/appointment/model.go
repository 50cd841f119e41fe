package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/scheduling"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	DoctorID           uuid.UUID
	ClinicID           uuid.UUID
	Date               time.Time
	Time               scheduling.Clock
	Duration           int
	Status             Status
	Reason             string
	Notes              string
	CancellationReason *string
	CreatedBy          *uuid.UUID
	CancelledBy        *uuid.UUID
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Interval is the [start, start+duration) range the appointment occupies on its date.
func (a *Appointment) Interval() scheduling.Interval {
	return scheduling.IntervalOf(a.Time, a.Duration)
}

// EndsAt is the wall-clock end of the appointment.
func (a *Appointment) EndsAt() time.Time {
	return scheduling.At(a.Date, a.Time.Add(a.Duration))
}

// HistoryEntry is one row of the append-only status audit trail.
// PreviousStatus is nil for the entry written at creation.
type HistoryEntry struct {
	ID             int64
	AppointmentID  uuid.UUID
	PreviousStatus *Status
	NewStatus      Status
	Reason         string
	ChangedBy      *uuid.UUID
	CreatedAt      time.Time
}

type AppointmentDetail struct {
	Appointment
	History []HistoryEntry
}

type ListFilter struct {
	Status    Status
	Statuses  []Status // any of, set internally
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	ClinicID  *uuid.UUID
	DateFrom  *time.Time
	DateTo    *time.Time
	OrderBy   string // appointment_date, appointment_time, created_at, status
	Dir       string // asc, desc
	Page      int
	Limit     int
}

type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// Since returns the first date covered by the period ending on today.
func (p Period) Since(today time.Time) time.Time {
	switch p {
	case PeriodToday:
		return today
	case PeriodWeek:
		return today.AddDate(0, 0, -7)
	case PeriodYear:
		return today.AddDate(-1, 0, 0)
	default:
		return today.AddDate(0, -1, 0)
	}
}

type StatsFilter struct {
	Period   Period
	ClinicID *uuid.UUID
	DoctorID *uuid.UUID
}

type Stats struct {
	Total     int `json:"total_appointments"`
	Scheduled int `json:"scheduled"`
	Confirmed int `json:"confirmed"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	NoShow    int `json:"no_show"`
	Today     int `json:"today"`
	Upcoming  int `json:"upcoming"`
}

// ClinicStats are all-time counts for one clinic.
type ClinicStats struct {
	ClinicID  uuid.UUID `json:"clinic_id"`
	Doctors   int       `json:"total_doctors"`
	Patients  int       `json:"total_patients"`
	Today     int       `json:"appointments_today"`
	Upcoming  int       `json:"upcoming_appointments"`
	Completed int       `json:"completed_appointments"`
	Cancelled int       `json:"cancelled_appointments"`
}

type Availability struct {
	DoctorID uuid.UUID
	Date     time.Time
	Duration int
	Slots    []scheduling.Slot
}
