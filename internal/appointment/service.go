package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
	"github.com/hackgods/clinic-appointment-booking/internal/scheduling"
)

const (
	createdReason = "Appointment created"
	noShowReason  = "Patient did not attend"
)

type Service struct {
	repo      Repository
	directory Directory
	locker    redisclient.Locker
	cache     SlotCache
	cfg       config.Config
	log       *zap.Logger
	now       func() time.Time
}

// NewService wires the orchestrator. cache may be nil, in which case
// availability is always computed from the store.
func NewService(repo Repository, dir Directory, locker redisclient.Locker, cache SlotCache, cfg config.Config, log *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: dir,
		locker:    locker,
		cache:     cache,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

type CreateRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	ClinicID  uuid.UUID
	Date      time.Time
	Time      scheduling.Clock
	Duration  int // minutes, 0 means the doctor's default
	Reason    string
	Notes     string
}

// wallClock drops the zone of t, so it compares with dates and times stored
// without one.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
}

func (s *Service) today() time.Time {
	return scheduling.DateOf(s.now())
}

func (s *Service) resolveDuration(requested int, doctor *directory.Doctor) (int, error) {
	switch {
	case requested < 0:
		return 0, invalid("duration", "must be a positive number of minutes")
	case requested > 0:
		return requested, nil
	case doctor.ConsultationDuration > 0:
		return doctor.ConsultationDuration, nil
	default:
		return s.cfg.DefaultConsultationMinutes, nil
	}
}

// authorizePatient lets staff through and restricts patients to their own record.
func (s *Service) authorizePatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID) error {
	if actor.IsStaff() {
		return nil
	}
	if actor.Role != auth.RolePatient {
		return ErrForbidden
	}

	p, err := s.directory.GetPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("load patient: %w", err)
	}
	if !p.OwnedBy(actor.ID) {
		return ErrForbidden
	}
	return nil
}

func isConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, redisclient.ErrLockNotAcquired)
}

// withDoctorDay runs fn under the Redis lock and the store transaction for
// the doctor's date. A conflict is retried once. If the exclusion constraint
// still rejects the write the slot is reported unavailable; if the lock
// could not be taken in time the caller gets ErrConcurrencyConflict.
func (s *Service) withDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context, l Ledger) error) error {
	run := func() error {
		return s.locker.WithLock(ctx, redisclient.DoctorDayKey(doctorID, date), func(lockCtx context.Context) error {
			return s.repo.WithDoctorDay(lockCtx, doctorID, date, func(l Ledger) error {
				return fn(lockCtx, l)
			})
		})
	}

	err := run()
	if !isConflict(err) {
		return err
	}

	s.log.Warn("booking conflict, retrying",
		zap.String("doctor_id", doctorID.String()),
		zap.String("date", date.Format(scheduling.DateLayout)),
		zap.Error(err),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.LockRetryDelay):
	}

	err = run()
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
	case errors.Is(err, ErrConcurrencyConflict):
		return fmt.Errorf("%w: %w", ErrSlotUnavailable, err)
	}
	return err
}

func (s *Service) invalidateDay(ctx context.Context, doctorID uuid.UUID, date time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateDay(ctx, doctorID, date); err != nil {
		s.log.Warn("failed to invalidate availability cache",
			zap.String("doctor_id", doctorID.String()),
			zap.String("date", date.Format(scheduling.DateLayout)),
			zap.Error(err),
		)
	}
}

// GetAvailability returns the free slots of a doctor on date. duration 0
// means the doctor's consultation length.
func (s *Service) GetAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time, duration int) (*Availability, error) {
	doctor, err := s.directory.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	duration, err = s.resolveDuration(duration, doctor)
	if err != nil {
		return nil, err
	}

	date = scheduling.DateOf(date)
	result := &Availability{DoctorID: doctorID, Date: date, Duration: duration}

	if s.cache != nil {
		slots, ok, err := s.cache.Get(ctx, doctorID, date, duration)
		if err != nil {
			s.log.Warn("availability cache read failed", zap.String("doctor_id", doctorID.String()), zap.Error(err))
		}
		if ok {
			result.Slots = slots
			return result, nil
		}
	}

	entries, err := s.repo.ScheduleEntries(ctx, doctorID, scheduling.WeekdayOf(date))
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	occupied, err := s.repo.OccupiedIntervals(ctx, doctorID, date, nil)
	if err != nil {
		return nil, err
	}

	slots, err := scheduling.ComputeSlots(scheduling.WindowsFor(entries, scheduling.WeekdayOf(date)), occupied, duration)
	if err != nil {
		return nil, err
	}
	result.Slots = slots

	if s.cache != nil {
		if err := s.cache.Set(ctx, doctorID, date, duration, slots); err != nil {
			s.log.Warn("availability cache write failed", zap.String("doctor_id", doctorID.String()), zap.Error(err))
		}
	}

	return result, nil
}

// CreateAppointment books a scheduled appointment once the patient, doctor
// and clinic resolve and the requested time is free.
func (s *Service) CreateAppointment(ctx context.Context, actor auth.Actor, req CreateRequest) (*Appointment, error) {
	if req.Date.IsZero() {
		return nil, invalid("appointment_date", "is required")
	}

	if _, err := s.directory.GetPatient(ctx, req.PatientID); err != nil {
		return nil, err
	}
	doctor, err := s.directory.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.GetClinic(ctx, req.ClinicID); err != nil {
		return nil, err
	}

	if doctor.ClinicID != req.ClinicID {
		return nil, ErrInvalidRelationship
	}

	if err := s.authorizePatient(ctx, actor, req.PatientID); err != nil {
		return nil, err
	}

	duration, err := s.resolveDuration(req.Duration, doctor)
	if err != nil {
		return nil, err
	}
	if req.Time < 0 || req.Time.Add(duration) > scheduling.EndOfDay {
		return nil, invalid("appointment_time", "appointment must end by midnight")
	}

	date := scheduling.DateOf(req.Date)
	appt := &Appointment{
		ID:        uuid.New(),
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		ClinicID:  req.ClinicID,
		Date:      date,
		Time:      req.Time,
		Duration:  duration,
		Status:    StatusScheduled,
		Reason:    req.Reason,
		Notes:     req.Notes,
		CreatedBy: actor.Ref(),
	}

	err = s.withDoctorDay(ctx, req.DoctorID, date, func(ctx context.Context, l Ledger) error {
		occupied, err := l.OccupiedIntervals(ctx, req.DoctorID, date, nil)
		if err != nil {
			return err
		}
		if scheduling.OverlapsAny(appt.Interval(), occupied) {
			return ErrSlotUnavailable
		}

		if err := l.InsertAppointment(ctx, appt); err != nil {
			return err
		}

		return l.AppendHistory(ctx, &HistoryEntry{
			AppointmentID: appt.ID,
			NewStatus:     StatusScheduled,
			Reason:        createdReason,
			ChangedBy:     actor.Ref(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.invalidateDay(ctx, appt.DoctorID, date)

	s.log.Info("appointment created",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("doctor_id", appt.DoctorID.String()),
		zap.String("date", date.Format(scheduling.DateLayout)),
		zap.Stringer("time", appt.Time),
	)

	return appt, nil
}

// RescheduleAppointment moves an appointment to a new date and time on the
// same doctor. Moving to the current date and time is a no-op.
func (s *Service) RescheduleAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID, newDate time.Time, newTime scheduling.Clock) (*Appointment, error) {
	if newDate.IsZero() {
		return nil, invalid("appointment_date", "is required")
	}
	newDate = scheduling.DateOf(newDate)

	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizePatient(ctx, actor, current.PatientID); err != nil {
		return nil, err
	}

	if current.Date.Equal(newDate) && current.Time == newTime {
		return current, nil
	}
	if newTime < 0 || newTime.Add(current.Duration) > scheduling.EndOfDay {
		return nil, invalid("appointment_time", "appointment must end by midnight")
	}

	var updated *Appointment
	err = s.withDoctorDay(ctx, current.DoctorID, newDate, func(ctx context.Context, l Ledger) error {
		a, err := l.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusScheduled && a.Status != StatusConfirmed {
			return fmt.Errorf("reschedule %s appointment: %w", a.Status, ErrInvalidTransition)
		}

		occupied, err := l.OccupiedIntervals(ctx, a.DoctorID, newDate, &a.ID)
		if err != nil {
			return err
		}
		if scheduling.OverlapsAny(scheduling.IntervalOf(newTime, a.Duration), occupied) {
			return ErrSlotUnavailable
		}

		a.Date = newDate
		a.Time = newTime
		if err := l.UpdateAppointment(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reschedule appointment: %w", err)
	}

	s.invalidateDay(ctx, current.DoctorID, current.Date)
	s.invalidateDay(ctx, current.DoctorID, newDate)

	s.log.Info("appointment rescheduled",
		zap.String("appointment_id", id.String()),
		zap.String("date", newDate.Format(scheduling.DateLayout)),
		zap.Stringer("time", newTime),
	)

	return updated, nil
}

// ChangeStatus applies one state machine transition and records it.
// Patients may only cancel their own appointments.
func (s *Service) ChangeStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, change StatusChange) (*Appointment, error) {
	if !change.Target.Valid() {
		return nil, invalid("status", "unknown status %q", change.Target)
	}

	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizePatient(ctx, actor, current.PatientID); err != nil {
		return nil, err
	}
	if !actor.IsStaff() && change.Target != StatusCancelled {
		return nil, ErrForbidden
	}

	apply := func(ctx context.Context, l Ledger) (*Appointment, error) {
		a, err := l.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}

		entry, err := Transition(a, change, actor, s.now())
		if err != nil {
			return nil, err
		}

		// Reopening takes the time back, so it has to be free again.
		if change.Target == StatusScheduled {
			occupied, err := l.OccupiedIntervals(ctx, a.DoctorID, a.Date, &a.ID)
			if err != nil {
				return nil, err
			}
			if scheduling.OverlapsAny(a.Interval(), occupied) {
				return nil, ErrSlotUnavailable
			}
		}

		if err := l.UpdateAppointment(ctx, a); err != nil {
			return nil, err
		}
		if err := l.AppendHistory(ctx, entry); err != nil {
			return nil, err
		}
		return a, nil
	}

	var updated *Appointment
	if change.Target == StatusScheduled {
		err = s.withDoctorDay(ctx, current.DoctorID, current.Date, func(ctx context.Context, l Ledger) error {
			updated, err = apply(ctx, l)
			return err
		})
	} else {
		err = s.repo.WithTx(ctx, func(l Ledger) error {
			updated, err = apply(ctx, l)
			return err
		})
	}
	if err != nil {
		return nil, fmt.Errorf("change appointment status: %w", err)
	}

	s.invalidateDay(ctx, updated.DoctorID, updated.Date)

	s.log.Info("appointment status changed",
		zap.String("appointment_id", id.String()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("actor_role", string(actor.Role)),
	)

	return updated, nil
}

func (s *Service) Confirm(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	return s.ChangeStatus(ctx, actor, id, StatusChange{Target: StatusConfirmed})
}

func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*Appointment, error) {
	return s.ChangeStatus(ctx, actor, id, StatusChange{Target: StatusCancelled, Reason: reason})
}

func (s *Service) Complete(ctx context.Context, actor auth.Actor, id uuid.UUID, notes string) (*Appointment, error) {
	return s.ChangeStatus(ctx, actor, id, StatusChange{Target: StatusCompleted, Notes: notes})
}

// DeleteAppointment soft-deletes an appointment that is not completed.
func (s *Service) DeleteAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if !actor.IsStaff() {
		return ErrForbidden
	}

	var deleted *Appointment
	err := s.repo.WithTx(ctx, func(l Ledger) error {
		a, err := l.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == StatusCompleted {
			return ErrNotDeletable
		}

		a.IsActive = false
		if err := l.UpdateAppointment(ctx, a); err != nil {
			return err
		}
		deleted = a
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}

	s.invalidateDay(ctx, deleted.DoctorID, deleted.Date)
	s.log.Info("appointment deleted", zap.String("appointment_id", id.String()))

	return nil
}

// GetAppointment returns the appointment with its status history.
func (s *Service) GetAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*AppointmentDetail, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizePatient(ctx, actor, a.PatientID); err != nil {
		return nil, err
	}

	history, err := s.repo.ListHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}

	return &AppointmentDetail{Appointment: *a, History: history}, nil
}

// ListAppointments pages through appointments. Patients only ever see their own.
func (s *Service) ListAppointments(ctx context.Context, actor auth.Actor, f ListFilter) ([]Appointment, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, invalid("status", "unknown status %q", f.Status)
	}

	if !actor.IsStaff() {
		if actor.Role != auth.RolePatient {
			return nil, 0, ErrForbidden
		}
		p, err := s.directory.GetPatientByUserID(ctx, actor.ID)
		if errors.Is(err, directory.ErrNotFound) {
			return []Appointment{}, 0, nil
		}
		if err != nil {
			return nil, 0, fmt.Errorf("load patient: %w", err)
		}
		f.PatientID = &p.ID
	}

	items, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []Appointment{}
	}
	return items, total, nil
}

// TodayAppointments lists the day's appointments in time order.
func (s *Service) TodayAppointments(ctx context.Context, actor auth.Actor, f ListFilter) ([]Appointment, int, error) {
	today := s.today()
	f.DateFrom = &today
	f.DateTo = &today
	f.OrderBy = "appointment_time"
	f.Dir = "asc"
	if f.Limit == 0 {
		f.Limit = db.MaxPageSize
	}
	return s.ListAppointments(ctx, actor, f)
}

// PatientAppointments lists one patient's appointments. With upcoming set it
// returns the open ones from today on, soonest first. Otherwise it returns the
// whole history, newest first.
func (s *Service) PatientAppointments(ctx context.Context, actor auth.Actor, patientID uuid.UUID, upcoming bool, f ListFilter) ([]Appointment, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, invalid("status", "unknown status %q", f.Status)
	}
	if _, err := s.directory.GetPatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	if err := s.authorizePatient(ctx, actor, patientID); err != nil {
		return nil, 0, err
	}

	f.PatientID = &patientID
	f.OrderBy = "appointment_date"
	f.Dir = "desc"
	if upcoming {
		today := s.today()
		f.DateFrom = &today
		f.Statuses = []Status{StatusScheduled, StatusConfirmed}
		f.Dir = "asc"
	}

	items, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []Appointment{}
	}
	return items, total, nil
}

func (s *Service) ClinicStats(ctx context.Context, clinicID uuid.UUID) (*ClinicStats, error) {
	if _, err := s.directory.GetClinic(ctx, clinicID); err != nil {
		return nil, err
	}
	return s.repo.ClinicStats(ctx, clinicID, s.today())
}

func (s *Service) Stats(ctx context.Context, f StatsFilter) (*Stats, error) {
	switch f.Period {
	case "":
		f.Period = PeriodMonth
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodYear:
	default:
		return nil, invalid("period", "must be one of today, week, month, year")
	}
	return s.repo.Stats(ctx, f, s.today())
}

func (s *Service) GetSchedule(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Entry, error) {
	if _, err := s.directory.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	entries, err := s.repo.ListSchedule(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []scheduling.Entry{}
	}
	return entries, nil
}

// ReplaceSchedule validates entries and swaps them in for the doctor's
// whole weekly schedule.
func (s *Service) ReplaceSchedule(ctx context.Context, doctorID uuid.UUID, entries []scheduling.Entry) ([]scheduling.Entry, error) {
	if _, err := s.directory.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	for i := range entries {
		entries[i].DoctorID = doctorID
	}
	if err := scheduling.ValidateEntries(entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if err := s.repo.ReplaceSchedule(ctx, doctorID, entries); err != nil {
		return nil, fmt.Errorf("replace schedule: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateDoctor(ctx, doctorID); err != nil {
			s.log.Warn("failed to invalidate doctor availability", zap.String("doctor_id", doctorID.String()), zap.Error(err))
		}
	}

	s.log.Info("schedule replaced", zap.String("doctor_id", doctorID.String()), zap.Int("entries", len(entries)))

	return entries, nil
}

// MarkNoShows moves confirmed appointments that ended more than the grace
// period ago to no_show. It is intended to be called by the worker
// periodically and returns how many were changed.
func (s *Service) MarkNoShows(ctx context.Context) (int, error) {
	now := wallClock(s.now())

	candidates, err := s.repo.ListConfirmedThrough(ctx, scheduling.DateOf(now))
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	marked := 0
	for _, appt := range candidates {
		if appt.EndsAt().Add(s.cfg.NoShowGrace).After(now) {
			continue
		}

		changed := false
		err := s.repo.WithTx(ctx, func(l Ledger) error {
			a, err := l.GetAppointmentForUpdate(ctx, appt.ID)
			if err != nil {
				return err
			}
			if a.Status != StatusConfirmed {
				return nil
			}

			entry, err := Transition(a, StatusChange{Target: StatusNoShow, Reason: noShowReason}, auth.SystemActor, s.now())
			if err != nil {
				return err
			}
			if err := l.UpdateAppointment(ctx, a); err != nil {
				return err
			}
			if err := l.AppendHistory(ctx, entry); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			s.log.Error("failed to mark no-show", zap.String("appointment_id", appt.ID.String()), zap.Error(err))
			continue
		}
		if changed {
			marked++
			s.invalidateDay(ctx, appt.DoctorID, appt.Date)
		}
	}

	return marked, nil
}
