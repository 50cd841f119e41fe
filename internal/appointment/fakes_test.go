package appointment

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
	"github.com/hackgods/clinic-appointment-booking/internal/scheduling"
)

// memRepo is an in-memory Repository. Transactions hold one mutex and roll
// back by restoring a snapshot when fn fails.
type memRepo struct {
	mu        sync.Mutex
	appts     map[uuid.UUID]*Appointment
	history   []HistoryEntry
	schedules map[uuid.UUID][]scheduling.Entry
	nextID    int64

	// conflicts makes the next n WithDoctorDay calls fail as if the
	// exclusion constraint fired.
	conflicts      int
	doctorDayCalls int

	// txDelay stands in for a database round trip inside the doctor-day transaction.
	txDelay time.Duration
}

func newMemRepo() *memRepo {
	return &memRepo{
		appts:     make(map[uuid.UUID]*Appointment),
		schedules: make(map[uuid.UUID][]scheduling.Entry),
	}
}

type memLedger struct {
	r *memRepo
}

func (l memLedger) OccupiedIntervals(_ context.Context, doctorID uuid.UUID, date time.Time, exclude *uuid.UUID) ([]scheduling.Interval, error) {
	var result []scheduling.Interval
	for _, a := range l.r.appts {
		if a.DoctorID != doctorID || !a.Date.Equal(date) || !a.IsActive || a.Status == StatusCancelled {
			continue
		}
		if exclude != nil && a.ID == *exclude {
			continue
		}
		result = append(result, a.Interval())
	}
	return result, nil
}

func (l memLedger) GetAppointmentForUpdate(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := l.r.appts[id]
	if !ok || !a.IsActive {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (l memLedger) InsertAppointment(_ context.Context, a *Appointment) error {
	a.IsActive = true
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	l.r.appts[a.ID] = &cp
	return nil
}

func (l memLedger) UpdateAppointment(_ context.Context, a *Appointment) error {
	if _, ok := l.r.appts[a.ID]; !ok {
		return ErrAppointmentNotFound
	}
	cp := *a
	l.r.appts[a.ID] = &cp
	return nil
}

func (l memLedger) AppendHistory(_ context.Context, h *HistoryEntry) error {
	l.r.nextID++
	h.ID = l.r.nextID
	l.r.history = append(l.r.history, *h)
	return nil
}

func (r *memRepo) tx(fn func(Ledger) error) error {
	appts := make(map[uuid.UUID]*Appointment, len(r.appts))
	for id, a := range r.appts {
		cp := *a
		appts[id] = &cp
	}
	historyLen := len(r.history)

	if err := fn(memLedger{r: r}); err != nil {
		r.appts = appts
		r.history = r.history[:historyLen]
		return err
	}
	return nil
}

func (r *memRepo) WithDoctorDay(_ context.Context, _ uuid.UUID, _ time.Time, fn func(Ledger) error) error {
	if r.txDelay > 0 {
		time.Sleep(r.txDelay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.doctorDayCalls++
	if r.conflicts > 0 {
		r.conflicts--
		return ErrConcurrencyConflict
	}
	return r.tx(fn)
}

func (r *memRepo) WithTx(_ context.Context, fn func(Ledger) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tx(fn)
}

func (r *memRepo) OccupiedIntervals(ctx context.Context, doctorID uuid.UUID, date time.Time, exclude *uuid.UUID) ([]scheduling.Interval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memLedger{r: r}.OccupiedIntervals(ctx, doctorID, date, exclude)
}

func (r *memRepo) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memLedger{r: r}.GetAppointmentForUpdate(ctx, id)
}

func (r *memRepo) InsertAppointment(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memLedger{r: r}.InsertAppointment(ctx, a)
}

func (r *memRepo) UpdateAppointment(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memLedger{r: r}.UpdateAppointment(ctx, a)
}

func (r *memRepo) AppendHistory(ctx context.Context, h *HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memLedger{r: r}.AppendHistory(ctx, h)
}

func (r *memRepo) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.GetAppointmentForUpdate(ctx, id)
}

func (r *memRepo) ListHistory(_ context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []HistoryEntry
	for _, h := range r.history {
		if h.AppointmentID == appointmentID {
			result = append(result, h)
		}
	}
	return result, nil
}

func (r *memRepo) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appts {
		switch {
		case !a.IsActive,
			f.Status != "" && a.Status != f.Status,
			len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status),
			f.PatientID != nil && a.PatientID != *f.PatientID,
			f.DoctorID != nil && a.DoctorID != *f.DoctorID,
			f.ClinicID != nil && a.ClinicID != *f.ClinicID,
			f.DateFrom != nil && a.Date.Before(*f.DateFrom),
			f.DateTo != nil && a.Date.After(*f.DateTo):
			continue
		}
		result = append(result, *a)
	}

	sort.Slice(result, func(i, j int) bool {
		return scheduling.At(result[i].Date, result[i].Time).Before(scheduling.At(result[j].Date, result[j].Time))
	})
	if f.Dir == "desc" {
		slices.Reverse(result)
	}
	return result, len(result), nil
}

func (r *memRepo) ClinicStats(_ context.Context, clinicID uuid.UUID, today time.Time) (*ClinicStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := ClinicStats{ClinicID: clinicID}
	patients := map[uuid.UUID]bool{}
	for _, a := range r.appts {
		if !a.IsActive || a.ClinicID != clinicID {
			continue
		}
		patients[a.PatientID] = true
		if a.Date.Equal(today) {
			s.Today++
		}
		open := a.Status == StatusScheduled || a.Status == StatusConfirmed
		if open && !a.Date.Before(today) {
			s.Upcoming++
		}
		switch a.Status {
		case StatusCompleted:
			s.Completed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	s.Patients = len(patients)
	return &s, nil
}

func (r *memRepo) Stats(_ context.Context, f StatsFilter, today time.Time) (*Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	since := f.Period.Since(today)
	var s Stats
	for _, a := range r.appts {
		if !a.IsActive || a.Date.Before(since) {
			continue
		}
		s.Total++
		switch a.Status {
		case StatusScheduled:
			s.Scheduled++
		case StatusConfirmed:
			s.Confirmed++
		case StatusCompleted:
			s.Completed++
		case StatusCancelled:
			s.Cancelled++
		case StatusNoShow:
			s.NoShow++
		}
		if a.Date.Equal(today) {
			s.Today++
		}
		if a.Date.After(today) && (a.Status == StatusScheduled || a.Status == StatusConfirmed) {
			s.Upcoming++
		}
	}
	return &s, nil
}

func (r *memRepo) ListConfirmedThrough(_ context.Context, date time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appts {
		if a.IsActive && a.Status == StatusConfirmed && !a.Date.After(date) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *memRepo) ScheduleEntries(_ context.Context, doctorID uuid.UUID, weekday scheduling.Weekday) ([]scheduling.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []scheduling.Entry
	for _, e := range r.schedules[doctorID] {
		if e.DayOfWeek == weekday && e.Active {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *memRepo) ListSchedule(_ context.Context, doctorID uuid.UUID) ([]scheduling.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scheduling.Entry(nil), r.schedules[doctorID]...), nil
}

func (r *memRepo) ReplaceSchedule(_ context.Context, doctorID uuid.UUID, entries []scheduling.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[doctorID] = append([]scheduling.Entry(nil), entries...)
	return nil
}

// appointmentsOf returns stored copies for assertions.
func (r *memRepo) appointmentsOf(doctorID uuid.UUID) []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID {
			result = append(result, *a)
		}
	}
	return result
}

type memDirectory struct {
	clinics  map[uuid.UUID]*directory.Clinic
	doctors  map[uuid.UUID]*directory.Doctor
	patients map[uuid.UUID]*directory.Patient
}

func (d *memDirectory) GetClinic(_ context.Context, id uuid.UUID) (*directory.Clinic, error) {
	if c, ok := d.clinics[id]; ok {
		return c, nil
	}
	return nil, directory.ErrClinicNotFound
}

func (d *memDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*directory.Doctor, error) {
	if doc, ok := d.doctors[id]; ok {
		return doc, nil
	}
	return nil, directory.ErrDoctorNotFound
}

func (d *memDirectory) GetPatient(_ context.Context, id uuid.UUID) (*directory.Patient, error) {
	if p, ok := d.patients[id]; ok {
		return p, nil
	}
	return nil, directory.ErrPatientNotFound
}

func (d *memDirectory) GetPatientByUserID(_ context.Context, userID uuid.UUID) (*directory.Patient, error) {
	for _, p := range d.patients {
		if p.OwnedBy(userID) {
			return p, nil
		}
	}
	return nil, directory.ErrPatientNotFound
}

// memLocker queues callers of a held key like the Redis locker does.
// With unavailable set every attempt times out instead.
type memLocker struct {
	mu          sync.Mutex
	held        map[string]chan struct{}
	unavailable bool
	attempts    int
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]chan struct{})}
}

func (l *memLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.attempts++
	ch, ok := l.held[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.held[key] = ch
	}
	return ch
}

func (l *memLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ch := l.slot(key)

	l.mu.Lock()
	unavailable := l.unavailable
	l.mu.Unlock()
	if unavailable {
		return redisclient.ErrLockNotAcquired
	}

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ch }()

	return fn(ctx)
}

type memCache struct {
	mu            sync.Mutex
	entries       map[string][]scheduling.Slot
	hits          int
	invalidations int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]scheduling.Slot)}
}

func cacheKey(doctorID uuid.UUID, date time.Time, duration int) string {
	return doctorID.String() + "/" + date.Format(scheduling.DateLayout) + "/" + strconv.Itoa(duration)
}

func (c *memCache) Get(_ context.Context, doctorID uuid.UUID, date time.Time, duration int) ([]scheduling.Slot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slots, ok := c.entries[cacheKey(doctorID, date, duration)]
	if ok {
		c.hits++
	}
	return slots, ok, nil
}

func (c *memCache) Set(_ context.Context, doctorID uuid.UUID, date time.Time, duration int, slots []scheduling.Slot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(doctorID, date, duration)] = slots
	return nil
}

func (c *memCache) InvalidateDay(_ context.Context, doctorID uuid.UUID, date time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
	prefix := doctorID.String() + "/" + date.Format(scheduling.DateLayout) + "/"
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *memCache) InvalidateDoctor(_ context.Context, doctorID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
	prefix := doctorID.String() + "/"
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}
