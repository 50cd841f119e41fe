package scheduling

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Weekday numbers days 1 = Sunday through 7 = Saturday.
type Weekday int

const (
	Sunday Weekday = iota + 1
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

func (w Weekday) Valid() bool {
	return w >= Sunday && w <= Saturday
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return time.Weekday(w - 1).String()
}

func WeekdayOf(date time.Time) Weekday {
	return Weekday(date.Weekday()) + 1
}

// Entry is one recurring weekly availability window of a doctor.
type Entry struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	DayOfWeek Weekday   `json:"day_of_week"`
	Start     Clock     `json:"start_time"`
	End       Clock     `json:"end_time"`
	Active    bool      `json:"is_active"`
}

func (e Entry) Validate() error {
	if !e.DayOfWeek.Valid() {
		return fmt.Errorf("%w: got %d", ErrInvalidWeekday, e.DayOfWeek)
	}
	if e.Start < 0 || e.End > EndOfDay {
		return fmt.Errorf("%w: %s-%s", ErrInvalidClock, e.Start, e.End)
	}
	if e.Start >= e.End {
		return fmt.Errorf("%w: %s-%s", ErrInvalidWindow, e.Start, e.End)
	}
	return nil
}

// ValidateEntries checks every entry and reports the first offending index.
func ValidateEntries(entries []Entry) error {
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("schedule entry %d: %w", i, err)
		}
	}
	return nil
}

// Window is a [Start, End) range of a single day.
type Window struct {
	Start Clock `json:"start_time"`
	End   Clock `json:"end_time"`
}

// WindowsFor returns the active windows of entries falling on weekday,
// ordered by start time. Overlapping entries are kept as they are.
func WindowsFor(entries []Entry, weekday Weekday) []Window {
	var windows []Window
	for _, e := range entries {
		if !e.Active || e.DayOfWeek != weekday {
			continue
		}
		windows = append(windows, Window{Start: e.Start, End: e.End})
	}

	sort.SliceStable(windows, func(i, j int) bool {
		return windows[i].Start < windows[j].Start
	})

	return windows
}
