package scheduling

// Interval is a half-open [Start, End) range on one day.
type Interval struct {
	Start Clock
	End   Clock
}

func IntervalOf(start Clock, durationMinutes int) Interval {
	return Interval{Start: start, End: start.Add(durationMinutes)}
}

// Overlaps reports whether [a.Start, a.End) and [b.Start, b.End) share any
// minute. Intervals that only touch do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && a.End > b.Start
}

func OverlapsAny(candidate Interval, occupied []Interval) bool {
	for _, o := range occupied {
		if Overlaps(candidate, o) {
			return true
		}
	}
	return false
}

// Slot is a bookable start time of a given length.
type Slot struct {
	Time     Clock `json:"time"`
	Duration int   `json:"duration"`
}

// ComputeSlots walks each window in steps of duration minutes and returns
// every slot that fits entirely inside its window and does not overlap an
// occupied interval. Windows are processed in the given order, so
// overlapping windows can yield the same start time more than once.
func ComputeSlots(windows []Window, occupied []Interval, duration int) ([]Slot, error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}

	slots := []Slot{}
	for _, w := range windows {
		for t := w.Start; t.Add(duration) <= w.End; t = t.Add(duration) {
			if OverlapsAny(IntervalOf(t, duration), occupied) {
				continue
			}
			slots = append(slots, Slot{Time: t, Duration: duration})
		}
	}

	return slots, nil
}
