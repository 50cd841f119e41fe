package appointment

import (
	"time"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
)

const (
	DefaultCancellationReason = "Cancelled by user"
	closingNotesSeparator     = "\n\nClosing notes: "
)

var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted: {},
	StatusCancelled: {StatusScheduled},
	StatusNoShow:    {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal statuses allow no further change.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StatusChange is a requested move. Reason is the cancellation reason when
// cancelling; Notes are closing notes when completing.
type StatusChange struct {
	Target Status
	Reason string
	Notes  string
}

// Transition applies change to a in memory and returns the audit entry to
// persist with it. a is left untouched when the move is not allowed.
func Transition(a *Appointment, change StatusChange, actor auth.Actor, at time.Time) (*HistoryEntry, error) {
	from := a.Status
	if !CanTransition(from, change.Target) {
		return nil, &TransitionError{From: from, To: change.Target}
	}

	reason := change.Reason

	switch change.Target {
	case StatusCancelled:
		if reason == "" {
			reason = DefaultCancellationReason
		}
		a.CancellationReason = &reason
		a.CancelledBy = actor.Ref()
	case StatusCompleted:
		if change.Notes != "" {
			if a.Notes != "" {
				a.Notes = a.Notes + closingNotesSeparator + change.Notes
			} else {
				a.Notes = change.Notes
			}
		}
	case StatusScheduled:
		a.CancellationReason = nil
		a.CancelledBy = nil
	}

	a.Status = change.Target
	a.UpdatedAt = at

	return &HistoryEntry{
		AppointmentID:  a.ID,
		PreviousStatus: &from,
		NewStatus:      change.Target,
		Reason:         reason,
		ChangedBy:      actor.Ref(),
		CreatedAt:      at,
	}, nil
}
