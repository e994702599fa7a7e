package service

import (
	"time"

	"github.com/google/uuid"

	"schedule-service/internal/model"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func IntervalOf(s *model.Session) Interval {
	return Interval{Start: s.StartTime, End: s.EndTime}
}

func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// HasConflict reports whether candidate overlaps any active session in existing.
func HasConflict(existing []model.Session, candidate Interval) bool {
	_, found := FindConflict(existing, candidate)
	return found
}

// FindConflict returns the first active session overlapping candidate.
func FindConflict(existing []model.Session, candidate Interval) (*model.Session, bool) {
	for i := range existing {
		s := &existing[i]
		if !s.Status.IsActive() {
			continue
		}
		if IntervalOf(s).Overlaps(candidate) {
			return s, true
		}
	}
	return nil, false
}

// ParticipantConflict checks candidate against the sessions of one participant,
// acting as either tutor or student.
func ParticipantConflict(existing []model.Session, participantID uuid.UUID, candidate Interval) (*model.Session, bool) {
	var own []model.Session
	for _, s := range existing {
		if s.IsParticipant(participantID) {
			own = append(own, s)
		}
	}
	return FindConflict(own, candidate)
}
