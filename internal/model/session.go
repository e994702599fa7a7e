package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a tutoring session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusUpcoming  Status = "upcoming"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses occupy a time slot in the participants' timetables.
var ActiveStatuses = []Status{StatusPending, StatusAccepted, StatusUpcoming}

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusAccepted, StatusRejected, StatusUpcoming, StatusCompleted, StatusCancelled:
		return s, true
	}
	return "", false
}

func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusUpcoming
}

// IsConfirmed reports whether the tutor has committed to the session.
func (s Status) IsConfirmed() bool {
	return s == StatusAccepted || s == StatusUpcoming
}

func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusCancelled
}

type MeetingType string

const (
	MeetingOnline  MeetingType = "online"
	MeetingOffline MeetingType = "offline"
)

func (m MeetingType) Valid() bool {
	return m == MeetingOnline || m == MeetingOffline
}

type Feedback struct {
	Rating    int       `db:"rating" json:"rating"`
	Comment   string    `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Session struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	TutorID     uuid.UUID   `db:"tutor_id" json:"tutor_id"`
	StudentID   uuid.UUID   `db:"student_id" json:"student_id"`
	StartTime   time.Time   `db:"start_time" json:"start_time"`
	EndTime     time.Time   `db:"end_time" json:"end_time"`
	Subject     string      `db:"subject" json:"subject"`
	MeetingType MeetingType `db:"meeting_type" json:"meeting_type"`
	MeetingLink string      `db:"meeting_link" json:"meeting_link,omitempty"`
	Location    string      `db:"location" json:"location,omitempty"`
	Status      Status      `db:"status" json:"status"`
	Notes       string      `db:"notes" json:"notes,omitempty"`
	Feedback    *Feedback   `db:"-" json:"feedback,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// IsParticipant reports whether userID is the tutor or the student of the session.
func (s *Session) IsParticipant(userID uuid.UUID) bool {
	return s.TutorID == userID || s.StudentID == userID
}

// Counterpart returns the other participant of the session.
func (s *Session) Counterpart(userID uuid.UUID) uuid.UUID {
	if s.TutorID == userID {
		return s.StudentID
	}
	return s.TutorID
}

func (s *Session) Clone() *Session {
	c := *s
	if s.Feedback != nil {
		fb := *s.Feedback
		c.Feedback = &fb
	}
	return &c
}
