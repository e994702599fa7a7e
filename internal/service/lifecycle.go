package service

import (
	"strings"
	"time"
	"unicode/utf8"

	"schedule-service/internal/model"
)

// Profile selects which subset of the lifecycle a deployment runs.
type Profile string

const (
	// ProfileFull runs the whole pending/accepted/rejected/upcoming/completed/cancelled lifecycle.
	ProfileFull Profile = "full"
	// ProfileBasic only knows pending and accepted.
	ProfileBasic Profile = "basic"
)

func ParseProfile(raw string) (Profile, bool) {
	switch p := Profile(strings.ToLower(raw)); p {
	case ProfileFull, ProfileBasic:
		return p, true
	}
	return "", false
}

const (
	maxNotesLength   = 500
	maxCommentLength = 1000
)

// MeetingDetails are supplied by the tutor when confirming a session.
type MeetingDetails struct {
	MeetingLink string
	Location    string
}

// Lifecycle enforces legal state transitions and role permissions. Every
// method validates against a copy and only mutates the session on success.
type Lifecycle struct {
	profile Profile
	now     func() time.Time
}

func NewLifecycle(profile Profile, now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	if _, ok := ParseProfile(string(profile)); !ok {
		profile = ProfileFull
	}
	return &Lifecycle{profile: profile, now: now}
}

func (l *Lifecycle) Profile() Profile {
	return l.profile
}

// InitialStatus is the status a new booking starts in, given who requested it.
func (l *Lifecycle) InitialStatus(role model.Role) (model.Status, error) {
	switch role {
	case model.RoleStudent:
		return model.StatusPending, nil
	case model.RoleTutor:
		if l.profile == ProfileBasic {
			return model.StatusAccepted, nil
		}
		return model.StatusUpcoming, nil
	default:
		return "", forbiddenf("role %q cannot book sessions", role)
	}
}

// ValidateNew checks a session about to be inserted.
func (l *Lifecycle) ValidateNew(s *model.Session) error {
	if strings.TrimSpace(s.Subject) == "" {
		return validationf("subject is required")
	}
	if !s.MeetingType.Valid() {
		return validationf("meeting type must be online or offline")
	}
	if s.TutorID == s.StudentID {
		return validationf("tutor and student must be different users")
	}
	if !IntervalOf(s).Valid() {
		return validationf("end time must be after start time")
	}
	if !s.StartTime.After(l.now()) {
		return validationf("start time must be in the future")
	}
	if utf8.RuneCountInString(s.Notes) > maxNotesLength {
		return validationf("notes must be at most %d characters", maxNotesLength)
	}
	if s.Status.IsConfirmed() {
		return requireMeetingDetails(s)
	}
	return nil
}

func (l *Lifecycle) Accept(s *model.Session, actor model.Identity, details MeetingDetails) error {
	if err := requireAddressedTutor(s, actor); err != nil {
		return err
	}
	if s.Status != model.StatusPending {
		return transitionf("cannot accept a %s session", s.Status)
	}

	next := s.Clone()
	if link := strings.TrimSpace(details.MeetingLink); link != "" {
		next.MeetingLink = link
	}
	if location := strings.TrimSpace(details.Location); location != "" {
		next.Location = location
	}
	if err := requireMeetingDetails(next); err != nil {
		return err
	}

	next.Status = model.StatusAccepted
	*s = *next
	return nil
}

func (l *Lifecycle) Reject(s *model.Session, actor model.Identity, reason string) error {
	if err := l.requireFull("reject"); err != nil {
		return err
	}
	if err := requireAddressedTutor(s, actor); err != nil {
		return err
	}
	if s.Status != model.StatusPending {
		return transitionf("cannot reject a %s session", s.Status)
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxNotesLength {
		return validationf("reason must be at most %d characters", maxNotesLength)
	}

	s.Status = model.StatusRejected
	if reason != "" {
		s.Notes = reason
	}
	return nil
}

func (l *Lifecycle) Complete(s *model.Session, actor model.Identity) error {
	if err := l.requireFull("complete"); err != nil {
		return err
	}
	if err := requireAddressedTutor(s, actor); err != nil {
		return err
	}
	if !s.Status.IsConfirmed() {
		return transitionf("cannot complete a %s session", s.Status)
	}
	if s.StartTime.After(l.now()) {
		return transitionf("cannot complete a session that has not started")
	}

	s.Status = model.StatusCompleted
	return nil
}

func (l *Lifecycle) Cancel(s *model.Session, actor model.Identity, reason string) error {
	if err := l.requireFull("cancel"); err != nil {
		return err
	}
	if !s.IsParticipant(actor.CallerID) {
		return forbiddenf("only participants can cancel a session")
	}
	if s.Status.IsTerminal() {
		return transitionf("cannot cancel a %s session", s.Status)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return validationf("cancellation reason is required")
	}
	if utf8.RuneCountInString(reason) > maxNotesLength {
		return validationf("reason must be at most %d characters", maxNotesLength)
	}

	s.Status = model.StatusCancelled
	s.Notes = reason
	return nil
}

func (l *Lifecycle) AddFeedback(s *model.Session, actor model.Identity, rating int, comment string) error {
	if err := l.requireFull("feedback"); err != nil {
		return err
	}
	if actor.Role != model.RoleStudent || s.StudentID != actor.CallerID {
		return forbiddenf("only the student of the session can leave feedback")
	}
	if rating < 1 || rating > 5 {
		return validationf("rating must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return validationf("comment must be at most %d characters", maxCommentLength)
	}
	if s.Status != model.StatusCompleted {
		return transitionf("feedback is only accepted for completed sessions")
	}
	if s.Feedback != nil {
		return ErrFeedbackExists
	}

	s.Feedback = &model.Feedback{Rating: rating, Comment: comment, CreatedAt: l.now()}
	return nil
}

// CanDelete allows the tutor to withdraw a session until it has been accepted.
func (l *Lifecycle) CanDelete(s *model.Session, actor model.Identity) error {
	if err := requireAddressedTutor(s, actor); err != nil {
		return err
	}
	if s.Status != model.StatusPending {
		return transitionf("cannot delete a %s session", s.Status)
	}
	return nil
}

func (l *Lifecycle) requireFull(op string) error {
	if l.profile != ProfileFull {
		return transitionf("%s is not available in the %s profile", op, l.profile)
	}
	return nil
}

func requireAddressedTutor(s *model.Session, actor model.Identity) error {
	if actor.Role != model.RoleTutor || s.TutorID != actor.CallerID {
		return forbiddenf("only the tutor of the session can do this")
	}
	return nil
}

func requireMeetingDetails(s *model.Session) error {
	switch s.MeetingType {
	case model.MeetingOnline:
		if strings.TrimSpace(s.MeetingLink) == "" {
			return validationf("meeting link is required for online sessions")
		}
	case model.MeetingOffline:
		if strings.TrimSpace(s.Location) == "" {
			return validationf("location is required for offline sessions")
		}
	}
	return nil
}
