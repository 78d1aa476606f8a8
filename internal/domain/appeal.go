package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// AppealStatus enumerates lifecycle states for appeals.
type AppealStatus string

const (
	AppealStatusNew            AppealStatus = "NEW"
	AppealStatusInProgress     AppealStatus = "IN_PROGRESS"
	AppealStatusAdminReplied   AppealStatus = "ADMIN_REPLIED"
	AppealStatusStudentReplied AppealStatus = "STUDENT_REPLIED"
	AppealStatusResolved       AppealStatus = "RESOLVED"
	AppealStatusClosed         AppealStatus = "CLOSED"
)

// IsTerminal reports whether no further transition is allowed.
func (s AppealStatus) IsTerminal() bool {
	return s == AppealStatusResolved || s == AppealStatusClosed
}

// AppealPriority enumerates handling urgency.
type AppealPriority string

const (
	AppealPriorityLow    AppealPriority = "LOW"
	AppealPriorityNormal AppealPriority = "NORMAL"
	AppealPriorityHigh   AppealPriority = "HIGH"
	AppealPriorityUrgent AppealPriority = "URGENT"
)

// Valid reports whether p is a known priority.
func (p AppealPriority) Valid() bool {
	switch p {
	case AppealPriorityLow, AppealPriorityNormal, AppealPriorityHigh, AppealPriorityUrgent:
		return true
	}
	return false
}

// Content limits for a new appeal.
const (
	SubjectMinLen = 5
	SubjectMaxLen = 200
	MessageMinLen = 10
	MessageMaxLen = 4000
	RatingMin     = 1
	RatingMax     = 5
)

// Appeal is the aggregate for a student's support request. Messages and
// history entries not yet persisted carry a zero ID.
type Appeal struct {
	ID              int64
	StudentID       int64
	StudentName     string
	Category        string
	Subject         string
	Message         string
	Status          AppealStatus
	Priority        AppealPriority
	AssignedAdminID *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FirstResponseAt *time.Time
	ClosedAt        *time.Time
	ClosedBy        *int64
	ClosedReason    *string
	Rating          *int
	RatingComment   *string
	Version         int
	Messages        []AppealMessage
	Changes         []AppealHistory
}

// NewAppeal validates content and returns an appeal in status NEW.
func NewAppeal(studentID int64, studentName, category, subject, message string, now time.Time) (*Appeal, error) {
	category = strings.TrimSpace(category)
	subject = strings.TrimSpace(subject)
	message = strings.TrimSpace(message)

	details := map[string]any{}
	if category == "" {
		details["category"] = "required"
	}
	if n := utf8.RuneCountInString(subject); n < SubjectMinLen || n > SubjectMaxLen {
		details["subject"] = "must be between 5 and 200 characters"
	}
	if n := utf8.RuneCountInString(message); n < MessageMinLen || n > MessageMaxLen {
		details["message"] = "must be between 10 and 4000 characters"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid appeal", details)
	}

	return &Appeal{
		StudentID:   studentID,
		StudentName: studentName,
		Category:    category,
		Subject:     subject,
		Message:     message,
		Status:      AppealStatusNew,
		Priority:    AppealPriorityNormal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsOwnedBy reports whether userID opened the appeal.
func (a *Appeal) IsOwnedBy(userID int64) bool {
	return a.StudentID == userID
}

func (a *Appeal) ensureOpen(op string) error {
	if a.Status.IsTerminal() {
		return apperrors.NewInvalidState("appeal is already closed", map[string]any{
			"appeal_id": a.ID,
			"status":    a.Status,
			"operation": op,
		})
	}
	return nil
}

// AssignTo sets or clears (nil) the responsible admin. It returns false when
// the assignment did not change.
func (a *Appeal) AssignTo(adminID *int64, actorID int64, now time.Time) (bool, error) {
	if err := a.ensureOpen("assign"); err != nil {
		return false, err
	}
	if sameID(a.AssignedAdminID, adminID) {
		return false, nil
	}
	old := a.AssignedAdminID
	a.AssignedAdminID = copyID(adminID)
	if adminID != nil && a.Status == AppealStatusNew {
		a.record(actorID, ChangeTypeStatus, "status", AppealStatusNew, AppealStatusInProgress, now)
		a.Status = AppealStatusInProgress
	}
	a.record(actorID, ChangeTypeAssignee, "assigned_admin_id", old, a.AssignedAdminID, now)
	a.UpdatedAt = now
	return true, nil
}

// AddStaffMessage appends a staff reply. The first staff reply stamps
// FirstResponseAt and an unassigned appeal is taken by the replying admin.
func (a *Appeal) AddStaffMessage(adminID int64, adminName, text string, attachments []Attachment, now time.Time) (*AppealMessage, error) {
	if err := a.ensureOpen("staff_message"); err != nil {
		return nil, err
	}
	msg, err := a.appendMessage(adminID, adminName, true, text, attachments, now)
	if err != nil {
		return nil, err
	}
	if a.FirstResponseAt == nil {
		first := now
		a.FirstResponseAt = &first
	}
	a.maybeAutoAssign(adminID, now)
	a.transition(adminID, AppealStatusAdminReplied, now)
	return msg, nil
}

// AddStudentMessage appends a reply from the owning student.
func (a *Appeal) AddStudentMessage(studentID int64, studentName, text string, attachments []Attachment, now time.Time) (*AppealMessage, error) {
	if !a.IsOwnedBy(studentID) {
		return nil, apperrors.NewForbidden("appeal belongs to another student")
	}
	if err := a.ensureOpen("student_message"); err != nil {
		return nil, err
	}
	if studentName == "" {
		studentName = a.StudentName
	}
	msg, err := a.appendMessage(studentID, studentName, false, text, attachments, now)
	if err != nil {
		return nil, err
	}
	a.transition(studentID, AppealStatusStudentReplied, now)
	return msg, nil
}

// maybeAutoAssign gives an unassigned appeal to adminID. It reports whether
// the assignment changed.
func (a *Appeal) maybeAutoAssign(adminID int64, now time.Time) bool {
	if a.AssignedAdminID != nil {
		return false
	}
	id := adminID
	a.AssignedAdminID = &id
	a.record(adminID, ChangeTypeAssignee, "assigned_admin_id", nil, a.AssignedAdminID, now)
	return true
}

// UpdatePriority changes the priority and returns the previous value.
func (a *Appeal) UpdatePriority(priority AppealPriority, actorID int64, now time.Time) (AppealPriority, error) {
	if !priority.Valid() {
		return "", apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	if err := a.ensureOpen("priority"); err != nil {
		return "", err
	}
	old := a.Priority
	if old == priority {
		return old, nil
	}
	a.Priority = priority
	a.record(actorID, ChangeTypePriority, "priority", old, priority, now)
	a.UpdatedAt = now
	return old, nil
}

// Close ends the appeal. A rejection lands in CLOSED, anything else in RESOLVED.
func (a *Appeal) Close(adminID int64, reason string, isRejection bool, now time.Time) error {
	if err := a.ensureOpen("close"); err != nil {
		return err
	}
	target := AppealStatusResolved
	if isRejection {
		target = AppealStatusClosed
	}
	closedAt := now
	closedBy := adminID
	a.ClosedAt = &closedAt
	a.ClosedBy = &closedBy
	if reason = strings.TrimSpace(reason); reason != "" {
		a.ClosedReason = &reason
	}
	a.transition(adminID, target, now)
	return nil
}

// SetRating stores the owner's rating of a finished appeal. Re-rating overwrites.
func (a *Appeal) SetRating(studentID int64, rating int, comment string, now time.Time) error {
	if !a.IsOwnedBy(studentID) {
		return apperrors.NewForbidden("only the appeal owner can rate it")
	}
	if !a.Status.IsTerminal() {
		return apperrors.NewInvalidState("appeal must be closed before rating", map[string]any{
			"appeal_id": a.ID,
			"status":    a.Status,
		})
	}
	if rating < RatingMin || rating > RatingMax {
		return apperrors.NewValidationError("rating must be between 1 and 5", map[string]any{"rating": rating})
	}
	var old any
	if a.Rating != nil {
		old = *a.Rating
	}
	r := rating
	a.Rating = &r
	if comment = strings.TrimSpace(comment); comment != "" {
		a.RatingComment = &comment
	} else {
		a.RatingComment = nil
	}
	a.record(studentID, ChangeTypeRating, "rating", old, rating, now)
	a.UpdatedAt = now
	return nil
}

func (a *Appeal) appendMessage(senderID int64, senderName string, fromStaff bool, text string, attachments []Attachment, now time.Time) (*AppealMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return nil, apperrors.NewValidationError("message text or attachment required", nil)
	}
	if utf8.RuneCountInString(text) > MessageMaxLen {
		return nil, apperrors.NewValidationError("message too long", map[string]any{"max": MessageMaxLen})
	}
	a.Messages = append(a.Messages, AppealMessage{
		AppealID:    a.ID,
		SenderID:    senderID,
		SenderName:  senderName,
		IsFromStaff: fromStaff,
		Text:        text,
		Attachments: attachments,
		SentAt:      now,
	})
	a.UpdatedAt = now
	return &a.Messages[len(a.Messages)-1], nil
}

func (a *Appeal) transition(actorID int64, next AppealStatus, now time.Time) {
	if a.Status == next {
		a.UpdatedAt = now
		return
	}
	a.record(actorID, ChangeTypeStatus, "status", a.Status, next, now)
	a.Status = next
	a.UpdatedAt = now
}

func (a *Appeal) record(actorID int64, change AppealChangeType, field string, oldValue, newValue any, now time.Time) {
	a.Changes = append(a.Changes, AppealHistory{
		AppealID:   a.ID,
		ChangedBy:  actorID,
		ChangeType: change,
		OldValue:   map[string]any{field: oldValue},
		NewValue:   map[string]any{field: newValue},
		CreatedAt:  now,
	})
}

// PendingMessages returns messages appended since the appeal was loaded.
func (a *Appeal) PendingMessages() []*AppealMessage {
	var out []*AppealMessage
	for i := range a.Messages {
		if a.Messages[i].ID == 0 {
			out = append(out, &a.Messages[i])
		}
	}
	return out
}

// LastMessage returns the most recent message or nil.
func (a *Appeal) LastMessage() *AppealMessage {
	if len(a.Messages) == 0 {
		return nil
	}
	return &a.Messages[len(a.Messages)-1]
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
