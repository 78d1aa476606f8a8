package events

import (
	"time"

	"github.com/campusdesk/appeal-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAppealCreated         EventType = "appeal_created"
	EventAppealMessageAdded    EventType = "appeal_message_added"
	EventAppealAssigned        EventType = "appeal_assigned"
	EventAppealPriorityChanged EventType = "appeal_priority_changed"
	EventAppealClosed          EventType = "appeal_closed"
	EventAppealRated           EventType = "appeal_rated"
)

// Event represents a domain event emitted after an appeal change is committed.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	AppealID  int64       `json:"appeal_id"`
	ActorID   int64       `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// AppealRef carries the appeal fields every notification needs.
type AppealRef struct {
	StudentID       int64                 `json:"student_id"`
	StudentName     string                `json:"student_name"`
	Subject         string                `json:"subject"`
	Priority        domain.AppealPriority `json:"priority"`
	AssignedAdminID *int64                `json:"assigned_admin_id,omitempty"`
}

// NewAppealRef snapshots a.
func NewAppealRef(a *domain.Appeal) AppealRef {
	return AppealRef{
		StudentID:       a.StudentID,
		StudentName:     a.StudentName,
		Subject:         a.Subject,
		Priority:        a.Priority,
		AssignedAdminID: a.AssignedAdminID,
	}
}

// AppealCreatedPayload payload.
type AppealCreatedPayload struct {
	Appeal   AppealRef `json:"appeal"`
	Category string    `json:"category"`
}

// AppealMessageAddedPayload payload.
type AppealMessageAddedPayload struct {
	Appeal      AppealRef `json:"appeal"`
	MessageID   int64     `json:"message_id"`
	SenderName  string    `json:"sender_name"`
	IsFromStaff bool      `json:"is_from_staff"`
	Preview     string    `json:"preview"`
}

// AppealAssignedPayload payload.
type AppealAssignedPayload struct {
	Appeal     AppealRef `json:"appeal"`
	OldAdminID *int64    `json:"old_admin_id,omitempty"`
}

// AppealPriorityChangedPayload payload.
type AppealPriorityChangedPayload struct {
	Appeal      AppealRef             `json:"appeal"`
	OldPriority domain.AppealPriority `json:"old_priority"`
}

// AppealClosedPayload payload.
type AppealClosedPayload struct {
	Appeal      AppealRef           `json:"appeal"`
	Status      domain.AppealStatus `json:"status"`
	Reason      string              `json:"reason,omitempty"`
	IsRejection bool                `json:"is_rejection"`
}

// AppealRatedPayload payload.
type AppealRatedPayload struct {
	Appeal AppealRef `json:"appeal"`
	Rating int       `json:"rating"`
}
