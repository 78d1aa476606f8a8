package dto

import (
	"time"

	"github.com/campusdesk/appeal-service/internal/domain"
)

// CreateAppealRequest payload.
type CreateAppealRequest struct {
	Category string `json:"category"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Text        string              `json:"text"`
	Attachments []domain.Attachment `json:"attachments"`
}

// RateAppealRequest payload.
type RateAppealRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// AssignAppealRequest payload. A null admin_id unassigns.
type AssignAppealRequest struct {
	AdminID *int64 `json:"admin_id"`
}

// ChangePriorityRequest payload.
type ChangePriorityRequest struct {
	Priority domain.AppealPriority `json:"priority"`
}

// CloseAppealRequest payload.
type CloseAppealRequest struct {
	Reason      string `json:"reason"`
	IsRejection bool   `json:"is_rejection"`
}

// AppealSummary response.
type AppealSummary struct {
	ID              int64                 `json:"id"`
	StudentID       int64                 `json:"student_id"`
	StudentName     string                `json:"student_name"`
	Category        string                `json:"category"`
	Subject         string                `json:"subject"`
	Status          domain.AppealStatus   `json:"status"`
	Priority        domain.AppealPriority `json:"priority"`
	AssignedAdminID *int64                `json:"assigned_admin_id"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// AppealDetailResponse provides the full appeal with its thread.
type AppealDetailResponse struct {
	AppealSummary
	Message         string                  `json:"message"`
	FirstResponseAt *time.Time              `json:"first_response_at"`
	ClosedAt        *time.Time              `json:"closed_at"`
	ClosedBy        *int64                  `json:"closed_by"`
	ClosedReason    *string                 `json:"closed_reason"`
	Rating          *int                    `json:"rating"`
	RatingComment   *string                 `json:"rating_comment"`
	Messages        []AppealMessageResponse `json:"messages"`
	History         []AppealHistoryResponse `json:"history,omitempty"`
}

// AppealMessageResponse represents a thread message.
type AppealMessageResponse struct {
	ID          int64               `json:"id"`
	SenderID    int64               `json:"sender_id"`
	SenderName  string              `json:"sender_name"`
	IsFromStaff bool                `json:"is_from_staff"`
	Text        string              `json:"text"`
	Attachments []domain.Attachment `json:"attachments"`
	SentAt      time.Time           `json:"sent_at"`
}

// AppealHistoryResponse is one audit entry.
type AppealHistoryResponse struct {
	ID         int64                   `json:"id"`
	ChangedBy  int64                   `json:"changed_by"`
	ChangeType domain.AppealChangeType `json:"change_type"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}
