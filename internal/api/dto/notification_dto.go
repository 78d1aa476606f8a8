package dto

import (
	"time"

	"github.com/campusdesk/appeal-service/internal/domain"
)

// NotificationResponse is an in-app inbox entry.
type NotificationResponse struct {
	ID        string                      `json:"id"`
	Event     domain.NotificationEvent    `json:"event"`
	Title     string                      `json:"title"`
	Body      string                      `json:"body"`
	Priority  domain.NotificationPriority `json:"priority"`
	AppealID  *int64                      `json:"appeal_id"`
	Status    domain.NotificationStatus   `json:"status"`
	ReadAt    *time.Time                  `json:"read_at"`
	CreatedAt time.Time                   `json:"created_at"`
}

// PreferenceRequest toggles one (event, channel) pair.
type PreferenceRequest struct {
	Event   domain.NotificationEvent   `json:"event"`
	Channel domain.NotificationChannel `json:"channel"`
	Enabled *bool                      `json:"enabled"`
}
