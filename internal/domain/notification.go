package domain

import "time"

// NotificationEvent names what happened.
type NotificationEvent string

const (
	EventNewAppeal       NotificationEvent = "NEW_APPEAL"
	EventNewStaffReply   NotificationEvent = "NEW_STAFF_REPLY"
	EventNewStudentReply NotificationEvent = "NEW_STUDENT_REPLY"
	EventAppealAssigned  NotificationEvent = "APPEAL_ASSIGNED"
	EventAppealResolved  NotificationEvent = "APPEAL_RESOLVED"
	EventAppealClosed    NotificationEvent = "APPEAL_CLOSED"
	EventRatingRequest   NotificationEvent = "RATING_REQUEST"
	EventPriorityChanged NotificationEvent = "PRIORITY_CHANGED"
)

// NotificationChannel is a delivery medium.
type NotificationChannel string

const (
	ChannelPush  NotificationChannel = "PUSH"
	ChannelEmail NotificationChannel = "EMAIL"
	ChannelSMS   NotificationChannel = "SMS"
	ChannelInApp NotificationChannel = "IN_APP"
)

// NotificationStatus tracks delivery progress.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "PENDING"
	NotificationSent      NotificationStatus = "SENT"
	NotificationDelivered NotificationStatus = "DELIVERED"
	NotificationFailed    NotificationStatus = "FAILED"
)

// NotificationPriority orders delivery urgency.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "LOW"
	NotificationPriorityNormal NotificationPriority = "NORMAL"
	NotificationPriorityHigh   NotificationPriority = "HIGH"
)

// Notification is kept forever as an audit trail; only its delivery fields change.
type Notification struct {
	ID           string
	UserID       int64
	Event        NotificationEvent
	Channel      NotificationChannel
	Title        string
	Body         string
	Priority     NotificationPriority
	AppealID     *int64
	Status       NotificationStatus
	ScheduledFor *time.Time
	SentAt       *time.Time
	ReadAt       *time.Time
	ErrorMessage *string
	RetryCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NotificationTemplate is the localized text for an event on a channel.
// Placeholders use the {key} form.
type NotificationTemplate struct {
	Event         NotificationEvent
	Channel       NotificationChannel
	Language      string
	TitleTemplate string
	BodyTemplate  string
}
