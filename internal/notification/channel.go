package notification

import (
	"context"
	"errors"
	"time"

	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/transport"
)

// Message is what a channel needs to reach the recipient.
type Message struct {
	NotificationID string
	Recipient      domain.User
	Title          string
	Body           string
	Priority       domain.NotificationPriority
	AppealID       *int64
}

// Channel delivers a message over one medium. delivered reports whether the
// medium confirmed receipt; otherwise the message is only handed off.
type Channel interface {
	Send(ctx context.Context, msg Message) (delivered bool, err error)
}

// ErrNoAddress is returned when the recipient has no address on a channel.
var ErrNoAddress = errors.New("recipient has no address for channel")

// InAppChannel needs no transport: the stored record is the inbox entry.
type InAppChannel struct{}

func (InAppChannel) Send(context.Context, Message) (bool, error) {
	return true, nil
}

// PushChannel pushes the message into the user's chat.
type PushChannel struct {
	sender transport.Sender
}

// NewPushChannel builds a push channel on top of the chat transport.
func NewPushChannel(sender transport.Sender) *PushChannel {
	return &PushChannel{sender: sender}
}

func (c *PushChannel) Send(ctx context.Context, msg Message) (bool, error) {
	text := msg.Body
	if msg.Title != "" {
		text = msg.Title + "\n\n" + msg.Body
	}
	if err := c.sender.Send(ctx, msg.Recipient.ID, text); err != nil {
		return false, err
	}
	return false, nil
}

// WebhookChannel hands messages to an email or SMS provider over HTTP.
type WebhookChannel struct {
	url     string
	kind    domain.NotificationChannel
	timeout time.Duration
}

// NewWebhookChannel builds a provider webhook channel for kind.
func NewWebhookChannel(kind domain.NotificationChannel, url string, timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{url: url, kind: kind, timeout: timeout}
}

type webhookPayload struct {
	NotificationID string  `json:"notification_id"`
	Channel        string  `json:"channel"`
	UserID         int64   `json:"user_id"`
	Email          *string `json:"email,omitempty"`
	Title          string  `json:"title"`
	Body           string  `json:"body"`
	Priority       string  `json:"priority"`
	AppealID       *int64  `json:"appeal_id,omitempty"`
}

func (c *WebhookChannel) Send(ctx context.Context, msg Message) (bool, error) {
	if c.kind == domain.ChannelEmail && msg.Recipient.Email == nil {
		return false, ErrNoAddress
	}
	payload := webhookPayload{
		NotificationID: msg.NotificationID,
		Channel:        string(c.kind),
		UserID:         msg.Recipient.ID,
		Email:          msg.Recipient.Email,
		Title:          msg.Title,
		Body:           msg.Body,
		Priority:       string(msg.Priority),
		AppealID:       msg.AppealID,
	}
	if err := transport.PostJSON(ctx, c.url, "", c.timeout, payload); err != nil {
		return false, err
	}
	return false, nil
}
