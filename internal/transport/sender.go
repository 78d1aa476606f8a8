package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Sender delivers a text message to a chat user.
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
}

// LogSender only logs outbound messages. It is used when no chat gateway is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, userID int64, text string) error {
	s.logger.Info("outbound chat message", zap.Int64("user_id", userID), zap.Int("length", len(text)))
	return nil
}

// GatewaySender posts messages to the chat platform gateway.
type GatewaySender struct {
	url     string
	token   string
	timeout time.Duration
}

// NewGatewaySender builds a sender for the given gateway endpoint.
func NewGatewaySender(url, token string, timeout time.Duration) *GatewaySender {
	return &GatewaySender{url: url, token: token, timeout: timeout}
}

type gatewayMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (s *GatewaySender) Send(ctx context.Context, userID int64, text string) error {
	return PostJSON(ctx, s.url, s.token, s.timeout, gatewayMessage{ChatID: userID, Text: text})
}

// PostJSON sends body as JSON and treats any non-2xx status as failure. The
// request timeout is the smaller of timeout and the context deadline.
func PostJSON(ctx context.Context, url, token string, timeout time.Duration, body any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	agent := fiber.Post(url).JSON(body).Timeout(timeout)
	if token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("unexpected status %d from %s", code, url)
	}
	return nil
}
