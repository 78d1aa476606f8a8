package handlers

import (
	"context"
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/campusdesk/appeal-service/internal/bot"
	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// BotSecretHeader carries the shared secret of the chat gateway.
const BotSecretHeader = "X-Bot-Secret"

// UpdateHandler processes one chat update.
type UpdateHandler interface {
	Handle(ctx context.Context, upd bot.Update) (bot.Reply, error)
}

// BotHandler receives chat updates forwarded by the gateway.
type BotHandler struct {
	flow   UpdateHandler
	secret string
}

// NewBotHandler constructs handler. An empty secret disables the check.
func NewBotHandler(flow UpdateHandler, secret string) *BotHandler {
	return &BotHandler{flow: flow, secret: secret}
}

// Update POST /bot/updates.
func (h *BotHandler) Update(c *fiber.Ctx) error {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.Get(BotSecretHeader)), []byte(h.secret)) != 1 {
		return apperrors.NewUnauthorized("invalid bot secret")
	}
	var upd bot.Update
	if err := c.BodyParser(&upd); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if upd.UserID <= 0 {
		return apperrors.NewValidationError("user_id required", nil)
	}
	reply, err := h.flow.Handle(c.UserContext(), upd)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": reply})
}
