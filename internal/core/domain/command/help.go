package command

import (
	"context"
	"time"

	"nstbot/internal/core/domain"
	"nstbot/internal/core/port"
	"nstbot/internal/core/service"

	"github.com/rs/zerolog/log"
)

const helpText = `The bot expects to receive two images and sends the result of neural style transfer ` +
	`(https://en.wikipedia.org/wiki/Neural_style_transfer) in return. The first image will be used as a content ` +
	`image, the second as a style one.

/result sends the latest finished image again.`

type Help struct {
	textSender port.TextSender
	auth       service.Authorizer
	command    string
}

func NewHelp(sender port.TextSender, auth service.Authorizer, command string) *Help {
	return &Help{textSender: sender, auth: auth, command: command}
}

func (h *Help) GetCommand() string {
	return h.command
}

func (h *Help) Respond(ctx context.Context, timeout time.Duration, message *domain.Message) error {
	log.Info().
		Int("messageId", message.ID).
		Int64("chatId", message.ChatID).
		Str("command", h.GetCommand()).
		Msg("handling request")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !h.auth.IsAuthorized(ctx, message.ChatID) {
		return nil
	}

	_, err := h.textSender.SendMessageReply(ctx, message, helpText)
	return err
}
