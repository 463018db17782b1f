package command

import (
	"context"
	"fmt"
	"time"

	"nstbot/internal/core/domain"
	"nstbot/internal/core/port"
	"nstbot/internal/core/service"

	"github.com/rs/zerolog/log"
)

type Result struct {
	service     port.StyleTransfer
	images      port.ImageStore
	textSender  port.TextSender
	imageSender port.ImageSender
	auth        service.Authorizer
	command     string
}

func NewResult(svc port.StyleTransfer, images port.ImageStore, textSender port.TextSender,
	imageSender port.ImageSender, auth service.Authorizer, command string) *Result {
	return &Result{service: svc, images: images, textSender: textSender, imageSender: imageSender, auth: auth,
		command: command}
}

func (r *Result) GetCommand() string {
	return r.command
}

func (r *Result) Respond(ctx context.Context, timeout time.Duration, message *domain.Message) error {
	l := log.With().
		Int("messageId", message.ID).
		Int64("chatId", message.ChatID).
		Str("command", r.GetCommand()).
		Logger()

	l.Info().Msg("handling request")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !r.auth.IsAuthorized(ctx, message.ChatID) {
		l.Debug().Msg("not authorized")
		return nil
	}

	path, err := r.service.GetResult(message.ChatID)
	if err != nil {
		return r.textSender.NotifyAndReturnError(ctx, fmt.Errorf("no result available: %w", err), message)
	}

	data, err := r.images.Read(path)
	if err != nil {
		return r.textSender.NotifyAndReturnError(ctx, fmt.Errorf("failed to read result: %w", err), message)
	}

	if err := r.imageSender.SendImageFileReply(ctx, message, data); err != nil {
		return r.textSender.NotifyAndReturnError(ctx, fmt.Errorf("failed to send result: %w", err), message)
	}

	return nil
}
