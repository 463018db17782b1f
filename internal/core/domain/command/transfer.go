package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nstbot/internal/core/domain"
	"nstbot/internal/core/port"
	"nstbot/internal/core/service"

	"github.com/rs/zerolog/log"
)

const (
	contentAssignedReply = "CONTENT_ASSIGNED: got the content image, now send the style image."
	styleAssignedReply   = "STYLE_ASSIGNED, style transfer started. The result will be sent here when it is ready."
)

// Transfer takes photos from users and feeds them into the style transfer service.
type Transfer struct {
	service     port.StyleTransfer
	images      port.ImageStore
	textSender  port.TextSender
	imageSender port.ImageSender
	auth        service.Authorizer
	command     string
}

func NewTransfer(svc port.StyleTransfer,
	images port.ImageStore,
	textSender port.TextSender,
	imageSender port.ImageSender,
	auth service.Authorizer,
	command string) *Transfer {
	return &Transfer{
		service:     svc,
		images:      images,
		textSender:  textSender,
		imageSender: imageSender,
		auth:        auth,
		command:     command,
	}
}

func (t *Transfer) GetCommand() string {
	return t.command
}

func (t *Transfer) Respond(ctx context.Context, timeout time.Duration, message *domain.Message) error {
	l := log.With().
		Int("messageId", message.ID).
		Int64("chatId", message.ChatID).
		Str("imageURL", message.ImageURL).
		Str("command", t.GetCommand()).
		Logger()

	l.Info().Msg("handling request")

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !t.auth.IsAuthorized(reqCtx, message.ChatID) {
		l.Debug().Msg("not authorized")
		return nil
	}

	if message.ImageURL == "" {
		_ = t.textSender.NotifyAndReturnError(reqCtx, errors.New("missing image, please send a photo"), message)
		return nil
	}

	path, err := t.images.Fetch(reqCtx, message.ImageURL)
	if err != nil {
		return t.textSender.NotifyAndReturnError(reqCtx, fmt.Errorf("failed to download image: %w", err), message)
	}

	// The action and the final delivery outlive this handler, so they are detached from its deadline.
	actionCtx, stopAction := context.WithCancel(context.WithoutCancel(ctx))

	status, err := t.service.SubmitImage(message.ChatID, path, func(o domain.Outcome) {
		defer stopAction()
		t.deliver(context.WithoutCancel(ctx), timeout, message, o)
	})
	if err != nil {
		stopAction()
		l.Warn().Err(err).Str("status", string(status)).Msg("image rejected")
		if errors.Is(err, domain.ErrCapacity) {
			err = fmt.Errorf("%w, please try again later", err)
		}
		return t.textSender.NotifyAndReturnError(reqCtx, fmt.Errorf("could not use image: %w", err), message)
	}

	switch status {
	case domain.StatusContentAssigned:
		stopAction()
		_, err = t.textSender.SendMessageReply(reqCtx, message, contentAssignedReply)
	case domain.StatusStyleAssigned:
		go t.textSender.SendChatAction(actionCtx, message.ChatID, domain.SendingPhoto)
		_, err = t.textSender.SendMessageReply(reqCtx, message, styleAssignedReply)
	default:
		stopAction()
		_, err = t.textSender.SendMessageReply(reqCtx, message, string(status))
	}

	return err
}

func (t *Transfer) deliver(ctx context.Context, timeout time.Duration, message *domain.Message, o domain.Outcome) {
	l := log.With().Int64("chatId", message.ChatID).Str("path", o.Path).Logger()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if o.Err != nil {
		_ = t.textSender.NotifyAndReturnError(ctx, fmt.Errorf("style transfer failed: %w", o.Err), message)
		return
	}

	data, err := t.images.Read(o.Path)
	if err != nil {
		_ = t.textSender.NotifyAndReturnError(ctx, fmt.Errorf("failed to read result: %w", err), message)
		return
	}

	if err := t.imageSender.SendImageFileReply(ctx, message, data); err != nil {
		_ = t.textSender.NotifyAndReturnError(ctx, fmt.Errorf("failed to send result: %w", err), message)
		return
	}

	l.Info().Msg("result delivered")
}
