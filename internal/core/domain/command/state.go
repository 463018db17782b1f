package command

import (
	"context"
	"errors"
	"time"

	"nstbot/internal/core/domain"
	"nstbot/internal/core/port"
	"nstbot/internal/core/service"

	"github.com/rs/zerolog/log"
)

// State dumps every user's requests. Only admins may use it.
type State struct {
	service    port.StyleTransfer
	textSender port.TextSender
	auth       service.Authorizer
	command    string
}

func NewState(svc port.StyleTransfer, textSender port.TextSender, auth service.Authorizer, command string) *State {
	return &State{service: svc, textSender: textSender, auth: auth, command: command}
}

func (s *State) GetCommand() string {
	return s.command
}

func (s *State) Respond(ctx context.Context, timeout time.Duration, message *domain.Message) error {
	l := log.With().
		Int("messageId", message.ID).
		Int64("chatId", message.ChatID).
		Str("command", s.GetCommand()).
		Logger()

	l.Info().Msg("handling request")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !s.auth.IsAdmin(message.ChatID) {
		l.Warn().Msg("state requested by non-admin")
		return s.textSender.NotifyAndReturnError(ctx, errors.New("state is only available to admins"), message)
	}

	_, err := s.textSender.SendMessageReply(ctx, message, s.service.DumpState())
	return err
}
