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

type Start struct {
	textSender port.TextSender
	auth       service.Authorizer
	command    string
}

func NewStart(sender port.TextSender, auth service.Authorizer, command string) *Start {
	return &Start{textSender: sender, auth: auth, command: command}
}

func (s *Start) GetCommand() string {
	return s.command
}

func (s *Start) Respond(ctx context.Context, timeout time.Duration, message *domain.Message) error {
	log.Info().
		Int("messageId", message.ID).
		Int64("chatId", message.ChatID).
		Str("command", s.GetCommand()).
		Msg("handling request")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !s.auth.IsAuthorized(ctx, message.ChatID) {
		return nil
	}

	name := message.Username
	if name == "" {
		name = "there"
	}

	_, err := s.textSender.SendMessageReply(ctx, message, fmt.Sprintf("Hi %s! Use /help command for usage.", name))
	return err
}
