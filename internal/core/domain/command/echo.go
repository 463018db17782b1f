package command

import (
	"context"
	"time"

	"nstbot/internal/core/domain"
	"nstbot/internal/core/port"
	"nstbot/internal/core/service"
)

// Echo repeats plain text back to the sender.
type Echo struct {
	textSender port.TextSender
	auth       service.Authorizer
	command    string
}

func NewEcho(sender port.TextSender, auth service.Authorizer, command string) *Echo {
	return &Echo{textSender: sender, auth: auth, command: command}
}

func (e *Echo) GetCommand() string {
	return e.command
}

func (e *Echo) Respond(ctx context.Context, timeout time.Duration, message *domain.Message) error {
	text := message.Text
	if ParseCommand(text) == e.command {
		text = ParseCommandArgs(text)
	}
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !e.auth.IsAuthorized(ctx, message.ChatID) {
		return nil
	}

	_, err := e.textSender.SendMessageReply(ctx, message, text)
	return err
}
