package port

import (
	"context"
	"time"

	"nstbot/internal/core/domain"
)

// Command answers one bot command. Respond gets the handler timeout and must bound its own Telegram calls with
// it; work that outlives the update, such as a queued transfer, reports back through its own callbacks.
type Command interface {
	Respond(ctx context.Context, timeout time.Duration, message *domain.Message) error
	// GetCommand is the slash-prefixed name the command is registered under, e.g. "/nst".
	GetCommand() string
}

// CommandRegistry maps command names to their handlers. It is filled at startup and read concurrently by the
// update handler afterwards.
type CommandRegistry interface {
	Register(handler Command)
	Get(command string) (Command, error)
	ListCommands() []string
}
