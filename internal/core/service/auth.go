package service

import (
	"context"
	"fmt"
	"slices"

	"nstbot/internal/core/domain"
	"nstbot/internal/core/port"

	"github.com/rs/zerolog/log"
)

type Authorizer interface {
	IsAuthorized(ctx context.Context, chatID int64) bool
	IsAdmin(chatID int64) bool
}

type AuthParams struct {
	// AllowedChatIDs restricts the bot to these chats. An empty list allows everyone.
	AllowedChatIDs []int64
	AdminChatIDs   []int64
	AdminUsername  string
}

type ChatAuthorizer struct {
	allowlist     []int64
	admins        []int64
	adminUsername string
	sender        port.TextSender
}

func NewAuthorizer(sender port.TextSender, p AuthParams) *ChatAuthorizer {
	return &ChatAuthorizer{
		allowlist:     p.AllowedChatIDs,
		admins:        p.AdminChatIDs,
		adminUsername: p.AdminUsername,
		sender:        sender,
	}
}

const forbidden = "You are not authorized to use this bot. Please contact @%s with this ID to get access: %d"

func (a *ChatAuthorizer) IsAuthorized(ctx context.Context, chatID int64) bool {
	if len(a.allowlist) == 0 || slices.Contains(a.allowlist, chatID) || a.IsAdmin(chatID) {
		return true
	}

	_, err := a.sender.SendMessageReply(ctx,
		&domain.Message{ChatID: chatID},
		fmt.Sprintf(forbidden, a.adminUsername, chatID))
	if err != nil {
		log.Err(err).Msg("failed to send unauthorized warning")
	}

	return false
}

// IsAdmin reports whether chatID may use the diagnostic commands.
func (a *ChatAuthorizer) IsAdmin(chatID int64) bool {
	return slices.Contains(a.admins, chatID)
}
