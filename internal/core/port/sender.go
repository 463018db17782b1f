package port

import (
	"context"

	"nstbot/internal/core/domain"
)

// TextSender replies to users in text.
type TextSender interface {
	// SendMessageReply answers message with text and returns the ID of the last message sent.
	SendMessageReply(ctx context.Context, message *domain.Message, text string) (int, error)
	// SendChatAction shows action in the chat until ctx is done.
	SendChatAction(ctx context.Context, chatID int64, action domain.Action)
	// NotifyAndReturnError shows err to the user and hands it back to the caller.
	NotifyAndReturnError(ctx context.Context, err error, message *domain.Message) error
}

// ImageSender delivers generated images.
type ImageSender interface {
	SendImageFileReply(ctx context.Context, message *domain.Message, file []byte) error
}
