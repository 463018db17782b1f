package sender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"nstbot/internal/core/domain"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"
)

// TelegramBot is the subset of *bot.Bot the sender needs.
type TelegramBot interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

const (
	TelegramMessageLimit    = 4096
	ChatActionRepeatSeconds = 5
)

type Telegram struct {
	bot            TelegramBot
	actionInterval time.Duration
}

func NewTelegram(b TelegramBot) *Telegram {
	return &Telegram{bot: b, actionInterval: ChatActionRepeatSeconds * time.Second}
}

func replyTo(message *domain.Message) *models.ReplyParameters {
	if message.ID == 0 {
		return nil
	}
	return &models.ReplyParameters{
		MessageID: message.ID,
		ChatID:    message.ChatID,
	}
}

// SendMessageReply replies with text, split into several messages if it exceeds the Telegram limit. It returns
// the ID of the last message sent.
func (s *Telegram) SendMessageReply(ctx context.Context, message *domain.Message, text string) (int, error) {
	var id int
	for _, chunk := range chunk(text, TelegramMessageLimit) {
		sent, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:          message.ChatID,
			Text:            chunk,
			ReplyParameters: replyTo(message),
		})
		if err != nil {
			log.Error().Err(err).Int64("chatId", message.ChatID).Msg("failed to send message")
			return id, err
		}
		if sent != nil {
			id = sent.ID
		}
	}

	return id, nil
}

func chunk(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		n := min(limit, len(runes))
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}

func (s *Telegram) SendImageFileReply(ctx context.Context, message *domain.Message, file []byte) error {
	params := &bot.SendPhotoParams{
		ChatID: message.ChatID,
		Photo: &models.InputFileUpload{Filename: fmt.Sprintf("%d.png", message.ID),
			Data: bytes.NewReader(file)},
		ReplyParameters: replyTo(message),
	}

	_, err := s.bot.SendPhoto(ctx, params)
	if err != nil {
		log.Error().Err(err).Msg("failed to send photo response")
		return err
	}

	return nil
}

// NotifyAndReturnError tells the user about err and returns it. If the notification itself fails, both errors
// are returned.
func (s *Telegram) NotifyAndReturnError(ctx context.Context, err error, message *domain.Message) error {
	log.Warn().Err(err).Int64("chatId", message.ChatID).Int("messageId", message.ID).Msg("notifying user of error")

	_, sendErr := s.SendMessageReply(ctx, message, err.Error())
	if sendErr != nil {
		return errors.Join(err, fmt.Errorf("%w: %w", domain.ErrSendingReplyFailed, sendErr))
	}

	return err
}

// SendChatAction repeats the chat action until ctx is done, since Telegram clears it after a few seconds.
func (s *Telegram) SendChatAction(ctx context.Context, chatID int64, action domain.Action) {
	log.Debug().Int64("chatID", chatID).Msg("starting action routine")

	var chatAction models.ChatAction
	switch action {
	case domain.SendingPhoto:
		chatAction = models.ChatActionUploadPhoto
	default:
		chatAction = models.ChatActionTyping
	}

	ticker := time.NewTicker(s.actionInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		_, err := s.bot.SendChatAction(ctx, &bot.SendChatActionParams{
			ChatID: chatID,
			Action: chatAction,
		})
		if err != nil {
			if ctx.Err() == nil {
				log.Err(err).Msg("error sending chat action")
			}
			return
		}

		select {
		case <-ctx.Done():
			log.Debug().Int64("chatID", chatID).Msg("done, stopping action routine")
			return
		case <-ticker.C:
		}
	}
}
