package handler

import (
	"context"
	"strings"
	"sync"
	"time"

	"nstbot/internal/core/domain"
	"nstbot/internal/core/domain/command"
	"nstbot/internal/core/port"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"
)

// FileLinker resolves Telegram file IDs to download URLs. *bot.Bot implements it.
type FileLinker interface {
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	FileDownloadLink(f *models.File) string
}

type Command struct {
	commandRegistry port.CommandRegistry
	files           FileLinker
	timeout         time.Duration
	photoCommand    string
	fallbackCommand string
	lanes           *lanes
}

// NewCommand creates the update handler. Photos without a command in their caption go to photoCommand, plain
// text without a command goes to fallbackCommand. Either may be empty to ignore such messages.
func NewCommand(commandRegistry port.CommandRegistry,
	files FileLinker,
	timeout time.Duration,
	photoCommand string,
	fallbackCommand string) *Command {
	return &Command{
		commandRegistry: commandRegistry,
		files:           files,
		timeout:         timeout,
		photoCommand:    photoCommand,
		fallbackCommand: fallbackCommand,
		lanes:           &lanes{pending: make(map[int64][]func())},
	}
}

// Handle dispatches an update to its command handler. Updates of the same chat are handled one after another in
// arrival order, so a content image is always assigned before the style image that follows it.
func (c *Command) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil {
		log.Debug().Msg("update without message")
		return
	}

	msg := update.Message
	text := msg.Text
	if len(msg.Photo) > 0 {
		text = msg.Caption
	}

	log.Debug().Str("message", text).Int64("chatId", msg.Chat.ID).Msg("received update")

	cmd := c.resolveCommand(text, len(msg.Photo) > 0)
	if cmd == "" {
		log.Debug().Msg("ignoring message without command")
		return
	}

	commandHandler, err := c.commandRegistry.Get(cmd)
	if err != nil {
		log.Debug().Err(err).Str("command", cmd).Msg("no handler for command")
		return
	}

	c.lanes.submit(msg.Chat.ID, func() {
		message := &domain.Message{
			ID:       msg.ID,
			ChatID:   msg.Chat.ID,
			Text:     text,
			Username: getUserNameFromMessage(msg.From),
			ImageURL: c.imageURL(ctx, msg.Photo),
		}

		if err := commandHandler.Respond(ctx, c.timeout, message); err != nil {
			log.Err(err).Str("command", cmd).Msg("failed to respond to command")
		}
	})
}

func (c *Command) resolveCommand(text string, hasPhoto bool) string {
	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		return command.ParseCommand(text)
	}

	if hasPhoto {
		return c.photoCommand
	}

	if strings.TrimSpace(text) == "" {
		return ""
	}

	return c.fallbackCommand
}

func (c *Command) imageURL(ctx context.Context, photos []models.PhotoSize) string {
	if len(photos) == 0 || c.files == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	f, err := c.files.GetFile(ctx, &bot.GetFileParams{FileID: findMediumSizedImage(photos)})
	if err != nil {
		log.Error().Err(err).Msg("error getting file from telegram api")
		return ""
	}

	return c.files.FileDownloadLink(f)
}

const minSize = 80000
const maxSize = 130000

func findMediumSizedImage(photos []models.PhotoSize) string {
	for _, photo := range photos {
		if photo.FileSize > minSize && photo.FileSize < maxSize {
			return photo.FileID
		}
	}

	return photos[len(photos)-1].FileID
}

func getUserNameFromMessage(user *models.User) string {
	if user == nil {
		return ""
	}

	if user.Username == "" {
		return user.FirstName
	}

	return "@" + user.Username
}

// lanes runs submitted funcs sequentially per chat, with at most one goroutine per chat alive.
type lanes struct {
	mu      sync.Mutex
	pending map[int64][]func()
}

func (l *lanes) submit(chatID int64, fn func()) {
	l.mu.Lock()
	queue, running := l.pending[chatID]
	l.pending[chatID] = append(queue, fn)
	l.mu.Unlock()

	if !running {
		go l.drain(chatID)
	}
}

func (l *lanes) drain(chatID int64) {
	for {
		l.mu.Lock()
		queue := l.pending[chatID]
		if len(queue) == 0 {
			delete(l.pending, chatID)
			l.mu.Unlock()
			return
		}
		fn := queue[0]
		l.pending[chatID] = queue[1:]
		l.mu.Unlock()

		l.run(chatID, fn)
	}
}

func (l *lanes) run(chatID int64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int64("chatId", chatID).Msg("recovered from panic in handler")
		}
	}()

	fn()
}
