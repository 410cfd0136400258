// Package telegram carries interview turns over a Telegram bot.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kayz/scribe/internal/router"
)

// maxMessageLen is Telegram's limit for one text message.
const maxMessageLen = 4096

// Platform implements router.Platform for Telegram.
type Platform struct {
	bot            *tgbotapi.BotAPI
	messageHandler func(msg router.Message)
	ctx            context.Context
	cancel         context.CancelFunc
}

// Config holds Telegram configuration.
type Config struct {
	Token string // Bot token from @BotFather
	Debug bool
}

// New creates a Telegram platform.
func New(cfg Config) (*Platform, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("Telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug

	return &Platform{bot: bot}, nil
}

// Name returns the platform name.
func (p *Platform) Name() string {
	return "telegram"
}

// SetMessageHandler sets the callback for incoming messages.
func (p *Platform) SetMessageHandler(handler func(msg router.Message)) {
	p.messageHandler = handler
}

// Start begins long polling for updates.
func (p *Platform) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := p.bot.GetUpdatesChan(u)

	go p.handleUpdates(updates)

	log.Printf("[Telegram] Connected as bot: @%s", p.bot.Self.UserName)
	return nil
}

// Stop shuts down polling.
func (p *Platform) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.bot.StopReceivingUpdates()
	return nil
}

// Send delivers a reply. Options become a one-time reply keyboard. A
// document follows the reply as its own messages, or as a file when it is
// too long for a few messages.
func (p *Platform) Send(ctx context.Context, channelID string, resp router.Response) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", channelID, err)
	}

	if resp.Text != "" {
		msg := tgbotapi.NewMessage(chatID, resp.Text)
		msg.ReplyMarkup = replyMarkup(resp.Options)
		if resp.ThreadID != "" {
			if msgID, err := strconv.Atoi(resp.ThreadID); err == nil {
				msg.ReplyToMessageID = msgID
			}
		}
		if _, err := p.bot.Send(msg); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}

	if resp.Document == "" {
		return nil
	}
	parts := chunk(resp.Document, maxMessageLen)
	if len(parts) > 3 {
		file := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
			Name:  "document.txt",
			Bytes: []byte(resp.Document),
		})
		if _, err := p.bot.Send(file); err != nil {
			return fmt.Errorf("failed to send document: %w", err)
		}
		return nil
	}
	for _, part := range parts {
		if _, err := p.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("failed to send document: %w", err)
		}
	}
	return nil
}

func (p *Platform) handleUpdates(updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.From == nil || update.Message.From.IsBot {
				continue
			}
			if !p.shouldRespond(update.Message) {
				continue
			}
			text := cleanMention(update.Message.Text, p.bot.Self.UserName)
			if text == "" || p.messageHandler == nil {
				continue
			}
			p.messageHandler(toMessage(update.Message, text))
		}
	}
}

// shouldRespond answers every private message. In groups only commands,
// mentions and replies to the bot count, since each member keeps their own
// session keyed by user.
func (p *Platform) shouldRespond(msg *tgbotapi.Message) bool {
	if msg.Chat == nil || msg.Chat.IsPrivate() {
		return true
	}
	if msg.IsCommand() || strings.Contains(msg.Text, "@"+p.bot.Self.UserName) {
		return true
	}
	return msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil &&
		msg.ReplyToMessage.From.ID == p.bot.Self.ID
}

func toMessage(m *tgbotapi.Message, text string) router.Message {
	threadID := ""
	if m.ReplyToMessage != nil {
		threadID = strconv.Itoa(m.ReplyToMessage.MessageID)
	}
	chatType := ""
	if m.Chat != nil {
		chatType = m.Chat.Type
	}
	return router.Message{
		ID:        strconv.Itoa(m.MessageID),
		Platform:  "telegram",
		ChannelID: strconv.FormatInt(m.Chat.ID, 10),
		UserID:    strconv.FormatInt(m.From.ID, 10),
		Username:  username(m.From),
		Text:      text,
		ThreadID:  threadID,
		Metadata:  map[string]string{"chat_type": chatType},
	}
}

// replyMarkup builds a keyboard with one button per row, or removes any
// previous keyboard when there are no options.
func replyMarkup(options []string) any {
	if len(options) == 0 {
		return tgbotapi.NewRemoveKeyboard(false)
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(options))
	for _, opt := range options {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(opt)))
	}
	kb := tgbotapi.NewOneTimeReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

// chunk splits text into pieces of at most limit runes, preferring line
// breaks.
func chunk(text string, limit int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

func cleanMention(text, botUsername string) string {
	if botUsername != "" {
		text = strings.ReplaceAll(text, "@"+botUsername, "")
	}
	return strings.TrimSpace(text)
}

func username(user *tgbotapi.User) string {
	if user.UserName != "" {
		return user.UserName
	}
	if user.FirstName != "" {
		name := user.FirstName
		if user.LastName != "" {
			name += " " + user.LastName
		}
		return name
	}
	return strconv.FormatInt(user.ID, 10)
}
