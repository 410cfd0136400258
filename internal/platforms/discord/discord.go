// Package discord carries interview turns over a Discord bot.
package discord

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/kayz/scribe/internal/router"
)

// maxMessageLen is Discord's content limit for one message.
const maxMessageLen = 2000

// Platform implements router.Platform for Discord.
type Platform struct {
	session        *discordgo.Session
	botUserID      string
	messageHandler func(msg router.Message)
	ctx            context.Context
	cancel         context.CancelFunc
}

// Config holds Discord configuration.
type Config struct {
	Token string // Bot token from Discord Developer Portal
}

// New creates a Discord platform.
func New(cfg Config) (*Platform, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("Discord bot token is required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return &Platform{session: session}, nil
}

// Name returns the platform name.
func (p *Platform) Name() string {
	return "discord"
}

// SetMessageHandler sets the callback for incoming messages.
func (p *Platform) SetMessageHandler(handler func(msg router.Message)) {
	p.messageHandler = handler
}

// Start opens the gateway connection.
func (p *Platform) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.session.AddHandler(p.handleMessage)
	if err := p.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	user, err := p.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	p.botUserID = user.ID

	log.Printf("[Discord] Connected as bot: %s", user.Username)
	return nil
}

// Stop closes the connection.
func (p *Platform) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	return p.session.Close()
}

// Send delivers a reply with options rendered as a numbered list. A long
// document is attached as a file.
func (p *Platform) Send(ctx context.Context, channelID string, resp router.Response) error {
	if text := formatReply(resp.Text, resp.Options); text != "" {
		var reference *discordgo.MessageReference
		if resp.ThreadID != "" {
			reference = &discordgo.MessageReference{MessageID: resp.ThreadID, ChannelID: channelID}
		}
		_, err := p.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Content:   text,
			Reference: reference,
		})
		if err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}

	if resp.Document == "" {
		return nil
	}
	send := &discordgo.MessageSend{Content: resp.Document}
	if len([]rune(resp.Document)) > maxMessageLen {
		send = &discordgo.MessageSend{
			Files: []*discordgo.File{{
				Name:        "document.txt",
				ContentType: "text/plain",
				Reader:      strings.NewReader(resp.Document),
			}},
		}
	}
	if _, err := p.session.ChannelMessageSendComplex(channelID, send); err != nil {
		return fmt.Errorf("failed to send document: %w", err)
	}
	return nil
}

func (p *Platform) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || p.messageHandler == nil {
		return
	}

	isDM := m.GuildID == ""
	if !isDM && !isMentioned(m, p.botUserID) && !strings.HasPrefix(m.Content, "/") {
		return
	}

	text := cleanMention(m.Content, p.botUserID)
	if text == "" {
		return
	}

	threadID := ""
	if m.ReferencedMessage != nil {
		threadID = m.ReferencedMessage.ID
	}
	channelType := "guild"
	if isDM {
		channelType = "dm"
	}

	p.messageHandler(router.Message{
		ID:        m.ID,
		Platform:  "discord",
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		Username:  m.Author.Username,
		Text:      text,
		ThreadID:  threadID,
		Metadata: map[string]string{
			"channel_type": channelType,
			"guild_id":     m.GuildID,
		},
	})
}

// formatReply appends options as a numbered list.
func formatReply(text string, options []string) string {
	if len(options) == 0 || strings.Contains(text, "\n1. ") {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	for i, opt := range options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	return b.String()
}

func isMentioned(m *discordgo.MessageCreate, botUserID string) bool {
	for _, mention := range m.Mentions {
		if mention.ID == botUserID {
			return true
		}
	}
	return m.ReferencedMessage != nil && m.ReferencedMessage.Author != nil &&
		m.ReferencedMessage.Author.ID == botUserID
}

// cleanMention strips <@ID> and <@!ID> mentions of the bot.
func cleanMention(text, botUserID string) string {
	text = strings.ReplaceAll(text, "<@"+botUserID+">", "")
	text = strings.ReplaceAll(text, "<@!"+botUserID+">", "")
	return strings.TrimSpace(text)
}
