package telegram

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestChunk(t *testing.T) {
	if got := chunk("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("chunk(short) = %q", got)
	}
	if got := chunk("", 10); len(got) != 0 {
		t.Fatalf("chunk(empty) = %q", got)
	}

	text := "line one\nline two\nline three"
	parts := chunk(text, 12)
	if strings.Join(parts, "") != text {
		t.Fatalf("chunks lost text: %q", parts)
	}
	for _, p := range parts {
		if len([]rune(p)) > 12 {
			t.Fatalf("chunk too long: %q", p)
		}
	}
	if parts[0] != "line one\n" {
		t.Fatalf("expected split at line break, got %q", parts[0])
	}

	long := strings.Repeat("я", 25)
	parts = chunk(long, 10)
	if len(parts) != 3 || len([]rune(parts[2])) != 5 {
		t.Fatalf("rune split = %q", parts)
	}
}

func TestReplyMarkup(t *testing.T) {
	if _, ok := replyMarkup(nil).(tgbotapi.ReplyKeyboardRemove); !ok {
		t.Fatalf("expected keyboard removal without options")
	}
	kb, ok := replyMarkup([]string{"Yes", "No"}).(tgbotapi.ReplyKeyboardMarkup)
	if !ok {
		t.Fatalf("expected reply keyboard")
	}
	if len(kb.Keyboard) != 2 || kb.Keyboard[1][0].Text != "No" || !kb.OneTimeKeyboard {
		t.Fatalf("unexpected keyboard: %+v", kb)
	}
}

func TestToMessage(t *testing.T) {
	m := &tgbotapi.Message{
		MessageID:      10,
		From:           &tgbotapi.User{ID: 7, FirstName: "Ada", LastName: "King"},
		Chat:           &tgbotapi.Chat{ID: -100, Type: "group"},
		ReplyToMessage: &tgbotapi.Message{MessageID: 9},
	}
	msg := toMessage(m, "hello")
	if msg.SessionKey() != "telegram:-100:7" {
		t.Fatalf("session key = %q", msg.SessionKey())
	}
	if msg.Username != "Ada King" || msg.ThreadID != "9" || msg.Metadata["chat_type"] != "group" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestCleanMention(t *testing.T) {
	if got := cleanMention("/start@scribe_bot", "scribe_bot"); got != "/start" {
		t.Fatalf("cleanMention = %q", got)
	}
	if got := cleanMention("  @scribe_bot 2024 ", "scribe_bot"); got != "2024" {
		t.Fatalf("cleanMention = %q", got)
	}
}
