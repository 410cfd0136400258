package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestFormatReply(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		options []string
		want    string
	}{
		{"no options", "What is your name?", nil, "What is your name?"},
		{"numbered", "What kind?", []string{"House", "Flat"}, "What kind?\n1. House\n2. Flat"},
		{"already listed", "Pick:\n1. will", []string{"will"}, "Pick:\n1. will"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatReply(tt.text, tt.options); got != tt.want {
				t.Fatalf("formatReply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMentions(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		Content:  "<@!42> 2024",
		Mentions: []*discordgo.User{{ID: "42"}},
	}}
	if !isMentioned(m, "42") {
		t.Fatalf("expected mention")
	}
	if isMentioned(m, "7") {
		t.Fatalf("unexpected mention")
	}
	if got := cleanMention(m.Content, "42"); got != "2024" {
		t.Fatalf("cleanMention = %q", got)
	}
}
