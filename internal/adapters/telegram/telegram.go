// Package telegram sends plain-text messages to one chat through telebot.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Telegram caps a message at 4096 characters.
const maxMessage = 4096

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// APIURL overrides the Bot API endpoint (tests, local bot servers).
	APIURL  string
	Timeout time.Duration
}

type Sender struct {
	bot      *tele.Bot
	chat     *tele.Chat
	threadID int
}

// New builds a sender without contacting Telegram; a bad token surfaces on
// the first send.
func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Sender{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, threadID: cfg.ThreadID}, nil
}

// SendText posts text to the configured chat. telebot has no per-call
// context, so ctx is only checked before sending.
func (s *Sender) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if r := []rune(text); len(r) > maxMessage {
		text = string(r[:maxMessage-1]) + "…"
	}
	_, err := s.bot.Send(s.chat, text, &tele.SendOptions{
		ThreadID:              s.threadID,
		DisableWebPagePreview: true,
	})
	return err
}
