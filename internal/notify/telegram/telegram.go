// Package telegram sends notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"dashwatch/internal/notify"
	logx "dashwatch/pkg/logx"
)

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int // forum topic; 0 for none
	Timeout  time.Duration
	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL string
}

// Sender implements notify.Sender.
type Sender struct {
	bot      *tele.Bot
	chat     *tele.Chat
	threadID int
	log      logx.Logger
}

var _ notify.Sender = (*Sender)(nil)

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// Offline skips the getMe handshake; the sender never polls updates.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &Sender{
		bot:      b,
		chat:     &tele.Chat{ID: cfg.ChatID},
		threadID: cfg.ThreadID,
		log:      log.With(logx.String("comp", "telegram")),
	}, nil
}

func (s *Sender) SendMessage(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(s.chat, text, &tele.SendOptions{ThreadID: s.threadID, DisableWebPagePreview: true})
	return err
}

func (s *Sender) SendDocument(ctx context.Context, doc notify.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := &tele.Document{
		File:     tele.FromReader(doc.Body),
		FileName: doc.Name,
		Caption:  doc.Caption,
	}
	msg, err := s.bot.Send(s.chat, d, &tele.SendOptions{ThreadID: s.threadID})
	if err != nil {
		return err
	}
	s.log.Debug("document sent", logx.String("name", doc.Name), logx.Int("message_id", msg.ID))
	return nil
}
